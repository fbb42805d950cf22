// Package vectorstore 定义了向量存储的窄接口与数据结构。
// 底层引擎（Elasticsearch、内存实现等）通过该接口对管道保持可替换。
package vectorstore

import (
	"context"
	"fmt"
)

// Record 是持久化在向量存储中的一条记录。
// ID 采用确定性方案 "{fileName}_chunk_{index}"，重新摄取同名文件时
// upsert 会自然覆盖序号相同的旧分块。
type Record struct {
	ID         string
	FileName   string
	ChunkIndex int
	Text       string
	Vector     []float32
}

// RecordID 生成分块的确定性 ID。
func RecordID(fileName string, chunkIndex int) string {
	return fmt.Sprintf("%s_chunk_%d", fileName, chunkIndex)
}

// Result 是一条检索命中，按余弦相似度降序排列。
type Result struct {
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	FileName   string  `json:"fileName"`
	ChunkIndex int     `json:"chunkIndex"`
}

// Store 是向量存储的接口。
type Store interface {
	// Upsert 按 ID 批量插入或替换记录。单次调用对调用方是原子的：
	// 底层引擎无法保证时，调用方应整批重试而不是假设部分生效。
	Upsert(ctx context.Context, records []Record) error
	// Query 返回与查询向量余弦相似度最高的至多 n 条结果，降序排列。
	Query(ctx context.Context, vector []float32, n int) ([]Result, error)
	// DeleteStale 删除某文件序号 >= fromChunk 的记录。
	// 用于重新摄取后清理上一版本多出来的孤儿分块。
	DeleteStale(ctx context.Context, fileName string, fromChunk int) error
	// Size 返回存活记录数，仅用于观测。
	Size(ctx context.Context) (int, error)
}

// StoreError 表示向量存储操作失败，向上传播、不做本地恢复。
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("向量存储 %s 操作失败: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
