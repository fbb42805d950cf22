// Package memory 提供了 vectorstore.Store 的进程内实现，
// 使用暴力余弦相似度检索，用于测试和无外部依赖的本地运行。
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"docuchat-go/internal/vectorstore"
)

// Store 是互斥锁保护的内存向量存储。
type Store struct {
	mu         sync.RWMutex
	dimensions int
	records    map[string]vectorstore.Record
}

// New 创建一个内存向量存储。dimensions 为全库统一的向量维度。
func New(dimensions int) (*Store, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("无效的向量维度: %d", dimensions)
	}
	return &Store{
		dimensions: dimensions,
		records:    make(map[string]vectorstore.Record),
	}, nil
}

// Upsert 按 ID 插入或替换整批记录。先整批校验维度再写入，
// 保证失败时存储不发生任何变化。
func (s *Store) Upsert(ctx context.Context, records []vectorstore.Record) error {
	for _, r := range records {
		if len(r.Vector) != s.dimensions {
			return &vectorstore.StoreError{
				Op:  "upsert",
				Err: fmt.Errorf("记录 %s 向量维度 %d 与存储维度 %d 不一致", r.ID, len(r.Vector), s.dimensions),
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records[r.ID] = r
	}
	return nil
}

// Query 对全部记录计算余弦相似度并返回前 n 条。
func (s *Store) Query(ctx context.Context, vector []float32, n int) ([]vectorstore.Result, error) {
	if n <= 0 {
		return nil, &vectorstore.StoreError{Op: "query", Err: fmt.Errorf("无效的 n: %d", n)}
	}
	if len(vector) != s.dimensions {
		return nil, &vectorstore.StoreError{
			Op:  "query",
			Err: fmt.Errorf("查询向量维度 %d 与存储维度 %d 不一致", len(vector), s.dimensions),
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]vectorstore.Result, 0, len(s.records))
	for _, r := range s.records {
		results = append(results, vectorstore.Result{
			Text:       r.Text,
			Score:      cosine(vector, r.Vector),
			FileName:   r.FileName,
			ChunkIndex: r.ChunkIndex,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > n {
		results = results[:n]
	}
	return results, nil
}

// DeleteStale 删除某文件序号 >= fromChunk 的记录。
func (s *Store) DeleteStale(ctx context.Context, fileName string, fromChunk int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.records {
		if r.FileName == fileName && r.ChunkIndex >= fromChunk {
			delete(s.records, id)
		}
	}
	return nil
}

// Size 返回存活记录数。
func (s *Store) Size(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// cosine 计算两个向量的余弦相似度，零向量返回 0。
func cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
