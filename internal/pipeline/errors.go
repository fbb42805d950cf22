package pipeline

import "fmt"

// 摄取各阶段的名称，用于错误定位。
const (
	StageExtract = "extract"
	StageChunk   = "chunk"
	StageEmbed   = "embed"
	StageStore   = "store"
	StagePersist = "persist"
)

// StageError 表示某个文档在摄取的某个阶段失败。
// 错误必须标识文件名和失败阶段，运维才能区分提取、向量化和存储故障。
type StageError struct {
	FileName string
	Stage    string
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("文档 '%s' 在 %s 阶段处理失败: %v", e.FileName, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
