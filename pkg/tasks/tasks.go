// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// ReindexTask represents a request to re-run ingestion for a stored document.
// 摄取对同一文件名是可安全重放的（幂等），因此任务只需携带文件名。
type ReindexTask struct {
	FileName string `json:"file_name"`
}
