// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// DocumentProcessingTask represents the data structure for a document processing job.
type DocumentProcessingTask struct {
	DocumentID uint   `json:"document_id"`
	ProjectID  uint   `json:"project_id"`
	ObjectName string `json:"object_name"`
	FileName   string `json:"file_name"`
}
