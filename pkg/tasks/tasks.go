// Package tasks defines the structures for jobs sent over Kafka.
package tasks

// DocumentIngestTask describes one uploaded law document waiting to be
// extracted, split into passages, embedded and indexed.
type DocumentIngestTask struct {
	DocMD5   string `json:"doc_md5"`
	FileName string `json:"file_name"`
	Title    string `json:"title"`
	Category string `json:"category"`
	UserID   uint   `json:"user_id"`
}
