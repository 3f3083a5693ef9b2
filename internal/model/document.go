package model

const (
	DocumentStatusUploaded   = "uploaded"
	DocumentStatusProcessing = "processing"
	DocumentStatusCompleted  = "completed"
	DocumentStatusFailed     = "failed"
)

type Document struct {
	ID          string     `json:"id"`
	Filename    string     `json:"filename"`
	ContentType string     `json:"content_type"`
	SizeBytes   int64      `json:"size_bytes"`
	Department  Department `json:"department"`
	StoragePath string     `json:"storage_path"`
	Status      string     `json:"status"`
	ErrorMsg    string     `json:"error_msg,omitempty"`
	ChunkCount  int        `json:"chunk_count"`
	Ctime       int64      `json:"ctime"`
	Mtime       int64      `json:"mtime"`
}
