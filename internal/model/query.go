package model

type QueryRecord struct {
	ID         string        `json:"id"`
	Query      string        `json:"query"`
	Department Department    `json:"department"`
	Answer     string        `json:"answer"`
	Model      string        `json:"model"`
	Sources    []QuerySource `json:"sources"`
	DurationMs int64         `json:"duration_ms"`
	Degraded   bool          `json:"degraded"`
	GPU        bool          `json:"gpu_accelerated"`
	Ctime      int64         `json:"ctime"`
}

type QuerySource struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Score      float32 `json:"score"`
	Snippet    string  `json:"snippet"`
	ChunkIndex int     `json:"chunk_index"`
}
