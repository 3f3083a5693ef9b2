package model

// Chunk is a contiguous span of a document's extracted text, the unit of
// embedding and retrieval. Immutable once created; the department tag is a
// copy of the parent document's tag taken at creation time.
type Chunk struct {
	DocumentID string     `json:"document_id"`
	Index      int        `json:"index"`
	Text       string     `json:"text"`
	CharLen    int        `json:"char_len"`
	Department Department `json:"department"`
}
