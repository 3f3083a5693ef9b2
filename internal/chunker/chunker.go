package chunker

import (
	"strings"

	"github.com/rstamps01/rag-app-sub001/internal/model"
)

const (
	DefaultChunkSize = 800
	DefaultOverlap   = 150
)

// Chunker splits extracted text into overlapping fixed-size windows. The
// split is deterministic: the same text with the same parameters always
// produces the same boundaries.
type Chunker struct {
	size    int
	overlap int
}

func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 4
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split windows over runes so multi-byte text never breaks mid-character.
// Every chunk copies the document's department tag.
func (c *Chunker) Split(docID string, text string, department model.Department) []model.Chunk {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	runes := []rune(trimmed)
	step := c.size - c.overlap

	var chunks []model.Chunk
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunkText := string(runes[start:end])
		chunks = append(chunks, model.Chunk{
			DocumentID: docID,
			Index:      len(chunks),
			Text:       chunkText,
			CharLen:    end - start,
			Department: department,
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}
