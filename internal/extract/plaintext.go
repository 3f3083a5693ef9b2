package extract

import (
	"context"
	"strings"
	"unicode/utf8"
)

type PlainTextExtractor struct{}

func NewPlainTextExtractor() *PlainTextExtractor {
	return &PlainTextExtractor{}
}

func (e *PlainTextExtractor) Extensions() []string {
	return []string{".txt"}
}

func (e *PlainTextExtractor) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	_ = ctx
	_ = filename
	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	return strings.TrimSpace(text), nil
}
