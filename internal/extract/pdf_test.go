package extract

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// scriptedRunner answers external tool invocations from a script keyed by
// tool name, recording every call.
type scriptedRunner struct {
	calls   []string
	pdfinfo string
	// pageText maps page number to pdftotext output.
	pageText map[string]string
	ocrText  string
	ocrErr   error
}

func (r *scriptedRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, name)
	switch name {
	case "pdfinfo":
		return []byte(r.pdfinfo), nil
	case "pdftotext":
		return []byte(r.pageText[args[1]]), nil
	case "pdftoppm":
		return nil, nil
	case "tesseract":
		if r.ocrErr != nil {
			return nil, r.ocrErr
		}
		return []byte(r.ocrText), nil
	}
	return nil, fmt.Errorf("unexpected tool %s", name)
}

func (r *scriptedRunner) count(name string) int {
	n := 0
	for _, call := range r.calls {
		if call == name {
			n++
		}
	}
	return n
}

func TestPDFExtractDirectText(t *testing.T) {
	runner := &scriptedRunner{
		pdfinfo: "Title: x\nPages: 2\n",
		pageText: map[string]string{
			"1": strings.Repeat("first page text ", 10),
			"2": strings.Repeat("second page text ", 10),
		},
	}
	e := NewPDFExtractor(runner, 50)
	text, err := e.Extract(context.Background(), "doc.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	require.Contains(t, text, "first page text")
	require.Contains(t, text, "second page text")
	// Pages with enough direct text never trigger OCR.
	require.Zero(t, runner.count("tesseract"))
}

func TestPDFExtractOCRFallbackPerPage(t *testing.T) {
	runner := &scriptedRunner{
		pdfinfo: "Pages: 2\n",
		pageText: map[string]string{
			"1": strings.Repeat("good text ", 10),
			"2": "x",
		},
		ocrText: strings.Repeat("scanned page content ", 5),
	}
	e := NewPDFExtractor(runner, 50)
	text, err := e.Extract(context.Background(), "doc.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	require.Contains(t, text, "good text")
	require.Contains(t, text, "scanned page content")
	// OCR only on the sparse page.
	require.Equal(t, 1, runner.count("tesseract"))
}

func TestPDFExtractOCRFailureKeepsDirectText(t *testing.T) {
	runner := &scriptedRunner{
		pdfinfo: "Pages: 1\n",
		pageText: map[string]string{
			"1": "tiny",
		},
		ocrErr: fmt.Errorf("tesseract not installed"),
	}
	e := NewPDFExtractor(runner, 50)
	text, err := e.Extract(context.Background(), "doc.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	require.Equal(t, "tiny", text)
}

func TestPDFExtractBadInfo(t *testing.T) {
	runner := &scriptedRunner{pdfinfo: "no page line here\n"}
	e := NewPDFExtractor(runner, 50)
	_, err := e.Extract(context.Background(), "doc.pdf", []byte("%PDF-1.4"))
	require.Error(t, err)
}
