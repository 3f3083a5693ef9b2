package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// PDFExtractor extracts text from page-based documents. Each page is tried
// with direct text extraction first; pages whose text falls below
// minCharsPerPage are assumed scanned and retried through OCR on a rendered
// image. Direct extraction is cheap, OCR is slow, so the fallback is strictly
// per page.
type PDFExtractor struct {
	runner          CommandRunner
	minCharsPerPage int
}

func NewPDFExtractor(runner CommandRunner, minCharsPerPage int) *PDFExtractor {
	if runner == nil {
		runner = execRunner{}
	}
	if minCharsPerPage <= 0 {
		minCharsPerPage = 50
	}
	return &PDFExtractor{runner: runner, minCharsPerPage: minCharsPerPage}
}

func (e *PDFExtractor) Extensions() []string {
	return []string{".pdf"}
}

func (e *PDFExtractor) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	tmpDir, err := os.MkdirTemp("", "ragextract-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmpDir)

	pdfPath := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(pdfPath, data, 0o600); err != nil {
		return "", err
	}

	pages, err := e.pageCount(ctx, pdfPath)
	if err != nil {
		return "", fmt.Errorf("read pdf info: %w", err)
	}

	logger := logutil.GetLogger(ctx).With(zap.String("filename", filename), zap.Int("pages", pages))
	var parts []string
	ocrPages := 0
	for page := 1; page <= pages; page++ {
		text, err := e.pageText(ctx, pdfPath, page)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", page, err)
		}
		if len(strings.TrimSpace(text)) < e.minCharsPerPage {
			ocrText, ocrErr := e.pageOCR(ctx, tmpDir, pdfPath, page)
			if ocrErr != nil {
				logger.Warn("ocr fallback failed", zap.Int("page", page), zap.Error(ocrErr))
			} else if len(strings.TrimSpace(ocrText)) > len(strings.TrimSpace(text)) {
				text = ocrText
				ocrPages++
			}
		}
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if ocrPages > 0 {
		logger.Info("ocr fallback used", zap.Int("ocr_pages", ocrPages))
	}
	return strings.Join(parts, "\n\n"), nil
}

func (e *PDFExtractor) pageCount(ctx context.Context, pdfPath string) (int, error) {
	out, err := e.runner.Run(ctx, "pdfinfo", pdfPath)
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.HasPrefix(line, "Pages:") {
			continue
		}
		n, convErr := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Pages:")))
		if convErr != nil {
			return 0, convErr
		}
		return n, nil
	}
	return 0, fmt.Errorf("page count not found in pdfinfo output")
}

func (e *PDFExtractor) pageText(ctx context.Context, pdfPath string, page int) (string, error) {
	p := strconv.Itoa(page)
	out, err := e.runner.Run(ctx, "pdftotext", "-f", p, "-l", p, "-layout", pdfPath, "-")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (e *PDFExtractor) pageOCR(ctx context.Context, tmpDir, pdfPath string, page int) (string, error) {
	p := strconv.Itoa(page)
	prefix := filepath.Join(tmpDir, "page")
	if _, err := e.runner.Run(ctx, "pdftoppm", "-f", p, "-l", p, "-r", "300", "-png", "-singlefile", pdfPath, prefix); err != nil {
		return "", err
	}
	out, err := e.runner.Run(ctx, "tesseract", prefix+".png", "stdout")
	if err != nil {
		return "", err
	}
	return string(out), nil
}
