package extract

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// Extractor turns raw file bytes into plain text. Implementations register
// themselves by file extension.
type Extractor interface {
	Extensions() []string
	Extract(ctx context.Context, filename string, data []byte) (string, error)
}

// CommandRunner abstracts the external tools (pdftotext, pdftoppm,
// tesseract) so tests can run without them installed.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%s: %s", name, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

type Registry struct {
	mu         sync.RWMutex
	extractors map[string]Extractor
}

func NewRegistry(extractors ...Extractor) *Registry {
	r := &Registry{extractors: map[string]Extractor{}}
	for _, e := range extractors {
		r.Register(e)
	}
	return r
}

func (r *Registry) Register(e Extractor) {
	if e == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range e.Extensions() {
		r.extractors[strings.ToLower(ext)] = e
	}
}

func (r *Registry) Supported(filename string) bool {
	_, ok := r.lookup(filename)
	return ok
}

func (r *Registry) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	e, ok := r.lookup(filename)
	if !ok {
		return "", fmt.Errorf("unsupported file extension: %s", filepath.Ext(filename))
	}
	return e.Extract(ctx, filename, data)
}

func (r *Registry) lookup(filename string) (Extractor, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.extractors[ext]
	return e, ok
}
