// Package filestore keeps the raw bytes of uploaded documents. Backends
// register themselves at init time and config picks one by type name, so the
// ingestion service never knows whether files land on disk or in a bucket.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rstamps01/rag-app-sub001/internal/config"
)

// Store persists uploaded files under opaque keys. Save rewinds the reader
// itself, so callers may hand over a reader that has already been consumed.
type Store interface {
	Save(ctx context.Context, key string, r io.ReadSeekCloser, size int64) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// BuildFunc constructs a backend from its type-specific config block.
type BuildFunc func(args interface{}) (Store, error)

// Registration happens from init funcs only, so the map needs no locking.
var backends = map[string]BuildFunc{}

func Register(typ string, build BuildFunc) {
	typ = strings.ToLower(strings.TrimSpace(typ))
	if typ == "" || build == nil {
		return
	}
	backends[typ] = build
}

func New(cfg config.FileStoreConfig) (Store, error) {
	typ := strings.ToLower(strings.TrimSpace(cfg.Type))
	if typ == "" {
		return nil, fmt.Errorf("file_store.type is required")
	}
	build, ok := backends[typ]
	if !ok {
		return nil, fmt.Errorf("unknown file store backend %q", cfg.Type)
	}
	return build(cfg.Data)
}

// decodeArgs maps the free-form config block onto a backend's own struct
// through a json round trip.
func decodeArgs(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("file store config block is required")
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode file store config: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode file store config: %w", err)
	}
	return nil
}
