package vectorindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/rstamps01/rag-app-sub001/internal/config"
	"github.com/rstamps01/rag-app-sub001/internal/model"
)

// Point is one chunk record in the index: vector plus the payload that the
// query pipeline needs to build attributions.
type Point struct {
	DocumentID     string
	ChunkIndex     int
	Department     model.Department
	SourceFilename string
	Text           string
	Vector         []float32
}

// ID is deterministic per (document, chunk) so re-ingesting a document
// overwrites its old points instead of duplicating them.
func (p Point) ID() string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%d", p.DocumentID, p.ChunkIndex))).String()
}

type Match struct {
	DocumentID     string
	ChunkIndex     int
	Department     model.Department
	SourceFilename string
	Text           string
	Score          float32
}

// Index is the external ANN store. Upsert must not return before the store
// acknowledges the write: that acknowledgment is the point after which the
// chunks are guaranteed visible to Search.
type Index interface {
	EnsureCollection(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, vector []float32, department model.Department, topK int) ([]Match, error)
	DeleteByDocument(ctx context.Context, documentID string) error
	Dimension() int
}

type Deps struct {
	DB *sql.DB
}

type Factory func(cfg config.IndexConfig, deps Deps) (Index, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(cfg config.IndexConfig, deps Deps) (Index, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if key == "" {
		return nil, fmt.Errorf("vector_index.backend is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported vector index backend: %s", cfg.Backend)
	}
	return factory(cfg, deps)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode index config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode index config: %w", err)
	}
	return nil
}
