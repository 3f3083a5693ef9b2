package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/rstamps01/rag-app-sub001/internal/ai"
	"github.com/rstamps01/rag-app-sub001/internal/filestore"
	"github.com/rstamps01/rag-app-sub001/internal/model"
	appErr "github.com/rstamps01/rag-app-sub001/internal/pkg/errors"
	"github.com/rstamps01/rag-app-sub001/internal/repo"
	"github.com/rstamps01/rag-app-sub001/internal/resource"
	"github.com/rstamps01/rag-app-sub001/internal/vectorindex"
)

const testDimension = 4

// fakeProvider embeds by hashing text into a fixed-dimension vector and
// generates canned responses. Failure modes are switchable per test.
type fakeProvider struct {
	mu          sync.Mutex
	generateErr error
	embedErr    error
	ensureErr   error
	response    string
	embedCalls  int
	genCalls    int
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Generate(ctx context.Context, model string, prompt string, opts ai.GenerateOptions) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.genCalls++
	if p.generateErr != nil {
		return "", p.generateErr
	}
	if p.response != "" {
		return p.response, nil
	}
	return "ANSWER:\ngenerated answer", nil
}

func (p *fakeProvider) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.embedCalls++
	if p.embedErr != nil {
		return nil, p.embedErr
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, testDimension)
		for j, r := range text {
			vec[j%testDimension] += float32(r % 13)
		}
		out[i] = vec
	}
	return out, nil
}

func (p *fakeProvider) EnsureModel(ctx context.Context, model string) error {
	return p.ensureErr
}

// failRunner makes the hardware probe fall back to CPU.
type failRunner struct{}

func (failRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return nil, fmt.Errorf("not available")
}

func newTestManager(p *fakeProvider) *resource.Manager {
	return resource.NewManager(resource.ManagerConfig{
		EmbedProvider:    p,
		EmbedModel:       "fake-embed",
		EmbedDimension:   testDimension,
		GenProvider:      p,
		GenModel:         "fake-gen",
		HardwareRunner:   failRunner{},
		GenerationSlots:  2,
		QueueSize:        4,
		QueueWaitSeconds: 1,
	})
}

// memDocStore is an in-memory DocumentStore.
type memDocStore struct {
	mu   sync.Mutex
	docs map[string]*model.Document
}

func newMemDocStore() *memDocStore {
	return &memDocStore{docs: map[string]*model.Document{}}
}

func (s *memDocStore) Create(ctx context.Context, doc *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *doc
	s.docs[doc.ID] = &cp
	return nil
}

func (s *memDocStore) UpdateStatus(ctx context.Context, id, status, errMsg string, chunkCount int, mtime int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return appErr.ErrNotFound
	}
	doc.Status = status
	doc.ErrorMsg = errMsg
	doc.ChunkCount = chunkCount
	doc.Mtime = mtime
	return nil
}

func (s *memDocStore) Get(ctx context.Context, id string) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (s *memDocStore) List(ctx context.Context, filter repo.DocumentFilter) ([]model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Document
	for _, doc := range s.docs {
		if filter.Department != "" && string(doc.Department) != filter.Department {
			continue
		}
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		out = append(out, *doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memDocStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return appErr.ErrNotFound
	}
	delete(s.docs, id)
	return nil
}

// memQueryStore is an in-memory QueryStore.
type memQueryStore struct {
	mu   sync.Mutex
	recs []model.QueryRecord
}

func (s *memQueryStore) Create(ctx context.Context, rec *model.QueryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, *rec)
	return nil
}

func (s *memQueryStore) Get(ctx context.Context, id string) (*model.QueryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.recs {
		if s.recs[i].ID == id {
			cp := s.recs[i]
			return &cp, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (s *memQueryStore) List(ctx context.Context, department string, limit, offset int) ([]model.QueryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.QueryRecord
	for _, rec := range s.recs {
		if department != "" && string(rec.Department) != department {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// memIndex is an in-memory vector index with exact cosine scoring, enough to
// observe department filtering and upsert/delete behavior.
type memIndex struct {
	mu        sync.Mutex
	points    map[string]vectorindex.Point
	upsertErr error
	searchErr error
}

func newMemIndex() *memIndex {
	return &memIndex{points: map[string]vectorindex.Point{}}
}

func (m *memIndex) EnsureCollection(ctx context.Context, dimension int) error { return nil }

func (m *memIndex) Dimension() int { return testDimension }

func (m *memIndex) Upsert(ctx context.Context, points []vectorindex.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	for _, p := range points {
		m.points[p.ID()] = p
	}
	return nil
}

func (m *memIndex) Search(ctx context.Context, vector []float32, department model.Department, topK int) ([]vectorindex.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	var matches []vectorindex.Match
	for _, p := range m.points {
		if p.Department != department {
			continue
		}
		matches = append(matches, vectorindex.Match{
			DocumentID:     p.DocumentID,
			ChunkIndex:     p.ChunkIndex,
			Department:     p.Department,
			SourceFilename: p.SourceFilename,
			Text:           p.Text,
			Score:          cosine(vector, p.Vector),
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *memIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.points {
		if p.DocumentID == documentID {
			delete(m.points, id)
		}
	}
	return nil
}

func (m *memIndex) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.points)
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float32
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (sqrt32(na) * sqrt32(nb))
}

func sqrt32(v float32) float32 {
	if v <= 0 {
		return 0
	}
	x := v
	for i := 0; i < 20; i++ {
		x = (x + v/x) / 2
	}
	return x
}

// memStore is an in-memory filestore.Store.
type memStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

var _ filestore.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{files: map[string][]byte{}}
}

func (s *memStore) Save(ctx context.Context, key string, r io.ReadSeekCloser, size int64) error {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.files[key] = data
	s.mu.Unlock()
	return nil
}

func (s *memStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[key]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, key)
	return nil
}
