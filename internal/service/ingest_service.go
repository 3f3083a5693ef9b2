package service

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/rstamps01/rag-app-sub001/internal/chunker"
	"github.com/rstamps01/rag-app-sub001/internal/config"
	"github.com/rstamps01/rag-app-sub001/internal/extract"
	"github.com/rstamps01/rag-app-sub001/internal/filestore"
	"github.com/rstamps01/rag-app-sub001/internal/model"
	"github.com/rstamps01/rag-app-sub001/internal/monitor"
	appErr "github.com/rstamps01/rag-app-sub001/internal/pkg/errors"
	"github.com/rstamps01/rag-app-sub001/internal/repo"
	"github.com/rstamps01/rag-app-sub001/internal/resource"
	"github.com/rstamps01/rag-app-sub001/internal/vectorindex"
)

type UploadRequest struct {
	Filename    string
	ContentType string
	Department  string
	Data        []byte
}

// DocumentStore is the slice of the document repository the ingestion
// pipeline needs.
type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	UpdateStatus(ctx context.Context, id, status, errMsg string, chunkCount int, mtime int64) error
	Get(ctx context.Context, id string) (*model.Document, error)
	List(ctx context.Context, filter repo.DocumentFilter) ([]model.Document, error)
	Delete(ctx context.Context, id string) error
}

type IngestService struct {
	cfg       config.PipelineConfig
	docRepo   DocumentStore
	store     filestore.Store
	extractor *extract.Registry
	chunker   *chunker.Chunker
	res       *resource.Manager
	index     vectorindex.Index
	mon       *monitor.Monitor
	embedWait time.Duration
}

func NewIngestService(cfg config.PipelineConfig, embedTimeout time.Duration,
	docRepo DocumentStore, store filestore.Store, extractor *extract.Registry,
	ck *chunker.Chunker, res *resource.Manager, index vectorindex.Index, mon *monitor.Monitor) *IngestService {
	return &IngestService{
		cfg:       cfg,
		docRepo:   docRepo,
		store:     store,
		extractor: extractor,
		chunker:   ck,
		res:       res,
		index:     index,
		mon:       mon,
		embedWait: embedTimeout,
	}
}

// Upload validates and registers a document, then runs the ingestion
// pipeline in the background. The returned document is in uploaded state;
// callers poll GetDocument for the terminal status.
func (s *IngestService) Upload(ctx context.Context, req *UploadRequest) (*model.Document, error) {
	doc, err := s.validate(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, doc.StoragePath, readSeekCloser{bytes.NewReader(req.Data)}, doc.SizeBytes); err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}
	if err := s.docRepo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	go s.processAsync(doc, req.Data)
	return doc, nil
}

func (s *IngestService) validate(ctx context.Context, req *UploadRequest) (*model.Document, error) {
	// The ID is minted before validation so rejected uploads stay traceable
	// in the monitor feed.
	id := newDocumentID()
	run := monitor.Begin(ctx, s.mon, id, model.StageValidate)
	doc, err := s.doValidate(ctx, id, req)
	if err != nil {
		run.Fail(ctx, err, map[string]interface{}{"filename": req.Filename})
		return nil, err
	}
	run.Succeed(ctx, map[string]interface{}{"filename": doc.Filename, "department": string(doc.Department)})
	return doc, nil
}

func (s *IngestService) doValidate(ctx context.Context, id string, req *UploadRequest) (*model.Document, error) {
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("%w: empty file", appErr.ErrValidation)
	}
	if maxBytes := s.cfg.MaxFileMB * 1024 * 1024; int64(len(req.Data)) > maxBytes {
		return nil, fmt.Errorf("%w: file exceeds %dMB", appErr.ErrValidation, s.cfg.MaxFileMB)
	}
	ext := strings.ToLower(filepath.Ext(req.Filename))
	if !s.allowedExt(ext) {
		return nil, fmt.Errorf("%w: unsupported file type %q", appErr.ErrValidation, ext)
	}
	if !s.extractor.Supported(req.Filename) {
		return nil, fmt.Errorf("%w: no extractor for %q", appErr.ErrValidation, ext)
	}
	department, known := model.NormalizeDepartment(req.Department)
	if !known {
		logutil.GetLogger(ctx).Warn("unknown department, using default",
			zap.String("department", req.Department))
	}
	now := time.Now().UnixMilli()
	return &model.Document{
		ID:          id,
		Filename:    filepath.Base(req.Filename),
		ContentType: req.ContentType,
		SizeBytes:   int64(len(req.Data)),
		Department:  department,
		StoragePath: id + ext,
		Status:      model.DocumentStatusUploaded,
		Ctime:       now,
		Mtime:       now,
	}, nil
}

func (s *IngestService) allowedExt(ext string) bool {
	for _, allowed := range s.cfg.AllowedExtensions {
		if strings.EqualFold(allowed, ext) {
			return true
		}
	}
	return false
}

func (s *IngestService) processAsync(doc *model.Document, data []byte) {
	ctx := context.Background()
	if err := s.Process(ctx, doc, data); err != nil {
		logutil.GetLogger(ctx).Error("document ingestion failed",
			zap.String("document_id", doc.ID), zap.Error(err))
	}
}

// Process flips the document to processing, runs extract, chunk, embed and
// store, and records the terminal status on the document row. A failure in any stage marks the
// document failed and removes any points already written for it, so a failed
// ingest never leaks partial chunks into search results.
func (s *IngestService) Process(ctx context.Context, doc *model.Document, data []byte) error {
	if err := s.docRepo.UpdateStatus(ctx, doc.ID, model.DocumentStatusProcessing, "", 0, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	chunkCount, err := s.runPipeline(ctx, doc, data)
	if err != nil {
		if cleanupErr := s.index.DeleteByDocument(ctx, doc.ID); cleanupErr != nil {
			logutil.GetLogger(ctx).Error("cleanup of partial index points failed",
				zap.String("document_id", doc.ID), zap.Error(cleanupErr))
		}
		s.finalize(ctx, doc.ID, model.DocumentStatusFailed, err.Error(), 0)
		return err
	}
	s.finalize(ctx, doc.ID, model.DocumentStatusCompleted, "", chunkCount)
	return nil
}

func (s *IngestService) runPipeline(ctx context.Context, doc *model.Document, data []byte) (int, error) {
	text, err := s.extractText(ctx, doc, data)
	if err != nil {
		return 0, err
	}
	chunks, err := s.chunkText(ctx, doc, text)
	if err != nil {
		return 0, err
	}
	vectors, err := s.embedChunks(ctx, doc, chunks)
	if err != nil {
		return 0, err
	}
	if err := s.storeChunks(ctx, doc, chunks, vectors); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

func (s *IngestService) extractText(ctx context.Context, doc *model.Document, data []byte) (string, error) {
	run := monitor.Begin(ctx, s.mon, doc.ID, model.StageExtract)
	text, err := s.extractor.Extract(ctx, doc.Filename, data)
	if err != nil {
		run.Fail(ctx, err, nil)
		return "", fmt.Errorf("extract: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		err := fmt.Errorf("%w: no extractable text", appErr.ErrValidation)
		run.Fail(ctx, err, nil)
		return "", err
	}
	run.Succeed(ctx, map[string]interface{}{"chars": len(text)})
	return text, nil
}

func (s *IngestService) chunkText(ctx context.Context, doc *model.Document, text string) ([]model.Chunk, error) {
	run := monitor.Begin(ctx, s.mon, doc.ID, model.StageChunk)
	chunks := s.chunker.Split(doc.ID, text, doc.Department)
	if len(chunks) == 0 {
		err := fmt.Errorf("%w: document produced no chunks", appErr.ErrValidation)
		run.Fail(ctx, err, nil)
		return nil, err
	}
	run.Succeed(ctx, map[string]interface{}{"chunks": len(chunks)})
	return chunks, nil
}

func (s *IngestService) embedChunks(ctx context.Context, doc *model.Document, chunks []model.Chunk) ([][]float32, error) {
	run := monitor.Begin(ctx, s.mon, doc.ID, model.StageEmbed)
	vectors, err := s.doEmbedChunks(ctx, chunks)
	if err != nil {
		run.Fail(ctx, err, nil)
		return nil, err
	}
	run.Succeed(ctx, map[string]interface{}{"vectors": len(vectors)})
	return vectors, nil
}

func (s *IngestService) doEmbedChunks(ctx context.Context, chunks []model.Chunk) ([][]float32, error) {
	embedder, err := s.res.EmbeddingModel(ctx)
	if err != nil {
		return nil, err
	}
	batchSize := s.res.Hardware(ctx).EmbedBatchSize
	dimension := s.res.EmbedDimension()
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, chunk := range chunks[start:end] {
			texts = append(texts, chunk.Text)
		}
		batchCtx, cancel := context.WithTimeout(ctx, s.embedWait)
		batch, err := embedder.EmbedBatch(batchCtx, texts)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", appErr.ErrEmbedderUnavailable, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("%w: embedder returned %d vectors for %d texts",
				appErr.ErrInternal, len(batch), len(texts))
		}
		for _, vec := range batch {
			if len(vec) != dimension {
				return nil, fmt.Errorf("%w: embedding dimension %d, expected %d",
					appErr.ErrConfiguration, len(vec), dimension)
			}
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (s *IngestService) storeChunks(ctx context.Context, doc *model.Document, chunks []model.Chunk, vectors [][]float32) error {
	run := monitor.Begin(ctx, s.mon, doc.ID, model.StageStore)
	points := make([]vectorindex.Point, 0, len(chunks))
	for i, chunk := range chunks {
		points = append(points, vectorindex.Point{
			DocumentID:     doc.ID,
			ChunkIndex:     chunk.Index,
			Department:     chunk.Department,
			SourceFilename: doc.Filename,
			Text:           chunk.Text,
			Vector:         vectors[i],
		})
	}
	if err := s.index.Upsert(ctx, points); err != nil {
		run.Fail(ctx, err, nil)
		return fmt.Errorf("index upsert: %w", err)
	}
	run.Succeed(ctx, map[string]interface{}{"points": len(points)})
	return nil
}

func (s *IngestService) finalize(ctx context.Context, docID, status, errMsg string, chunkCount int) {
	run := monitor.Begin(ctx, s.mon, docID, model.StageFinalize)
	err := s.docRepo.UpdateStatus(ctx, docID, status, errMsg, chunkCount, time.Now().UnixMilli())
	if err != nil {
		run.Fail(ctx, err, nil)
		logutil.GetLogger(ctx).Error("finalize document failed",
			zap.String("document_id", docID), zap.Error(err))
		return
	}
	run.Succeed(ctx, map[string]interface{}{"status": status, "chunk_count": chunkCount})
}

func (s *IngestService) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	return s.docRepo.Get(ctx, id)
}

func (s *IngestService) ListDocuments(ctx context.Context, filter repo.DocumentFilter) ([]model.Document, error) {
	if filter.Department != "" {
		department, _ := model.NormalizeDepartment(filter.Department)
		filter.Department = string(department)
	}
	return s.docRepo.List(ctx, filter)
}

// DeleteDocument removes the index points first so a half-finished delete
// can never serve chunks whose document row is gone.
func (s *IngestService) DeleteDocument(ctx context.Context, id string) error {
	doc, err := s.docRepo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.index.DeleteByDocument(ctx, id); err != nil {
		return fmt.Errorf("delete index points: %w", err)
	}
	if err := s.store.Delete(ctx, doc.StoragePath); err != nil {
		logutil.GetLogger(ctx).Warn("delete stored file failed",
			zap.String("document_id", id), zap.Error(err))
	}
	return s.docRepo.Delete(ctx, id)
}

type readSeekCloser struct {
	*bytes.Reader
}

func (readSeekCloser) Close() error {
	return nil
}
