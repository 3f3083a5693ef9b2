package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rstamps01/rag-app-sub001/internal/chunker"
	"github.com/rstamps01/rag-app-sub001/internal/config"
	"github.com/rstamps01/rag-app-sub001/internal/extract"
	"github.com/rstamps01/rag-app-sub001/internal/model"
	"github.com/rstamps01/rag-app-sub001/internal/monitor"
	appErr "github.com/rstamps01/rag-app-sub001/internal/pkg/errors"
)

type ingestHarness struct {
	svc   *IngestService
	docs  *memDocStore
	store *memStore
	index *memIndex
	mon   *monitor.Monitor
}

func newIngestHarness(t *testing.T, provider *fakeProvider) *ingestHarness {
	t.Helper()
	cfg := config.PipelineConfig{
		ChunkSize:         100,
		ChunkOverlap:      20,
		MaxFileMB:         1,
		AllowedExtensions: []string{".txt", ".md"},
		TopK:              5,
	}
	h := &ingestHarness{
		docs:  newMemDocStore(),
		store: newMemStore(),
		index: newMemIndex(),
		mon:   monitor.New(1024),
	}
	h.svc = NewIngestService(cfg, 5*time.Second, h.docs, h.store,
		extract.NewRegistry(extract.NewPlainTextExtractor(), extract.NewMarkdownExtractor()),
		chunker.New(cfg.ChunkSize, cfg.ChunkOverlap),
		newTestManager(provider), h.index, h.mon)
	return h
}

func uploadAndProcess(t *testing.T, h *ingestHarness, filename, department, content string) *model.Document {
	t.Helper()
	doc, err := h.svc.validate(context.Background(), &UploadRequest{
		Filename:   filename,
		Department: department,
		Data:       []byte(content),
	})
	require.NoError(t, err)
	require.NoError(t, h.docs.Create(context.Background(), doc))
	require.NoError(t, h.svc.Process(context.Background(), doc, []byte(content)))
	final, err := h.docs.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	return final
}

func TestIngestHappyPath(t *testing.T) {
	h := newIngestHarness(t, &fakeProvider{})
	content := strings.Repeat("vacation policy details for employees. ", 20)
	doc := uploadAndProcess(t, h, "policy.txt", "HR", content)

	require.Equal(t, model.DocumentStatusCompleted, doc.Status)
	require.Equal(t, model.DepartmentHR, doc.Department)
	require.Greater(t, doc.ChunkCount, 1)
	// Every chunk became exactly one index point.
	require.Equal(t, doc.ChunkCount, h.index.count())
}

func TestIngestValidation(t *testing.T) {
	h := newIngestHarness(t, &fakeProvider{})
	tests := []struct {
		name string
		req  *UploadRequest
	}{
		{name: "empty file", req: &UploadRequest{Filename: "a.txt", Data: nil}},
		{name: "oversized file", req: &UploadRequest{Filename: "a.txt", Data: make([]byte, 2*1024*1024)}},
		{name: "bad extension", req: &UploadRequest{Filename: "a.exe", Data: []byte("x")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Upload(context.Background(), tt.req)
			require.ErrorIs(t, err, appErr.ErrValidation)
		})
	}
}

func TestIngestUploadStartsUploaded(t *testing.T) {
	h := newIngestHarness(t, &fakeProvider{})
	doc, err := h.svc.validate(context.Background(), &UploadRequest{
		Filename: "fresh.txt",
		Data:     []byte("text waiting for the pipeline"),
	})
	require.NoError(t, err)
	require.Equal(t, model.DocumentStatusUploaded, doc.Status)

	// The pipeline moves the row through processing to a terminal state.
	require.NoError(t, h.docs.Create(context.Background(), doc))
	require.NoError(t, h.svc.Process(context.Background(), doc, []byte("text waiting for the pipeline")))
	final, err := h.docs.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, model.DocumentStatusCompleted, final.Status)
}

func TestIngestRejectedUploadEventHasSubject(t *testing.T) {
	h := newIngestHarness(t, &fakeProvider{})
	_, err := h.svc.Upload(context.Background(), &UploadRequest{Filename: "tool.exe", Data: []byte("x")})
	require.ErrorIs(t, err, appErr.ErrValidation)

	var failed *model.PipelineEvent
	for _, ev := range h.mon.DrainPending(0) {
		if ev.Stage == model.StageValidate && ev.Status == model.EventFailed {
			failed = &ev
			break
		}
	}
	require.NotNil(t, failed)
	require.NotEmpty(t, failed.SubjectID)
	require.Equal(t, "tool.exe", failed.Metadata["filename"])
}

func TestIngestUnknownDepartmentDefaultsToGeneral(t *testing.T) {
	h := newIngestHarness(t, &fakeProvider{})
	doc := uploadAndProcess(t, h, "notes.txt", "SkunkWorks", "some text to index here")
	require.Equal(t, model.DepartmentGeneral, doc.Department)
}

func TestIngestEmptyExtractFails(t *testing.T) {
	h := newIngestHarness(t, &fakeProvider{})
	doc, err := h.svc.validate(context.Background(), &UploadRequest{
		Filename: "blank.txt",
		Data:     []byte("   \n\t  "),
	})
	require.NoError(t, err)
	require.NoError(t, h.docs.Create(context.Background(), doc))

	err = h.svc.Process(context.Background(), doc, []byte("   \n\t  "))
	require.ErrorIs(t, err, appErr.ErrValidation)

	final, err := h.docs.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, model.DocumentStatusFailed, final.Status)
	require.NotEmpty(t, final.ErrorMsg)
	require.Zero(t, h.index.count())
}

func TestIngestEmbedFailureRollsBack(t *testing.T) {
	provider := &fakeProvider{embedErr: fmt.Errorf("backend down")}
	h := newIngestHarness(t, provider)
	doc, err := h.svc.validate(context.Background(), &UploadRequest{
		Filename: "doc.txt",
		Data:     []byte("content that will fail to embed"),
	})
	require.NoError(t, err)
	require.NoError(t, h.docs.Create(context.Background(), doc))

	err = h.svc.Process(context.Background(), doc, []byte("content that will fail to embed"))
	require.ErrorIs(t, err, appErr.ErrEmbedderUnavailable)

	final, err := h.docs.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, model.DocumentStatusFailed, final.Status)
	require.Zero(t, h.index.count())
}

func TestIngestUpsertFailureRollsBack(t *testing.T) {
	h := newIngestHarness(t, &fakeProvider{})
	h.index.upsertErr = fmt.Errorf("index down")
	doc, err := h.svc.validate(context.Background(), &UploadRequest{
		Filename: "doc.txt",
		Data:     []byte("content that will fail to store"),
	})
	require.NoError(t, err)
	require.NoError(t, h.docs.Create(context.Background(), doc))

	require.Error(t, h.svc.Process(context.Background(), doc, []byte("content that will fail to store")))
	final, err := h.docs.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, model.DocumentStatusFailed, final.Status)
}

func TestIngestReprocessIsIdempotent(t *testing.T) {
	h := newIngestHarness(t, &fakeProvider{})
	content := strings.Repeat("expense reporting rules. ", 30)
	doc := uploadAndProcess(t, h, "expenses.txt", "Finance", content)
	count := h.index.count()

	// Re-running the pipeline for the same document must not duplicate points.
	require.NoError(t, h.svc.Process(context.Background(), doc, []byte(content)))
	require.Equal(t, count, h.index.count())
}

func TestIngestDeleteDocumentRemovesPoints(t *testing.T) {
	h := newIngestHarness(t, &fakeProvider{})
	doc := uploadAndProcess(t, h, "old.txt", "IT", "decommissioned server list and notes")
	require.Greater(t, h.index.count(), 0)

	require.NoError(t, h.svc.DeleteDocument(context.Background(), doc.ID))
	require.Zero(t, h.index.count())
	_, err := h.docs.Get(context.Background(), doc.ID)
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestIngestEmitsPipelineEvents(t *testing.T) {
	h := newIngestHarness(t, &fakeProvider{})
	doc := uploadAndProcess(t, h, "evented.txt", "IT", "text that flows through every stage")

	events := h.mon.DrainPending(0)
	stages := map[string]bool{}
	for _, ev := range events {
		if ev.SubjectID == doc.ID && ev.Status == model.EventSucceeded {
			stages[ev.Stage] = true
		}
	}
	for _, stage := range []string{model.StageValidate, model.StageExtract, model.StageChunk, model.StageEmbed, model.StageStore, model.StageFinalize} {
		require.True(t, stages[stage], "missing succeeded event for stage %s", stage)
	}
}
