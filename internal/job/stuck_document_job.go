package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/rstamps01/rag-app-sub001/internal/model"
	"github.com/rstamps01/rag-app-sub001/internal/repo"
	"github.com/rstamps01/rag-app-sub001/internal/vectorindex"
)

const stuckDocBatch = 100

// StuckDocumentJob fails documents stranded in processing state, usually by
// a crash mid-pipeline. Their partial index points are removed so the failed
// document cannot surface in search results.
type StuckDocumentJob struct {
	docs        *repo.DocumentRepo
	index       vectorindex.Index
	deadlineMin int
}

func NewStuckDocumentJob(docs *repo.DocumentRepo, index vectorindex.Index, deadlineMin int) *StuckDocumentJob {
	return &StuckDocumentJob{docs: docs, index: index, deadlineMin: deadlineMin}
}

func (j *StuckDocumentJob) Name() string {
	return "stuck_document"
}

func (j *StuckDocumentJob) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-time.Duration(j.deadlineMin) * time.Minute).UnixMilli()
	stuck, err := j.docs.ListStuckProcessing(ctx, cutoff, stuckDocBatch)
	if err != nil {
		return err
	}
	for _, doc := range stuck {
		if err := j.index.DeleteByDocument(ctx, doc.ID); err != nil {
			logutil.GetLogger(ctx).Error("cleanup stuck document points failed",
				zap.String("document_id", doc.ID), zap.Error(err))
			continue
		}
		if err := j.docs.UpdateStatus(ctx, doc.ID, model.DocumentStatusFailed,
			"processing deadline exceeded", 0, time.Now().UnixMilli()); err != nil {
			logutil.GetLogger(ctx).Error("mark stuck document failed",
				zap.String("document_id", doc.ID), zap.Error(err))
			continue
		}
		logutil.GetLogger(ctx).Warn("stuck document failed",
			zap.String("document_id", doc.ID), zap.String("filename", doc.Filename))
	}
	return nil
}
