package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/rstamps01/rag-app-sub001/internal/repo"
)

// CacheCleanupJob deletes persistent embedding cache rows past retention.
// The cache is keyed by content hash, so a deleted row is simply recomputed
// on the next hit.
type CacheCleanupJob struct {
	cache    *repo.EmbeddingCacheRepo
	keepDays int
}

func NewCacheCleanupJob(cache *repo.EmbeddingCacheRepo, keepDays int) *CacheCleanupJob {
	return &CacheCleanupJob{cache: cache, keepDays: keepDays}
}

func (j *CacheCleanupJob) Name() string {
	return "embedding_cache_cleanup"
}

func (j *CacheCleanupJob) Run(ctx context.Context) error {
	if j.keepDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -j.keepDays).UnixMilli()
	deleted, err := j.cache.DeleteBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		logutil.GetLogger(ctx).Info("embedding cache cleaned", zap.Int64("deleted", deleted))
	}
	return nil
}
