package embedcache

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/rstamps01/rag-app-sub001/internal/ai"
	"github.com/rstamps01/rag-app-sub001/internal/model"
	appErr "github.com/rstamps01/rag-app-sub001/internal/pkg/errors"
)

// CacheStore is the persistent embedding cache, keyed by model name and
// content hash.
type CacheStore interface {
	Get(ctx context.Context, modelName, contentHash string) (*model.EmbeddingCache, error)
	Save(ctx context.Context, item *model.EmbeddingCache) error
}

// WrapDBCacheToEmbedder adds a persistent cache tier backed by the
// embedding_cache table. Sits behind the LRU tier so the database is only
// consulted on in-process misses.
func WrapDBCacheToEmbedder(e ai.IEmbedder, store CacheStore) ai.IEmbedder {
	if e == nil || store == nil {
		return e
	}
	return &dbEmbedder{next: e, store: store}
}

type dbEmbedder struct {
	next  ai.IEmbedder
	store CacheStore
}

func (d *dbEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if d == nil || d.next == nil {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int
	hits := 0
	for i, text := range texts {
		_, contentHash, modelName := buildCacheKey(d.next.ModelName(), text)
		item, err := d.store.Get(ctx, modelName, contentHash)
		if err == nil {
			results[i] = item.Embedding
			hits++
			continue
		}
		if !appErr.IsNotFound(err) {
			logutil.GetLogger(ctx).Warn("embedding cache lookup failed", zap.Error(err))
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if hits > 0 {
		logutil.GetLogger(ctx).Debug("embedding cache hits (db)", zap.Int("hits", hits), zap.Int("total", len(texts)))
	}
	if len(missTexts) == 0 {
		return results, nil
	}
	fresh, err := d.next.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()
	for j, vec := range fresh {
		results[missIdx[j]] = vec
		_, contentHash, modelName := buildCacheKey(d.next.ModelName(), missTexts[j])
		if err := d.store.Save(ctx, &model.EmbeddingCache{
			ModelName:   modelName,
			ContentHash: contentHash,
			Embedding:   vec,
			Ctime:       now,
		}); err != nil {
			logutil.GetLogger(ctx).Warn("failed to cache embedding", zap.Error(err))
		}
	}
	return results, nil
}

func (d *dbEmbedder) ModelName() string {
	if d == nil || d.next == nil {
		return ""
	}
	return d.next.ModelName()
}
