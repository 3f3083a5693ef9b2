package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rstamps01/rag-app-sub001/internal/model"
	appErr "github.com/rstamps01/rag-app-sub001/internal/pkg/errors"
	"github.com/rstamps01/rag-app-sub001/internal/repo"
	"github.com/rstamps01/rag-app-sub001/internal/testutil"
)

func TestEmbeddingCacheRepoRoundTrip(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	cache := repo.NewEmbeddingCacheRepo(db)
	hash := uuid.NewString()
	item := &model.EmbeddingCache{
		ModelName:   "nomic-embed-text",
		ContentHash: hash,
		Embedding:   []float32{0.1, 0.2, 0.3},
		Ctime:       time.Now().UnixMilli(),
	}
	require.NoError(t, cache.Save(context.Background(), item))
	// Saving the same key again is a no-op, not an error.
	require.NoError(t, cache.Save(context.Background(), item))

	fetched, err := cache.Get(context.Background(), "nomic-embed-text", hash)
	require.NoError(t, err)
	require.InDeltaSlice(t, []float32{0.1, 0.2, 0.3}, fetched.Embedding, 1e-6)

	_, err = cache.Get(context.Background(), "other-model", hash)
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestEmbeddingCacheRepoDeleteBefore(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()

	cache := repo.NewEmbeddingCacheRepo(db)
	old := &model.EmbeddingCache{
		ModelName:   "nomic-embed-text",
		ContentHash: uuid.NewString(),
		Embedding:   []float32{1},
		Ctime:       time.Now().Add(-48 * time.Hour).UnixMilli(),
	}
	fresh := &model.EmbeddingCache{
		ModelName:   "nomic-embed-text",
		ContentHash: uuid.NewString(),
		Embedding:   []float32{2},
		Ctime:       time.Now().UnixMilli(),
	}
	require.NoError(t, cache.Save(context.Background(), old))
	require.NoError(t, cache.Save(context.Background(), fresh))

	deleted, err := cache.DeleteBefore(context.Background(), time.Now().Add(-24*time.Hour).UnixMilli())
	require.NoError(t, err)
	require.GreaterOrEqual(t, deleted, int64(1))

	_, err = cache.Get(context.Background(), "nomic-embed-text", old.ContentHash)
	require.ErrorIs(t, err, appErr.ErrNotFound)
	_, err = cache.Get(context.Background(), "nomic-embed-text", fresh.ContentHash)
	require.NoError(t, err)
}
