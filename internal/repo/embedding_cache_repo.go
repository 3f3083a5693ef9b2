package repo

import (
	"context"
	"database/sql"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/rstamps01/rag-app-sub001/internal/model"
	appErr "github.com/rstamps01/rag-app-sub001/internal/pkg/errors"
)

type EmbeddingCacheRepo struct {
	db *sql.DB
}

func NewEmbeddingCacheRepo(db *sql.DB) *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{db: db}
}

func (r *EmbeddingCacheRepo) Get(ctx context.Context, modelName, contentHash string) (*model.EmbeddingCache, error) {
	const query = `
		SELECT model_name, content_hash, embedding, ctime
		FROM embedding_cache
		WHERE model_name = $1 AND content_hash = $2
	`
	var item model.EmbeddingCache
	var vec pgvector.Vector
	err := r.db.QueryRowContext(ctx, query, modelName, contentHash).
		Scan(&item.ModelName, &item.ContentHash, &vec, &item.Ctime)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	item.Embedding = vec.Slice()
	return &item, nil
}

func (r *EmbeddingCacheRepo) Save(ctx context.Context, item *model.EmbeddingCache) error {
	const query = `
		INSERT INTO embedding_cache (model_name, content_hash, embedding, ctime)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (model_name, content_hash) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, item.ModelName, item.ContentHash,
		pgvector.NewVector(item.Embedding), item.Ctime)
	return err
}

func (r *EmbeddingCacheRepo) DeleteBefore(ctx context.Context, ctimeBefore int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM embedding_cache WHERE ctime < $1`, ctimeBefore)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
