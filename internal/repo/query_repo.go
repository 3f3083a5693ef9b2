package repo

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/rstamps01/rag-app-sub001/internal/model"
	appErr "github.com/rstamps01/rag-app-sub001/internal/pkg/errors"
)

type QueryRepo struct {
	db *sql.DB
}

func NewQueryRepo(db *sql.DB) *QueryRepo {
	return &QueryRepo{db: db}
}

func (r *QueryRepo) Create(ctx context.Context, rec *model.QueryRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	const insertRecord = `
		INSERT INTO query_records (id, query, department, answer, model, duration_ms, degraded, gpu_accelerated, ctime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := tx.ExecContext(ctx, insertRecord, rec.ID, rec.Query, string(rec.Department),
		rec.Answer, rec.Model, rec.DurationMs, rec.Degraded, rec.GPU, rec.Ctime); err != nil {
		return err
	}
	const insertSource = `
		INSERT INTO query_sources (query_id, position, document_id, filename, score, snippet, chunk_index)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for i, src := range rec.Sources {
		if _, err := tx.ExecContext(ctx, insertSource, rec.ID, i, src.DocumentID,
			src.Filename, src.Score, src.Snippet, src.ChunkIndex); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *QueryRepo) Get(ctx context.Context, id string) (*model.QueryRecord, error) {
	const query = `
		SELECT id, query, department, answer, model, duration_ms, degraded, gpu_accelerated, ctime
		FROM query_records WHERE id = $1
	`
	var rec model.QueryRecord
	var dep string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&rec.ID, &rec.Query, &dep,
		&rec.Answer, &rec.Model, &rec.DurationMs, &rec.Degraded, &rec.GPU, &rec.Ctime)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Department = model.Department(dep)
	sources, err := r.listSources(ctx, []string{rec.ID})
	if err != nil {
		return nil, err
	}
	rec.Sources = sources[rec.ID]
	return &rec, nil
}

func (r *QueryRepo) List(ctx context.Context, department string, limit, offset int) ([]model.QueryRecord, error) {
	query := `
		SELECT id, query, department, answer, model, duration_ms, degraded, gpu_accelerated, ctime
		FROM query_records
	`
	var args []interface{}
	if department != "" {
		query += ` WHERE department = $1 ORDER BY ctime DESC LIMIT $2 OFFSET $3`
		args = []interface{}{department, limit, offset}
	} else {
		query += ` ORDER BY ctime DESC LIMIT $1 OFFSET $2`
		args = []interface{}{limit, offset}
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recs []model.QueryRecord
	var ids []string
	for rows.Next() {
		var rec model.QueryRecord
		var dep string
		if err := rows.Scan(&rec.ID, &rec.Query, &dep, &rec.Answer, &rec.Model,
			&rec.DurationMs, &rec.Degraded, &rec.GPU, &rec.Ctime); err != nil {
			return nil, err
		}
		rec.Department = model.Department(dep)
		recs = append(recs, rec)
		ids = append(ids, rec.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return recs, nil
	}
	sources, err := r.listSources(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		recs[i].Sources = sources[recs[i].ID]
	}
	return recs, nil
}

func (r *QueryRepo) listSources(ctx context.Context, ids []string) (map[string][]model.QuerySource, error) {
	query, args, err := sqlx.In(`
		SELECT query_id, document_id, filename, score, snippet, chunk_index
		FROM query_sources WHERE query_id IN (?) ORDER BY query_id, position
	`, ids)
	if err != nil {
		return nil, err
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make(map[string][]model.QuerySource)
	for rows.Next() {
		var qid string
		var src model.QuerySource
		if err := rows.Scan(&qid, &src.DocumentID, &src.Filename, &src.Score,
			&src.Snippet, &src.ChunkIndex); err != nil {
			return nil, err
		}
		result[qid] = append(result[qid], src)
	}
	return result, rows.Err()
}
