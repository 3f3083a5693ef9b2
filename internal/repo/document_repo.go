package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/rstamps01/rag-app-sub001/internal/model"
	"github.com/rstamps01/rag-app-sub001/internal/pkg/dbutil"
	appErr "github.com/rstamps01/rag-app-sub001/internal/pkg/errors"
)

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	data := map[string]interface{}{
		"id":           doc.ID,
		"filename":     doc.Filename,
		"content_type": doc.ContentType,
		"size_bytes":   doc.SizeBytes,
		"department":   string(doc.Department),
		"storage_path": doc.StoragePath,
		"status":       doc.Status,
		"error_msg":    doc.ErrorMsg,
		"chunk_count":  doc.ChunkCount,
		"ctime":        doc.Ctime,
		"mtime":        doc.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *DocumentRepo) UpdateStatus(ctx context.Context, id, status, errMsg string, chunkCount int, mtime int64) error {
	const query = `
		UPDATE documents
		SET status = $1, error_msg = $2, chunk_count = $3, mtime = $4
		WHERE id = $5
	`
	result, err := r.db.ExecContext(ctx, query, status, errMsg, chunkCount, mtime, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *DocumentRepo) Get(ctx context.Context, id string) (*model.Document, error) {
	const query = `
		SELECT id, filename, content_type, size_bytes, department, storage_path,
			status, error_msg, chunk_count, ctime, mtime
		FROM documents WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, appErr.ErrNotFound
	}
	return doc, err
}

type DocumentFilter struct {
	Department string
	Status     string
	Limit      int
	Offset     int
}

func (r *DocumentRepo) List(ctx context.Context, filter DocumentFilter) ([]model.Document, error) {
	where := map[string]interface{}{
		"_orderby": "ctime desc",
	}
	if filter.Department != "" {
		where["department"] = filter.Department
	}
	if filter.Status != "" {
		where["status"] = filter.Status
	}
	if filter.Limit > 0 {
		where["_limit"] = []uint{uint(filter.Offset), uint(filter.Limit)}
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, []string{
		"id", "filename", "content_type", "size_bytes", "department", "storage_path",
		"status", "error_msg", "chunk_count", "ctime", "mtime",
	})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (r *DocumentRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

// ListStuckProcessing finds documents that never left the processing state,
// usually after a crash mid-pipeline.
func (r *DocumentRepo) ListStuckProcessing(ctx context.Context, mtimeBefore int64, limit int) ([]model.Document, error) {
	const query = `
		SELECT id, filename, content_type, size_bytes, department, storage_path,
			status, error_msg, chunk_count, ctime, mtime
		FROM documents
		WHERE status = $1 AND mtime < $2
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, model.DocumentStatusProcessing, mtimeBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var doc model.Document
	var dep string
	if err := row.Scan(&doc.ID, &doc.Filename, &doc.ContentType, &doc.SizeBytes, &dep,
		&doc.StoragePath, &doc.Status, &doc.ErrorMsg, &doc.ChunkCount, &doc.Ctime, &doc.Mtime); err != nil {
		return nil, err
	}
	doc.Department = model.Department(dep)
	return &doc, nil
}
