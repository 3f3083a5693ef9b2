package vectorindex

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/pgvector/pgvector-go"

	"github.com/rstamps01/rag-app-sub001/internal/config"
	"github.com/rstamps01/rag-app-sub001/internal/model"
	appErr "github.com/rstamps01/rag-app-sub001/internal/pkg/errors"
)

// pgvectorIndex keeps chunk vectors in a postgres table with the pgvector
// extension. Useful on deployments that already run the metadata database
// and do not want a separate ANN service.
type pgvectorIndex struct {
	db        *sql.DB
	table     string
	dimension int
}

var tableNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func init() {
	Register("pgvector", createPgvectorIndex)
}

func createPgvectorIndex(cfg config.IndexConfig, deps Deps) (Index, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("pgvector index requires a database handle")
	}
	if !tableNameRe.MatchString(cfg.Collection) {
		return nil, fmt.Errorf("%w: invalid collection name %q", appErr.ErrConfiguration, cfg.Collection)
	}
	return &pgvectorIndex{db: deps.DB, table: cfg.Collection}, nil
}

func (p *pgvectorIndex) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: invalid vector dimension %d", appErr.ErrConfiguration, dimension)
	}
	create := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			chunk_index INT NOT NULL,
			department TEXT NOT NULL,
			source_filename TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			embedding vector(%d)
		)`, p.table, dimension)
	if _, err := p.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("%w: create table: %v", appErr.ErrResourceUnavailable, err)
	}
	for _, idx := range []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_document ON %s (document_id)", p.table, p.table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_department ON %s (department)", p.table, p.table),
	} {
		if _, err := p.db.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("%w: create index: %v", appErr.ErrResourceUnavailable, err)
		}
	}
	// The table may predate this process with a different embedding model.
	var existing int
	row := p.db.QueryRowContext(ctx,
		`SELECT atttypmod FROM pg_attribute WHERE attrelid = $1::regclass AND attname = 'embedding'`, p.table)
	if err := row.Scan(&existing); err == nil && existing > 0 && existing != dimension {
		return fmt.Errorf("%w: table %s has dimension %d, embedding model produces %d",
			appErr.ErrConfiguration, p.table, existing, dimension)
	}
	p.dimension = dimension
	return nil
}

func (p *pgvectorIndex) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, document_id, chunk_index, department, source_filename, text, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			chunk_index = EXCLUDED.chunk_index,
			department = EXCLUDED.department,
			source_filename = EXCLUDED.source_filename,
			text = EXCLUDED.text,
			embedding = EXCLUDED.embedding`, p.table)
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin upsert: %v", appErr.ErrResourceUnavailable, err)
	}
	for _, point := range points {
		if _, err := tx.ExecContext(ctx, query,
			point.ID(),
			point.DocumentID,
			point.ChunkIndex,
			string(point.Department),
			point.SourceFilename,
			point.Text,
			pgvector.NewVector(point.Vector),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: upsert point: %v", appErr.ErrResourceUnavailable, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit upsert: %v", appErr.ErrResourceUnavailable, err)
	}
	return nil
}

func (p *pgvectorIndex) Search(ctx context.Context, vector []float32, department model.Department, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = 5
	}
	query := fmt.Sprintf(`
		SELECT document_id, chunk_index, department, source_filename, text,
			1 - (embedding <=> $1) AS score
		FROM %s
		WHERE department = $2
		ORDER BY embedding <=> $1
		LIMIT $3`, p.table)
	rows, err := p.db.QueryContext(ctx, query, pgvector.NewVector(vector), string(department), topK)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", appErr.ErrResourceUnavailable, err)
	}
	defer rows.Close()
	var matches []Match
	for rows.Next() {
		var m Match
		var dep string
		if err := rows.Scan(&m.DocumentID, &m.ChunkIndex, &dep, &m.SourceFilename, &m.Text, &m.Score); err != nil {
			return nil, err
		}
		m.Department = model.Department(dep)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (p *pgvectorIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE document_id = $1", p.table)
	if _, err := p.db.ExecContext(ctx, query, documentID); err != nil {
		return fmt.Errorf("%w: delete points: %v", appErr.ErrResourceUnavailable, err)
	}
	return nil
}

func (p *pgvectorIndex) Dimension() int {
	return p.dimension
}
