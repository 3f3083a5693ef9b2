package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rstamps01/rag-app-sub001/internal/model"
)

type EventRepo struct {
	db *sql.DB
}

func NewEventRepo(db *sql.DB) *EventRepo {
	return &EventRepo{db: db}
}

func (r *EventRepo) InsertBatch(ctx context.Context, events []model.PipelineEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	const query = `
		INSERT INTO pipeline_events (subject_id, stage, status, ts, duration_ms, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, ev := range events {
		meta := []byte("{}")
		if len(ev.Metadata) > 0 {
			meta, err = json.Marshal(ev.Metadata)
			if err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, query, ev.SubjectID, ev.Stage, ev.Status,
			ev.Timestamp, ev.DurationMs, meta); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *EventRepo) ListBySubject(ctx context.Context, subjectID string, limit int) ([]model.PipelineEvent, error) {
	const query = `
		SELECT subject_id, stage, status, ts, duration_ms, metadata
		FROM pipeline_events
		WHERE subject_id = $1
		ORDER BY seq
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, subjectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []model.PipelineEvent
	for rows.Next() {
		var ev model.PipelineEvent
		var meta []byte
		if err := rows.Scan(&ev.SubjectID, &ev.Stage, &ev.Status, &ev.Timestamp,
			&ev.DurationMs, &meta); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &ev.Metadata); err != nil {
				return nil, err
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
