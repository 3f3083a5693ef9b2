package monitor

import (
	"context"
	"time"

	"github.com/rstamps01/rag-app-sub001/internal/model"
)

// StageRun wraps one pipeline stage execution: Begin records the started
// event, Succeed/Fail record the terminal event with the measured duration.
type StageRun struct {
	mon       *Monitor
	subjectID string
	stage     string
	started   time.Time
}

func Begin(ctx context.Context, mon *Monitor, subjectID, stage string) *StageRun {
	run := &StageRun{
		mon:       mon,
		subjectID: subjectID,
		stage:     stage,
		started:   time.Now(),
	}
	if mon != nil {
		mon.Record(ctx, model.PipelineEvent{
			SubjectID: subjectID,
			Stage:     stage,
			Status:    model.EventStarted,
			Timestamp: run.started.UnixMilli(),
		})
	}
	return run
}

func (r *StageRun) Succeed(ctx context.Context, metadata map[string]interface{}) {
	r.finish(ctx, model.EventSucceeded, metadata)
}

func (r *StageRun) Fail(ctx context.Context, err error, metadata map[string]interface{}) {
	if err != nil {
		if metadata == nil {
			metadata = map[string]interface{}{}
		}
		metadata["error"] = err.Error()
	}
	r.finish(ctx, model.EventFailed, metadata)
}

func (r *StageRun) finish(ctx context.Context, status string, metadata map[string]interface{}) {
	if r == nil || r.mon == nil {
		return
	}
	r.mon.Record(ctx, model.PipelineEvent{
		SubjectID:  r.subjectID,
		Stage:      r.stage,
		Status:     status,
		Timestamp:  time.Now().UnixMilli(),
		DurationMs: time.Since(r.started).Milliseconds(),
		Metadata:   metadata,
	})
}
