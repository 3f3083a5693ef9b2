package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/rstamps01/rag-app-sub001/internal/monitor"
	"github.com/rstamps01/rag-app-sub001/internal/repo"
)

const eventFlushBatch = 1000

// EventFlushJob moves buffered pipeline events into postgres so the event
// history survives restarts. Events are drained in batches; on insert failure
// the batch is dropped rather than retried, the in-memory monitor stays the
// source for recent data.
type EventFlushJob struct {
	mon    *monitor.Monitor
	events *repo.EventRepo
}

func NewEventFlushJob(mon *monitor.Monitor, events *repo.EventRepo) *EventFlushJob {
	return &EventFlushJob{mon: mon, events: events}
}

func (j *EventFlushJob) Name() string {
	return "event_flush"
}

func (j *EventFlushJob) Run(ctx context.Context) error {
	total := 0
	for {
		batch := j.mon.DrainPending(eventFlushBatch)
		if len(batch) == 0 {
			break
		}
		if err := j.events.InsertBatch(ctx, batch); err != nil {
			return err
		}
		total += len(batch)
	}
	if total > 0 {
		logutil.GetLogger(ctx).Debug("pipeline events flushed", zap.Int("count", total))
	}
	return nil
}
