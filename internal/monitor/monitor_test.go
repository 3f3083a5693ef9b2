package monitor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rstamps01/rag-app-sub001/internal/model"
)

func event(subject, stage, status string, durationMs int64) model.PipelineEvent {
	return model.PipelineEvent{
		SubjectID:  subject,
		Stage:      stage,
		Status:     status,
		Timestamp:  time.Now().UnixMilli(),
		DurationMs: durationMs,
	}
}

func TestMonitorRingBuffer(t *testing.T) {
	m := New(3)
	for i := 0; i < 5; i++ {
		m.Record(context.Background(), event(fmt.Sprintf("doc-%d", i), model.StageExtract, model.EventSucceeded, 1))
	}
	events := m.snapshot()
	require.Len(t, events, 3)
	// Oldest two were evicted, order is preserved.
	require.Equal(t, "doc-2", events[0].SubjectID)
	require.Equal(t, "doc-4", events[2].SubjectID)
}

func TestMonitorSubscribeFanOut(t *testing.T) {
	m := New(10)
	id1, ch1 := m.Subscribe()
	id2, ch2 := m.Subscribe()
	defer m.Unsubscribe(id1)
	defer m.Unsubscribe(id2)

	m.Record(context.Background(), event("doc-1", model.StageChunk, model.EventStarted, 0))

	ev1 := <-ch1
	ev2 := <-ch2
	require.Equal(t, "doc-1", ev1.SubjectID)
	require.Equal(t, "doc-1", ev2.SubjectID)
}

func TestMonitorSlowSubscriberDoesNotBlock(t *testing.T) {
	m := New(10)
	id, ch := m.Subscribe()
	defer m.Unsubscribe(id)

	// Never read from ch; recording must still complete promptly.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*2; i++ {
			m.Record(context.Background(), event("doc-1", model.StageEmbed, model.EventSucceeded, 1))
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("recording blocked on a slow subscriber")
	}
	require.Len(t, ch, subscriberBuffer)
}

func TestMonitorUnsubscribeClosesChannel(t *testing.T) {
	m := New(10)
	id, ch := m.Subscribe()
	m.Unsubscribe(id)
	_, open := <-ch
	require.False(t, open)

	// Records after unsubscribe must not panic on the closed channel.
	m.Record(context.Background(), event("doc-1", model.StageStore, model.EventSucceeded, 1))
}

func TestMonitorDrainPending(t *testing.T) {
	m := New(10)
	for i := 0; i < 5; i++ {
		m.Record(context.Background(), event("doc-1", model.StageExtract, model.EventSucceeded, 1))
	}
	first := m.DrainPending(3)
	require.Len(t, first, 3)
	second := m.DrainPending(3)
	require.Len(t, second, 2)
	require.Nil(t, m.DrainPending(3))
}

func TestMonitorStats(t *testing.T) {
	m := New(100)
	ctx := context.Background()
	m.Record(ctx, event("doc-1", model.StageExtract, model.EventStarted, 0))
	m.Record(ctx, event("doc-1", model.StageExtract, model.EventSucceeded, 100))
	m.Record(ctx, event("doc-2", model.StageExtract, model.EventSucceeded, 300))
	m.Record(ctx, event("doc-3", model.StageExtract, model.EventFailed, 50))
	m.Record(ctx, event("q-1", model.StageGenerate, model.EventSucceeded, 2000))

	stats := m.Stats(time.Hour)
	require.Equal(t, 5, stats.TotalEvents)
	require.InDelta(t, 0.75, stats.SuccessRate, 1e-9)
	require.Len(t, stats.Stages, 2)

	byStage := map[string]StageStats{}
	for _, s := range stats.Stages {
		byStage[s.Stage] = s
	}
	extract := byStage[model.StageExtract]
	require.Equal(t, 2, extract.Succeeded)
	require.Equal(t, 1, extract.Failed)
	require.InDelta(t, 150.0, extract.AvgDurationMs, 1e-9)

	gen := byStage[model.StageGenerate]
	require.Equal(t, 1, gen.Succeeded)
	require.InDelta(t, 2000.0, gen.AvgDurationMs, 1e-9)
}

func TestMonitorStatsWindowFiltering(t *testing.T) {
	m := New(100)
	old := model.PipelineEvent{
		SubjectID: "doc-old",
		Stage:     model.StageExtract,
		Status:    model.EventSucceeded,
		Timestamp: time.Now().Add(-2 * time.Hour).UnixMilli(),
	}
	m.Record(context.Background(), old)
	m.Record(context.Background(), event("doc-new", model.StageExtract, model.EventSucceeded, 10))

	stats := m.Stats(time.Hour)
	require.Equal(t, 1, stats.TotalEvents)
}

func TestStageRunRecordsDuration(t *testing.T) {
	m := New(10)
	ctx := context.Background()
	run := Begin(ctx, m, "doc-1", model.StageChunk)
	time.Sleep(10 * time.Millisecond)
	run.Succeed(ctx, map[string]interface{}{"chunks": 4})

	events := m.snapshot()
	require.Len(t, events, 2)
	require.Equal(t, model.EventStarted, events[0].Status)
	require.Equal(t, model.EventSucceeded, events[1].Status)
	require.GreaterOrEqual(t, events[1].DurationMs, int64(10))
	require.Equal(t, 4, events[1].Metadata["chunks"])
}

func TestStageRunFailCarriesError(t *testing.T) {
	m := New(10)
	ctx := context.Background()
	run := Begin(ctx, m, "doc-1", model.StageExtract)
	run.Fail(ctx, fmt.Errorf("boom"), nil)

	events := m.snapshot()
	require.Len(t, events, 2)
	require.Equal(t, model.EventFailed, events[1].Status)
	require.Equal(t, "boom", events[1].Metadata["error"])
}
