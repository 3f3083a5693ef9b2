package monitor

import (
	"time"

	"github.com/rstamps01/rag-app-sub001/internal/model"
)

type StageStats struct {
	Stage         string  `json:"stage"`
	Succeeded     int     `json:"succeeded"`
	Failed        int     `json:"failed"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}

type Stats struct {
	WindowSeconds   int64        `json:"window_seconds"`
	TotalEvents     int          `json:"total_events"`
	SuccessRate     float64      `json:"success_rate"`
	EventsPerMinute float64      `json:"events_per_minute"`
	Stages          []StageStats `json:"stages"`
}

// Stats aggregates the retained events inside the requested window. Only
// terminal events (succeeded/failed) count toward the success rate.
func (m *Monitor) Stats(window time.Duration) Stats {
	cutoff := time.Now().Add(-window).UnixMilli()
	events := m.snapshot()

	type agg struct {
		succeeded int
		failed    int
		totalMs   int64
	}
	stageAgg := map[string]*agg{}
	var stageOrder []string
	total := 0
	succeeded := 0
	failed := 0
	for _, ev := range events {
		if ev.Timestamp < cutoff {
			continue
		}
		total++
		if ev.Status == model.EventStarted {
			continue
		}
		a := stageAgg[ev.Stage]
		if a == nil {
			a = &agg{}
			stageAgg[ev.Stage] = a
			stageOrder = append(stageOrder, ev.Stage)
		}
		a.totalMs += ev.DurationMs
		if ev.Status == model.EventSucceeded {
			a.succeeded++
			succeeded++
		} else {
			a.failed++
			failed++
		}
	}

	stats := Stats{
		WindowSeconds: int64(window.Seconds()),
		TotalEvents:   total,
	}
	if succeeded+failed > 0 {
		stats.SuccessRate = float64(succeeded) / float64(succeeded+failed)
	}
	if window > 0 {
		stats.EventsPerMinute = float64(total) / window.Minutes()
	}
	for _, stage := range stageOrder {
		a := stageAgg[stage]
		s := StageStats{
			Stage:     stage,
			Succeeded: a.succeeded,
			Failed:    a.failed,
		}
		if n := a.succeeded + a.failed; n > 0 {
			s.AvgDurationMs = float64(a.totalMs) / float64(n)
		}
		stats.Stages = append(stats.Stages, s)
	}
	return stats
}
