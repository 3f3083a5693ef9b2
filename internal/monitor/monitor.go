package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/rstamps01/rag-app-sub001/internal/model"
)

const (
	defaultCapacity  = 8192
	subscriberBuffer = 256
)

// Monitor is the append-only pipeline event log. Recording never blocks the
// producing pipeline: fan-out to subscribers is non-blocking per subscriber
// and persistence is decoupled through a pending batch drained by a
// background job.
type Monitor struct {
	mu       sync.Mutex
	events   []model.PipelineEvent
	start    int // ring start when at capacity
	capacity int
	total    uint64

	pending []model.PipelineEvent

	subs    map[int64]chan model.PipelineEvent
	nextSub int64
}

func New(capacity int) *Monitor {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Monitor{
		capacity: capacity,
		subs:     map[int64]chan model.PipelineEvent{},
	}
}

// Record appends one event. A subscriber with a full buffer misses the event;
// other subscribers and the log itself are unaffected.
func (m *Monitor) Record(ctx context.Context, ev model.PipelineEvent) {
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	m.mu.Lock()
	if len(m.events) < m.capacity {
		m.events = append(m.events, ev)
	} else {
		m.events[m.start] = ev
		m.start = (m.start + 1) % m.capacity
	}
	m.total++
	m.pending = append(m.pending, ev)
	for id, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			logutil.GetLogger(ctx).Debug("slow monitor subscriber, event skipped", zap.Int64("subscriber", id))
		}
	}
	m.mu.Unlock()
}

// Subscribe registers a live consumer. The returned channel closes on
// Unsubscribe. Delivery is at-least-once from the consumer's point of view
// across reconnects; consumers must be duplicate-safe.
func (m *Monitor) Subscribe() (int64, <-chan model.PipelineEvent) {
	ch := make(chan model.PipelineEvent, subscriberBuffer)
	m.mu.Lock()
	m.nextSub++
	id := m.nextSub
	m.subs[id] = ch
	m.mu.Unlock()
	return id, ch
}

func (m *Monitor) Unsubscribe(id int64) {
	m.mu.Lock()
	if ch, ok := m.subs[id]; ok {
		delete(m.subs, id)
		close(ch)
	}
	m.mu.Unlock()
}

// DrainPending hands the accumulated unpersisted events to the flush job.
func (m *Monitor) DrainPending(max int) []model.PipelineEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return nil
	}
	n := len(m.pending)
	if max > 0 && n > max {
		n = max
	}
	batch := make([]model.PipelineEvent, n)
	copy(batch, m.pending[:n])
	m.pending = m.pending[n:]
	return batch
}

// snapshot returns the retained events in append order.
func (m *Monitor) snapshot() []model.PipelineEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.PipelineEvent, 0, len(m.events))
	if len(m.events) < m.capacity {
		out = append(out, m.events...)
		return out
	}
	out = append(out, m.events[m.start:]...)
	out = append(out, m.events[:m.start]...)
	return out
}
