package events

import (
	"context"
	"sync"

	"github.com/warp/leave-engine/leave"
	"go.uber.org/zap"
)

// Outbox buffers events until the relay publishes them. It implements
// leave.Notifier. When full, the oldest events are dropped.
type Outbox struct {
	mu      sync.Mutex
	pending []Event
	limit   int
	logger  *zap.Logger
}

func NewOutbox(limit int, logger *zap.Logger) *Outbox {
	if limit <= 0 {
		limit = 10000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Outbox{limit: limit, logger: logger.Named("events.outbox")}
}

func (o *Outbox) Notify(_ context.Context, c leave.Change) {
	ev, err := FromChange(c)
	if err != nil {
		o.logger.Error("encode event", zap.String("leave_id", c.Record.ID), zap.Error(err))
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = append(o.pending, ev)
	o.trimLocked()
}

// Drain removes and returns up to max events, oldest first. max <= 0 drains all.
func (o *Outbox) Drain(max int) []Event {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := len(o.pending)
	if max > 0 && max < n {
		n = max
	}
	out := make([]Event, n)
	copy(out, o.pending[:n])
	o.pending = append(o.pending[:0:0], o.pending[n:]...)
	return out
}

// Requeue puts events back at the front, keeping their order.
func (o *Outbox) Requeue(evs []Event) {
	if len(evs) == 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = append(append([]Event{}, evs...), o.pending...)
	o.trimLocked()
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

func (o *Outbox) trimLocked() {
	if over := len(o.pending) - o.limit; over > 0 {
		o.logger.Warn("outbox full, dropping oldest events", zap.Int("dropped", over))
		o.pending = append(o.pending[:0:0], o.pending[over:]...)
	}
}
