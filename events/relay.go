package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Relay periodically moves events from the outbox to a publisher.
type Relay struct {
	Outbox    *Outbox
	Publisher Publisher
	Interval  time.Duration
	BatchSize int

	logger *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewRelay(outbox *Outbox, publisher Publisher, interval time.Duration, logger *zap.Logger) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		Outbox:    outbox,
		Publisher: publisher,
		Interval:  interval,
		BatchSize: 100,
		logger:    logger.Named("events.relay"),
	}
}

// Start begins relaying in the background.
func (r *Relay) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ticker != nil {
		return
	}
	r.ticker = time.NewTicker(r.Interval)
	r.stop = make(chan struct{})
	r.wg.Add(1)
	go r.run(r.ticker, r.stop)

	r.logger.Info("relay started", zap.Duration("interval", r.Interval))
}

// Stop halts the background loop and publishes whatever is left.
func (r *Relay) Stop(ctx context.Context) {
	r.mu.Lock()
	if r.ticker != nil {
		r.ticker.Stop()
		close(r.stop)
		r.wg.Wait()
		r.ticker = nil
	}
	r.mu.Unlock()

	if err := r.Flush(ctx); err != nil {
		r.logger.Error("final flush failed", zap.Int("pending", r.Outbox.Len()), zap.Error(err))
	}
	r.logger.Info("relay stopped")
}

func (r *Relay) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer r.wg.Done()

	for {
		select {
		case <-ticker.C:
			if err := r.Flush(context.Background()); err != nil {
				r.logger.Error("publish events failed", zap.Error(err))
			}
		case <-stop:
			return
		}
	}
}

// Flush publishes everything currently queued, batch by batch. A failed batch
// is requeued and the error returned.
func (r *Relay) Flush(ctx context.Context) error {
	for {
		batch := r.Outbox.Drain(r.BatchSize)
		if len(batch) == 0 {
			return nil
		}
		if err := r.Publisher.Publish(ctx, batch); err != nil {
			r.Outbox.Requeue(batch)
			return err
		}
	}
}
