package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Store leases pending events to one relay at a time. LockBatch also hands
// out in-progress events whose lease has expired, so a crashed relay's
// batch is picked up again.
type Store interface {
	LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error)
	MarkSent(ctx context.Context, ids []int64) error
	// MarkFailed records a failed attempt. With retry the event goes back
	// to pending, otherwise it is parked as failed.
	MarkFailed(ctx context.Context, id int64, errMsg string, retry bool) error
	ExtendLease(ctx context.Context, relayID string, ids []int64, lease time.Duration) error
}

type Config struct {
	RelayID    string
	BatchSize  int
	Interval   time.Duration
	Lease      time.Duration
	MaxRetries int
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.Interval <= 0 {
		c.Interval = 500 * time.Millisecond
	}
	if c.Lease <= 0 {
		c.Lease = 5 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 10
	}
	return c
}

type Relay struct {
	log      *slog.Logger
	store    Store
	dispatch *Dispatcher
	cfg      Config
	now      func() time.Time
}

func NewRelay(log *slog.Logger, store Store, dispatch *Dispatcher, cfg Config) *Relay {
	return &Relay{
		log:      log,
		store:    store,
		dispatch: dispatch,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.cfg.Interval)
	defer t.Stop()

	r.log.Info("relay started", "relay_id", r.cfg.RelayID, "batch_size", r.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay stopping", "relay_id", r.cfg.RelayID)
			return nil
		case <-t.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.log.Error("relay batch error", "relay_id", r.cfg.RelayID, "err", err)
			}
		}
	}
}

// RunOnce leases one batch and publishes it, returning how many events were
// sent.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	events, err := r.store.LockBatch(ctx, r.cfg.RelayID, r.cfg.BatchSize, r.cfg.Lease)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	pending := make([]int64, 0, len(events))
	for _, e := range events {
		pending = append(pending, e.ID)
	}

	leasedAt := r.now()
	sent := make([]int64, 0, len(events))
	for i, e := range events {
		if r.now().Sub(leasedAt) > r.cfg.Lease/2 {
			if err := r.store.ExtendLease(ctx, r.cfg.RelayID, pending[i:], r.cfg.Lease); err != nil {
				r.log.Warn("relay lease extension failed", "relay_id", r.cfg.RelayID, "err", err)
			}
			leasedAt = r.now()
		}

		if err := r.dispatch.Dispatch(ctx, e); err != nil {
			retry := !errors.Is(err, ErrPermanent) && !e.lastAttempt(r.cfg.MaxRetries)
			if merr := r.store.MarkFailed(ctx, e.ID, err.Error(), retry); merr != nil {
				r.log.Error("relay mark failed error", "event_id", e.ID, "err", merr)
			}
			if !retry {
				r.log.Error("outbox event parked", "event_id", e.ID, "type", e.Type, "retries", e.RetryCount+1, "err", err)
			}
			continue
		}
		sent = append(sent, e.ID)
	}

	if len(sent) > 0 {
		if err := r.store.MarkSent(ctx, sent); err != nil {
			return 0, err
		}
	}
	return len(sent), nil
}
