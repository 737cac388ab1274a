// Package sweeper expires orders that were placed but never paid.
package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"storefront/internal/service"
)

// Expirer is the part of the order service the sweeper drives
type Expirer interface {
	ExpirePending(ctx context.Context, cutoff time.Time) (service.ExpireResult, error)
}

// Sweeper runs an expiry pass every interval for orders older than ttl
type Sweeper struct {
	orders   Expirer
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

func New(orders Expirer, ttl, interval time.Duration) *Sweeper {
	return &Sweeper{
		orders:   orders,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
		logger:   slog.Default().With("component", "sweeper"),
	}
}

// Start launches the loop in the background
func (s *Sweeper) Start() {
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.run()
	s.logger.Info("pending order sweeper started", "ttl", s.ttl, "interval", s.interval)
}

func (s *Sweeper) run() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs a single expiry pass
func (s *Sweeper) Sweep(ctx context.Context) service.ExpireResult {
	cutoff := s.now().Add(-s.ttl)
	res, err := s.orders.ExpirePending(ctx, cutoff)
	if err != nil {
		s.logger.ErrorContext(ctx, "expiry pass failed", "err", err, "expired", res.Expired)
		return res
	}
	if res.Expired > 0 || res.Skipped > 0 {
		s.logger.InfoContext(ctx, "expiry pass", "expired", res.Expired, "skipped", res.Skipped)
	}
	return res
}

// Stop interrupts the current pass and waits for the loop to exit
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.stopCh == nil {
		return nil
	}
	s.stopOnce.Do(func() { close(s.stopCh) })
	select {
	case <-s.doneCh:
		s.logger.Info("pending order sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
