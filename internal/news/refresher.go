package news

import (
	"context"
	"log/slog"
	"time"

	"github.com/ent0n29/pitwall/internal/reliability"
)

// Refresher re-scrapes news on a fixed interval, backing off after failures.
type Refresher struct {
	service     *Service
	interval    time.Duration
	baseBackoff time.Duration
	logger      *slog.Logger
}

func NewRefresher(service *Service, interval time.Duration, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	base := interval / 16
	if base < time.Second {
		base = time.Second
	}
	if base > interval {
		base = interval
	}
	return &Refresher{
		service:     service,
		interval:    interval,
		baseBackoff: base,
		logger:      logger,
	}
}

// Run refreshes immediately and then until ctx is done.
func (r *Refresher) Run(ctx context.Context) {
	r.logger.Info("news refresher started", "interval", r.interval)
	failures := 0
	for {
		if _, err := r.service.Refresh(ctx); err != nil {
			failures++
			r.logger.Warn("news refresh failed", "attempt", failures, "error", err)
		} else {
			failures = 0
		}

		wait := r.interval
		if failures > 0 {
			wait = reliability.ExponentialBackoff(failures-1, r.baseBackoff, r.interval)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.Info("news refresher stopped")
			return
		case <-timer.C:
		}
	}
}
