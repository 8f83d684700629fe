// Package jobs holds the long-running background loops of the service.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/oggyb/swipe-guard/internal/config"
)

// TrustRecalculator recomputes trust scores of recently active users.
type TrustRecalculator interface {
	RecalculateAll(ctx context.Context, cfg config.AbuseSettings) (int, error)
}

// Recalculator periodically runs a full trust recalculation. The startup delay
// and interval come from the abuse settings current at each wait, so a reload
// takes effect from the next tick.
type Recalculator struct {
	engine   TrustRecalculator
	settings *config.AbuseStore
	log      *slog.Logger

	startupDelay *time.Duration
	interval     *time.Duration
}

type RecalculatorOption func(*Recalculator)

// WithStartupDelay overrides the configured startup delay.
func WithStartupDelay(d time.Duration) RecalculatorOption {
	return func(r *Recalculator) { r.startupDelay = &d }
}

// WithInterval overrides the configured interval between runs.
func WithInterval(d time.Duration) RecalculatorOption {
	return func(r *Recalculator) { r.interval = &d }
}

func NewRecalculator(engine TrustRecalculator, settings *config.AbuseStore, log *slog.Logger, opts ...RecalculatorOption) *Recalculator {
	r := &Recalculator{
		engine:   engine,
		settings: settings,
		log:      log.With("component", "recalculator"),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run blocks until ctx is cancelled. A failed run is logged and does not stop
// later runs.
func (r *Recalculator) Run(ctx context.Context) error {
	delay := r.settings.Current().BackgroundRecalcStartupDelay
	if r.startupDelay != nil {
		delay = *r.startupDelay
	}
	r.log.Info("recalculator started", "startup_delay", delay)

	for {
		if !sleep(ctx, delay) {
			r.log.Info("recalculator stopped")
			return nil
		}
		r.RunOnce(ctx)

		delay = r.settings.Current().RecalcInterval()
		if r.interval != nil {
			delay = *r.interval
		}
	}
}

// RunOnce performs a single recalculation with the current settings.
func (r *Recalculator) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := r.engine.RecalculateAll(ctx, r.settings.Current())
	switch {
	case err != nil && ctx.Err() != nil:
		r.log.Info("recalculation interrupted", "recalculated", n)
	case err != nil:
		r.log.Error("recalculation failed", "recalculated", n, "err", err)
	default:
		r.log.Info("recalculation done", "recalculated", n, "took", time.Since(start))
	}
	return n, err
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
