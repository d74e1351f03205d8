// Package expiry drives the vault's retention sweep on a fixed interval for
// the long-running server. One-shot sweeps use the CLI's expire command.
package expiry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval is how often Start sweeps when no interval is configured.
const DefaultInterval = time.Hour

// Expirer removes artifacts whose retention window has elapsed at now.
type Expirer interface {
	ExpireOldArtifacts(ctx context.Context, now time.Time) (int, error)
}

// Result summarizes a single sweep.
type Result struct {
	Deleted  int
	Duration time.Duration
}

// Worker periodically sweeps expired artifacts.
type Worker struct {
	vault    Expirer
	interval time.Duration
	clock    func() time.Time
	logger   *slog.Logger
}

type Option func(*Worker)

// WithInterval overrides the sweep interval when greater than zero.
func WithInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithLogger overrides the logger used for sweep results and errors.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithClock sets the time each sweep evaluates retention against.
func WithClock(clock func() time.Time) Option {
	return func(w *Worker) {
		if clock != nil {
			w.clock = clock
		}
	}
}

// New constructs a Worker over vault with options applied.
func New(vault Expirer, opts ...Option) (*Worker, error) {
	if vault == nil {
		return nil, fmt.Errorf("vault is required")
	}
	w := &Worker{
		vault:    vault,
		interval: DefaultInterval,
		clock:    time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// Start sweeps every interval until ctx is cancelled. A failed sweep is
// logged and the next tick retries.
func (w *Worker) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce performs a single sweep. Deleted counts artifacts actually removed,
// including when some removals failed.
func (w *Worker) RunOnce(ctx context.Context) (Result, error) {
	start := time.Now()
	deleted, err := w.vault.ExpireOldArtifacts(ctx, w.clock())
	res := Result{Deleted: deleted, Duration: time.Since(start)}
	if err != nil {
		return res, fmt.Errorf("expire old artifacts: %w", err)
	}
	if deleted > 0 {
		w.logger.InfoContext(ctx, "expired artifacts removed",
			"deleted", deleted,
			"duration_ms", res.Duration.Milliseconds(),
		)
	}
	return res, nil
}
