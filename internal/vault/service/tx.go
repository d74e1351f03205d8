package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "receiptvault/pkg/domain-errors"
	platformsync "receiptvault/pkg/platform/sync"
)

// Shard contention metrics for monitoring lock behavior
var (
	shardLockWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "receiptvault_artifact_shard_lock_wait_seconds",
		Help:    "Time spent waiting to acquire an artifact shard lock",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})
	shardLockAcquisitions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "receiptvault_artifact_shard_lock_acquisitions_total",
		Help: "Total number of artifact shard lock acquisitions",
	})
)

// defaultLockTimeout bounds a critical section whose context has no deadline.
const defaultLockTimeout = 5 * time.Second

// artifactTx serializes mutations of a single artifact. Retrieve bookkeeping,
// hold application and removal of the same id all run under its shard, so a
// delete observes any hold applied before it and vice versa.
//
// Callers must never nest RunInTx: two ids may share a shard.
type artifactTx struct {
	mu      *platformsync.ShardedMutex
	timeout time.Duration
}

func newArtifactTx(timeout time.Duration) *artifactTx {
	return &artifactTx{
		mu:      platformsync.NewShardedMutex(),
		timeout: timeout,
	}
}

func (t *artifactTx) RunInTx(ctx context.Context, artifactID string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	lockStart := time.Now()
	t.mu.Lock(artifactID)
	shardLockWaitDuration.Observe(time.Since(lockStart).Seconds())
	shardLockAcquisitions.Inc()
	defer t.mu.Unlock(artifactID)

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(ctx)
}
