package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receiptvault/internal/platform/metrics"
	"receiptvault/internal/vault/audit"
	"receiptvault/internal/vault/identity"
	"receiptvault/internal/vault/models"
	"receiptvault/internal/vault/retention"
	"receiptvault/internal/vault/store"
	dErrors "receiptvault/pkg/domain-errors"
	"receiptvault/pkg/testutil"
)

type fixture struct {
	vault   *Vault
	backend *store.InMemoryStore
	clock   *fakeClock
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := store.NewInMemory()
	clock := newFakeClock(testutil.FixedTime)
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	v, err := New(backend, WithClock(clock.Now), WithMetrics(m))
	require.NoError(t, err)
	return &fixture{vault: v, backend: backend, clock: clock, metrics: m}
}

func TestVault_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := testutil.NewStoreRequest().
		WithType(models.TypeWithheldApology).
		WithOwner("u1").
		WithTags("apology", "family").
		WithContext("channel", models.String("sms")).
		WithContext("attempts", models.Int(3)).
		WithContext("draft", models.Map{"words": models.List{models.String("sorry"), models.Float(0.5)}}).
		Build()

	id, err := f.vault.Store(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, identity.DeriveID(req.Content, "u1", testutil.FixedTime), id)

	got, err := f.vault.Retrieve(ctx, id, "auditor-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, req.Content, got.Content)
	assert.Equal(t, req.Type, got.Type)
	assert.Equal(t, "u1", got.Owner)
	assert.Equal(t, []string{"apology", "family"}, got.Tags)
	assert.Equal(t, req.Context, got.Context)
	assert.True(t, got.EventTime.Equal(testutil.FixedTime))
	assert.True(t, got.CreatedAt.Equal(testutil.FixedTime))

	events := f.vault.AccessLog(ctx, models.EventFilter{ArtifactID: id})
	require.Len(t, events, 2)
	assert.Equal(t, models.EventStore, events[0].Type)
	assert.Equal(t, "u1", events[0].UserID)
	assert.Equal(t, models.EventRetrieve, events[1].Type)
	assert.Equal(t, "auditor-1", events[1].Accessor)
}

func TestVault_StoreIdentity(t *testing.T) {
	ctx := context.Background()

	t.Run("identical submissions share an id", func(t *testing.T) {
		f := newFixture(t)
		first, err := f.vault.Store(ctx, testutil.NewStoreRequest().Build())
		require.NoError(t, err)
		second, err := f.vault.Store(ctx, testutil.NewStoreRequest().Build())
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, 1, f.backend.Len())
		assert.Len(t, f.vault.AccessLog(ctx, models.EventFilter{Type: models.EventStore}), 2)
	})

	t.Run("sub-second difference yields a distinct artifact", func(t *testing.T) {
		f := newFixture(t)
		a, err := f.vault.Store(ctx, testutil.NewStoreRequest().Build())
		require.NoError(t, err)
		b, err := f.vault.Store(ctx, testutil.NewStoreRequest().WithEventTime(testutil.FixedTime.Add(time.Millisecond)).Build())
		require.NoError(t, err)

		assert.NotEqual(t, a, b)
		assert.Equal(t, 2, f.backend.Len())
	})

	t.Run("caller supplied id is kept", func(t *testing.T) {
		f := newFixture(t)
		id, err := f.vault.Store(ctx, testutil.NewStoreRequest().WithID("  receipt-2025-001 ").Build())
		require.NoError(t, err)
		assert.Equal(t, "receipt-2025-001", id)
	})

	t.Run("missing event time defaults to now", func(t *testing.T) {
		f := newFixture(t)
		now := f.clock.Advance(time.Hour)
		id, err := f.vault.Store(ctx, testutil.NewStoreRequest().WithEventTime(time.Time{}).Build())
		require.NoError(t, err)

		got, err := f.vault.Retrieve(ctx, id, "")
		require.NoError(t, err)
		assert.True(t, got.EventTime.Equal(now))
	})

	t.Run("content is compared byte for byte", func(t *testing.T) {
		f := newFixture(t)
		composed, err := f.vault.Store(ctx, testutil.NewStoreRequest().WithContent("caf\u00e9").Build())
		require.NoError(t, err)
		decomposed, err := f.vault.Store(ctx, testutil.NewStoreRequest().WithContent("cafe\u0301").Build())
		require.NoError(t, err)

		assert.NotEqual(t, composed, decomposed)
		assert.Equal(t, 2, f.backend.Len())
		for id, want := range map[string]string{composed: "caf\u00e9", decomposed: "cafe\u0301"} {
			got, err := f.vault.Retrieve(ctx, id, "")
			require.NoError(t, err)
			assert.Equal(t, want, got.Content)
		}
	})
}

// gatedStore parks the first Get issued after arm until release is closed.
type gatedStore struct {
	*store.InMemoryStore
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		InMemoryStore: store.NewInMemory(),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
}

func (s *gatedStore) arm() { s.armed.Store(true) }

func (s *gatedStore) Get(ctx context.Context, id string) (*models.Artifact, error) {
	if s.armed.CompareAndSwap(true, false) {
		close(s.entered)
		<-s.release
	}
	return s.InMemoryStore.Get(ctx, id)
}

func TestVault_EventTimestampsFollowLockOrder(t *testing.T) {
	ctx := context.Background()
	backend := newGatedStore()
	clock := newFakeClock(testutil.FixedTime)
	v, err := New(backend, WithClock(clock.Now))
	require.NoError(t, err)

	req := testutil.NewStoreRequest().WithContent("queued overwrite")
	id, err := v.Store(ctx, req.Build())
	require.NoError(t, err)

	backend.arm()
	retrieved := make(chan error, 1)
	go func() {
		_, err := v.Retrieve(ctx, id, "reader")
		retrieved <- err
	}()
	<-backend.entered

	stored := make(chan error, 1)
	go func() {
		_, err := v.Store(ctx, req.Build())
		stored <- err
	}()
	// let the overwrite reach the lock before time moves on
	time.Sleep(50 * time.Millisecond)
	clock.Advance(time.Minute)
	close(backend.release)

	require.NoError(t, <-retrieved)
	require.NoError(t, <-stored)

	events := v.AccessLog(ctx, models.EventFilter{ArtifactID: id})
	require.Len(t, events, 3)
	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].Timestamp.Before(events[i-1].Timestamp),
			"event %d (%s) at %s precedes event %d at %s",
			i, events[i].Type, events[i].Timestamp, i-1, events[i-1].Timestamp)
	}

	current, err := backend.InMemoryStore.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, current.CreatedAt.Equal(testutil.FixedTime.Add(time.Minute)))
}

func TestVault_LegalHoldBlocksDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.vault.Store(ctx, testutil.NewStoreRequest().Build())
	require.NoError(t, err)

	protected, err := f.vault.ApplyLegalHold(ctx, []string{id, id, "artifact_unknown"}, "CASE-42")
	require.NoError(t, err)
	assert.Equal(t, 1, protected)

	for _, args := range [][2]string{
		{"user request", "owner"},
		{models.ReasonRetentionExpiry, models.ApproverSystem},
		{"", ""},
	} {
		deleted, err := f.vault.Delete(ctx, id, args[0], args[1])
		require.NoError(t, err)
		assert.False(t, deleted)
	}

	got, err := f.vault.Retrieve(ctx, id, "counsel")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.RetentionLegalHold, got.RetentionClass)
	hold, ok := got.Context[models.LegalHoldContextKey].(models.Map)
	require.True(t, ok)
	assert.Equal(t, models.String("CASE-42"), hold["case_id"])

	denied := f.vault.AccessLog(ctx, models.EventFilter{Type: models.EventDeleteDenied})
	assert.Len(t, denied, 3)
	assert.Equal(t, 3.0, promtestutil.ToFloat64(f.metrics.ArtifactDeletes.WithLabelValues(metrics.OutcomeDenied)))

	t.Run("expiry leaves held artifacts alone", func(t *testing.T) {
		count, err := f.vault.ExpireOldArtifacts(ctx, testutil.FixedTime.Add(100*365*24*time.Hour))
		require.NoError(t, err)
		assert.Zero(t, count)
		assert.Equal(t, 1, f.backend.Len())
	})

	t.Run("restore of the same id keeps the hold", func(t *testing.T) {
		again, err := f.vault.Store(ctx, testutil.NewStoreRequest().WithRetention(models.RetentionTemporary).Build())
		require.NoError(t, err)
		require.Equal(t, id, again)

		got, err := f.vault.Retrieve(ctx, id, "")
		require.NoError(t, err)
		assert.True(t, got.IsHeld())
		assert.Contains(t, got.Context, models.LegalHoldContextKey)
	})
}

func TestVault_StoreRejectsForgedHoldEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	req := testutil.NewStoreRequest().
		WithContext(models.LegalHoldContextKey, models.Map{"case_id": models.String("CASE-FORGED")}).
		Build()
	_, err := f.vault.Store(ctx, req)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	assert.Zero(t, f.backend.Len())
	assert.Empty(t, f.vault.AccessLog(ctx, models.EventFilter{}))
}

func TestVault_DeleteOutcomes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deleted, err := f.vault.Delete(ctx, "artifact_missing", "cleanup", "ops")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Empty(t, f.vault.AccessLog(ctx, models.EventFilter{ArtifactID: "artifact_missing"}))

	id, err := f.vault.Store(ctx, testutil.NewStoreRequest().WithOwner("u9").Build())
	require.NoError(t, err)
	deleted, err = f.vault.Delete(ctx, id, "user request", "privacy-team")
	require.NoError(t, err)
	assert.True(t, deleted)

	got, err := f.vault.Retrieve(ctx, id, "")
	require.NoError(t, err)
	assert.Nil(t, got)

	events := f.vault.AccessLog(ctx, models.EventFilter{Type: models.EventDelete})
	require.Len(t, events, 1)
	assert.Equal(t, "u9", events[0].UserID)
	assert.Equal(t, map[string]string{"reason": "user request", "approver": "privacy-team"}, events[0].Metadata)

	protected, err := f.vault.ApplyLegalHold(ctx, []string{id}, "CASE-1")
	require.NoError(t, err)
	assert.Zero(t, protected)
}

func TestVault_ExpiryBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := testutil.FixedTime

	f.clock.Set(now.Add(-retention.TemporaryWindow - time.Second))
	expired, err := f.vault.Store(ctx, testutil.NewStoreRequest().WithContent("old").WithRetention(models.RetentionTemporary).Build())
	require.NoError(t, err)

	f.clock.Set(now.Add(-retention.TemporaryWindow + time.Second))
	kept, err := f.vault.Store(ctx, testutil.NewStoreRequest().WithContent("recent").WithRetention(models.RetentionTemporary).Build())
	require.NoError(t, err)

	f.clock.Set(now.Add(-retention.TemporaryWindow))
	boundary, err := f.vault.Store(ctx, testutil.NewStoreRequest().WithContent("exact").WithRetention(models.RetentionTemporary).Build())
	require.NoError(t, err)

	count, err := f.vault.ExpireOldArtifacts(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	for id, present := range map[string]bool{expired: false, kept: true, boundary: true} {
		got, err := f.vault.Retrieve(ctx, id, "")
		require.NoError(t, err)
		assert.Equal(t, present, got != nil, id)
	}
}

func TestVault_EndToEndExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := testutil.FixedTime

	f.clock.Set(now.AddDate(-8, 0, 0))
	id, err := f.vault.Store(ctx, testutil.NewStoreRequest().WithRetention(models.RetentionStandard).Build())
	require.NoError(t, err)
	f.clock.Set(now)

	count, err := f.vault.ExpireOldArtifacts(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := f.vault.Retrieve(ctx, id, "")
	require.NoError(t, err)
	assert.Nil(t, got)

	deletes := f.vault.AccessLog(ctx, models.EventFilter{Type: models.EventDelete})
	require.Len(t, deletes, 1)
	assert.Equal(t, id, deletes[0].ArtifactID)
	assert.Equal(t, models.ReasonRetentionExpiry, deletes[0].Metadata[models.MetaReason])
	assert.Equal(t, models.ApproverSystem, deletes[0].Metadata[models.MetaApprover])
	assert.Equal(t, 1.0, promtestutil.ToFloat64(f.metrics.ArtifactsExpired))
}

func TestVault_AccessBookkeeping(t *testing.T) {
	ctx := context.Background()

	t.Run("sequential retrievals", func(t *testing.T) {
		f := newFixture(t)
		id, err := f.vault.Store(ctx, testutil.NewStoreRequest().Build())
		require.NoError(t, err)

		var last time.Time
		for range 5 {
			last = f.clock.Advance(time.Minute)
			_, err := f.vault.Retrieve(ctx, id, "reader")
			require.NoError(t, err)
		}

		got, err := f.backend.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(5), got.AccessedCount)
		require.NotNil(t, got.LastAccessed)
		assert.True(t, got.LastAccessed.Equal(last))
	})

	t.Run("concurrent retrievals lose no updates", func(t *testing.T) {
		f := newFixture(t)
		id, err := f.vault.Store(ctx, testutil.NewStoreRequest().Build())
		require.NoError(t, err)

		result := testutil.RunConcurrent(50, func(idx int) error {
			_, err := f.vault.Retrieve(ctx, id, fmt.Sprintf("reader-%d", idx))
			return err
		})
		require.Equal(t, int32(50), result.Successes)

		got, err := f.backend.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(50), got.AccessedCount)
		assert.Len(t, f.vault.AccessLog(ctx, models.EventFilter{Type: models.EventRetrieve}), 50)
	})
}

func TestVault_HoldDeleteRace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i := range 100 {
		id, err := f.vault.Store(ctx, testutil.NewStoreRequest().WithContent(fmt.Sprintf("race %d", i)).Build())
		require.NoError(t, err)

		var protected atomic.Int32
		var deleted atomic.Bool
		result := testutil.RunConcurrent(2, func(idx int) error {
			if idx == 0 {
				n, err := f.vault.ApplyLegalHold(ctx, []string{id}, "CASE-RACE")
				protected.Store(int32(n))
				return err
			}
			ok, err := f.vault.Delete(ctx, id, "user request", "ops")
			deleted.Store(ok)
			return err
		})
		require.Equal(t, int32(2), result.Successes)

		current, err := f.backend.Get(ctx, id)
		if deleted.Load() {
			assert.Zero(t, protected.Load(), "iteration %d: hold reported on a deleted artifact", i)
			assert.Error(t, err, "iteration %d: deleted artifact still present", i)
		} else {
			assert.Equal(t, int32(1), protected.Load(), "iteration %d", i)
			require.NoError(t, err)
			assert.True(t, current.IsHeld(), "iteration %d", i)
		}
	}
}

func TestVault_Search(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	put := func(content, owner string, tags ...string) string {
		f.clock.Advance(time.Second)
		id, err := f.vault.Store(ctx, testutil.NewStoreRequest().WithContent(content).WithOwner(owner).WithTags(tags...).Build())
		require.NoError(t, err)
		return id
	}
	first := put("one", "u1", "apology")
	put("two", "u2", "family")
	third := put("three", "u2", "apology", "family")

	ids := func(found []*models.Artifact) []string {
		out := make([]string, 0, len(found))
		for _, a := range found {
			out = append(out, a.ID)
		}
		return out
	}

	found, err := f.vault.Search(ctx, models.SearchFilter{Tags: []string{"apology"}})
	require.NoError(t, err)
	assert.Equal(t, []string{first, third}, ids(found))

	found, err = f.vault.Search(ctx, models.SearchFilter{Tags: []string{"apology"}, Owner: "u1"})
	require.NoError(t, err)
	assert.Equal(t, []string{first}, ids(found))

	found, err = f.vault.Search(ctx, models.SearchFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, found, 2)
	assert.Equal(t, first, found[0].ID)

	found, err = f.vault.Search(ctx, models.SearchFilter{Type: models.TypeDeletedDraft})
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.NotNil(t, found)

	assert.Empty(t, f.vault.AccessLog(ctx, models.EventFilter{Type: models.EventRetrieve}), "search is not an access")
}

func TestVault_Statistics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty, err := f.vault.Statistics(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalArtifacts)
	assert.Zero(t, empty.AverageAccessesPerArtifact)

	a, err := f.vault.Store(ctx, testutil.NewStoreRequest().WithContent("a").Build())
	require.NoError(t, err)
	_, err = f.vault.Store(ctx, testutil.NewStoreRequest().WithContent("b").WithType(models.TypeDeferredDecision).WithRetention(models.RetentionIndefinite).Build())
	require.NoError(t, err)
	for range 3 {
		_, err = f.vault.Retrieve(ctx, a, "")
		require.NoError(t, err)
	}

	stats, err := f.vault.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalArtifacts)
	assert.Equal(t, map[models.ArtifactType]int{models.TypeUnsentMessage: 1, models.TypeDeferredDecision: 1}, stats.ByType)
	assert.Equal(t, map[models.RetentionClass]int{models.RetentionStandard: 1, models.RetentionIndefinite: 1}, stats.ByRetentionClass)
	assert.Equal(t, int64(3), stats.TotalAccesses)
	assert.InDelta(t, 1.5, stats.AverageAccessesPerArtifact, 1e-9)
	assert.Equal(t, 5, stats.AccessLogSize)
}

func TestVault_ExportAndVerify(t *testing.T) {
	ctx := context.Background()
	backend := store.NewInMemory()
	log := audit.NewLog()
	v, err := New(backend, WithAuditLog(log))
	require.NoError(t, err)

	id, err := v.Store(ctx, testutil.NewStoreRequest().Build())
	require.NoError(t, err)
	_, err = v.Delete(ctx, id, "user request", "ops")
	require.NoError(t, err)

	require.NoError(t, v.VerifyAccessLog(ctx))

	out, err := v.ExportAccessLog(ctx, models.EventFilter{Type: models.EventDelete}, audit.FormatCSV)
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "DELETE", rows[1][2])

	t.Run("tampering is reported as an invariant violation", func(t *testing.T) {
		events := log.Query(models.EventFilter{})
		events[0].Metadata = map[string]string{"forged": "true"}
		tampered := audit.NewLog()
		require.NoError(t, tampered.Restore(events))

		v2, err := New(backend, WithAuditLog(tampered))
		require.NoError(t, err)
		err = v2.VerifyAccessLog(ctx)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}
