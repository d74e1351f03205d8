// Package service implements the receipt vault: the orchestrator that
// derives identities, persists artifacts through a store.Backend, enforces
// retention and legal holds, and records every operation in the audit log.
package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"receiptvault/internal/platform/logger"
	"receiptvault/internal/platform/metrics"
	"receiptvault/internal/platform/privacy"
	"receiptvault/internal/sentinel"
	"receiptvault/internal/vault/audit"
	"receiptvault/internal/vault/identity"
	"receiptvault/internal/vault/models"
	"receiptvault/internal/vault/retention"
	"receiptvault/internal/vault/store"
	"receiptvault/internal/vault/tracer"
	dErrors "receiptvault/pkg/domain-errors"
)

type Option func(*Vault)

// Vault is safe for concurrent use. Per-artifact mutations are serialized by
// artifactTx; reads that span the whole vault (Search, Statistics, the expiry
// scan) work from a backend snapshot.
type Vault struct {
	store    store.Backend
	auditLog *audit.Log
	tx       *artifactTx
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
	logger   *slog.Logger
	clock    func() time.Time
}

// New constructs a vault over backend. Without WithAuditLog the vault owns a
// fresh hash-chained log.
func New(backend store.Backend, opts ...Option) (*Vault, error) {
	if backend == nil {
		return nil, fmt.Errorf("artifact backend is required")
	}
	v := &Vault{
		store:  backend,
		tracer: tracer.NewNoop(),
		logger: logger.Discard(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.tx == nil {
		v.tx = newArtifactTx(defaultLockTimeout)
	}
	if v.auditLog == nil {
		v.auditLog = audit.NewLog(audit.WithClock(v.clock), audit.WithLogger(v.logger))
	}
	return v, nil
}

func WithLogger(l *slog.Logger) Option {
	return func(v *Vault) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithMetrics sets the metrics instance for the vault
func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Vault) {
		v.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(v *Vault) {
		if t != nil {
			v.tracer = t
		}
	}
}

// WithClock replaces time.Now for created_at, access and hold timestamps,
// and audit events.
func WithClock(clock func() time.Time) Option {
	return func(v *Vault) {
		if clock != nil {
			v.clock = clock
		}
	}
}

// WithLockTimeout bounds each per-artifact critical section when the caller's
// context carries no deadline. Defaults to 5 seconds.
func WithLockTimeout(d time.Duration) Option {
	return func(v *Vault) {
		v.tx = newArtifactTx(d)
	}
}

// WithAuditLog injects the access log, typically one restored from a durable
// sink and wired to a publisher.
func WithAuditLog(l *audit.Log) Option {
	return func(v *Vault) {
		v.auditLog = l
	}
}

// Store persists the artifact described by req and returns its id. An empty
// req.ID is derived from content, owner and event time; a zero EventTime
// defaults to now. Storing over an id that is on legal hold keeps the hold.
func (v *Vault) Store(ctx context.Context, req *models.StoreRequest) (id string, err error) {
	start := time.Now()
	ctx, span := v.tracer.Start(ctx, tracer.SpanStore)
	defer func() { span.End(err) }()

	if req == nil {
		return "", dErrors.New(dErrors.CodeValidation, "request is required")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return "", err
	}

	// The id must be known before the lock is taken, so a missing event time
	// defaults to the request time rather than the commit time.
	eventTime := req.EventTime.UTC().Round(0)
	if req.EventTime.IsZero() {
		eventTime = v.now()
	}
	id = req.ID
	if id == "" {
		id = identity.DeriveID(req.Content, req.Owner, eventTime)
	}

	span.SetAttributes(
		tracer.String(tracer.AttrArtifactID, id),
		tracer.String(tracer.AttrArtifactType, req.Type.String()),
		tracer.String(tracer.AttrOwnerHash, privacy.HashOwner(req.Owner)),
	)

	var artifact *models.Artifact
	err = v.tx.RunInTx(ctx, id, func(ctx context.Context) error {
		existing, err := v.load(ctx, id)
		if err != nil {
			return err
		}

		now := v.now()
		artifact = req.ToArtifact(id, now)
		artifact.EventTime = eventTime
		if artifact.Context == nil {
			artifact.Context = models.Map{}
		}
		if artifact.Tags == nil {
			artifact.Tags = []string{}
		}
		if existing != nil {
			span.AddEvent(tracer.EventOverwrite)
			if existing.IsHeld() {
				artifact.RetentionClass = models.RetentionLegalHold
				if hold, ok := existing.Context[models.LegalHoldContextKey]; ok {
					artifact.Context[models.LegalHoldContextKey] = hold
				}
			}
		}
		if err := v.store.Put(ctx, artifact); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "store artifact")
		}
		v.appendEvent(ctx, models.Event{
			Type:       models.EventStore,
			ArtifactID: id,
			UserID:     artifact.Owner,
			Timestamp:  now,
		})
		return nil
	})
	if err != nil {
		return "", err
	}
	span.SetAttributes(tracer.String(tracer.AttrRetentionClass, artifact.RetentionClass.String()))

	v.logger.InfoContext(ctx, "artifact stored",
		"artifact_id", id,
		"artifact_type", artifact.Type.String(),
		"retention_class", artifact.RetentionClass.String(),
		"owner_hash", privacy.HashOwner(artifact.Owner),
	)
	if v.metrics != nil {
		v.metrics.IncrementStored(artifact.Type.String())
		v.observe("store", start)
	}
	return id, nil
}

// Retrieve returns the artifact and records the access. An unknown id yields
// (nil, nil) and leaves no audit event.
func (v *Vault) Retrieve(ctx context.Context, id, accessor string) (artifact *models.Artifact, err error) {
	start := time.Now()
	ctx, span := v.tracer.Start(ctx, tracer.SpanRetrieve, tracer.String(tracer.AttrArtifactID, id))
	defer func() { span.End(err) }()

	err = v.tx.RunInTx(ctx, id, func(ctx context.Context) error {
		current, err := v.load(ctx, id)
		if err != nil || current == nil {
			return err
		}
		now := v.now()
		current.RecordAccess(now)
		if err := v.store.Put(ctx, current); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "record artifact access")
		}
		v.appendEvent(ctx, models.Event{
			Type:       models.EventRetrieve,
			ArtifactID: id,
			UserID:     current.Owner,
			Accessor:   accessor,
			Timestamp:  now,
		})
		artifact = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(tracer.Bool(tracer.AttrFound, artifact != nil))
	if v.metrics != nil {
		outcome := metrics.OutcomeMiss
		if artifact != nil {
			outcome = metrics.OutcomeHit
		}
		v.metrics.IncrementRetrieval(outcome)
		v.observe("retrieve", start)
	}
	return artifact, nil
}

// Search returns artifacts matching every set filter, ordered by created_at
// then id, truncated to the filter's limit (default 100).
func (v *Vault) Search(ctx context.Context, filter models.SearchFilter) (results []*models.Artifact, err error) {
	start := time.Now()
	ctx, span := v.tracer.Start(ctx, tracer.SpanSearch)
	defer func() { span.End(err) }()

	all, err := v.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list artifacts")
	}

	results = make([]*models.Artifact, 0)
	for _, a := range all {
		if filter.Matches(a) {
			results = append(results, a)
		}
	}
	slices.SortFunc(results, compareArtifacts)
	if limit := filter.EffectiveLimit(); len(results) > limit {
		results = results[:limit]
	}

	span.SetAttributes(tracer.Int(tracer.AttrCount, len(results)))
	if v.metrics != nil {
		v.metrics.ObserveSearchResults(len(results))
		v.observe("search", start)
	}
	return results, nil
}

// Delete removes the artifact unless it is on legal hold. It reports false
// for an unknown id (no audit event) and for a held artifact (DELETE_DENIED).
func (v *Vault) Delete(ctx context.Context, id, reason, approver string) (deleted bool, err error) {
	start := time.Now()
	ctx, span := v.tracer.Start(ctx, tracer.SpanDelete, tracer.String(tracer.AttrArtifactID, id))
	defer func() { span.End(err) }()

	err = v.tx.RunInTx(ctx, id, func(ctx context.Context) error {
		var err error
		deleted, err = v.deleteLocked(ctx, id, reason, approver, span)
		return err
	})
	if err != nil {
		return false, err
	}

	span.SetAttributes(tracer.Bool(tracer.AttrDeleted, deleted))
	v.observe("delete", start)
	return deleted, nil
}

// deleteLocked must run inside RunInTx for id. The hold check and the removal
// happen under the same exclusion as ApplyLegalHold.
func (v *Vault) deleteLocked(ctx context.Context, id, reason, approver string, span tracer.Span) (bool, error) {
	current, err := v.load(ctx, id)
	if err != nil {
		return false, err
	}
	if current == nil {
		v.countDelete(metrics.OutcomeNotFound)
		return false, nil
	}

	if current.IsHeld() {
		span.AddEvent(tracer.EventDeleteDenied, tracer.String(tracer.AttrArtifactID, id))
		v.appendEvent(ctx, models.Event{
			Type:       models.EventDeleteDenied,
			ArtifactID: id,
			Timestamp:  v.now(),
			Metadata:   map[string]string{models.MetaReason: models.ReasonLegalHoldActive},
		})
		v.logger.WarnContext(ctx, "delete denied by legal hold",
			"artifact_id", id,
			"requested_reason", reason,
		)
		v.countDelete(metrics.OutcomeDenied)
		return false, nil
	}

	if err := v.store.Delete(ctx, id); err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "delete artifact")
	}
	v.appendEvent(ctx, models.Event{
		Type:       models.EventDelete,
		ArtifactID: id,
		UserID:     current.Owner,
		Timestamp:  v.now(),
		Metadata: map[string]string{
			models.MetaReason:   reason,
			models.MetaApprover: approver,
		},
	})
	v.logger.InfoContext(ctx, "artifact deleted",
		"artifact_id", id,
		"reason", reason,
		"approver", approver,
	)
	v.countDelete(metrics.OutcomeDeleted)
	return true, nil
}

// ExpireOldArtifacts deletes every artifact whose retention window has
// elapsed at now and returns how many were actually removed. Candidates come
// from a snapshot; each is re-read and re-checked under its own lock before
// removal, so a hold applied after the scan still wins. Failures on individual
// artifacts do not stop the sweep and are returned joined.
func (v *Vault) ExpireOldArtifacts(ctx context.Context, now time.Time) (count int, err error) {
	start := time.Now()
	ctx, span := v.tracer.Start(ctx, tracer.SpanExpire)
	defer func() { span.End(err) }()

	snapshot, err := v.store.List(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "list artifacts for expiry")
	}

	var errs []error
	for _, candidate := range snapshot {
		if !retention.ShouldExpire(candidate.RetentionClass, candidate.CreatedAt, now) {
			continue
		}
		if ctx.Err() != nil {
			errs = append(errs, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "expiry sweep interrupted"))
			break
		}

		id := candidate.ID
		txErr := v.tx.RunInTx(ctx, id, func(ctx context.Context) error {
			current, err := v.load(ctx, id)
			if err != nil || current == nil {
				return err
			}
			// Held artifacts fall through to deleteLocked so the denial is audited.
			if !current.IsHeld() && !retention.ShouldExpire(current.RetentionClass, current.CreatedAt, now) {
				return nil
			}
			deleted, err := v.deleteLocked(ctx, id, models.ReasonRetentionExpiry, models.ApproverSystem, span)
			if deleted {
				count++
			}
			return err
		})
		if txErr != nil {
			errs = append(errs, fmt.Errorf("expire %s: %w", id, txErr))
		}
	}

	span.SetAttributes(tracer.Int(tracer.AttrCount, count))
	if v.metrics != nil {
		v.metrics.AddExpired(count)
		v.observe("expire", start)
	}
	v.logger.InfoContext(ctx, "expiry sweep completed",
		"deleted", count,
		"scanned", len(snapshot),
		"failures", len(errs),
	)
	return count, errors.Join(errs...)
}

// ApplyLegalHold places every existing id on legal hold for caseID and returns
// how many were protected. Unknown ids are skipped; duplicates count once.
func (v *Vault) ApplyLegalHold(ctx context.Context, ids []string, caseID string) (protected int, err error) {
	start := time.Now()
	ctx, span := v.tracer.Start(ctx, tracer.SpanHold, tracer.String(tracer.AttrCaseID, caseID))
	defer func() { span.End(err) }()

	if caseID == "" {
		return 0, dErrors.New(dErrors.CodeValidation, "case_id is required")
	}

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		var held bool
		err := v.tx.RunInTx(ctx, id, func(ctx context.Context) error {
			current, err := v.load(ctx, id)
			if err != nil || current == nil {
				return err
			}
			now := v.now()
			current.PlaceLegalHold(caseID, now)
			if err := v.store.Put(ctx, current); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "apply legal hold")
			}
			v.appendEvent(ctx, models.Event{
				Type:       models.EventLegalHoldApplied,
				ArtifactID: id,
				Timestamp:  now,
				Metadata:   map[string]string{models.MetaCaseID: caseID},
			})
			held = true
			return nil
		})
		if err != nil {
			return protected, err
		}
		if held {
			protected++
			if v.metrics != nil {
				v.metrics.IncrementLegalHolds()
			}
		}
	}

	span.SetAttributes(tracer.Int(tracer.AttrCount, protected))
	v.logger.InfoContext(ctx, "legal hold applied",
		"case_id", caseID,
		"requested", len(ids),
		"protected", protected,
	)
	v.observe("hold", start)
	return protected, nil
}

// AccessLog returns the audit events matching filter in insertion order.
func (v *Vault) AccessLog(_ context.Context, filter models.EventFilter) []models.Event {
	return v.auditLog.Query(filter)
}

// Statistics aggregates the current contents and the access log size.
func (v *Vault) Statistics(ctx context.Context) (*models.Statistics, error) {
	all, err := v.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list artifacts for statistics")
	}

	stats := &models.Statistics{
		TotalArtifacts:   len(all),
		ByType:           make(map[models.ArtifactType]int),
		ByRetentionClass: make(map[models.RetentionClass]int),
		AccessLogSize:    v.auditLog.Len(),
	}
	for _, a := range all {
		stats.ByType[a.Type]++
		stats.ByRetentionClass[a.RetentionClass]++
		stats.TotalAccesses += a.AccessedCount
	}
	if stats.TotalArtifacts > 0 {
		stats.AverageAccessesPerArtifact = float64(stats.TotalAccesses) / float64(stats.TotalArtifacts)
	}
	return stats, nil
}

// ExportAccessLog renders the matching audit events as CSV or JSON.
func (v *Vault) ExportAccessLog(_ context.Context, filter models.EventFilter, format audit.Format) ([]byte, error) {
	return audit.Export(v.auditLog.Query(filter), format)
}

// VerifyAccessLog recomputes the audit hash chain.
func (v *Vault) VerifyAccessLog(_ context.Context) error {
	if err := v.auditLog.Verify(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, "access log failed verification")
	}
	return nil
}

// load reads id from the backend, mapping absence to (nil, nil).
func (v *Vault) load(ctx context.Context, id string) (*models.Artifact, error) {
	artifact, err := v.store.Get(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "read artifact")
	}
	return artifact, nil
}

func (v *Vault) appendEvent(ctx context.Context, event models.Event) {
	v.auditLog.Append(ctx, event)
	if v.metrics != nil {
		v.metrics.SetAuditLogSize(v.auditLog.Len())
	}
}

func (v *Vault) now() time.Time {
	return v.clock().UTC().Round(0)
}

func (v *Vault) countDelete(outcome string) {
	if v.metrics != nil {
		v.metrics.IncrementDelete(outcome)
	}
}

func (v *Vault) observe(operation string, start time.Time) {
	if v.metrics != nil {
		v.metrics.ObserveOperationLatency(operation, time.Since(start).Seconds())
	}
}

func compareArtifacts(a, b *models.Artifact) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
