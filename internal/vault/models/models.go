package models

import (
	"slices"
	"time"
)

// ArtifactType is the closed set of tags external producers may attach to an
// artifact. Values persist as these string tokens, never as ordinals.
type ArtifactType string

const (
	TypeUnsentMessage        ArtifactType = "unsent_message"
	TypeWithheldApology      ArtifactType = "withheld_apology"
	TypeUnspokenConfession   ArtifactType = "unspoken_confession"
	TypeDeferredDecision     ArtifactType = "deferred_decision"
	TypeUnusedCourage        ArtifactType = "unused_courage"
	TypeUnclaimedOpportunity ArtifactType = "unclaimed_opportunity"
	TypeDeletedDraft         ArtifactType = "deleted_draft"
	TypeAbandonedIntent      ArtifactType = "abandoned_intent"
	TypeExpiredConsent       ArtifactType = "expired_consent"
	TypeConsentLanguage      ArtifactType = "consent_language"
)

// ValidArtifactTypes is the lookup used by IsValid and by flag completion.
var ValidArtifactTypes = map[ArtifactType]bool{
	TypeUnsentMessage:        true,
	TypeWithheldApology:      true,
	TypeUnspokenConfession:   true,
	TypeDeferredDecision:     true,
	TypeUnusedCourage:        true,
	TypeUnclaimedOpportunity: true,
	TypeDeletedDraft:         true,
	TypeAbandonedIntent:      true,
	TypeExpiredConsent:       true,
	TypeConsentLanguage:      true,
}

func (t ArtifactType) IsValid() bool {
	return ValidArtifactTypes[t]
}

func (t ArtifactType) String() string {
	return string(t)
}

// RetentionClass controls an artifact's eligibility for automatic expiry.
type RetentionClass string

const (
	RetentionTemporary  RetentionClass = "temporary"
	RetentionStandard   RetentionClass = "standard"
	RetentionIndefinite RetentionClass = "indefinite"
	RetentionLegalHold  RetentionClass = "legal_hold"
)

var ValidRetentionClasses = map[RetentionClass]bool{
	RetentionTemporary:  true,
	RetentionStandard:   true,
	RetentionIndefinite: true,
	RetentionLegalHold:  true,
}

func (c RetentionClass) IsValid() bool {
	return ValidRetentionClasses[c]
}

func (c RetentionClass) String() string {
	return string(c)
}

// LegalHoldContextKey is the context entry written by a legal hold.
// Its value is a Map with "case_id" and "applied_at".
const LegalHoldContextKey = "legal_hold"

// Artifact is a retained evidentiary record.
//
// ID, Type, Content, Owner, EventTime and CreatedAt never change after the
// artifact is stored. AccessedCount and LastAccessed are updated only by a
// successful retrieve; RetentionClass only moves toward RetentionLegalHold.
type Artifact struct {
	ID             string         `json:"artifact_id"`
	Type           ArtifactType   `json:"artifact_type"`
	Content        string         `json:"content"`
	Owner          string         `json:"user_id,omitempty"`
	EventTime      time.Time      `json:"timestamp"`
	CreatedAt      time.Time      `json:"created_at"`
	Context        Map            `json:"context"`
	Tags           []string       `json:"tags"`
	RetentionClass RetentionClass `json:"retention_class"`
	AccessedCount  int64          `json:"accessed_count"`
	LastAccessed   *time.Time     `json:"last_accessed,omitempty"`
}

// IsHeld reports whether deletion is blocked by a legal hold.
func (a *Artifact) IsHeld() bool {
	return a.RetentionClass == RetentionLegalHold
}

// HasAnyTag reports whether at least one of tags is present on the artifact.
func (a *Artifact) HasAnyTag(tags []string) bool {
	for _, t := range tags {
		if slices.Contains(a.Tags, t) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (a *Artifact) Clone() *Artifact {
	if a == nil {
		return nil
	}
	c := *a
	c.Context = a.Context.Clone()
	if a.Tags != nil {
		c.Tags = slices.Clone(a.Tags)
	}
	if a.LastAccessed != nil {
		t := *a.LastAccessed
		c.LastAccessed = &t
	}
	return &c
}

// RecordAccess applies retrieve bookkeeping.
func (a *Artifact) RecordAccess(at time.Time) {
	a.AccessedCount++
	t := at
	a.LastAccessed = &t
}

// PlaceLegalHold moves the artifact to legal hold and records the case.
func (a *Artifact) PlaceLegalHold(caseID string, at time.Time) {
	a.RetentionClass = RetentionLegalHold
	if a.Context == nil {
		a.Context = Map{}
	}
	a.Context[LegalHoldContextKey] = Map{
		"case_id":    String(caseID),
		"applied_at": String(at.UTC().Format(time.RFC3339Nano)),
	}
}
