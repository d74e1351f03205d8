package models

import "time"

// EventType names a vault operation recorded in the access log.
type EventType string

const (
	EventStore            EventType = "STORE"
	EventRetrieve         EventType = "RETRIEVE"
	EventDelete           EventType = "DELETE"
	EventDeleteDenied     EventType = "DELETE_DENIED"
	EventLegalHoldApplied EventType = "LEGAL_HOLD_APPLIED"
)

var ValidEventTypes = map[EventType]bool{
	EventStore:            true,
	EventRetrieve:         true,
	EventDelete:           true,
	EventDeleteDenied:     true,
	EventLegalHoldApplied: true,
}

func (t EventType) IsValid() bool {
	return ValidEventTypes[t]
}

// Metadata keys and fixed values written into events.
const (
	MetaReason   = "reason"
	MetaApprover = "approver"
	MetaCaseID   = "case_id"

	ReasonLegalHoldActive = "legal_hold_active"
	ReasonRetentionExpiry = "retention_policy_expired"
	ApproverSystem        = "system_automated"
)

// Event is one append-only access log entry. Seq, ID, PrevHash and Hash are
// assigned by the log on append.
type Event struct {
	Seq        int64             `json:"seq"`
	ID         string            `json:"event_id"`
	Type       EventType         `json:"event_type"`
	ArtifactID string            `json:"artifact_id"`
	UserID     string            `json:"user_id,omitempty"`
	Accessor   string            `json:"accessor,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Metadata   map[string]string `json:"metadata"`
	PrevHash   string            `json:"prev_hash,omitempty"`
	Hash       string            `json:"hash,omitempty"`
}

// EventFilter selects access log entries. Zero fields match everything and
// set fields combine with AND. Since is inclusive.
type EventFilter struct {
	ArtifactID string
	Type       EventType
	Since      time.Time
}

func (f EventFilter) Matches(e Event) bool {
	if f.ArtifactID != "" && e.ArtifactID != f.ArtifactID {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}
