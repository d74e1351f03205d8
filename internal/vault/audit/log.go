// Package audit records the vault's append-only access log.
//
// The Log is the in-process source of truth: it orders events, assigns
// sequence numbers and ids, and optionally links them into a SHA-256 hash
// chain. Each appended event is then handed to an Emitter (normally a
// Publisher) which forwards it to durable or streaming sinks. Sink failures
// never fail the vault operation that produced the event.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"receiptvault/internal/sentinel"
	"receiptvault/internal/vault/models"
)

const chainDomain = "receiptvault/audit/v1"

// Emitter receives events after they are ordered by the Log.
type Emitter interface {
	Emit(ctx context.Context, event models.Event) error
}

// Log is an ordered, append-only event log safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	events  []models.Event
	chain   bool
	clock   func() time.Time
	emitter Emitter
	logger  *slog.Logger
}

// Option configures the Log.
type Option func(*Log)

// WithHashChain links every event to its predecessor by hash.
func WithHashChain(enabled bool) Option {
	return func(l *Log) {
		l.chain = enabled
	}
}

// WithClock sets the time source used for events without a timestamp.
func WithClock(clock func() time.Time) Option {
	return func(l *Log) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithEmitter forwards appended events.
func WithEmitter(e Emitter) Option {
	return func(l *Log) {
		l.emitter = e
	}
}

// WithLogger sets the logger used to report emit failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLog constructs an empty log with hash chaining enabled.
func NewLog(opts ...Option) *Log {
	l := &Log{
		chain:  true,
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records event and returns it as stored. Seq, ID and the hash fields
// are always assigned by the log; Timestamp defaults to the clock.
func (l *Log) Append(ctx context.Context, event models.Event) models.Event {
	l.mu.Lock()
	if event.Timestamp.IsZero() {
		event.Timestamp = l.clock()
	}
	event.Timestamp = event.Timestamp.UTC().Round(0)
	event.Metadata = cloneMetadata(event.Metadata)
	event.ID = uuid.NewString()
	event.Seq = 1
	event.PrevHash = ""
	event.Hash = ""
	if n := len(l.events); n > 0 {
		last := l.events[n-1]
		event.Seq = last.Seq + 1
		if l.chain {
			event.PrevHash = last.Hash
		}
	}
	if l.chain {
		event.Hash = hashEvent(event)
	}
	l.events = append(l.events, event)
	l.mu.Unlock()

	out := copyEvent(event)
	if l.emitter != nil {
		if err := l.emitter.Emit(ctx, copyEvent(event)); err != nil {
			l.logger.Warn("audit event not forwarded",
				"error", err,
				"seq", event.Seq,
				"event_type", string(event.Type),
				"artifact_id", event.ArtifactID,
			)
		}
	}
	return out
}

// Query returns matching events in insertion order. The result is a copy.
func (l *Log) Query(filter models.EventFilter) []models.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Event, 0)
	for _, e := range l.events {
		if filter.Matches(e) {
			out = append(out, copyEvent(e))
		}
	}
	return out
}

// Len returns the number of recorded events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Restore loads previously persisted events into an empty log. Events are
// ordered by Seq; appends continue after the highest one.
func (l *Log) Restore(events []models.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) > 0 {
		return fmt.Errorf("restore into non-empty audit log (%d events)", len(l.events))
	}
	restored := make([]models.Event, 0, len(events))
	for _, e := range events {
		restored = append(restored, copyEvent(e))
	}
	sort.SliceStable(restored, func(i, j int) bool { return restored[i].Seq < restored[j].Seq })
	for i := 1; i < len(restored); i++ {
		if restored[i].Seq == restored[i-1].Seq {
			return fmt.Errorf("restore audit log: duplicate seq %d: %w", restored[i].Seq, sentinel.ErrCorrupt)
		}
	}
	l.events = restored
	return nil
}

// Verify recomputes the hash chain. Unchained events (empty Hash) are
// skipped, and the event after one must not claim a predecessor.
func (l *Log) Verify() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return VerifyChain(l.events)
}

// VerifyChain checks a sequence of events in order.
func VerifyChain(events []models.Event) error {
	prev := ""
	for _, e := range events {
		if e.Hash == "" {
			prev = ""
			continue
		}
		if e.PrevHash != prev {
			return fmt.Errorf("audit event %d: previous hash mismatch: %w", e.Seq, sentinel.ErrCorrupt)
		}
		if want := hashEvent(e); e.Hash != want {
			return fmt.Errorf("audit event %d: hash mismatch: %w", e.Seq, sentinel.ErrCorrupt)
		}
		prev = e.Hash
	}
	return nil
}

// chainRecord is the hashed view of an event. encoding/json sorts map keys.
type chainRecord struct {
	Seq        int64             `json:"seq"`
	ID         string            `json:"event_id"`
	Type       string            `json:"event_type"`
	ArtifactID string            `json:"artifact_id"`
	UserID     string            `json:"user_id"`
	Accessor   string            `json:"accessor"`
	Timestamp  string            `json:"timestamp"`
	Metadata   map[string]string `json:"metadata"`
	PrevHash   string            `json:"prev_hash"`
}

func hashEvent(e models.Event) string {
	data, _ := json.Marshal(chainRecord{
		Seq:        e.Seq,
		ID:         e.ID,
		Type:       string(e.Type),
		ArtifactID: e.ArtifactID,
		UserID:     e.UserID,
		Accessor:   e.Accessor,
		Timestamp:  models.FormatTime(e.Timestamp),
		Metadata:   e.Metadata,
		PrevHash:   e.PrevHash,
	})
	h := sha256.New()
	h.Write([]byte(chainDomain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func cloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return maps.Clone(m)
}

func copyEvent(e models.Event) models.Event {
	e.Metadata = cloneMetadata(e.Metadata)
	return e
}
