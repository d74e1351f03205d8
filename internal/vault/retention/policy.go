// Package retention decides when an artifact's retention window has elapsed.
package retention

import (
	"time"

	"receiptvault/internal/vault/models"
)

const (
	TemporaryWindow = 90 * 24 * time.Hour
	StandardWindow  = 7 * 365 * 24 * time.Hour
)

// Window returns the retention window for class. ok is false for classes
// that never expire.
func Window(class models.RetentionClass) (window time.Duration, ok bool) {
	switch class {
	case models.RetentionTemporary:
		return TemporaryWindow, true
	case models.RetentionStandard:
		return StandardWindow, true
	default:
		return 0, false
	}
}

// ShouldExpire reports whether an artifact created at createdAt has outlived
// its class's window at now. The boundary instant itself is not expired.
func ShouldExpire(class models.RetentionClass, createdAt, now time.Time) bool {
	window, ok := Window(class)
	if !ok {
		return false
	}
	return now.After(createdAt.Add(window))
}

// ExpiresAt returns when an artifact of class created at createdAt becomes
// eligible for expiry, or nil if it never does.
func ExpiresAt(class models.RetentionClass, createdAt time.Time) *time.Time {
	window, ok := Window(class)
	if !ok {
		return nil
	}
	t := createdAt.Add(window)
	return &t
}
