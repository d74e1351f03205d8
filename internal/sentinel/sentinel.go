package sentinel

import "errors"

// Sentinel dependency errors. Backends and sinks should return these (optionally
// wrapped) so the vault can translate them into results or domain errors exactly once.
var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("unavailable")
	ErrClosed      = errors.New("closed")
	ErrCorrupt     = errors.New("corrupt record")
)
