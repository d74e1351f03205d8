// Package privacy keeps personally identifying values out of logs, traces
// and metrics.
package privacy

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashOwner returns a short stable digest of an owner id for telemetry.
// The empty owner hashes to the empty string.
func HashOwner(owner string) string {
	if owner == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(owner))
	return hex.EncodeToString(sum[:8])
}
