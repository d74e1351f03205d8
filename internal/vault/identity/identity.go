// Package identity derives content-addressed artifact identifiers.
//
// An id is "artifact_" followed by the first 16 hex characters of
// SHA-256(domain || 0x00 || canonical). canonical is length-prefixed raw
// bytes: content, an owner marker (0 absent, 1 present) with the owner, then
// the event time in fixed-width UTC. Strings are hashed exactly as given; no
// Unicode normalisation and no escaping.
package identity

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"

	"receiptvault/internal/vault/models"
)

const (
	// Prefix namespaces derived identifiers.
	Prefix = "artifact_"

	hexWidth = 16
	domain   = "receiptvault/artifact/v2"

	ownerAbsent  byte = 0
	ownerPresent byte = 1
)

// DeriveID returns the identifier for (content, owner, eventTime). The same
// triple always yields the same id; any byte difference in content or owner,
// or any difference in the instant, yields a different id.
func DeriveID(content, owner string, eventTime time.Time) string {
	sum := hashWithDomain(domain, Canonical(content, owner, eventTime))
	return Prefix + sum[:hexWidth]
}

// Canonical returns the byte encoding that DeriveID hashes.
func Canonical(content, owner string, eventTime time.Time) []byte {
	var buf bytes.Buffer
	writeField(&buf, content)
	if owner == "" {
		buf.WriteByte(ownerAbsent)
	} else {
		buf.WriteByte(ownerPresent)
		writeField(&buf, owner)
	}
	writeField(&buf, models.FormatTime(eventTime))
	return buf.Bytes()
}

// writeField writes an 8-byte big-endian length followed by the raw bytes.
func writeField(buf *bytes.Buffer, s string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(s)))
	buf.Write(n[:])
	buf.WriteString(s)
}

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
