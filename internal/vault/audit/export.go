package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"receiptvault/internal/vault/models"
	dErrors "receiptvault/pkg/domain-errors"
)

// Format is an access log export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat maps a user-supplied name to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV:
		return f, nil
	default:
		return "", dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unsupported export format: %s", s))
	}
}

var csvHeader = []string{
	"seq",
	"event_id",
	"event_type",
	"artifact_id",
	"user_id",
	"accessor",
	"timestamp",
	"metadata",
	"prev_hash",
	"hash",
}

// Export renders events in the requested format.
func Export(events []models.Event, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return exportToCSV(events)
	case FormatJSON:
		return exportToJSON(events)
	default:
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unsupported export format: %s", format))
	}
}

func exportToCSV(events []models.Event) ([]byte, error) {
	buf := new(bytes.Buffer)
	writer := csv.NewWriter(buf)

	if err := writer.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write CSV header: %w", err)
	}
	for _, e := range events {
		row := []string{
			strconv.FormatInt(e.Seq, 10),
			e.ID,
			string(e.Type),
			e.ArtifactID,
			e.UserID,
			e.Accessor,
			models.FormatTime(e.Timestamp),
			formatMetadata(e.Metadata),
			e.PrevHash,
			e.Hash,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// formatMetadata renders metadata as "k=v" pairs in key order, joined by ';'.
func formatMetadata(m map[string]string) string {
	keys := slices.Sorted(maps.Keys(m))
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+m[k])
	}
	return strings.Join(pairs, ";")
}

func exportToJSON(events []models.Event) ([]byte, error) {
	type exportEvent struct {
		Seq        int64             `json:"seq"`
		ID         string            `json:"event_id"`
		Type       string            `json:"event_type"`
		ArtifactID string            `json:"artifact_id"`
		UserID     string            `json:"user_id,omitempty"`
		Accessor   string            `json:"accessor,omitempty"`
		Timestamp  string            `json:"timestamp"`
		Metadata   map[string]string `json:"metadata"`
		PrevHash   string            `json:"prev_hash,omitempty"`
		Hash       string            `json:"hash,omitempty"`
	}

	out := make([]exportEvent, len(events))
	for i, e := range events {
		out[i] = exportEvent{
			Seq:        e.Seq,
			ID:         e.ID,
			Type:       string(e.Type),
			ArtifactID: e.ArtifactID,
			UserID:     e.UserID,
			Accessor:   e.Accessor,
			Timestamp:  models.FormatTime(e.Timestamp),
			Metadata:   cloneMetadata(e.Metadata),
			PrevHash:   e.PrevHash,
			Hash:       e.Hash,
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal JSON: %w", err)
	}
	return data, nil
}
