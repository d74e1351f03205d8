package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receiptvault/internal/vault/models"
	dErrors "receiptvault/pkg/domain-errors"
)

func sampleEvents() []models.Event {
	return []models.Event{
		{Seq: 1, ID: "e1", Type: models.EventStore, ArtifactID: "artifact_1", UserID: "u1", Timestamp: t0},
		{Seq: 2, ID: "e2", Type: models.EventDelete, ArtifactID: "artifact_1", Timestamp: t0,
			Metadata: map[string]string{models.MetaReason: "user asked, twice", models.MetaApprover: "ops"}},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" CSV ")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	_, err = ParseFormat("xml")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestExport_CSV(t *testing.T) {
	data, err := Export(sampleEvents(), FormatCSV)
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "STORE", rows[1][2])
	assert.Equal(t, "2025-05-05T05:05:05.000000000Z", rows[1][6])
	assert.Equal(t, "", rows[1][7])
	assert.Equal(t, "approver=ops;reason=user asked, twice", rows[2][7])
}

func TestExport_JSON(t *testing.T) {
	data, err := Export(sampleEvents(), FormatJSON)
	require.NoError(t, err)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out, 2)
	assert.Equal(t, "DELETE", out[1]["event_type"])
	assert.Equal(t, "u1", out[0]["user_id"])
	_, hasAccessor := out[0]["accessor"]
	assert.False(t, hasAccessor)
}

func TestExport_EmptyAndUnknown(t *testing.T) {
	data, err := Export(nil, FormatJSON)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))

	_, err = Export(nil, Format("xml"))
	require.Error(t, err)
}
