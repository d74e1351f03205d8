package retention

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receiptvault/internal/vault/models"
)

func TestShouldExpire(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	tests := []struct {
		name      string
		class     models.RetentionClass
		createdAt time.Time
		want      bool
	}{
		{"temporary just past window", models.RetentionTemporary, now.Add(-90*day - time.Second), true},
		{"temporary just inside window", models.RetentionTemporary, now.Add(-90*day + time.Second), false},
		{"temporary exact boundary", models.RetentionTemporary, now.Add(-90 * day), false},
		{"standard eight years old", models.RetentionStandard, now.Add(-8 * 365 * day), true},
		{"standard exact boundary", models.RetentionStandard, now.Add(-7 * 365 * day), false},
		{"standard one year old", models.RetentionStandard, now.Add(-365 * day), false},
		{"indefinite ancient", models.RetentionIndefinite, now.Add(-100 * 365 * day), false},
		{"legal hold ancient", models.RetentionLegalHold, now.Add(-100 * 365 * day), false},
		{"unknown class", models.RetentionClass("bogus"), now.Add(-100 * 365 * day), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldExpire(tt.class, tt.createdAt, now))
		})
	}
}

func TestExpiresAt(t *testing.T) {
	created := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	at := ExpiresAt(models.RetentionTemporary, created)
	require.NotNil(t, at)
	assert.Equal(t, created.Add(TemporaryWindow), *at)

	assert.Nil(t, ExpiresAt(models.RetentionIndefinite, created))
	assert.Nil(t, ExpiresAt(models.RetentionLegalHold, created))
}
