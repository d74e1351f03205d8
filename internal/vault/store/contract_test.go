package store

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receiptvault/internal/sentinel"
	"receiptvault/internal/vault/models"
)

var fixtureTime = time.Date(2025, 6, 1, 12, 30, 45, 123456789, time.UTC)

func fixtureArtifact(id string) *models.Artifact {
	accessed := fixtureTime.Add(2 * time.Hour)
	return &models.Artifact{
		ID:        id,
		Type:      models.TypeUnsentMessage,
		Content:   "I should have called.",
		Owner:     "u1",
		EventTime: fixtureTime,
		CreatedAt: fixtureTime.Add(time.Minute),
		Context: models.Map{
			"channel":  models.String("sms"),
			"attempts": models.Int(3),
			"weight":   models.Float(2.0),
			"draft":    models.Bool(true),
			"nothing":  models.Null{},
			"recipients": models.List{
				models.String("a"),
				models.Map{"n": models.Int(1)},
			},
		},
		Tags:           []string{"family", "regret"},
		RetentionClass: models.RetentionStandard,
		AccessedCount:  2,
		LastAccessed:   &accessed,
	}
}

// runBackendContract exercises the behaviour every Backend must share.
func runBackendContract(t *testing.T, newBackend func(t *testing.T) Backend) {
	t.Helper()
	ctx := context.Background()

	t.Run("put then get round trips every field", func(t *testing.T) {
		b := newBackend(t)
		want := fixtureArtifact("artifact_00000000000000a1")
		require.NoError(t, b.Put(ctx, want))

		got, err := b.Get(ctx, want.ID)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("get of absent id is not found", func(t *testing.T) {
		b := newBackend(t)
		got, err := b.Get(ctx, "artifact_missing")
		require.ErrorIs(t, err, sentinel.ErrNotFound)
		assert.Nil(t, got)
	})

	t.Run("put overwrites", func(t *testing.T) {
		b := newBackend(t)
		a := fixtureArtifact("artifact_00000000000000a2")
		require.NoError(t, b.Put(ctx, a))

		a.RetentionClass = models.RetentionLegalHold
		a.AccessedCount = 9
		a.LastAccessed = nil
		require.NoError(t, b.Put(ctx, a))

		got, err := b.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RetentionLegalHold, got.RetentionClass)
		assert.Equal(t, int64(9), got.AccessedCount)
		assert.Nil(t, got.LastAccessed)

		all, err := b.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("delete removes and tolerates absent ids", func(t *testing.T) {
		b := newBackend(t)
		a := fixtureArtifact("artifact_00000000000000a3")
		require.NoError(t, b.Put(ctx, a))

		require.NoError(t, b.Delete(ctx, a.ID))
		_, err := b.Get(ctx, a.ID)
		require.ErrorIs(t, err, sentinel.ErrNotFound)

		require.NoError(t, b.Delete(ctx, a.ID))
		require.NoError(t, b.Delete(ctx, "artifact_never_stored"))
	})

	t.Run("list returns every stored artifact", func(t *testing.T) {
		b := newBackend(t)
		ids := []string{"artifact_b", "artifact_a", "artifact_c", "artifact_e", "artifact_d"}
		for _, id := range ids {
			require.NoError(t, b.Put(ctx, fixtureArtifact(id)))
		}

		all, err := b.List(ctx)
		require.NoError(t, err)
		var got []string
		for _, a := range all {
			got = append(got, a.ID)
		}
		sort.Strings(got)
		assert.Equal(t, []string{"artifact_a", "artifact_b", "artifact_c", "artifact_d", "artifact_e"}, got)
	})

	t.Run("empty store lists nothing", func(t *testing.T) {
		b := newBackend(t)
		all, err := b.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("returned artifacts are detached from storage", func(t *testing.T) {
		b := newBackend(t)
		a := fixtureArtifact("artifact_00000000000000a4")
		require.NoError(t, b.Put(ctx, a))

		a.Content = "mutated after put"
		got, err := b.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "I should have called.", got.Content)

		got.Tags[0] = "mutated"
		got.Context["channel"] = models.String("mutated")
		again, err := b.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "family", again.Tags[0])
		assert.Equal(t, models.String("sms"), again.Context["channel"])
	})

	t.Run("ownerless artifact with empty context", func(t *testing.T) {
		b := newBackend(t)
		a := &models.Artifact{
			ID:             "artifact_00000000000000a5",
			Type:           models.TypeConsentLanguage,
			Content:        "terms v2",
			EventTime:      fixtureTime,
			CreatedAt:      fixtureTime,
			Context:        models.Map{},
			Tags:           []string{},
			RetentionClass: models.RetentionIndefinite,
		}
		require.NoError(t, b.Put(ctx, a))
		got, err := b.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "", got.Owner)
		assert.Empty(t, got.Tags)
		assert.Empty(t, got.Context)
		assert.Equal(t, models.RetentionIndefinite, got.RetentionClass)
	})
}
