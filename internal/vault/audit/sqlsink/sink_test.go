package sqlsink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receiptvault/internal/platform/database"
	"receiptvault/internal/vault/audit"
	"receiptvault/internal/vault/models"
	"receiptvault/migrations"
)

func newSQLiteSink(t *testing.T) *Sink {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	fsys, dir, ok := migrations.ForDialect(string(database.SQLite))
	require.True(t, ok)
	require.NoError(t, database.Migrate(context.Background(), db, fsys, dir))
	return New(db, database.SQLite)
}

func TestSink_PersistedLogRestoresAndVerifies(t *testing.T) {
	ctx := context.Background()
	sink := newSQLiteSink(t)
	at := time.Date(2025, 4, 1, 8, 0, 0, 999, time.UTC)

	log := audit.NewLog(
		audit.WithEmitter(audit.NewPublisher(sink)),
		audit.WithClock(func() time.Time { return at }),
	)
	log.Append(ctx, models.Event{Type: models.EventStore, ArtifactID: "artifact_1", UserID: "u1"})
	log.Append(ctx, models.Event{Type: models.EventRetrieve, ArtifactID: "artifact_1", UserID: "u1", Accessor: "auditor"})
	log.Append(ctx, models.Event{
		Type:       models.EventDeleteDenied,
		ArtifactID: "artifact_1",
		Metadata:   map[string]string{models.MetaReason: models.ReasonLegalHoldActive},
	})

	loaded, err := sink.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	assert.Equal(t, log.Query(models.EventFilter{}), loaded)

	restored := audit.NewLog()
	require.NoError(t, restored.Restore(loaded))
	require.NoError(t, restored.Verify())

	next := restored.Append(ctx, models.Event{Type: models.EventDelete, ArtifactID: "artifact_2"})
	assert.Equal(t, int64(4), next.Seq)
	assert.Equal(t, loaded[2].Hash, next.PrevHash)
}

func TestSink_AppendIsIdempotentPerSeq(t *testing.T) {
	ctx := context.Background()
	sink := newSQLiteSink(t)
	e := models.Event{
		Seq:        7,
		ID:         "evt",
		Type:       models.EventStore,
		ArtifactID: "artifact_1",
		Timestamp:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	require.NoError(t, sink.Append(ctx, e))
	require.NoError(t, sink.Append(ctx, e))

	loaded, err := sink.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Empty(t, loaded[0].Metadata)
}
