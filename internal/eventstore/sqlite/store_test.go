package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "triage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func record(eventID string, ts int64, messageID, tier string) TriageRecord {
	return TriageRecord{
		EventID:   eventID,
		TS:        ts,
		Provider:  "GOOGLE",
		MessageID: messageID,
		ThreadID:  "thread-1",
		Subject:   "subject",
		Sender:    "sender@example.com",
		Score:     0.5,
		Tier:      tier,
		Label:     "AI/Urgent",
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("triage records round trip", func(t *testing.T) {
		store := openTestStore(t)

		require.NoError(t, store.RecordTriage(ctx, record("e1", 100, "m1", "urgent")))

		recs, err := store.RecentTriages(ctx, "", 10)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "e1", recs[0].EventID)
		assert.Equal(t, "m1", recs[0].MessageID)
		assert.Equal(t, 0.5, recs[0].Score)
	})

	t.Run("duplicate message is ignored", func(t *testing.T) {
		store := openTestStore(t)

		require.NoError(t, store.RecordTriage(ctx, record("e1", 100, "m1", "urgent")))
		// Redelivered notification produces a second record for the same message
		require.NoError(t, store.RecordTriage(ctx, record("e2", 200, "m1", "critical")))

		recs, err := store.RecentTriages(ctx, "", 10)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "e1", recs[0].EventID)
	})

	t.Run("recent triages order newest first", func(t *testing.T) {
		store := openTestStore(t)

		require.NoError(t, store.RecordTriage(ctx, record("e1", 100, "m1", "digest")))
		require.NoError(t, store.RecordTriage(ctx, record("e2", 300, "m2", "critical")))
		require.NoError(t, store.RecordTriage(ctx, record("e3", 200, "m3", "urgent")))

		recs, err := store.RecentTriages(ctx, "", 10)
		require.NoError(t, err)
		require.Len(t, recs, 3)
		assert.Equal(t, "e2", recs[0].EventID)
		assert.Equal(t, "e3", recs[1].EventID)
		assert.Equal(t, "e1", recs[2].EventID)
	})

	t.Run("tier filter and limit apply", func(t *testing.T) {
		store := openTestStore(t)

		require.NoError(t, store.RecordTriage(ctx, record("e1", 100, "m1", "digest")))
		require.NoError(t, store.RecordTriage(ctx, record("e2", 200, "m2", "critical")))
		require.NoError(t, store.RecordTriage(ctx, record("e3", 300, "m3", "critical")))

		recs, err := store.RecentTriages(ctx, "critical", 10)
		require.NoError(t, err)
		require.Len(t, recs, 2)

		recs, err = store.RecentTriages(ctx, "", 2)
		require.NoError(t, err)
		assert.Len(t, recs, 2)
	})

	t.Run("missing messages are counted", func(t *testing.T) {
		store := openTestStore(t)

		n, err := store.MissingCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)

		require.NoError(t, store.RecordMissing(ctx, MissingRecord{
			TS:        100,
			Provider:  "GOOGLE",
			MessageID: "m-gone",
			ThreadID:  "thread-9",
			Labels:    []string{"INBOX"},
		}))

		n, err = store.MissingCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}
