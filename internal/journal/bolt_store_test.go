package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoltStoreRecordsAndLists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "journal.db")
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Record(Entry{OldRoomID: "!b:x.org", NewRoomID: "!b2:x.org", UpgradedAt: base.Add(time.Minute)}))
	require.NoError(t, store.Record(Entry{OldRoomID: "!a:x.org", NewRoomID: "!a2:x.org", Invited: 3, UpgradedAt: base}))

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "!a:x.org", entries[0].OldRoomID)
	assert.Equal(t, "!b:x.org", entries[1].OldRoomID)

	got, err := store.Get("!a:x.org")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "!a2:x.org", got.NewRoomID)
	assert.Equal(t, 3, got.Invited)

	missing, err := store.Get("!nope:x.org")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestBoltStoreOverwritesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	store, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, store.Record(Entry{OldRoomID: "!a:x.org", NewRoomID: "!first:x.org"}))
	require.NoError(t, store.Record(Entry{OldRoomID: "!a:x.org", NewRoomID: "!second:x.org"}))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "!second:x.org", entries[0].NewRoomID)
	assert.False(t, entries[0].UpgradedAt.IsZero())
}

func TestRecordRequiresRoomID(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer store.Close()

	assert.Error(t, store.Record(Entry{}))
}

func TestOpenWithoutPathIsNoop(t *testing.T) {
	store, err := Open("")
	require.NoError(t, err)
	require.NoError(t, store.Record(Entry{OldRoomID: "!a:x.org"}))

	entries, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, store.Close())
}
