package placement

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveGet(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	added := time.Date(2024, 5, 17, 10, 30, 0, 0, time.UTC)
	slot := Slot{
		DevicePath: "/dev/sdb",
		SlotID:     "/bricks/sdb/brick",
		AddedAt:    added,
	}
	require.NoError(t, store.Save("gluster", slot))

	got, err := store.Get("gluster", "/dev/sdb")
	require.NoError(t, err)
	assert.Equal(t, slot, got)
	assert.True(t, got.Active())

	// The same device under another kind is a different record.
	_, err = store.Get("ceph", "/dev/sdb")
	assert.True(t, errors.Is(err, ErrSlotNotFound))
}

func TestStore_GetMissing(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get("gluster", "/dev/nope")
	assert.True(t, errors.Is(err, ErrSlotNotFound))
}

func TestStore_Tombstone(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	slot := Slot{
		DevicePath: "/dev/sdc",
		SlotID:     "osd.4",
		AddedAt:    time.Now().UTC(),
	}
	require.NoError(t, store.Save("ceph", slot))

	slot.RemovedAt = slot.AddedAt.Add(time.Hour)
	require.NoError(t, store.Save("ceph", slot))

	got, err := store.Get("ceph", "/dev/sdc")
	require.NoError(t, err)
	assert.False(t, got.Active())
}

func TestStore_DeleteAndList(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	for _, dev := range []string{"/dev/sda", "/dev/sdb", "/dev/sdc"} {
		require.NoError(t, store.Save("gluster", Slot{DevicePath: dev, SlotID: "/bricks" + dev}))
	}

	require.NoError(t, store.Delete("gluster", "/dev/sdb"))
	// Deleting twice must stay quiet.
	require.NoError(t, store.Delete("gluster", "/dev/sdb"))

	slots, err := store.List("gluster")
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "/dev/sda", slots[0].DevicePath)
	assert.Equal(t, "/dev/sdc", slots[1].DevicePath)

	empty, err := store.List("ceph")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(dir)
	require.NoError(t, err)
	slot := Slot{
		DevicePath: "/dev/sdd",
		SlotID:     "osd.9",
		AddedAt:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, store.Save("ceph", slot))
	require.NoError(t, store.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get("ceph", "/dev/sdd")
	require.NoError(t, err)
	assert.Equal(t, slot, got)
}
