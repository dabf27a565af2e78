package ceph

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diskwarden/diskwarden/pkg/exechelper/fakeexecutor"
	"github.com/diskwarden/diskwarden/pkg/placement"
)

type fakeProber struct {
	passed bool
	err    error
}

func (p fakeProber) HealthStatus(_ context.Context, _ string) (bool, error) {
	return p.passed, p.err
}

type testBackend struct {
	*Backend
	exec    *fakeexecutor.Fake
	store   *placement.Store
	missing map[string]bool
	statted []string
}

func newTestBackend(t *testing.T, prober fakeProber) *testBackend {
	t.Helper()
	store, err := placement.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	exec := fakeexecutor.New()
	b, err := New(filepath.Join(t.TempDir(), "ceph.yaml"), exec, store, prober)
	require.NoError(t, err)

	tb := &testBackend{Backend: b, exec: exec, store: store, missing: map[string]bool{}}
	b.statDevice = func(path string) error {
		tb.statted = append(tb.statted, path)
		if tb.missing[path] {
			return os.ErrNotExist
		}
		return nil
	}
	return tb
}

func listingJSON(id int, device string) string {
	return fmt.Sprintf(`{
    "%d": [
        {
            "devices": ["%s"],
            "lv_path": "/dev/ceph-1f/osd-block-1f",
            "tags": {"ceph.osd_id": "%d"},
            "type": "block"
        }
    ]
}`, id, device, id)
}

func TestLoadConfig(t *testing.T) {
	writeConfig := func(t *testing.T, body string) string {
		path := filepath.Join(t.TempDir(), "ceph.yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0644))
		return path
	}

	t.Run("Missing file defaults the cluster", func(t *testing.T) {
		cfg, err := loadConfig(filepath.Join(t.TempDir(), "ceph.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "ceph", cfg.Cluster)
	})
	t.Run("Cluster name honored", func(t *testing.T) {
		cfg, err := loadConfig(writeConfig(t, "cluster: prod\n"))
		require.NoError(t, err)
		assert.Equal(t, "prod", cfg.Cluster)
	})
	t.Run("Malformed yaml rejected", func(t *testing.T) {
		_, err := loadConfig(writeConfig(t, "{cluster: ["))
		assert.Error(t, err)
	})
	t.Run("Unknown key rejected", func(t *testing.T) {
		_, err := loadConfig(writeConfig(t, "clusteer: prod\n"))
		assert.Error(t, err)
	})
}

func TestAddDisk_FreshDevice(t *testing.T) {
	tb := newTestBackend(t, fakeProber{})
	tb.exec.Respond("ceph-volume --cluster ceph lvm list",
		fakeexecutor.Response{Stdout: listingJSON(7, "/dev/sdb")})

	err := tb.AddDisk(context.Background(), "/dev/sdb", nil, "", nil, false)
	require.NoError(t, err)

	calls := tb.exec.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "ceph-volume --cluster ceph lvm prepare --data /dev/sdb", calls[0])
	assert.Equal(t, "ceph-volume --cluster ceph lvm list /dev/sdb --format json", calls[1])
	assert.Equal(t, "ceph-volume --cluster ceph lvm activate --all", calls[2])

	slot, err := tb.store.Get(kind, "/dev/sdb")
	require.NoError(t, err)
	assert.Equal(t, "osd.7", slot.SlotID)
	assert.Empty(t, slot.JournalPath)
	assert.True(t, slot.Active())
}

func TestAddDisk_ExplicitID(t *testing.T) {
	tb := newTestBackend(t, fakeProber{})
	tb.exec.Respond("ceph-volume --cluster ceph lvm list",
		fakeexecutor.Response{Stdout: listingJSON(42, "/dev/sdb")})

	id := uint64(42)
	require.NoError(t, tb.AddDisk(context.Background(), "/dev/sdb", &id, "", nil, false))

	prepares := tb.exec.CallsMatching("lvm prepare")
	require.Len(t, prepares, 1)
	assert.Equal(t, "ceph-volume --cluster ceph lvm prepare --data /dev/sdb --osd-id 42", prepares[0])
}

func TestAddDisk_FilestoreJournal(t *testing.T) {
	tb := newTestBackend(t, fakeProber{})
	tb.exec.Respond("ceph-volume --cluster ceph lvm list",
		fakeexecutor.Response{Stdout: listingJSON(7, "/dev/sdb")})

	part := uint32(2)
	err := tb.AddDisk(context.Background(), "/dev/sdb", nil, "/dev/sdc", &part, false)
	require.NoError(t, err)

	prepares := tb.exec.CallsMatching("lvm prepare")
	require.Len(t, prepares, 1)
	assert.Equal(t, "ceph-volume --cluster ceph lvm prepare --data /dev/sdb --filestore --journal /dev/sdc2", prepares[0])
	assert.Contains(t, tb.statted, "/dev/sdc2")

	slot, err := tb.store.Get(kind, "/dev/sdb")
	require.NoError(t, err)
	assert.Equal(t, "/dev/sdc2", slot.JournalPath)
}

func TestAddDisk_ReusesTombstonedID(t *testing.T) {
	tb := newTestBackend(t, fakeProber{})
	require.NoError(t, tb.store.Save(kind, placement.Slot{
		DevicePath: "/dev/sdb",
		SlotID:     "osd.9",
		AddedAt:    time.Now().UTC().Add(-24 * time.Hour),
		RemovedAt:  time.Now().UTC().Add(-time.Hour),
	}))
	tb.exec.Respond("ceph-volume --cluster ceph lvm list",
		fakeexecutor.Response{Stdout: listingJSON(9, "/dev/sdb")})

	require.NoError(t, tb.AddDisk(context.Background(), "/dev/sdb", nil, "", nil, false))

	prepares := tb.exec.CallsMatching("lvm prepare")
	require.Len(t, prepares, 1)
	assert.Contains(t, prepares[0], "--osd-id 9")

	slot, err := tb.store.Get(kind, "/dev/sdb")
	require.NoError(t, err)
	assert.True(t, slot.Active())
}

func TestAddDisk_SimulateMutatesNothing(t *testing.T) {
	tb := newTestBackend(t, fakeProber{})

	err := tb.AddDisk(context.Background(), "/dev/sdb", nil, "", nil, true)
	require.NoError(t, err)

	assert.Empty(t, tb.exec.Calls())
	assert.Equal(t, []string{"/dev/sdb"}, tb.statted, "validation still inspects the device")

	_, err = tb.store.Get(kind, "/dev/sdb")
	assert.True(t, errors.Is(err, placement.ErrSlotNotFound))
}

func TestAddDisk_MissingDevice(t *testing.T) {
	tb := newTestBackend(t, fakeProber{})
	tb.missing["/dev/sdb"] = true

	err := tb.AddDisk(context.Background(), "/dev/sdb", nil, "", nil, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/dev/sdb")
	assert.Empty(t, tb.exec.Calls())
}

func TestAddDisk_DeviceAlreadyActive(t *testing.T) {
	tb := newTestBackend(t, fakeProber{})
	require.NoError(t, tb.store.Save(kind, placement.Slot{
		DevicePath: "/dev/sdb",
		SlotID:     "osd.3",
		AddedAt:    time.Now().UTC(),
	}))

	for _, simulate := range []bool{false, true} {
		err := tb.AddDisk(context.Background(), "/dev/sdb", nil, "", nil, simulate)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already serves osd.3")
	}
	assert.Empty(t, tb.exec.Calls())
}

func TestRemoveDisk(t *testing.T) {
	tb := newTestBackend(t, fakeProber{})
	require.NoError(t, tb.store.Save(kind, placement.Slot{
		DevicePath: "/dev/sdb",
		SlotID:     "osd.3",
		AddedAt:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}))

	err := tb.RemoveDisk(context.Background(), "/dev/sdb", false)
	require.NoError(t, err)

	want := []string{
		"ceph --cluster ceph osd out osd.3",
		"systemctl stop ceph-osd@3",
		"ceph --cluster ceph osd crush remove osd.3",
		"ceph --cluster ceph auth del osd.3",
		"ceph --cluster ceph osd rm osd.3",
		"ceph-volume --cluster ceph lvm zap --destroy /dev/sdb",
	}
	assert.Equal(t, want, tb.exec.Calls())

	slot, err := tb.store.Get(kind, "/dev/sdb")
	require.NoError(t, err)
	assert.False(t, slot.Active())
	assert.Equal(t, "osd.3", slot.SlotID)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), slot.AddedAt)
}

func TestRemoveDisk_Simulate(t *testing.T) {
	tb := newTestBackend(t, fakeProber{})
	require.NoError(t, tb.store.Save(kind, placement.Slot{
		DevicePath: "/dev/sdb",
		SlotID:     "osd.3",
		AddedAt:    time.Now().UTC(),
	}))

	require.NoError(t, tb.RemoveDisk(context.Background(), "/dev/sdb", true))
	assert.Empty(t, tb.exec.Calls())

	slot, err := tb.store.Get(kind, "/dev/sdb")
	require.NoError(t, err)
	assert.True(t, slot.Active(), "simulated removal must not touch the store")
}

func TestRemoveDisk_UntrackedDeviceFallsBackToListing(t *testing.T) {
	tb := newTestBackend(t, fakeProber{})
	tb.exec.Respond("ceph-volume --cluster ceph lvm list",
		fakeexecutor.Response{Stdout: listingJSON(11, "/dev/sdb")})

	require.NoError(t, tb.RemoveDisk(context.Background(), "/dev/sdb", false))
	assert.Contains(t, tb.exec.Calls(), "systemctl stop ceph-osd@11")

	slot, err := tb.store.Get(kind, "/dev/sdb")
	require.NoError(t, err)
	assert.Equal(t, "osd.11", slot.SlotID)
	assert.False(t, slot.Active())
}

func TestRemoveDisk_DeviceBacksNoOsd(t *testing.T) {
	tb := newTestBackend(t, fakeProber{})
	tb.exec.Respond("ceph-volume --cluster ceph lvm list",
		fakeexecutor.Response{Stdout: "{}\n"})

	err := tb.RemoveDisk(context.Background(), "/dev/sdz", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not back any osd")
}

func TestRemoveDisk_TombstonedDevice(t *testing.T) {
	tb := newTestBackend(t, fakeProber{})
	require.NoError(t, tb.store.Save(kind, placement.Slot{
		DevicePath: "/dev/sdb",
		SlotID:     "osd.3",
		AddedAt:    time.Now().UTC().Add(-time.Hour),
		RemovedAt:  time.Now().UTC(),
	}))

	err := tb.RemoveDisk(context.Background(), "/dev/sdb", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already removed")
	assert.Empty(t, tb.exec.Calls())
}

func TestSafeToRemove(t *testing.T) {
	testCases := []struct {
		Description string
		Response    fakeexecutor.Response
		Prober      fakeProber
		WantSafe    bool
		WantErr     bool
	}{
		{
			Description: "Cluster and device both healthy",
			Response:    fakeexecutor.Response{Stdout: `{"ok_to_stop": true, "osds": [3]}`},
			Prober:      fakeProber{passed: true},
			WantSafe:    true,
		},
		{
			Description: "Cluster refuses the stop",
			Response:    fakeexecutor.Response{Stdout: `{"ok_to_stop": false, "osds": [3]}`, ExitCode: okToStopBusy},
			Prober:      fakeProber{passed: true},
			WantSafe:    false,
		},
		{
			Description: "Busy exit without json",
			Response:    fakeexecutor.Response{Stderr: "Error EBUSY: unsafe to stop osd(s)", ExitCode: okToStopBusy},
			Prober:      fakeProber{passed: true},
			WantSafe:    false,
		},
		{
			Description: "Clean exit without json",
			Response:    fakeexecutor.Response{},
			Prober:      fakeProber{passed: true},
			WantSafe:    true,
		},
		{
			Description: "SMART failure blocks removal",
			Response:    fakeexecutor.Response{Stdout: `{"ok_to_stop": true}`},
			Prober:      fakeProber{passed: false},
			WantSafe:    false,
		},
		{
			Description: "Missing SMART verdict is ignored",
			Response:    fakeexecutor.Response{Stdout: `{"ok_to_stop": true}`},
			Prober:      fakeProber{err: errors.New("no smartctl")},
			WantSafe:    true,
		},
		{
			Description: "Monitor unreachable",
			Response:    fakeexecutor.Response{Stderr: "unable to connect to cluster", ExitCode: 1},
			Prober:      fakeProber{passed: true},
			WantErr:     true,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.Description, func(t *testing.T) {
			tb := newTestBackend(t, testCase.Prober)
			require.NoError(t, tb.store.Save(kind, placement.Slot{
				DevicePath: "/dev/sdb",
				SlotID:     "osd.3",
				AddedAt:    time.Now().UTC(),
			}))
			tb.exec.Respond("ceph --cluster ceph osd ok-to-stop", testCase.Response)

			safe, err := tb.SafeToRemove(context.Background(), "/dev/sdb", false)
			if testCase.WantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testCase.WantSafe, safe)

			asks := tb.exec.CallsMatching("ok-to-stop")
			require.Len(t, asks, 1)
			assert.Equal(t, "ceph --cluster ceph osd ok-to-stop osd.3 --format json", asks[0])
		})
	}
}

func TestSafeToRemove_Simulate(t *testing.T) {
	tb := newTestBackend(t, fakeProber{})

	safe, err := tb.SafeToRemove(context.Background(), "/dev/sdb", true)
	require.NoError(t, err)
	assert.True(t, safe)
	assert.Empty(t, tb.exec.Calls())
}

func TestJournalDevice(t *testing.T) {
	part2 := uint32(2)
	testCases := []struct {
		Description string
		Journal     string
		Partition   *uint32
		Want        string
	}{
		{"No journal", "", &part2, ""},
		{"Whole device", "/dev/sdc", nil, "/dev/sdc"},
		{"Scsi partition", "/dev/sdc", &part2, "/dev/sdc2"},
		{"Nvme partition", "/dev/nvme0n1", &part2, "/dev/nvme0n1p2"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.Description, func(t *testing.T) {
			if got := journalDevice(testCase.Journal, testCase.Partition); got != testCase.Want {
				t.Fatalf("journalDevice = %q, want %q", got, testCase.Want)
			}
		})
	}
}

func TestOsdIDFromListing(t *testing.T) {
	if id, ok := osdIDFromListing(listingJSON(11, "/dev/sdb")); !ok || id != 11 {
		t.Fatalf("osdIDFromListing = %d, %v", id, ok)
	}
	if _, ok := osdIDFromListing("{}"); ok {
		t.Fatal("empty listing produced an id")
	}
	if _, ok := osdIDFromListing("not json"); ok {
		t.Fatal("garbage listing produced an id")
	}
}
