package manager

import (
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diskwarden/diskwarden/pkg/api"
	"github.com/diskwarden/diskwarden/pkg/diskctl/cmdparser/definitions"
)

// startDaemon runs a scripted stand-in for the disk-manager daemon on a
// unix socket and points the global client settings at it. The handler
// decides the reply per decoded request; nil means stay silent, which
// is how the real dispatcher drops a request.
func startDaemon(t *testing.T, handler func(op *api.Operation) []byte) {
	t.Helper()

	sock := filepath.Join(t.TempDir(), "daemon.sock")
	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			raw, err := api.ReadFrame(conn)
			if err == nil {
				op, err := api.UnmarshalOperation(raw)
				if assert.NoError(t, err, "daemon got an undecodable request") {
					if reply := handler(op); reply != nil {
						assert.NoError(t, api.WriteFrame(conn, reply))
					} else {
						// Stay silent like the dispatcher does: hold
						// the connection until the client gives up.
						api.ReadFrame(conn)
					}
				}
			}
			conn.Close()
		}
	}()

	definitions.Server = "unix://" + sock
	definitions.Token = "tok"
	definitions.Timeout = 300 * time.Millisecond
}

func TestListDisks(t *testing.T) {
	listing := &api.Disks{Disk: []api.Disk{
		{Type: api.DiskTypeRotational, DevPath: "/dev/sda", Partitions: []api.Partition{
			{UUID: "9f4d", FirstLBA: 2048, LastLBA: 409600, Name: "root"},
		}},
		{Type: api.DiskTypeNVMe, DevPath: "/dev/nvme0n1", Partitions: []api.Partition{},
			SerialNumber: api.String("S4EVNX0N")},
	}}
	startDaemon(t, func(op *api.Operation) []byte {
		assert.Equal(t, api.OpList, op.OpType)
		assert.Equal(t, "tok", op.Token)
		assert.Nil(t, op.Disk)
		return listing.Marshal()
	})

	c, err := NewClient()
	require.NoError(t, err)

	disks, err := c.ListDisks()
	require.NoError(t, err)
	require.Equal(t, listing.Disk, disks)
}

func TestListDisks_ServerError(t *testing.T) {
	startDaemon(t, func(op *api.Operation) []byte {
		return (&api.OpResult{Result: api.ResultErr, ErrorMsg: api.String("udev crawl failed")}).Marshal()
	})

	c, err := NewClient()
	require.NoError(t, err)

	_, err = c.ListDisks()
	require.EqualError(t, err, "server: udev crawl failed")
}

func TestAddDisk(t *testing.T) {
	startDaemon(t, func(op *api.Operation) []byte {
		assert.Equal(t, api.OpAdd, op.OpType)
		assert.Equal(t, "/dev/sdb", op.GetDisk())
		if assert.NotNil(t, op.OsdID) {
			assert.Equal(t, uint64(12), *op.OsdID)
		}
		assert.Equal(t, "/dev/nvme0n1", op.GetOsdJournal())
		if assert.NotNil(t, op.OsdJournalPartition) {
			assert.Equal(t, uint32(2), *op.OsdJournalPartition)
		}
		return (&api.OpResult{Result: api.ResultOK}).Marshal()
	})

	c, err := NewClient()
	require.NoError(t, err)

	require.NoError(t, c.AddDisk(AddOptions{
		Device:           "/dev/sdb",
		OsdID:            api.Uint64(12),
		Journal:          "/dev/nvme0n1",
		JournalPartition: api.Uint32(2),
	}))
}

func TestAddDisk_ServerError(t *testing.T) {
	startDaemon(t, func(op *api.Operation) []byte {
		return (&api.OpResult{Result: api.ResultErr, ErrorMsg: api.String("device busy")}).Marshal()
	})

	c, err := NewClient()
	require.NoError(t, err)

	err = c.AddDisk(AddOptions{Device: "/dev/sdb"})
	require.EqualError(t, err, "server: device busy")
}

func TestRemoveDisk(t *testing.T) {
	startDaemon(t, func(op *api.Operation) []byte {
		assert.Equal(t, api.OpRemove, op.OpType)
		assert.Equal(t, "/dev/sdb", op.GetDisk())
		assert.Nil(t, op.OsdID)
		return (&api.OpResult{Result: api.ResultOK}).Marshal()
	})

	c, err := NewClient()
	require.NoError(t, err)

	require.NoError(t, c.RemoveDisk("/dev/sdb"))
}

func TestSafeToRemove(t *testing.T) {
	tests := []struct {
		Description string
		Reply       *api.OpBoolResult
		want        bool
		wantErr     string
	}{
		{
			Description: "disk is safe",
			Reply:       &api.OpBoolResult{Result: api.ResultOK, Value: api.Bool(true)},
			want:        true,
		},
		{
			Description: "disk is not safe",
			Reply:       &api.OpBoolResult{Result: api.ResultOK, Value: api.Bool(false)},
			want:        false,
		},
		{
			Description: "backend could not tell",
			Reply:       &api.OpBoolResult{Result: api.ResultErr, ErrorMsg: api.String("monitor unreachable")},
			wantErr:     "server: monitor unreachable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.Description, func(t *testing.T) {
			startDaemon(t, func(op *api.Operation) []byte {
				assert.Equal(t, api.OpSafeToRemove, op.OpType)
				return tt.Reply.Marshal()
			})

			c, err := NewClient()
			require.NoError(t, err)

			safe, err := c.SafeToRemove("/dev/sdb")
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, safe)
		})
	}
}

func TestDroppedRequestTimesOut(t *testing.T) {
	startDaemon(t, func(op *api.Operation) []byte {
		return nil
	})

	c, err := NewClient()
	require.NoError(t, err)

	_, err = c.ListDisks()
	require.True(t, errors.Is(err, ErrNoReply), "want ErrNoReply, got %v", err)
}

func TestNewClient_BadEndpoint(t *testing.T) {
	definitions.Server = "tcp://"
	definitions.Timeout = time.Second

	_, err := NewClient()
	require.Error(t, err)
}
