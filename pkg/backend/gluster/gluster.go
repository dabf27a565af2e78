// Package gluster grows and shrinks a GlusterFS volume one brick per
// disk.
//
// Dead-disk workflow: RemoveDisk kills the brick process and wipes the
// device but leaves the brick in the volume layout, recording where it
// sat. A later AddDisk for the same slot becomes a replace-brick
// instead of an add-brick, so the volume heals back onto the new disk.
package gluster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v2"

	"github.com/diskwarden/diskwarden/pkg/exechelper"
	"github.com/diskwarden/diskwarden/pkg/placement"
	"github.com/diskwarden/diskwarden/pkg/smart"
)

// kind is the placement bucket of this backend.
const kind = "gluster"

const commandTimeoutSeconds = 120

// Config is <configDir>/gluster.yaml.
type Config struct {
	// Volume is the gluster volume the host's bricks belong to.
	Volume string `yaml:"volume"`

	// MountPoint is the directory brick filesystems are mounted
	// under, one subdirectory per disk.
	MountPoint string `yaml:"mountPoint"`

	// BrickSubdir is the brick directory inside each mount,
	// "brick" when unset.
	BrickSubdir string `yaml:"brickSubdir"`
}

// Backend implements disk lifecycle on a gluster volume.
type Backend struct {
	cfg      Config
	hostname string
	exec     exechelper.Executor
	store    *placement.Store
	smart    smart.Prober

	// probeMount verifies the brick root accepts trusted xattrs.
	// Swapped in tests, where the real call needs privileges.
	probeMount func(dir string) error
}

// New loads the config and prepares the backend. Config problems are
// construction errors so the daemon refuses to start on them.
func New(configPath string, exec exechelper.Executor, store *placement.Store, prober smart.Prober) (*Backend, error) {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("gluster config: %v", err)
	}
	var cfg Config
	if err := yaml.UnmarshalStrict(raw, &cfg); err != nil {
		return nil, fmt.Errorf("gluster config %s: %v", configPath, err)
	}
	if cfg.Volume == "" {
		return nil, fmt.Errorf("gluster config %s: volume is required", configPath)
	}
	if cfg.MountPoint == "" {
		return nil, fmt.Errorf("gluster config %s: mountPoint is required", configPath)
	}
	if cfg.BrickSubdir == "" {
		cfg.BrickSubdir = "brick"
	}

	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("resolve hostname: %v", err)
	}

	return &Backend{
		cfg:        cfg,
		hostname:   hostname,
		exec:       exec,
		store:      store,
		smart:      prober,
		probeMount: probeMountXattrs,
	}, nil
}

// brickPath is deterministic per device so a restarted daemon computes
// the same layout it persisted.
func (b *Backend) brickPath(device string) string {
	return filepath.Join(b.cfg.MountPoint, filepath.Base(device), b.cfg.BrickSubdir)
}

func (b *Backend) brickSpec(path string) string {
	return b.hostname + ":" + path
}

// AddDisk formats the device, mounts it under the brick root and joins
// it to the volume. The osd arguments of the wire protocol have no
// gluster meaning and are ignored.
func (b *Backend) AddDisk(ctx context.Context, device string, id *uint64, journal string, journalPartition *uint32, simulate bool) error {
	logger := log.WithFields(log.Fields{"backend": kind, "device": device, "simulate": simulate})
	if id != nil || journal != "" || journalPartition != nil {
		logger.Debug("Ignoring osd arguments on a gluster backend")
	}

	brickPath := b.brickPath(device)
	brickRoot := filepath.Dir(brickPath)

	prior, err := b.store.Get(kind, device)
	switch {
	case err == nil && prior.Active():
		return fmt.Errorf("device %s already serves brick %s", device, prior.SlotID)
	case err != nil && !errors.Is(err, placement.ErrSlotNotFound):
		return fmt.Errorf("placement lookup: %v", err)
	}
	replacing := err == nil

	if err := b.ensureNoBrickProcess(ctx, brickPath); err != nil {
		return err
	}
	if err := b.probeMount(b.cfg.MountPoint); err != nil {
		return fmt.Errorf("brick root %s: %v", b.cfg.MountPoint, err)
	}

	if simulate {
		logger.Info("Simulated disk add passed validation")
		return nil
	}

	if _, err := b.run(ctx, "mkfs.xfs", "-f", device); err != nil {
		return err
	}
	if err := os.MkdirAll(brickRoot, 0755); err != nil {
		return fmt.Errorf("create brick mount dir: %v", err)
	}
	if _, err := b.run(ctx, "mount", device, brickRoot); err != nil {
		return err
	}
	if err := os.MkdirAll(brickPath, 0755); err != nil {
		return fmt.Errorf("create brick dir: %v", err)
	}

	if replacing {
		logger.WithField("brick", prior.SlotID).Info("Replacing failed brick")
		if _, err := b.run(ctx, "gluster", "volume", "replace-brick", b.cfg.Volume,
			b.brickSpec(prior.SlotID), b.brickSpec(brickPath), "commit", "force"); err != nil {
			return err
		}
	} else {
		logger.WithField("brick", brickPath).Info("Adding brick to volume")
		if _, err := b.run(ctx, "gluster", "volume", "add-brick", b.cfg.Volume,
			b.brickSpec(brickPath)); err != nil {
			return err
		}
	}

	return b.store.Save(kind, placement.Slot{
		DevicePath: device,
		SlotID:     brickPath,
		AddedAt:    time.Now().UTC(),
	})
}

// RemoveDisk retires the brick process of the device and wipes it. The
// brick stays in the volume layout for a later replacement.
func (b *Backend) RemoveDisk(ctx context.Context, device string, simulate bool) error {
	logger := log.WithFields(log.Fields{"backend": kind, "device": device, "simulate": simulate})

	brickPath, addedAt, err := b.resolveBrick(device)
	if err != nil {
		return err
	}

	status, err := b.run(ctx, "gluster", "volume", "status", b.cfg.Volume)
	if err != nil {
		return err
	}
	pid, online, found := findBrickStatus(status, b.brickSpec(brickPath))
	if !found {
		return fmt.Errorf("brick %s not part of volume %s", brickPath, b.cfg.Volume)
	}

	if simulate {
		logger.WithField("brick", brickPath).Info("Simulated disk removal passed validation")
		return nil
	}

	if online {
		if _, err := b.run(ctx, "kill", "-TERM", pid); err != nil {
			return err
		}
	}
	if _, err := b.run(ctx, "umount", filepath.Dir(brickPath)); err != nil {
		return err
	}
	if _, err := b.run(ctx, "wipefs", "-a", device); err != nil {
		return err
	}

	logger.WithField("brick", brickPath).Info("Brick retired and device wiped")
	return b.store.Save(kind, placement.Slot{
		DevicePath: device,
		SlotID:     brickPath,
		AddedAt:    addedAt,
		RemovedAt:  time.Now().UTC(),
	})
}

// SafeToRemove reports whether pulling the device loses data: the
// volume must be replicated, fully healed, and the device must not
// carry the only healthy copy.
func (b *Backend) SafeToRemove(ctx context.Context, device string, simulate bool) (bool, error) {
	if simulate {
		return true, nil
	}
	logger := log.WithFields(log.Fields{"backend": kind, "device": device})

	info, err := b.run(ctx, "gluster", "volume", "info", b.cfg.Volume)
	if err != nil {
		return false, err
	}
	if replica := parseReplicaCount(info); replica < 2 {
		logger.WithField("replica", replica).Info("Volume is not replicated, removal would lose data")
		return false, nil
	}

	heal, err := b.run(ctx, "gluster", "volume", "heal", b.cfg.Volume, "info")
	if err != nil {
		return false, err
	}
	if entries := parseHealEntries(heal); entries > 0 {
		logger.WithField("entries", entries).Info("Self-heal backlog not empty")
		return false, nil
	}

	if b.smart != nil {
		passed, err := b.smart.HealthStatus(ctx, device)
		if err != nil {
			logger.WithError(err).Debug("No SMART verdict for device")
		} else if !passed {
			logger.Info("Device fails its SMART health check")
			return false, nil
		}
	}
	return true, nil
}

// resolveBrick finds the brick of a device, preferring the placement
// record and falling back to the deterministic layout.
func (b *Backend) resolveBrick(device string) (string, time.Time, error) {
	slot, err := b.store.Get(kind, device)
	switch {
	case err == nil && slot.Active():
		return slot.SlotID, slot.AddedAt, nil
	case err == nil:
		return "", time.Time{}, fmt.Errorf("device %s was already removed from brick %s", device, slot.SlotID)
	case errors.Is(err, placement.ErrSlotNotFound):
		return b.brickPath(device), time.Now().UTC(), nil
	}
	return "", time.Time{}, fmt.Errorf("placement lookup: %v", err)
}

// ensureNoBrickProcess fails when a glusterfsd still claims the brick.
func (b *Backend) ensureNoBrickProcess(ctx context.Context, brickPath string) error {
	result := b.exec.RunCommand(ctx, exechelper.ExecParams{
		CmdName: "pgrep",
		CmdArgs: []string{"-f", "glusterfsd.*" + brickPath},
		Timeout: commandTimeoutSeconds,
	})
	switch result.ExitCode {
	case 0:
		return fmt.Errorf("brick process still running for %s (pid %s)",
			brickPath, strings.TrimSpace(result.OutBuf.String()))
	case 1:
		// no process matched
		return nil
	}
	if result.Error != nil {
		return fmt.Errorf("pgrep: %v", result.Error)
	}
	return nil
}

func (b *Backend) run(ctx context.Context, name string, args ...string) (string, error) {
	result := b.exec.RunCommand(ctx, exechelper.ExecParams{
		CmdName: name,
		CmdArgs: args,
		Timeout: commandTimeoutSeconds,
	})
	out := result.OutBuf.String()
	if result.Error != nil {
		detail := strings.TrimSpace(result.ErrBuf.String())
		if detail == "" {
			detail = result.Error.Error()
		}
		return out, fmt.Errorf("%s: %s", name, detail)
	}
	return out, nil
}

// probeMountXattrs mirrors the manual check gluster admins run before
// trusting a brick root: a scratch directory must come and go, and the
// filesystem must accept trusted.* attributes.
func probeMountXattrs(dir string) error {
	scratch, err := os.MkdirTemp(dir, ".probe-")
	if err != nil {
		return fmt.Errorf("scratch dir: %v", err)
	}
	defer os.RemoveAll(scratch)

	if err := unix.Setxattr(dir, "trusted.non-existent-key", []byte("abc"), 0); err != nil {
		return fmt.Errorf("trusted xattrs unsupported: %v", err)
	}
	if err := unix.Removexattr(dir, "trusted.non-existent-key"); err != nil {
		return fmt.Errorf("remove probe xattr: %v", err)
	}
	return nil
}

// findBrickStatus picks the row of brickSpec out of `gluster volume
// status` output, returning its pid column and online flag.
func findBrickStatus(out, brickSpec string) (pid string, online bool, found bool) {
	for _, line := range strings.Split(out, "\n") {
		if !strings.HasPrefix(line, "Brick ") || !strings.Contains(line, brickSpec) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		pid = fields[len(fields)-1]
		online = fields[len(fields)-2] == "Y"
		return pid, online, true
	}
	return "", false, false
}

// parseReplicaCount reads the replica factor out of `gluster volume
// info`, e.g. "Number of Bricks: 1 x 3 = 3" yields 3. Layouts without
// a replica term count as 1.
func parseReplicaCount(out string) int {
	for _, line := range strings.Split(out, "\n") {
		if !strings.HasPrefix(line, "Number of Bricks:") {
			continue
		}
		xIdx := strings.Index(line, "x")
		eqIdx := strings.Index(line, "=")
		if xIdx == -1 || eqIdx == -1 || eqIdx < xIdx {
			return 1
		}
		replica, err := strconv.Atoi(strings.TrimSpace(line[xIdx+1 : eqIdx]))
		if err != nil {
			return 1
		}
		return replica
	}
	return 1
}

// parseHealEntries sums the pending self-heal entries over every brick
// in `gluster volume heal <vol> info` output.
func parseHealEntries(out string) int {
	total := 0
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Number of entries") {
			continue
		}
		idx := strings.LastIndex(line, ":")
		if idx == -1 {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(line[idx+1:]))
		if err != nil {
			continue
		}
		total += n
	}
	return total
}
