// Package ceph runs one OSD per disk through ceph-volume.
//
// Dead-disk workflow: RemoveDisk retires the OSD from the cluster but
// keeps its id in the placement record. A later AddDisk for the same
// device asks ceph-volume for that id back, so the new disk drops into
// the old CRUSH position and backfill stays local.
package ceph

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v2"

	"github.com/diskwarden/diskwarden/pkg/exechelper"
	"github.com/diskwarden/diskwarden/pkg/placement"
	"github.com/diskwarden/diskwarden/pkg/smart"
)

// kind is the placement bucket of this backend.
const kind = "ceph"

const commandTimeoutSeconds = 300

// okToStopBusy is the exit code `ceph osd ok-to-stop` answers with when
// stopping the osd would drop data availability (EBUSY).
const okToStopBusy = 16

// Config is <configDir>/ceph.yaml. Every key has a default, a missing
// file configures a stock cluster.
type Config struct {
	// Cluster selects /etc/ceph/<cluster>.conf, "ceph" when unset.
	Cluster string `yaml:"cluster"`
}

// Backend implements disk lifecycle on a ceph cluster.
type Backend struct {
	cfg   Config
	exec  exechelper.Executor
	store *placement.Store
	smart smart.Prober

	// statDevice is swapped in tests that have no real block nodes.
	statDevice func(path string) error
}

func New(configPath string, exec exechelper.Executor, store *placement.Store, prober smart.Prober) (*Backend, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return &Backend{
		cfg:   cfg,
		exec:  exec,
		store: store,
		smart: prober,
		statDevice: func(path string) error {
			_, err := os.Stat(path)
			return err
		},
	}, nil
}

func loadConfig(path string) (Config, error) {
	var cfg Config
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("ceph config: %v", err)
	default:
		if err := yaml.UnmarshalStrict(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("ceph config %s: %v", path, err)
		}
	}
	if cfg.Cluster == "" {
		cfg.Cluster = "ceph"
	}
	return cfg, nil
}

// AddDisk prepares the device as a bluestore OSD, or filestore when a
// journal device is given. The id is taken from the request, from the
// tombstone of the disk that sat there before, or assigned by ceph, in
// that order.
func (b *Backend) AddDisk(ctx context.Context, device string, id *uint64, journal string, journalPartition *uint32, simulate bool) error {
	logger := log.WithFields(log.Fields{"backend": kind, "device": device, "simulate": simulate})

	prior, err := b.store.Get(kind, device)
	switch {
	case err == nil && prior.Active():
		return fmt.Errorf("device %s already serves %s", device, prior.SlotID)
	case err != nil && !errors.Is(err, placement.ErrSlotNotFound):
		return fmt.Errorf("placement lookup: %v", err)
	}
	replacing := err == nil

	if err := b.statDevice(device); err != nil {
		return fmt.Errorf("device %s: %v", device, err)
	}
	journalDev := journalDevice(journal, journalPartition)
	if journalDev != "" {
		if err := b.statDevice(journalDev); err != nil {
			return fmt.Errorf("journal %s: %v", journalDev, err)
		}
	}

	osdID := id
	if osdID == nil && replacing {
		if reuse, ok := parseOsdID(prior.SlotID); ok {
			logger.WithField("osd", reuse).Info("Reusing osd id of the removed disk")
			osdID = &reuse
		}
	}

	if simulate {
		logger.Info("Simulated disk add passed validation")
		return nil
	}

	prepare := []string{"--cluster", b.cfg.Cluster, "lvm", "prepare", "--data", device}
	if osdID != nil {
		prepare = append(prepare, "--osd-id", strconv.FormatUint(*osdID, 10))
	}
	if journalDev != "" {
		prepare = append(prepare, "--filestore", "--journal", journalDev)
	}
	if _, err := b.run(ctx, "ceph-volume", prepare...); err != nil {
		return err
	}

	assigned, err := b.lookupOsdID(ctx, device)
	if err != nil {
		return err
	}
	if _, err := b.run(ctx, "ceph-volume", "--cluster", b.cfg.Cluster, "lvm", "activate", "--all"); err != nil {
		return err
	}

	logger.WithField("osd", assigned).Info("Device prepared and osd activated")
	return b.store.Save(kind, placement.Slot{
		DevicePath:  device,
		SlotID:      fmt.Sprintf("osd.%d", assigned),
		JournalPath: journalDev,
		AddedAt:     time.Now().UTC(),
	})
}

// RemoveDisk drains the OSD out of the cluster and zaps the device.
// The placement record keeps the id for a later replacement.
func (b *Backend) RemoveDisk(ctx context.Context, device string, simulate bool) error {
	logger := log.WithFields(log.Fields{"backend": kind, "device": device, "simulate": simulate})

	osdID, addedAt, err := b.resolveOsd(ctx, device)
	if err != nil {
		return err
	}
	osd := fmt.Sprintf("osd.%d", osdID)

	if simulate {
		logger.WithField("osd", osd).Info("Simulated disk removal passed validation")
		return nil
	}

	steps := [][]string{
		{"ceph", "--cluster", b.cfg.Cluster, "osd", "out", osd},
		{"systemctl", "stop", fmt.Sprintf("ceph-osd@%d", osdID)},
		{"ceph", "--cluster", b.cfg.Cluster, "osd", "crush", "remove", osd},
		{"ceph", "--cluster", b.cfg.Cluster, "auth", "del", osd},
		{"ceph", "--cluster", b.cfg.Cluster, "osd", "rm", osd},
		{"ceph-volume", "--cluster", b.cfg.Cluster, "lvm", "zap", "--destroy", device},
	}
	for _, step := range steps {
		if _, err := b.run(ctx, step[0], step[1:]...); err != nil {
			return err
		}
	}

	logger.WithField("osd", osd).Info("Osd retired and device zapped")
	return b.store.Save(kind, placement.Slot{
		DevicePath: device,
		SlotID:     osd,
		AddedAt:    addedAt,
		RemovedAt:  time.Now().UTC(),
	})
}

// SafeToRemove asks the cluster whether stopping the OSD keeps all
// placement groups available, then folds in the device's own SMART
// verdict.
func (b *Backend) SafeToRemove(ctx context.Context, device string, simulate bool) (bool, error) {
	if simulate {
		return true, nil
	}
	logger := log.WithFields(log.Fields{"backend": kind, "device": device})

	osdID, _, err := b.resolveOsd(ctx, device)
	if err != nil {
		return false, err
	}
	osd := fmt.Sprintf("osd.%d", osdID)

	result := b.exec.RunCommand(ctx, exechelper.ExecParams{
		CmdName: "ceph",
		CmdArgs: []string{"--cluster", b.cfg.Cluster, "osd", "ok-to-stop", osd, "--format", "json"},
		Timeout: commandTimeoutSeconds,
	})
	out := result.OutBuf.String()
	verdict := gjson.Get(out, "ok_to_stop")
	safe := false
	switch {
	case verdict.Exists():
		safe = verdict.Bool()
	case result.ExitCode == 0:
		safe = true
	case result.ExitCode == okToStopBusy:
	default:
		detail := strings.TrimSpace(result.ErrBuf.String())
		if detail == "" && result.Error != nil {
			detail = result.Error.Error()
		}
		return false, fmt.Errorf("ceph osd ok-to-stop: %s", detail)
	}
	if !safe {
		logger.WithField("osd", osd).Info("Cluster reports osd is not ok to stop")
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

// resolveOsd finds the OSD behind a device, preferring the placement
// record and falling back to what ceph-volume sees on the host.
func (b *Backend) resolveOsd(ctx context.Context, device string) (uint64, time.Time, error) {
	slot, err := b.store.Get(kind, device)
	switch {
	case err == nil && slot.Active():
		if id, ok := parseOsdID(slot.SlotID); ok {
			return id, slot.AddedAt, nil
		}
		return 0, time.Time{}, fmt.Errorf("placement record for %s is not an osd: %q", device, slot.SlotID)
	case err == nil:
		return 0, time.Time{}, fmt.Errorf("device %s was already removed from %s", device, slot.SlotID)
	case !errors.Is(err, placement.ErrSlotNotFound):
		return 0, time.Time{}, fmt.Errorf("placement lookup: %v", err)
	}

	id, err := b.lookupOsdID(ctx, device)
	if err != nil {
		return 0, time.Time{}, err
	}
	return id, time.Now().UTC(), nil
}

// lookupOsdID reads the osd id off the device's lvm tags.
func (b *Backend) lookupOsdID(ctx context.Context, device string) (uint64, error) {
	out, err := b.run(ctx, "ceph-volume", "--cluster", b.cfg.Cluster, "lvm", "list", device, "--format", "json")
	if err != nil {
		return 0, fmt.Errorf("device %s does not back any osd: %v", device, err)
	}
	id, ok := osdIDFromListing(out)
	if !ok {
		return 0, fmt.Errorf("device %s does not back any osd", device)
	}
	return id, nil
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

// osdIDFromListing parses `ceph-volume lvm list --format json` output,
// a JSON object keyed by osd id.
func osdIDFromListing(out string) (uint64, bool) {
	var (
		id    uint64
		found bool
	)
	gjson.Parse(out).ForEach(func(key, _ gjson.Result) bool {
		n, err := strconv.ParseUint(key.String(), 10, 64)
		if err != nil {
			return true
		}
		id, found = n, true
		return false
	})
	return id, found
}

func parseOsdID(slotID string) (uint64, bool) {
	n, err := strconv.ParseUint(strings.TrimPrefix(slotID, "osd."), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// journalDevice composes the partition node of a journal disk, keeping
// the "p" infix nvme-style names need.
func journalDevice(journal string, partition *uint32) string {
	if journal == "" {
		return journal
	}
	if partition == nil {
		return journal
	}
	sep := ""
	if last := journal[len(journal)-1]; last >= '0' && last <= '9' {
		sep = "p"
	}
	return fmt.Sprintf("%s%s%d", journal, sep, *partition)
}
