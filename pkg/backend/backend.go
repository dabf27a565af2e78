// Package backend abstracts the storage cluster a disk joins or
// leaves. The daemon picks one implementation at startup and keeps it
// for its whole lifetime.
package backend

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/diskwarden/diskwarden/pkg/backend/ceph"
	"github.com/diskwarden/diskwarden/pkg/backend/gluster"
	"github.com/diskwarden/diskwarden/pkg/exechelper"
	"github.com/diskwarden/diskwarden/pkg/exechelper/basicexecutor"
	"github.com/diskwarden/diskwarden/pkg/placement"
	"github.com/diskwarden/diskwarden/pkg/smart"
)

// Backend is what every storage flavor must offer. The simulate flag
// runs the same validation path but stops before the first mutating
// step; SafeToRemove with simulate reports true without touching the
// cluster.
type Backend interface {
	AddDisk(ctx context.Context, device string, id *uint64, journal string, journalPartition *uint32, simulate bool) error
	RemoveDisk(ctx context.Context, device string, simulate bool) error
	SafeToRemove(ctx context.Context, device string, simulate bool) (bool, error)
}

// Kind selects a backend implementation.
type Kind string

const (
	KindGluster Kind = "gluster"
	KindCeph    Kind = "ceph"
)

// ParseKind maps a flag value onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(s)) {
	case KindGluster:
		return KindGluster, nil
	case KindCeph:
		return KindCeph, nil
	}
	return "", fmt.Errorf("unknown backend kind %q", s)
}

// Options carries the collaborators every backend shares.
type Options struct {
	// Executor runs cluster tooling; nil gets the host executor.
	Executor exechelper.Executor

	// Store keeps device placements across restarts.
	Store *placement.Store

	// SMART provides device health verdicts for SafeToRemove.
	SMART smart.Prober
}

// New constructs the backend for kind from its config file in
// configDir. A missing or unreadable config is a startup error.
func New(kind Kind, configDir string, opts Options) (Backend, error) {
	if opts.Executor == nil {
		opts.Executor = basicexecutor.New()
	}
	switch kind {
	case KindGluster:
		return gluster.New(filepath.Join(configDir, "gluster.yaml"), opts.Executor, opts.Store, opts.SMART)
	case KindCeph:
		return ceph.New(filepath.Join(configDir, "ceph.yaml"), opts.Executor, opts.Store, opts.SMART)
	}
	return nil, fmt.Errorf("unknown backend kind %q", kind)
}
