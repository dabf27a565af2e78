// Package placement keeps track of where each managed disk sits in
// the storage cluster topology, so removals can find the brick or OSD
// a device was added as. Records live in a local bbolt file and
// survive daemon restarts.
package placement

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const dbName = "placement.db"

// ErrSlotNotFound is returned by Get when a device has no record
// under the given backend kind.
var ErrSlotNotFound = errors.New("placement: slot not found")

// Slot records one device's position in the cluster.
type Slot struct {
	// DevicePath is the block device the slot was created from.
	DevicePath string `json:"devicePath"`

	// SlotID names the position: a brick directory for gluster, an
	// "osd.N" id for ceph.
	SlotID string `json:"slotId"`

	// JournalPath is set when the slot uses a separate journal device.
	JournalPath string `json:"journalPath,omitempty"`

	// AddedAt is when the device joined the cluster.
	AddedAt time.Time `json:"addedAt"`

	// RemovedAt is zero while the slot is active.
	RemovedAt time.Time `json:"removedAt,omitempty"`
}

// Active reports whether the slot still holds a cluster member.
func (s Slot) Active() bool {
	return s.RemovedAt.IsZero()
}

// Store is a bbolt-backed slot registry with one bucket per backend
// kind.
type Store struct {
	db *bolt.DB
}

// Open creates or reopens <dir>/placement.db.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %v", err)
	}
	db, err := bolt.Open(filepath.Join(dir, dbName), 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open placement db: %v", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts the slot record of slot.DevicePath under kind.
func (s *Store) Save(kind string, slot Slot) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(kind))
		if err != nil {
			return err
		}
		return putObject(b, slot.DevicePath, slot)
	})
}

// Get loads the slot record of devicePath under kind.
func (s *Store) Get(kind, devicePath string) (Slot, error) {
	var slot Slot
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(kind))
		if b == nil {
			return ErrSlotNotFound
		}
		return getObject(b, devicePath, &slot)
	})
	return slot, err
}

// Delete drops the slot record of devicePath under kind. Deleting a
// missing record is not an error.
func (s *Store) Delete(kind, devicePath string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(kind))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(devicePath))
	})
}

// List returns every slot recorded under kind, in key order.
func (s *Store) List(kind string) ([]Slot, error) {
	var slots []Slot
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(kind))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var slot Slot
			if err := json.Unmarshal(v, &slot); err != nil {
				return err
			}
			slots = append(slots, slot)
			return nil
		})
	})
	return slots, err
}

func putObject(b *bolt.Bucket, key string, obj interface{}) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("marshal slot %s: %v", key, err)
	}
	return b.Put([]byte(key), data)
}

func getObject(b *bolt.Bucket, key string, out interface{}) error {
	data := b.Get([]byte(key))
	if data == nil {
		return ErrSlotNotFound
	}
	return json.Unmarshal(data, out)
}
