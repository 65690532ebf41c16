package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

const upgradesBucket = "upgrades"

// boltStore implements a Store backed by BoltDB, keyed by old room ID.
type boltStore struct {
	db *bolt.DB
}

func openBolt(path string) (*boltStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(upgradesBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}
	return &boltStore{db: db}, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Record stores e under its old room ID.
func (b *boltStore) Record(e Entry) error {
	if e.OldRoomID == "" {
		return fmt.Errorf("journal entry requires an old room ID")
	}
	if e.UpgradedAt.IsZero() {
		e.UpgradedAt = time.Now().UTC()
	}
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(upgradesBucket))
		if bucket == nil {
			return fmt.Errorf("upgrades bucket missing")
		}
		return bucket.Put([]byte(e.OldRoomID), value)
	})
}

// Get returns the entry recorded for oldRoomID.
func (b *boltStore) Get(oldRoomID string) (*Entry, error) {
	var entry *Entry
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(upgradesBucket))
		if bucket == nil {
			return fmt.Errorf("upgrades bucket missing")
		}
		value := bucket.Get([]byte(oldRoomID))
		if value == nil {
			return nil
		}
		var e Entry
		if err := json.Unmarshal(value, &e); err != nil {
			return fmt.Errorf("decode journal entry %s: %w", oldRoomID, err)
		}
		entry = &e
		return nil
	})
	return entry, err
}

// List returns every entry, oldest upgrade first.
func (b *boltStore) List() ([]Entry, error) {
	var entries []Entry
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(upgradesBucket))
		if bucket == nil {
			return fmt.Errorf("upgrades bucket missing")
		}
		return bucket.ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode journal entry %s: %w", k, err)
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].UpgradedAt.Before(entries[j].UpgradedAt)
	})
	return entries, nil
}
