// Package journal keeps a local history of sync runs in BadgerDB. It is
// informational only; delta cutoffs are always derived from file names.
package journal

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	jsoniter "github.com/json-iterator/go"
)

const (
	dirMode   = 0o755
	keyPrefix = "run:"
	// keyTimeLayout is fixed width so keys sort by start time.
	keyTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Entry describes one run of one entity type.
type Entry struct {
	EntityType string        `json:"entityType"`
	StartedAt  time.Time     `json:"startedAt"`
	Watermark  time.Time     `json:"watermark"`
	Fetched    int           `json:"fetched"`
	Written    int           `json:"written"`
	Skipped    int           `json:"skipped"`
	Dropped    int           `json:"dropped"`
	Files      []string      `json:"files"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// Journal stores entries keyed "run:<entityType>:<startedAt>".
type Journal struct {
	db *badger.DB
}

// Open opens or creates the journal at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(path, dirMode); err != nil {
		return nil, fmt.Errorf("failed to create journal path: %w", err)
	}
	opts := badger.DefaultOptions(path).
		WithLoggingLevel(badger.ERROR)
	return open(opts)
}

func open(opts badger.Options) (*Journal, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func entryKey(entityType string, startedAt time.Time) []byte {
	return fmt.Appendf(nil, "%s%s:%s", keyPrefix, entityType, startedAt.UTC().Format(keyTimeLayout))
}

func typePrefix(entityType string) []byte {
	return fmt.Appendf(nil, "%s%s:", keyPrefix, entityType)
}

// Record stores e. An entry with the same type and start time is replaced.
func (j *Journal) Record(e Entry) error {
	if e.EntityType == "" {
		return errors.New("journal entry without entity type")
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(e.EntityType, e.StartedAt), data)
	})
}

// History returns up to limit entries of entityType, newest first. A
// non-positive limit returns all of them.
func (j *Journal) History(entityType string, limit int) ([]Entry, error) {
	var out []Entry
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		p := typePrefix(entityType)
		seek := append(append([]byte(nil), p...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(p); it.Next() {
			var e Entry
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &e)
			}); err != nil {
				return err
			}
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				return nil
			}
		}
		return nil
	})
	return out, err
}

// StatsByEntityType counts entries per entity type.
func (j *Journal) StatsByEntityType() (map[string]int, error) {
	stats := make(map[string]int)
	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := []byte(keyPrefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			var e Entry
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &e)
			}); err != nil {
				log.Printf("[Journal] Skipping unreadable entry %s: %v", it.Item().Key(), err)
				continue
			}
			stats[e.EntityType]++
		}
		return nil
	})
	return stats, err
}
