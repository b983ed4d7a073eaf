package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mendhq/mend/pkg/log"
	"github.com/mendhq/mend/pkg/types"
	bolt "go.etcd.io/bbolt"
)

const schemaVersion = "1"

var (
	// Bucket names
	bucketPoints  = []byte("rollback_points")
	bucketHistory = []byte("rollback_history")
	bucketMeta    = []byte("meta")

	keySchemaVersion = []byte("schema_version")
	keyHistory       = []byte("results")
)

// Open creates a snapshot store rooted at dataDir. Backup files live in
// <dataDir>/backups; metadata lives in a BoltDB file. Unreadable
// persisted metadata degrades to an empty store.
func Open(dataDir string, opts Options) (*Store, error) {
	backupDir := filepath.Join(dataDir, "backups")
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	db, err := bolt.Open(filepath.Join(dataDir, "snapshots.db"), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}

	s := &Store{
		opts:     opts,
		dir:      backupDir,
		points:   make(map[string]*RollbackPoint),
		history:  []Result{},
		db:       db,
		critical: make(map[types.ErrorKind]struct{}),
	}
	for _, kind := range opts.CriticalKinds {
		s.critical[kind] = struct{}{}
	}

	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}

	s.load()
	return s, nil
}

// Close releases the underlying database
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return fmt.Errorf("failed to create bucket meta: %w", err)
		}

		version := meta.Get(keySchemaVersion)
		if version != nil && string(version) != schemaVersion {
			log.WithComponent("snapshot").Warn().
				Str("found", string(version)).
				Msg("Snapshot schema mismatch, discarding persisted metadata")

			for _, name := range [][]byte{bucketPoints, bucketHistory} {
				if tx.Bucket(name) != nil {
					if err := tx.DeleteBucket(name); err != nil {
						return fmt.Errorf("failed to reset bucket %s: %w", name, err)
					}
				}
			}
		}

		if err := meta.Put(keySchemaVersion, []byte(schemaVersion)); err != nil {
			return fmt.Errorf("failed to write schema version: %w", err)
		}

		for _, name := range [][]byte{bucketPoints, bucketHistory} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

func (s *Store) load() {
	logger := log.WithComponent("snapshot")

	err := s.db.View(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketPoints).ForEach(func(k, v []byte) error {
			var point RollbackPoint
			if err := json.Unmarshal(v, &point); err != nil {
				return fmt.Errorf("corrupt rollback point %s: %w", k, err)
			}
			s.points[string(k)] = &point
			return nil
		}); err != nil {
			return err
		}

		if data := tx.Bucket(bucketHistory).Get(keyHistory); data != nil {
			if err := json.Unmarshal(data, &s.history); err != nil {
				return fmt.Errorf("corrupt rollback history: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Persisted snapshot metadata unreadable, starting empty")
		s.points = make(map[string]*RollbackPoint)
		s.history = []Result{}
		return
	}

	if len(s.points) > 0 {
		logger.Info().Int("points", len(s.points)).Msg("Loaded rollback points")
	}
}

func (s *Store) persistPoint(point *RollbackPoint) {
	if s.db == nil {
		return
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(point)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketPoints).Put([]byte(point.ID), data)
	})
	if err != nil {
		log.WithComponent("snapshot").Error().Err(err).
			Str("point_id", point.ID).
			Msg("Failed to persist rollback point")
	}
}

func (s *Store) deletePoint(pointID string) {
	if s.db == nil {
		return
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPoints).Delete([]byte(pointID))
	})
	if err != nil {
		log.WithComponent("snapshot").Error().Err(err).
			Str("point_id", pointID).
			Msg("Failed to delete rollback point")
	}
}

func (s *Store) persistHistory() {
	if s.db == nil {
		return
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(s.history)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketHistory).Put(keyHistory, data)
	})
	if err != nil {
		log.WithComponent("snapshot").Error().Err(err).Msg("Failed to persist rollback history")
	}
}
