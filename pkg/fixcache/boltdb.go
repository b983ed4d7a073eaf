package fixcache

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/mendhq/mend/pkg/log"
	bolt "go.etcd.io/bbolt"
)

const schemaVersion = "1"

var (
	// Bucket names
	bucketEntries  = []byte("fix_entries")
	bucketPatterns = []byte("error_patterns")
	bucketMeta     = []byte("meta")

	keySchemaVersion = []byte("schema_version")
)

// Open creates a cache persisted to a BoltDB file under dataDir. A
// corrupted or schema-incompatible store is logged, discarded, and
// rebuilt empty; Open never fails because of bad persisted data.
func Open(dataDir string, opts Options) (*Cache, error) {
	dbPath := filepath.Join(dataDir, "fixcache.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	c := New(opts)
	c.db = db

	if err := c.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}

	c.load()
	return c, nil
}

// Close releases the underlying database
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// ensureSchema creates buckets and resets the store when the schema
// version does not match
func (c *Cache) ensureSchema() error {
	return c.db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return fmt.Errorf("failed to create bucket meta: %w", err)
		}

		version := meta.Get(keySchemaVersion)
		if version != nil && string(version) != schemaVersion {
			// Incompatible legacy data degrades to an empty store
			log.WithComponent("fixcache").Warn().
				Str("found", string(version)).
				Str("expected", schemaVersion).
				Msg("Cache schema mismatch, discarding persisted entries")

			for _, name := range [][]byte{bucketEntries, bucketPatterns} {
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

		for _, name := range [][]byte{bucketEntries, bucketPatterns} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// load reads persisted entries and patterns into memory. Any record
// that fails to decode is treated as corruption: the affected table is
// cleared and rebuilt empty rather than surfacing an error.
func (c *Cache) load() {
	logger := log.WithComponent("fixcache")

	err := c.db.View(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketEntries).ForEach(func(k, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("corrupt entry %s: %w", k, err)
			}
			c.entries[string(k)] = &entry
			return nil
		}); err != nil {
			return err
		}

		return tx.Bucket(bucketPatterns).ForEach(func(k, v []byte) error {
			var p Pattern
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("corrupt pattern %s: %w", k, err)
			}
			c.patterns[string(k)] = &p
			return nil
		})
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Persisted cache unreadable, starting empty")
		c.entries = make(map[string]*Entry)
		c.patterns = make(map[string]*Pattern)
		c.reset()
		return
	}

	if len(c.entries) > 0 {
		logger.Info().Int("entries", len(c.entries)).Msg("Loaded fix cache")
	}
}

// reset clears all persisted data after detected corruption
func (c *Cache) reset() {
	if c.db == nil {
		return
	}

	err := c.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketEntries, bucketPatterns} {
			if tx.Bucket(name) != nil {
				if err := tx.DeleteBucket(name); err != nil {
					return err
				}
			}
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.WithComponent("fixcache").Error().Err(err).Msg("Failed to reset cache store")
	}
}

// persistEntry writes one entry through to disk. Persistence failures
// are logged, never raised; the in-memory table stays authoritative.
func (c *Cache) persistEntry(entry *Entry) {
	if c.db == nil {
		return
	}

	err := c.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketEntries).Put([]byte(entry.Fingerprint), data)
	})
	if err != nil {
		log.WithComponent("fixcache").Error().Err(err).
			Str("fingerprint", entry.Fingerprint).
			Msg("Failed to persist cache entry")
	}
}

func (c *Cache) deleteEntry(fingerprint string) {
	if c.db == nil {
		return
	}

	err := c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).Delete([]byte(fingerprint))
	})
	if err != nil {
		log.WithComponent("fixcache").Error().Err(err).
			Str("fingerprint", fingerprint).
			Msg("Failed to delete cache entry")
	}
}

func (c *Cache) persistPattern(key string, p *Pattern) {
	if c.db == nil {
		return
	}

	err := c.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketPatterns).Put([]byte(key), data)
	})
	if err != nil {
		log.WithComponent("fixcache").Error().Err(err).Msg("Failed to persist error pattern")
	}
}
