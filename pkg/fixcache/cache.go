package fixcache

import (
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mendhq/mend/pkg/log"
	"github.com/mendhq/mend/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// Entry is a cached fix keyed by error fingerprint
type Entry struct {
	Fingerprint       string          `json:"fingerprint"`
	Payload           string          `json:"payload"`
	Description       string          `json:"description"`
	Kind              types.ErrorKind `json:"kind"`
	NormalizedMessage string          `json:"normalized_message"`
	SuccessRate       float64         `json:"success_rate"`
	Applications      int             `json:"applications"`
	CreatedAt         time.Time       `json:"created_at"`
	LastUsed          time.Time       `json:"last_used"`
	TTL               time.Duration   `json:"ttl"`
}

// Expired reports whether the entry's TTL has elapsed
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.CreatedAt.Add(e.TTL))
}

// Pattern is a frequency-tracked generalization of an error context,
// kept for analytics only
type Pattern struct {
	Kind           types.ErrorKind `json:"kind"`
	MessagePattern string          `json:"message_pattern"`
	StackPattern   string          `json:"stack_pattern"`
	FilePattern    string          `json:"file_pattern"`
	Frequency      int             `json:"frequency"`
	LastSeen       time.Time       `json:"last_seen"`
}

// Stats summarizes cache effectiveness
type Stats struct {
	Hits           int     `json:"hits"`
	Misses         int     `json:"misses"`
	SimilarityHits int     `json:"similarity_hits"`
	HitRate        float64 `json:"hit_rate"`
	Entries        int     `json:"entries"`
	ValidEntries   int     `json:"valid_entries"`
	ExpiredEntries int     `json:"expired_entries"`
	Patterns       int     `json:"patterns"`
}

// Options tunes cache behavior. All values come from configuration.
type Options struct {
	SimilarityThreshold  float64
	EMAAlpha             float64
	MaxEntries           int
	DefaultTTL           time.Duration
	PruneMinApplications int
	PruneMaxSuccessRate  float64
}

// Cache is the content-addressable fix store. All access is serialized
// by a single mutex; one orchestrator instance owns the cache
// exclusively.
type Cache struct {
	mu       sync.Mutex
	opts     Options
	entries  map[string]*Entry
	patterns map[string]*Pattern
	db       *bolt.DB

	hits           int
	misses         int
	similarityHits int
}

// New creates an in-memory cache with no persistence
func New(opts Options) *Cache {
	return &Cache{
		opts:     opts,
		entries:  make(map[string]*Entry),
		patterns: make(map[string]*Pattern),
	}
}

// Put inserts or refreshes the fix for an error context and returns its
// fingerprint. The success rate seeds a new entry's moving average,
// clamped to [0,1]; refreshing an existing entry folds it in as one more
// EMA observation. An empty ttl falls back to the configured default.
// Capacity and quality eviction run after every insert.
func (c *Cache) Put(ec types.ErrorContext, payload, description string, successRate float64, ttl time.Duration) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		ttl = c.opts.DefaultTTL
	}

	fp := Fingerprint(ec)
	now := time.Now()

	if existing, ok := c.entries[fp]; ok {
		existing.LastUsed = now
		existing.Payload = payload
		existing.Description = description
		existing.SuccessRate = c.opts.EMAAlpha*clampRate(successRate) + (1-c.opts.EMAAlpha)*existing.SuccessRate
		c.persistEntry(existing)
	} else {
		entry := &Entry{
			Fingerprint:       fp,
			Payload:           payload,
			Description:       description,
			Kind:              ec.Kind,
			NormalizedMessage: normalizeMessage(ec.Message),
			SuccessRate:       clampRate(successRate),
			CreatedAt:         now,
			LastUsed:          now,
			TTL:               ttl,
		}
		c.entries[fp] = entry
		c.persistEntry(entry)

		logger := log.WithComponent("fixcache")
		logger.Debug().Str("fingerprint", fp).Str("kind", string(ec.Kind)).Msg("Cached new fix")
	}

	c.learnPattern(ec)
	c.evict()

	return fp
}

// Get looks up a fix for the error context. Exact fingerprint match is
// tried first; on a miss, same-kind entries are scanned for a
// normalized-message similarity above the configured threshold. Expired
// entries encountered on either path are purged and treated as misses.
func (c *Cache) Get(ec types.ErrorContext) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	fp := Fingerprint(ec)

	if entry, ok := c.entries[fp]; ok {
		if entry.Expired(now) {
			c.removeEntry(fp)
			c.misses++
			return nil, false
		}

		entry.LastUsed = now
		c.persistEntry(entry)
		c.hits++

		cp := *entry
		return &cp, true
	}

	if entry := c.findSimilar(ec, now); entry != nil {
		entry.LastUsed = now
		c.persistEntry(entry)
		c.hits++
		c.similarityHits++

		cp := *entry
		return &cp, true
	}

	c.misses++
	return nil, false
}

// findSimilar scans same-kind entries for the best similarity match at
// or above the threshold. Caller holds the mutex.
func (c *Cache) findSimilar(ec types.ErrorContext, now time.Time) *Entry {
	normalized := normalizeMessage(ec.Message)

	var best *Entry
	bestScore := 0.0

	for fp, entry := range c.entries {
		if entry.Kind != ec.Kind {
			continue
		}
		if entry.Expired(now) {
			c.removeEntry(fp)
			continue
		}

		score := similarity(normalized, entry.NormalizedMessage)
		if score >= c.opts.SimilarityThreshold && score > bestScore {
			best = entry
			bestScore = score
		}
	}

	return best
}

// RecordOutcome folds one application outcome into the entry's success
// rate via an exponential moving average and bumps its application
// counter. Unknown fingerprints are a warning, not an error.
func (c *Cache) RecordOutcome(fingerprint string, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[fingerprint]
	if !ok {
		log.WithComponent("fixcache").Warn().
			Str("fingerprint", fingerprint).
			Msg("Outcome recorded for unknown fingerprint")
		return
	}

	entry.Applications++

	observed := 0.0
	if success {
		observed = 1.0
	}
	entry.SuccessRate = c.opts.EMAAlpha*observed + (1-c.opts.EMAAlpha)*entry.SuccessRate

	c.persistEntry(entry)
}

// CleanupExpired removes every expired entry and returns the count
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropExpired(time.Now())
}

// Len returns the current entry count
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of cache effectiveness counters
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	valid := 0
	for _, entry := range c.entries {
		if !entry.Expired(now) {
			valid++
		}
	}

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return Stats{
		Hits:           c.hits,
		Misses:         c.misses,
		SimilarityHits: c.similarityHits,
		HitRate:        hitRate,
		Entries:        len(c.entries),
		ValidEntries:   valid,
		ExpiredEntries: len(c.entries) - valid,
		Patterns:       len(c.patterns),
	}
}

// FrequentPatterns returns the most frequently seen error patterns,
// highest frequency first
func (c *Cache) FrequentPatterns(limit int) []Pattern {
	c.mu.Lock()
	defer c.mu.Unlock()

	patterns := make([]Pattern, 0, len(c.patterns))
	for _, p := range c.patterns {
		patterns = append(patterns, *p)
	}

	sort.Slice(patterns, func(i, j int) bool {
		return patterns[i].Frequency > patterns[j].Frequency
	})

	if limit > 0 && len(patterns) > limit {
		patterns = patterns[:limit]
	}
	return patterns
}

// BestFixes returns the highest-success-rate entries that have been
// applied at least three times and are still valid
func (c *Cache) BestFixes(limit int) []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	fixes := make([]Entry, 0)
	for _, entry := range c.entries {
		if entry.Expired(now) || entry.Applications < 3 {
			continue
		}
		fixes = append(fixes, *entry)
	}

	sort.Slice(fixes, func(i, j int) bool {
		return fixes[i].SuccessRate > fixes[j].SuccessRate
	})

	if limit > 0 && len(fixes) > limit {
		fixes = fixes[:limit]
	}
	return fixes
}

// learnPattern updates analytics counters for the error shape. Caller
// holds the mutex.
func (c *Cache) learnPattern(ec types.ErrorContext) {
	normalized := normalizeMessage(ec.Message)
	key := string(ec.Kind) + "_" + truncate(normalized, 50)

	if p, ok := c.patterns[key]; ok {
		p.Frequency++
		p.LastSeen = time.Now()
		c.persistPattern(key, p)
		return
	}

	filePattern := ""
	if ec.SourceFile != "" {
		filePattern = filepath.Base(ec.SourceFile)
	}

	p := &Pattern{
		Kind:           ec.Kind,
		MessagePattern: normalized,
		StackPattern:   stackPattern(ec.StackTrace),
		FilePattern:    filePattern,
		Frequency:      1,
		LastSeen:       time.Now(),
	}
	c.patterns[key] = p
	c.persistPattern(key, p)
}

// evict applies the three eviction policies in order: expired entries,
// persistently failing entries, then LRU beyond capacity. Caller holds
// the mutex.
func (c *Cache) evict() {
	now := time.Now()
	c.dropExpired(now)
	c.dropLowSuccess()
	c.enforceCapacity()
}

func (c *Cache) dropExpired(now time.Time) int {
	removed := 0
	for fp, entry := range c.entries {
		if entry.Expired(now) {
			c.removeEntry(fp)
			removed++
		}
	}
	return removed
}

func (c *Cache) dropLowSuccess() {
	for fp, entry := range c.entries {
		if entry.Applications >= c.opts.PruneMinApplications &&
			entry.SuccessRate < c.opts.PruneMaxSuccessRate {
			log.WithComponent("fixcache").Info().
				Str("fingerprint", fp).
				Float64("success_rate", entry.SuccessRate).
				Msg("Removing persistently failing fix")
			c.removeEntry(fp)
		}
	}
}

func (c *Cache) enforceCapacity() {
	excess := len(c.entries) - c.opts.MaxEntries
	if excess <= 0 {
		return
	}

	type lruEntry struct {
		fp       string
		lastUsed time.Time
	}
	ordered := make([]lruEntry, 0, len(c.entries))
	for fp, entry := range c.entries {
		ordered = append(ordered, lruEntry{fp, entry.LastUsed})
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].lastUsed.Before(ordered[j].lastUsed)
	})

	for i := 0; i < excess; i++ {
		c.removeEntry(ordered[i].fp)
	}

	log.WithComponent("fixcache").Info().
		Int("removed", excess).
		Msg("Evicted least recently used cache entries")
}

func (c *Cache) removeEntry(fingerprint string) {
	delete(c.entries, fingerprint)
	c.deleteEntry(fingerprint)
}

func clampRate(r float64) float64 {
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
