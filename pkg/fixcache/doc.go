/*
Package fixcache provides the content-addressable fix cache.

The cache maps a normalized error fingerprint to a previously applied fix,
its learned success rate, and an expiry. Fingerprinting strips incidental
detail (numeric literals, filesystem paths, quoted identifiers) so that
"the same" error recurring with different line numbers or variable names
resolves to one entry. When an exact fingerprint misses, entries of the
same error kind are scanned for a Jaccard token-set similarity above the
configured threshold.

Success rates are learned with an exponential moving average as outcomes
are recorded. Three eviction policies run after every insert: expired
entries are dropped, entries applied at least five times with a success
rate below the configured floor are dropped, and least-recently-used
entries are dropped once the table exceeds its capacity. Expired entries
encountered during lookup are purged lazily and reported as misses.

# Persistence

Open backs the cache with a BoltDB file holding JSON-serialized entries
and patterns in separate buckets, plus a schema-version key. A corrupted
or schema-incompatible store degrades to empty rather than failing: the
cache is an accelerator, and losing it only costs latency.

	┌─────────────── FIXCACHE STORAGE ───────────────┐
	│  File: <dataDir>/fixcache.db                    │
	│                                                 │
	│  fix_entries     fingerprint → Entry JSON       │
	│  error_patterns  pattern key → Pattern JSON     │
	│  meta            schema_version                 │
	└─────────────────────────────────────────────────┘
*/
package fixcache
