/*
Package types defines the core data structures used throughout Mend.

This package contains the fundamental types of the fix-orchestration domain
model: error contexts, fix tasks, resolution strategies, file modifications,
test outcomes, and fix results. All other packages depend on these types for
routing decisions, cache fingerprinting, and result reporting; types itself
depends on nothing but the standard library.

A FixTask is immutable once submitted. A FixResult is produced fresh for
every resolution attempt and is never mutated after being returned, so
callers may retain results without synchronization.
*/
package types
