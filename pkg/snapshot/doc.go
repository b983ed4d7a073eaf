/*
Package snapshot provides versioned file snapshots and rollback points.

Capture reads a set of files, hashes their content, writes backup copies,
and groups the snapshots under one rollback point. Points can later be
restored exactly, selected by nearest capture time, or selected by git
revision prefix. Restore supports a dry-run mode that only reports which
files would change; AnalyzeImpact builds on it to report line-count
deltas without ever touching the filesystem.

Retention is bounded: once the point count exceeds the configured
maximum the oldest points (and their backup files) are evicted, and the
restore-operation history keeps only the most recent results.

ShouldAutoRollback is the safety-net policy query: it returns true for
critical error kinds (syntax, import, module, attribute by default) or
when the test failure ratio exceeds the configured threshold. The store
never initiates a rollback itself; the caller decides.

Backup files are addressed by point id, capture timestamp, and original
file name under <dataDir>/backups. Metadata is persisted in BoltDB with
a schema version; unreadable metadata degrades to an empty store.
*/
package snapshot
