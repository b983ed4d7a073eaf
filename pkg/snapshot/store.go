package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mendhq/mend/pkg/log"
	"github.com/mendhq/mend/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// FileSnapshot is one captured file within a rollback point
type FileSnapshot struct {
	Path        string    `json:"path"`
	ContentHash string    `json:"content_hash"`
	CapturedAt  time.Time `json:"captured_at"`
	BackupPath  string    `json:"backup_path"`
	Size        int       `json:"size"`
	LineCount   int       `json:"line_count"`
}

// RollbackPoint is an atomically captured group of file snapshots
type RollbackPoint struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	Snapshots   []FileSnapshot `json:"snapshots"`
	Revision    string         `json:"revision,omitempty"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
}

// Result reports the outcome of one restore operation
type Result struct {
	Success      bool      `json:"success"`
	PointID      string    `json:"rollback_point_id"`
	DryRun       bool      `json:"dry_run"`
	Restored     []string  `json:"files_restored"`
	Failed       []string  `json:"files_failed"`
	Timestamp    time.Time `json:"timestamp"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// Options tunes the store. All values come from configuration.
type Options struct {
	MaxRollbackPoints int
	MaxHistory        int
	CriticalKinds     []types.ErrorKind
	FailureThreshold  float64
	StampRevision     bool
}

// Store is the versioned snapshot and rollback store. One orchestrator
// instance owns it exclusively; a single mutex serializes access.
type Store struct {
	mu      sync.Mutex
	opts    Options
	dir     string
	points  map[string]*RollbackPoint
	history []Result
	db      *bolt.DB

	critical map[types.ErrorKind]struct{}
}

// Capture snapshots the given files into a new rollback point and
// returns its id. Missing files are skipped with a warning; capture
// fails only if the backup directory itself is unusable. Retention
// pruning runs afterward.
func (s *Store) Capture(filePaths []string, description string, tags []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	now := time.Now()
	logger := log.WithComponent("snapshot")

	snapshots := make([]FileSnapshot, 0, len(filePaths))
	for _, path := range filePaths {
		content, err := os.ReadFile(path)
		if err != nil {
			logger.Warn().Str("file", path).Err(err).Msg("Skipping unreadable file")
			continue
		}

		backupPath := filepath.Join(s.dir, backupFileName(id, path, now))
		if err := os.WriteFile(backupPath, content, 0600); err != nil {
			return "", fmt.Errorf("failed to write backup for %s: %w", path, err)
		}

		snapshots = append(snapshots, FileSnapshot{
			Path:        path,
			ContentHash: hashContent(content),
			CapturedAt:  now,
			BackupPath:  backupPath,
			Size:        len(content),
			LineCount:   countLines(content),
		})
	}

	point := &RollbackPoint{
		ID:          id,
		Timestamp:   now,
		Snapshots:   snapshots,
		Description: description,
		Tags:        tags,
	}

	if s.opts.StampRevision {
		point.Revision = currentRevision()
	}

	s.points[id] = point
	s.persistPoint(point)
	s.pruneOldPoints()

	logger.Info().
		Str("point_id", id).
		Int("files", len(snapshots)).
		Msg("Created rollback point")

	return id, nil
}

// Restore brings the files of a rollback point back to their captured
// content. With dryRun it only reports which files a restore would
// change, without touching the filesystem. Overall success requires
// every file to succeed; partial restores are reported, not hidden.
func (s *Store) Restore(pointID string, dryRun bool) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restoreLocked(pointID, dryRun)
}

func (s *Store) restoreLocked(pointID string, dryRun bool) Result {
	logger := log.WithComponent("snapshot")

	point, ok := s.points[pointID]
	if !ok {
		return Result{
			PointID:      pointID,
			DryRun:       dryRun,
			Timestamp:    time.Now(),
			ErrorMessage: fmt.Sprintf("rollback point not found: %s", pointID),
		}
	}

	result := Result{
		PointID:   pointID,
		DryRun:    dryRun,
		Restored:  []string{},
		Failed:    []string{},
		Timestamp: time.Now(),
	}

	for _, snap := range point.Snapshots {
		captured, err := os.ReadFile(snap.BackupPath)
		if err != nil {
			logger.Error().Str("file", snap.Path).Err(err).Msg("Backup unreadable")
			result.Failed = append(result.Failed, snap.Path)
			continue
		}

		if dryRun {
			current, err := os.ReadFile(snap.Path)
			if err != nil || string(current) != string(captured) {
				result.Restored = append(result.Restored, snap.Path)
			}
			continue
		}

		if _, err := os.Stat(snap.Path); err == nil {
			if err := s.emergencyBackup(snap.Path); err != nil {
				logger.Warn().Str("file", snap.Path).Err(err).Msg("Emergency backup failed")
			}
		}

		if err := os.MkdirAll(filepath.Dir(snap.Path), 0755); err != nil {
			result.Failed = append(result.Failed, snap.Path)
			continue
		}
		if err := os.WriteFile(snap.Path, captured, 0644); err != nil {
			logger.Error().Str("file", snap.Path).Err(err).Msg("Failed to restore file")
			result.Failed = append(result.Failed, snap.Path)
			continue
		}

		result.Restored = append(result.Restored, snap.Path)
	}

	result.Success = len(result.Failed) == 0
	if !result.Success {
		result.ErrorMessage = fmt.Sprintf("%d files failed to restore", len(result.Failed))
	}

	if !dryRun {
		s.recordHistory(result)
		logger.Info().
			Str("point_id", pointID).
			Int("restored", len(result.Restored)).
			Int("failed", len(result.Failed)).
			Msg("Rollback completed")
	}

	return result
}

// RestoreNearest restores the rollback point closest in time to the
// target
func (s *Store) RestoreNearest(target time.Time) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.points) == 0 {
		return Result{
			Timestamp:    time.Now(),
			ErrorMessage: "no rollback points available",
		}
	}

	var closest *RollbackPoint
	var closestDistance time.Duration
	for _, point := range s.points {
		distance := point.Timestamp.Sub(target)
		if distance < 0 {
			distance = -distance
		}
		if closest == nil || distance < closestDistance {
			closest = point
			closestDistance = distance
		}
	}

	return s.restoreLocked(closest.ID, false)
}

// RestoreByRevision restores the most recent rollback point whose
// revision id starts with the given prefix
func (s *Store) RestoreByRevision(revisionPrefix string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *RollbackPoint
	for _, point := range s.points {
		if revisionPrefix == "" || point.Revision == "" || !strings.HasPrefix(point.Revision, revisionPrefix) {
			continue
		}
		if latest == nil || point.Timestamp.After(latest.Timestamp) {
			latest = point
		}
	}

	if latest == nil {
		return Result{
			Timestamp:    time.Now(),
			ErrorMessage: fmt.Sprintf("no rollback point found for revision: %s", revisionPrefix),
		}
	}

	return s.restoreLocked(latest.ID, false)
}

// List returns rollback point summaries, newest first, optionally
// filtered by tag
func (s *Store) List(tags []string, limit int) []RollbackPoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	points := make([]RollbackPoint, 0, len(s.points))
	for _, point := range s.points {
		if len(tags) > 0 && !hasAnyTag(point.Tags, tags) {
			continue
		}
		points = append(points, *point)
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp.After(points[j].Timestamp)
	})

	if limit > 0 && len(points) > limit {
		points = points[:limit]
	}
	return points
}

// Delete removes a rollback point and its backup files
func (s *Store) Delete(pointID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(pointID)
}

func (s *Store) deleteLocked(pointID string) bool {
	point, ok := s.points[pointID]
	if !ok {
		return false
	}

	for _, snap := range point.Snapshots {
		if err := os.Remove(snap.BackupPath); err != nil && !os.IsNotExist(err) {
			log.WithComponent("snapshot").Warn().
				Str("backup", snap.BackupPath).Err(err).
				Msg("Failed to delete backup file")
		}
	}

	delete(s.points, pointID)
	s.deletePoint(pointID)
	return true
}

// History returns the recorded restore results, most recent last
func (s *Store) History() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Result, len(s.history))
	copy(out, s.history)
	return out
}

// Len returns the number of retained rollback points
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.points)
}

// emergencyBackup saves the current content of a file about to be
// overwritten by a restore
func (s *Store) emergencyBackup(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	name := fmt.Sprintf("emergency_%s_%d", filepath.Base(path), time.Now().UnixNano())
	return os.WriteFile(filepath.Join(s.dir, name), content, 0600)
}

// pruneOldPoints evicts the oldest points once the count exceeds the
// configured maximum. Caller holds the mutex.
func (s *Store) pruneOldPoints() {
	excess := len(s.points) - s.opts.MaxRollbackPoints
	if excess <= 0 {
		return
	}

	ordered := make([]*RollbackPoint, 0, len(s.points))
	for _, point := range s.points {
		ordered = append(ordered, point)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	for i := 0; i < excess; i++ {
		s.deleteLocked(ordered[i].ID)
	}

	log.WithComponent("snapshot").Info().
		Int("removed", excess).
		Msg("Pruned old rollback points")
}

// recordHistory keeps the most recent restore results, bounded by
// MaxHistory. Caller holds the mutex.
func (s *Store) recordHistory(result Result) {
	s.history = append(s.history, result)
	if s.opts.MaxHistory > 0 && len(s.history) > s.opts.MaxHistory {
		s.history = s.history[len(s.history)-s.opts.MaxHistory:]
	}
	s.persistHistory()
}

func backupFileName(pointID, path string, ts time.Time) string {
	return fmt.Sprintf("%s_%d_%s", pointID, ts.UnixNano(), filepath.Base(path))
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	lines := 1
	for _, b := range content {
		if b == '\n' {
			lines++
		}
	}
	return lines
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}
