package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
)

// FileChange describes one file's would-be change in an impact analysis
type FileChange struct {
	File          string `json:"file"`
	Type          string `json:"type"` // "modified", "missing", "unchanged", "error"
	CurrentLines  int    `json:"current_lines,omitempty"`
	SnapshotLines int    `json:"snapshot_lines,omitempty"`
	LineDiff      int    `json:"line_diff,omitempty"`
	Description   string `json:"description,omitempty"`
}

// Impact is a dry-run analysis of a rollback
type Impact struct {
	CanRollback    bool         `json:"can_rollback"`
	PointID        string       `json:"rollback_point_id"`
	FilesAffected  int          `json:"files_affected"`
	FilesToRestore int          `json:"files_to_restore"`
	Changes        []FileChange `json:"changes"`
	ErrorMessage   string       `json:"error_message,omitempty"`
}

// AnalyzeImpact reports which files a rollback would change and their
// line-count deltas. It never mutates the filesystem.
func (s *Store) AnalyzeImpact(pointID string) Impact {
	s.mu.Lock()
	defer s.mu.Unlock()

	point, ok := s.points[pointID]
	if !ok {
		return Impact{
			PointID:      pointID,
			ErrorMessage: fmt.Sprintf("rollback point not found: %s", pointID),
		}
	}

	impact := Impact{
		CanRollback:   true,
		PointID:       pointID,
		FilesAffected: len(point.Snapshots),
		Changes:       []FileChange{},
	}

	for _, snap := range point.Snapshots {
		captured, err := os.ReadFile(snap.BackupPath)
		if err != nil {
			impact.Changes = append(impact.Changes, FileChange{
				File:        snap.Path,
				Type:        "error",
				Description: fmt.Sprintf("backup unreadable: %v", err),
			})
			continue
		}

		current, err := os.ReadFile(snap.Path)
		if err != nil {
			impact.Changes = append(impact.Changes, FileChange{
				File:        snap.Path,
				Type:        "missing",
				Description: "file will be restored from backup",
			})
			impact.FilesToRestore++
			continue
		}

		if string(current) == string(captured) {
			impact.Changes = append(impact.Changes, FileChange{
				File: snap.Path,
				Type: "unchanged",
			})
			continue
		}

		currentLines := countLines(current)
		snapshotLines := countLines(captured)
		impact.Changes = append(impact.Changes, FileChange{
			File:          snap.Path,
			Type:          "modified",
			CurrentLines:  currentLines,
			SnapshotLines: snapshotLines,
			LineDiff:      snapshotLines - currentLines,
		})
		impact.FilesToRestore++
	}

	return impact
}

func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
