package snapshot

import (
	"github.com/mendhq/mend/pkg/log"
	"github.com/mendhq/mend/pkg/types"
)

// ShouldAutoRollback decides whether a just-applied fix warrants
// rolling back: true when the error kind is in the configured critical
// set, or when the test failure ratio exceeds the configured threshold.
// This is a pure policy query; the store never rolls back on its own.
func (s *Store) ShouldAutoRollback(ec types.ErrorContext, tests *types.TestResult) bool {
	if _, critical := s.critical[ec.Kind]; critical {
		log.WithComponent("snapshot").Warn().
			Str("kind", string(ec.Kind)).
			Msg("Critical error kind, rollback advised")
		return true
	}

	if tests != nil && tests.Total > 0 && tests.FailureRatio() > s.opts.FailureThreshold {
		log.WithComponent("snapshot").Warn().
			Int("failed", tests.Failed).
			Int("total", tests.Total).
			Msg("High test failure ratio, rollback advised")
		return true
	}

	return false
}
