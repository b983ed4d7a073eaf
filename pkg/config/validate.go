package config

import (
	"fmt"

	"github.com/mendhq/mend/pkg/types"
)

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}

	if c.Cache.SimilarityThreshold < 0 || c.Cache.SimilarityThreshold > 1 {
		return fmt.Errorf("cache.similarity_threshold must be in [0,1], got %v", c.Cache.SimilarityThreshold)
	}
	if c.Cache.EMAAlpha <= 0 || c.Cache.EMAAlpha > 1 {
		return fmt.Errorf("cache.ema_alpha must be in (0,1], got %v", c.Cache.EMAAlpha)
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be positive, got %d", c.Cache.MaxEntries)
	}
	if c.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("cache.default_ttl must be positive, got %v", c.Cache.DefaultTTL)
	}

	if c.Snapshot.MaxRollbackPoints <= 0 {
		return fmt.Errorf("snapshot.max_rollback_points must be positive, got %d", c.Snapshot.MaxRollbackPoints)
	}
	if c.Snapshot.FailureThreshold < 0 || c.Snapshot.FailureThreshold > 1 {
		return fmt.Errorf("snapshot.failure_threshold must be in [0,1], got %v", c.Snapshot.FailureThreshold)
	}

	switch c.Orchestrator.Strategy {
	case types.StrategyLocalOnly, types.StrategyRemoteOnly,
		types.StrategyLocalFirst, types.StrategyRemoteFirst,
		types.StrategyParallel, types.StrategyAdaptive:
	default:
		return fmt.Errorf("unknown orchestrator.strategy %q", c.Orchestrator.Strategy)
	}

	switch c.Orchestrator.Mode {
	case types.ModeLocal, types.ModeRemote, types.ModeHybrid:
	default:
		return fmt.Errorf("unknown orchestrator.mode %q", c.Orchestrator.Mode)
	}

	if c.Orchestrator.MaxRetries <= 0 {
		return fmt.Errorf("orchestrator.max_retries must be positive, got %d", c.Orchestrator.MaxRetries)
	}
	if c.Orchestrator.ConfidenceThreshold < 0 || c.Orchestrator.ConfidenceThreshold > 1 {
		return fmt.Errorf("orchestrator.confidence_threshold must be in [0,1], got %v", c.Orchestrator.ConfidenceThreshold)
	}
	if c.Orchestrator.LocalTimeout <= 0 || c.Orchestrator.RemoteTimeout <= 0 {
		return fmt.Errorf("orchestrator worker timeouts must be positive")
	}

	return nil
}
