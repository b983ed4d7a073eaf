package config

import (
	"time"

	"github.com/mendhq/mend/pkg/types"
)

// Default returns a Config populated with the built-in defaults
func Default() *Config {
	return &Config{
		DataDir: ".mend",
		Log: LogConfig{
			Level: "info",
		},
		Cache: CacheConfig{
			SimilarityThreshold:  0.85,
			EMAAlpha:             0.3,
			MaxEntries:           1000,
			DefaultTTL:           168 * time.Hour,
			PruneMinApplications: 5,
			PruneMaxSuccessRate:  0.3,
		},
		Snapshot: SnapshotConfig{
			MaxRollbackPoints: 100,
			MaxHistory:        100,
			CriticalKinds: []types.ErrorKind{
				types.ErrorKindSyntax,
				types.ErrorKindImport,
				types.ErrorKindModuleNotFound,
				types.ErrorKindAttribute,
			},
			FailureThreshold: 0.5,
			StampRevision:    true,
		},
		Orchestrator: OrchestratorConfig{
			Strategy:            types.StrategyAdaptive,
			Mode:                types.ModeHybrid,
			MaxRetries:          3,
			RetryInterval:       5 * time.Second,
			LocalTimeout:        30 * time.Second,
			RemoteTimeout:       120 * time.Second,
			ConfidenceThreshold: 0.7,
		},
		API: APIConfig{
			ListenAddr: "127.0.0.1:9620",
		},
	}
}
