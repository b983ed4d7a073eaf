package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mendhq/mend/pkg/types"
	"gopkg.in/yaml.v3"
)

// Config is the top-level Mend configuration
type Config struct {
	DataDir string `yaml:"data_dir"`

	Log          LogConfig          `yaml:"log"`
	Cache        CacheConfig        `yaml:"cache"`
	Snapshot     SnapshotConfig     `yaml:"snapshot"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Workers      WorkersConfig      `yaml:"workers"`
	API          APIConfig          `yaml:"api"`
}

// LogConfig controls logging output
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig tunes the fix cache
type CacheConfig struct {
	// SimilarityThreshold is the minimum Jaccard overlap for a
	// same-kind entry to count as a hit when the exact fingerprint
	// misses.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// EMAAlpha weights the newest outcome in the success-rate
	// exponential moving average.
	EMAAlpha float64 `yaml:"ema_alpha"`

	// MaxEntries bounds the entry table; least-recently-used entries
	// are evicted beyond it.
	MaxEntries int `yaml:"max_entries"`

	// DefaultTTL is applied when a caller does not supply one.
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// PruneMinApplications and PruneMaxSuccessRate drop entries that
	// have been applied often enough to be judged and keep failing.
	PruneMinApplications int     `yaml:"prune_min_applications"`
	PruneMaxSuccessRate  float64 `yaml:"prune_max_success_rate"`
}

// SnapshotConfig tunes the rollback store
type SnapshotConfig struct {
	// MaxRollbackPoints bounds retained points; the oldest is evicted
	// once the count exceeds it.
	MaxRollbackPoints int `yaml:"max_rollback_points"`

	// MaxHistory bounds the retained rollback operation history.
	MaxHistory int `yaml:"max_history"`

	// CriticalKinds trigger auto-rollback policy regardless of test
	// outcome.
	CriticalKinds []types.ErrorKind `yaml:"critical_kinds"`

	// FailureThreshold is the test failure ratio above which the
	// auto-rollback policy fires.
	FailureThreshold float64 `yaml:"failure_threshold"`

	// StampRevision controls whether capture records the current git
	// revision when one is available.
	StampRevision bool `yaml:"stamp_revision"`
}

// OrchestratorConfig tunes strategy selection and retries
type OrchestratorConfig struct {
	Strategy            types.Strategy      `yaml:"strategy"`
	Mode                types.ExecutionMode `yaml:"mode"`
	MaxRetries          int                 `yaml:"max_retries"`
	RetryInterval       time.Duration       `yaml:"retry_interval"`
	LocalTimeout        time.Duration       `yaml:"local_timeout"`
	RemoteTimeout       time.Duration       `yaml:"remote_timeout"`
	ConfidenceThreshold float64             `yaml:"confidence_threshold"`
}

// WorkersConfig describes the external fix workers and test runner
type WorkersConfig struct {
	// LocalCommand is the argv of the local fixer process.
	LocalCommand []string `yaml:"local_command"`

	// RemoteURL is the endpoint of the remote fixer.
	RemoteURL string `yaml:"remote_url"`

	// TestCommand is the argv of the test runner; empty disables test
	// validation.
	TestCommand []string `yaml:"test_command"`
}

// APIConfig controls the HTTP observability surface
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Load reads configuration from a YAML file, applying defaults for any
// fields the file omits
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
