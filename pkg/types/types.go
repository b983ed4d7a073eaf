package types

import (
	"time"
)

// ErrorKind classifies a failure for routing and fingerprinting
type ErrorKind string

const (
	ErrorKindImport         ErrorKind = "ImportError"
	ErrorKindSyntax         ErrorKind = "SyntaxError"
	ErrorKindModuleNotFound ErrorKind = "ModuleNotFoundError"
	ErrorKindAttribute      ErrorKind = "AttributeError"
	ErrorKindType           ErrorKind = "TypeError"
	ErrorKindName           ErrorKind = "NameError"
	ErrorKindTimeout        ErrorKind = "Timeout"
	ErrorKindUnknown        ErrorKind = "Unknown"
)

// ErrorContext is the semantic description of a failure to be fixed
type ErrorContext struct {
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
	StackTrace string    `json:"stack_trace,omitempty"`
	SourceFile string    `json:"source_file,omitempty"`
}

// FixTask describes one fix request. Immutable once submitted.
type FixTask struct {
	ID            string       `json:"task_id"`
	Error         ErrorContext `json:"error_context"`
	AffectedFiles []string     `json:"affected_files"`
	Priority      int          `json:"priority"`
	MaxRetries    int          `json:"max_retries"`
}

// Strategy selects how a fix attempt is routed between workers
type Strategy string

const (
	StrategyLocalOnly   Strategy = "local_only"
	StrategyRemoteOnly  Strategy = "remote_only"
	StrategyLocalFirst  Strategy = "local_first"
	StrategyRemoteFirst Strategy = "remote_first"
	StrategyParallel    Strategy = "parallel"
	StrategyAdaptive    Strategy = "adaptive"
)

// ExecutionMode restricts which workers may be used
type ExecutionMode string

const (
	ModeLocal  ExecutionMode = "local"
	ModeRemote ExecutionMode = "remote"
	ModeHybrid ExecutionMode = "hybrid"
)

// Modification is one file change produced by a fix attempt
type Modification struct {
	Type        string `json:"type"`
	Path        string `json:"path,omitempty"`
	Content     string `json:"content,omitempty"`
	Description string `json:"description,omitempty"`
}

// TestResult summarizes a test run following a fix
type TestResult struct {
	Passed int `json:"passed"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// FailureRatio returns the fraction of tests that failed
func (t *TestResult) FailureRatio() float64 {
	if t == nil || t.Total == 0 {
		return 0
	}
	return float64(t.Failed) / float64(t.Total)
}

// OK reports whether the run had no failures
func (t *TestResult) OK() bool {
	return t == nil || t.Failed == 0
}

// FixResult is the outcome of one resolution attempt. Never mutated after
// it is returned to the caller.
type FixResult struct {
	Success       bool           `json:"success"`
	TaskID        string         `json:"task_id"`
	Strategy      Strategy       `json:"strategy_used"`
	Worker        string         `json:"worker_used"`
	Confidence    float64        `json:"confidence_score"`
	Duration      time.Duration  `json:"duration"`
	Modifications []Modification `json:"modifications,omitempty"`
	TestResult    *TestResult    `json:"test_result,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	CacheHit      bool           `json:"cache_hit"`
}

// Worker identities as reported in FixResult.Worker
const (
	WorkerLocal  = "local"
	WorkerRemote = "remote"
	WorkerCache  = "cache"
	WorkerNone   = "none"
)
