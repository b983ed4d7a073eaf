package main

import (
	"fmt"

	"github.com/mendhq/mend/pkg/config"
	"github.com/mendhq/mend/pkg/fixcache"
	"github.com/mendhq/mend/pkg/orchestrator"
	"github.com/mendhq/mend/pkg/snapshot"
	"github.com/mendhq/mend/pkg/types"
	"github.com/mendhq/mend/pkg/worker"
)

func openCache(cfg *config.Config) (*fixcache.Cache, error) {
	return fixcache.Open(cfg.DataDir, fixcache.Options{
		SimilarityThreshold:  cfg.Cache.SimilarityThreshold,
		EMAAlpha:             cfg.Cache.EMAAlpha,
		MaxEntries:           cfg.Cache.MaxEntries,
		DefaultTTL:           cfg.Cache.DefaultTTL,
		PruneMinApplications: cfg.Cache.PruneMinApplications,
		PruneMaxSuccessRate:  cfg.Cache.PruneMaxSuccessRate,
	})
}

func openSnapshots(cfg *config.Config) (*snapshot.Store, error) {
	return snapshot.Open(cfg.DataDir, snapshot.Options{
		MaxRollbackPoints: cfg.Snapshot.MaxRollbackPoints,
		MaxHistory:        cfg.Snapshot.MaxHistory,
		CriticalKinds:     cfg.Snapshot.CriticalKinds,
		FailureThreshold:  cfg.Snapshot.FailureThreshold,
		StampRevision:     cfg.Snapshot.StampRevision,
	})
}

// buildDeps assembles the orchestrator collaborators described by the
// workers configuration. Unconfigured workers stay nil.
func buildDeps(cfg *config.Config, deps *orchestrator.Deps) error {
	if len(cfg.Workers.LocalCommand) > 0 {
		w, err := worker.NewCommandWorker(types.WorkerLocal, cfg.Workers.LocalCommand)
		if err != nil {
			return fmt.Errorf("failed to build local worker: %w", err)
		}
		deps.Local = w
	}

	if cfg.Workers.RemoteURL != "" {
		deps.Remote = worker.NewHTTPWorker(types.WorkerRemote, cfg.Workers.RemoteURL)
	}

	if len(cfg.Workers.TestCommand) > 0 {
		r, err := worker.NewCommandRunner(cfg.Workers.TestCommand)
		if err != nil {
			return fmt.Errorf("failed to build test runner: %w", err)
		}
		deps.Tests = r
	}

	if deps.Local == nil && deps.Remote == nil {
		return fmt.Errorf("no workers configured: set workers.local_command or workers.remote_url")
	}
	return nil
}

func orchestratorOptions(cfg *config.Config) orchestrator.Options {
	return orchestrator.Options{
		Strategy:            cfg.Orchestrator.Strategy,
		Mode:                cfg.Orchestrator.Mode,
		MaxRetries:          cfg.Orchestrator.MaxRetries,
		RetryInterval:       cfg.Orchestrator.RetryInterval,
		LocalTimeout:        cfg.Orchestrator.LocalTimeout,
		RemoteTimeout:       cfg.Orchestrator.RemoteTimeout,
		ConfidenceThreshold: cfg.Orchestrator.ConfidenceThreshold,
	}
}
