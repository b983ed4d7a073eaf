package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/mendhq/mend/pkg/api"
	"github.com/mendhq/mend/pkg/log"
	"github.com/mendhq/mend/pkg/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Mend observability daemon",
	Long: `Run the Mend daemon: opens the fix cache and snapshot store, locks
the data directory against a second instance, and serves health,
metrics, dashboard and report endpoints over HTTP.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return fmt.Errorf("failed to create data dir: %w", err)
		}

		// One instance owns the data dir exclusively.
		lock := flock.New(filepath.Join(cfg.DataDir, "mend.lock"))
		ok, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("failed to acquire data dir lock: %w", err)
		}
		if !ok {
			return errors.New("another mend instance is already running")
		}
		defer func() { _ = lock.Unlock() }()

		cache, err := openCache(cfg)
		if err != nil {
			return fmt.Errorf("failed to open fix cache: %w", err)
		}
		defer cache.Close()
		metrics.RegisterComponent("cache", true, "")

		snapshots, err := openSnapshots(cfg)
		if err != nil {
			return fmt.Errorf("failed to open snapshot store: %w", err)
		}
		defer snapshots.Close()
		metrics.RegisterComponent("snapshot", true, "")

		recorder := metrics.NewRecorder()

		collector := metrics.NewCollector(cache, snapshots)
		collector.Start()
		defer collector.Stop()

		metrics.SetVersion(Version)
		server := api.NewServer(cfg.API.ListenAddr, recorder, snapshots)
		server.Start()

		log.WithComponent("serve").Info().
			Str("data_dir", cfg.DataDir).
			Str("listen_addr", cfg.API.ListenAddr).
			Msg("Mend daemon started")

		// Wait for interrupt signal
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		log.WithComponent("serve").Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithComponent("serve").Warn().Err(err).Msg("API shutdown failed")
		}
		return nil
	},
}
