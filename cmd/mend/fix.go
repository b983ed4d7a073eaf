package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mendhq/mend/pkg/metrics"
	"github.com/mendhq/mend/pkg/orchestrator"
	"github.com/mendhq/mend/pkg/types"
)

var fixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Resolve one error through the fix pipeline",
	Long: `Resolve a single error context: check the fix cache, route the task
to the configured workers, and print the resolution as JSON.

Example:

  mend fix --kind ImportError \
    --message "No module named 'requests'" \
    --file app.py --file lib/http.py`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		kind, _ := cmd.Flags().GetString("kind")
		message, _ := cmd.Flags().GetString("message")
		stackTrace, _ := cmd.Flags().GetString("stack-trace")
		sourceFile, _ := cmd.Flags().GetString("source-file")
		files, _ := cmd.Flags().GetStringArray("file")
		retries, _ := cmd.Flags().GetInt("retries")

		if message == "" {
			return fmt.Errorf("--message is required")
		}

		cache, err := openCache(cfg)
		if err != nil {
			return fmt.Errorf("failed to open fix cache: %w", err)
		}
		defer cache.Close()

		snapshots, err := openSnapshots(cfg)
		if err != nil {
			return fmt.Errorf("failed to open snapshot store: %w", err)
		}
		defer snapshots.Close()

		deps := orchestrator.Deps{
			Cache:     cache,
			Snapshots: snapshots,
			Recorder:  metrics.NewRecorder(),
		}
		if err := buildDeps(cfg, &deps); err != nil {
			return err
		}

		o := orchestrator.New(orchestratorOptions(cfg), deps)

		task := types.FixTask{
			Error: types.ErrorContext{
				Kind:       types.ErrorKind(kind),
				Message:    message,
				StackTrace: stackTrace,
				SourceFile: sourceFile,
			},
			AffectedFiles: files,
			MaxRetries:    retries,
		}

		result := o.Fix(context.Background(), task)
		if err := printJSON(result); err != nil {
			return err
		}

		if !result.Success {
			return fmt.Errorf("fix failed: %s", result.ErrorMessage)
		}
		return nil
	},
}

func init() {
	fixCmd.Flags().String("kind", string(types.ErrorKindUnknown), "Error kind (e.g. ImportError, SyntaxError)")
	fixCmd.Flags().String("message", "", "Error message (required)")
	fixCmd.Flags().String("stack-trace", "", "Stack trace text")
	fixCmd.Flags().String("source-file", "", "File the error originated from")
	fixCmd.Flags().StringArray("file", nil, "Affected file (repeatable)")
	fixCmd.Flags().Int("retries", 0, "Max retries (0 uses the configured default)")
}
