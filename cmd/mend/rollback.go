package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Inspect and restore rollback points",
}

var rollbackListCmd = &cobra.Command{
	Use:   "list",
	Short: "List retained rollback points, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		tags, _ := cmd.Flags().GetStringArray("tag")
		limit, _ := cmd.Flags().GetInt("limit")

		snapshots, err := openSnapshots(cfg)
		if err != nil {
			return fmt.Errorf("failed to open snapshot store: %w", err)
		}
		defer snapshots.Close()

		return printJSON(snapshots.List(tags, limit))
	},
}

var rollbackRestoreCmd = &cobra.Command{
	Use:   "restore [POINT_ID]",
	Short: "Restore files from a rollback point",
	Long: `Restore files from a rollback point, selected by id, by --revision
prefix, or by --nearest timestamp (RFC3339). With --dry-run the
command only reports which files a restore would change.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		revision, _ := cmd.Flags().GetString("revision")
		nearest, _ := cmd.Flags().GetString("nearest")

		snapshots, err := openSnapshots(cfg)
		if err != nil {
			return fmt.Errorf("failed to open snapshot store: %w", err)
		}
		defer snapshots.Close()

		switch {
		case len(args) == 1:
			return printJSON(snapshots.Restore(args[0], dryRun))
		case revision != "":
			return printJSON(snapshots.RestoreByRevision(revision))
		case nearest != "":
			target, err := parseTime(nearest)
			if err != nil {
				return err
			}
			return printJSON(snapshots.RestoreNearest(target))
		default:
			return fmt.Errorf("specify a point id, --revision or --nearest")
		}
	},
}

var rollbackImpactCmd = &cobra.Command{
	Use:   "impact POINT_ID",
	Short: "Show what restoring a rollback point would change",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		snapshots, err := openSnapshots(cfg)
		if err != nil {
			return fmt.Errorf("failed to open snapshot store: %w", err)
		}
		defer snapshots.Close()

		return printJSON(snapshots.AnalyzeImpact(args[0]))
	},
}

var rollbackHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent rollback operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		snapshots, err := openSnapshots(cfg)
		if err != nil {
			return fmt.Errorf("failed to open snapshot store: %w", err)
		}
		defer snapshots.Close()

		return printJSON(snapshots.History())
	},
}

func init() {
	rollbackCmd.AddCommand(rollbackListCmd)
	rollbackCmd.AddCommand(rollbackRestoreCmd)
	rollbackCmd.AddCommand(rollbackImpactCmd)
	rollbackCmd.AddCommand(rollbackHistoryCmd)

	rollbackListCmd.Flags().StringArray("tag", nil, "Filter by tag (repeatable)")
	rollbackListCmd.Flags().Int("limit", 0, "Maximum points to show (0 = all)")

	rollbackRestoreCmd.Flags().Bool("dry-run", false, "Report changes without writing")
	rollbackRestoreCmd.Flags().String("revision", "", "Select by revision id prefix")
	rollbackRestoreCmd.Flags().String("nearest", "", "Select by nearest RFC3339 timestamp")
}
