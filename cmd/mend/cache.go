package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the fix cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache effectiveness statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		cache, err := openCache(cfg)
		if err != nil {
			return fmt.Errorf("failed to open fix cache: %w", err)
		}
		defer cache.Close()

		return printJSON(cache.Stats())
	},
}

var cachePatternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Show the most frequent error patterns",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")

		cache, err := openCache(cfg)
		if err != nil {
			return fmt.Errorf("failed to open fix cache: %w", err)
		}
		defer cache.Close()

		return printJSON(cache.FrequentPatterns(limit))
	},
}

var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		cache, err := openCache(cfg)
		if err != nil {
			return fmt.Errorf("failed to open fix cache: %w", err)
		}
		defer cache.Close()

		removed := cache.CleanupExpired()
		fmt.Printf("Removed %d expired entries\n", removed)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePatternsCmd)
	cacheCmd.AddCommand(cacheCleanupCmd)

	cachePatternsCmd.Flags().Int("limit", 10, "Maximum patterns to show")
}
