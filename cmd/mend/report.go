package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Fetch a performance report from a running daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		period, _ := cmd.Flags().GetString("period")
		if _, err := time.ParseDuration(period); err != nil {
			return fmt.Errorf("invalid period %q: %w", period, err)
		}

		endpoint := url.URL{
			Scheme:   "http",
			Host:     cfg.API.ListenAddr,
			Path:     "/report",
			RawQuery: url.Values{"period": {period}}.Encode(),
		}

		client := &http.Client{Timeout: 10 * time.Second}
		resp, err := client.Get(endpoint.String())
		if err != nil {
			return fmt.Errorf("failed to reach daemon at %s: %w", cfg.API.ListenAddr, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read report: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, body)
		}

		fmt.Println(string(body))
		return nil
	},
}

func init() {
	reportCmd.Flags().String("period", "24h", "Report window (Go duration)")
}
