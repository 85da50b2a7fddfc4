package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"daily-coin-report/internal/app"
	"daily-coin-report/internal/storage"
)

var runDate string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the daily pipeline once",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runDate != "" {
			if _, err := time.Parse(storage.DateLayout, runDate); err != nil {
				return fmt.Errorf("invalid --date value: %w", err)
			}
		}

		return getApp().RunDaily(cmd.Context(), app.RunOptions{Date: runDate})
	},
}

func init() {
	runCmd.Flags().StringVar(&runDate, "date", "", "Record date (YYYY-MM-DD, defaults to today UTC)")
}
