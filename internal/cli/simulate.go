package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulatePrev  float64
	simulateToday float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the anomaly detector against synthetic prices",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePrev <= 0 || simulateToday <= 0 {
			return errors.New("--prev and --today must be greater than 0")
		}

		prev := decimal.NewFromFloat(simulatePrev)
		today := decimal.NewFromFloat(simulateToday)
		return getApp().SimulateDetection(cmd.Context(), prev, today)
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulatePrev, "prev", 0, "Yesterday's price in USD")
	simulateCmd.Flags().Float64Var(&simulateToday, "today", 0, "Today's price in USD")
}
