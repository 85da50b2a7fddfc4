package app

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"daily-coin-report/internal/service"
)

// SimulateDetection runs the anomaly detector against a synthetic two-day
// price history and reports the findings. No database needed.
func (a *App) SimulateDetection(ctx context.Context, prevPrice, todayPrice decimal.Decimal) error {
	svc := service.New(
		a.Config,
		nil,
		nil,
		nil,
		nil,
		nil,
		nil,
		a.newNotifier(),
		a.Logger,
	)

	findings, err := svc.SimulateDetection(ctx, prevPrice, todayPrice)
	if err != nil {
		return err
	}

	if len(findings) == 0 {
		fmt.Fprintln(os.Stdout, "no anomalies detected")
		return nil
	}

	for _, finding := range findings {
		fmt.Fprintf(os.Stdout, "%s: %s (change %s%%)\n", finding.Metric, finding.Note, finding.ChangePct.String())
	}
	return nil
}
