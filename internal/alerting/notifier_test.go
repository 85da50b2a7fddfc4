package alerting

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"daily-coin-report/internal/anomaly"
	"daily-coin-report/internal/storage"
)

func testNotification(findings []anomaly.Finding) Notification {
	price := decimal.NewFromInt(53000)
	return Notification{
		Date: "2025-03-02",
		Record: storage.Record{
			Date:     "2025-03-02",
			Coin:     "bitcoin",
			PriceUSD: &price,
		},
		Findings: findings,
		Summary:  "Price fell sharply today.",
	}
}

func priceFinding() anomaly.Finding {
	return anomaly.Finding{
		Metric:         anomaly.MetricPrice,
		TodayValue:     decimal.NewFromInt(53000),
		YesterdayValue: decimal.NewFromInt(60000),
		ChangePct:      decimal.NewFromFloat(11.67),
		Note:           "Unusual price movement (>10%)",
	}
}

func TestSubjectVariesWithFindings(t *testing.T) {
	withAnomalies := Subject(testNotification([]anomaly.Finding{priceFinding()}))
	if !strings.Contains(withAnomalies, "anomalies detected") || !strings.Contains(withAnomalies, "2025-03-02") {
		t.Fatalf("unexpected anomaly subject: %q", withAnomalies)
	}

	stable := Subject(testNotification(nil))
	if !strings.Contains(stable, "no anomalies") {
		t.Fatalf("unexpected stable subject: %q", stable)
	}
}

func TestRenderBodyWithFindings(t *testing.T) {
	body, err := renderBody(testNotification([]anomaly.Finding{priceFinding()}))
	if err != nil {
		t.Fatalf("renderBody failed: %v", err)
	}

	for _, want := range []string{
		"Price fell sharply today.",
		"Metric: price",
		"Today: 53000",
		"Yesterday: 60000",
		"Change: 11.67%",
		`"price_usd": "53000"`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
}

func TestRenderBodyStableStatement(t *testing.T) {
	body, err := renderBody(testNotification(nil))
	if err != nil {
		t.Fatalf("renderBody failed: %v", err)
	}
	if !strings.Contains(body, "No anomalies detected today. All metrics look stable.") {
		t.Fatalf("stable body must state stability explicitly:\n%s", body)
	}
}

func TestBuildMessageAttachesReport(t *testing.T) {
	note := testNotification(nil)
	note.Report = []byte("<html>report</html>")
	note.ReportName = "report_2025-03-02.html"

	message, err := buildMessage("from@example.com", []string{"to@example.com"}, note)
	if err != nil {
		t.Fatalf("buildMessage failed: %v", err)
	}

	text := string(message)
	for _, want := range []string{
		"From: from@example.com",
		"To: to@example.com",
		"multipart/mixed",
		`attachment; filename="report_2025-03-02.html"`,
		"Content-Transfer-Encoding: base64",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("message missing %q", want)
		}
	}
	if strings.Contains(text, "<html>report</html>") {
		t.Fatal("attachment must be base64 encoded, not inlined")
	}
}

func TestBuildMessageWithoutReport(t *testing.T) {
	message, err := buildMessage("from@example.com", []string{"to@example.com"}, testNotification(nil))
	if err != nil {
		t.Fatalf("buildMessage failed: %v", err)
	}
	if strings.Contains(string(message), "attachment") {
		t.Fatal("no attachment part expected without a report document")
	}
}
