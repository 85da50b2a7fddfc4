// Package alerting delivers the finished daily report by email.
package alerting

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"daily-coin-report/internal/anomaly"
	"daily-coin-report/internal/storage"
)

// Notification carries everything the daily mail needs.
type Notification struct {
	Date       string
	Record     storage.Record
	Findings   []anomaly.Finding
	Summary    string
	ReportName string
	Report     []byte
}

// Notifier delivers a daily notification.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// EmailOptions parameterise SMTP delivery.
type EmailOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	Timeout  time.Duration
}

// EmailNotifier sends the report mail over SMTP with STARTTLS.
type EmailNotifier struct {
	opts   EmailOptions
	logger zerolog.Logger
}

// NewEmailNotifier constructs an email notifier.
func NewEmailNotifier(opts EmailOptions, logger zerolog.Logger) *EmailNotifier {
	if opts.Port <= 0 {
		opts.Port = 587
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	return &EmailNotifier{
		opts:   opts,
		logger: logger.With().Str("component", "email_notifier").Logger(),
	}
}

// Notify builds and sends the daily mail. Delivery failure is reported to the
// caller; the orchestrator treats it as non-fatal.
func (n *EmailNotifier) Notify(ctx context.Context, note Notification) error {
	if n.opts.Host == "" {
		return fmt.Errorf("smtp host not configured")
	}
	if n.opts.From == "" || len(n.opts.To) == 0 {
		return fmt.Errorf("smtp sender and recipients required")
	}

	message, err := buildMessage(n.opts.From, n.opts.To, note)
	if err != nil {
		return fmt.Errorf("build mail: %w", err)
	}

	if err := n.send(ctx, message); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	n.logger.Info().Str("date", note.Date).
		Int("anomalies", len(note.Findings)).
		Int("recipients", len(n.opts.To)).
		Msg("daily report mail sent")
	return nil
}

func (n *EmailNotifier) send(ctx context.Context, message []byte) error {
	addr := fmt.Sprintf("%s:%d", n.opts.Host, n.opts.Port)

	dialer := net.Dialer{Timeout: n.opts.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(n.opts.Timeout))
	}

	client, err := smtp.NewClient(conn, n.opts.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: n.opts.Host}); err != nil {
			return err
		}
	}

	if n.opts.Username != "" {
		auth := smtp.PlainAuth("", n.opts.Username, n.opts.Password, n.opts.Host)
		if err := client.Auth(auth); err != nil {
			return err
		}
	}

	if err := client.Mail(n.opts.From); err != nil {
		return err
	}
	for _, rcpt := range n.opts.To {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}

	writer, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := writer.Write(message); err != nil {
		writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	return client.Quit()
}

// Subject returns the per-date subject line, varying with anomaly presence.
func Subject(note Notification) string {
	coin := note.Record.Coin
	if coin == "" {
		coin = "coin"
	}
	if len(note.Findings) > 0 {
		return fmt.Sprintf("%s daily report - anomalies detected (%s)", coin, note.Date)
	}
	return fmt.Sprintf("%s daily report - no anomalies (%s)", coin, note.Date)
}

func renderBody(note Notification) (string, error) {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("DAILY %s REPORT - %s\n\n", strings.ToUpper(note.Record.Coin), note.Date))

	builder.WriteString("==============================\n")
	builder.WriteString("Summary\n")
	builder.WriteString("==============================\n")
	builder.WriteString(note.Summary)
	builder.WriteString("\n\n")

	builder.WriteString("==============================\n")
	builder.WriteString("Anomalies\n")
	builder.WriteString("==============================\n")
	if len(note.Findings) > 0 {
		for _, f := range note.Findings {
			builder.WriteString(fmt.Sprintf("- Metric: %s\n", f.Metric))
			builder.WriteString(fmt.Sprintf("  Today: %s\n", f.TodayValue.String()))
			builder.WriteString(fmt.Sprintf("  Yesterday: %s\n", f.YesterdayValue.String()))
			builder.WriteString(fmt.Sprintf("  Change: %s%%\n", f.ChangePct.String()))
			builder.WriteString(fmt.Sprintf("  Note: %s\n\n", f.Note))
		}
	} else {
		builder.WriteString("No anomalies detected today. All metrics look stable.\n\n")
	}

	builder.WriteString("==============================\n")
	builder.WriteString("Record Snapshot\n")
	builder.WriteString("==============================\n")

	recordJSON, err := json.MarshalIndent(recordSnapshot(note.Record), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal record snapshot: %w", err)
	}
	builder.Write(recordJSON)
	builder.WriteString("\n")

	return builder.String(), nil
}

func recordSnapshot(record storage.Record) map[string]any {
	snapshot := map[string]any{
		"date": record.Date,
		"coin": record.Coin,
	}
	setDecimal := func(key string, v interface{ String() string }) {
		snapshot[key] = v.String()
	}
	if record.PriceUSD != nil {
		setDecimal("price_usd", record.PriceUSD)
	}
	if record.MarketCapUSD != nil {
		setDecimal("market_cap_usd", record.MarketCapUSD)
	}
	if record.Volume24hUSD != nil {
		setDecimal("volume_24h_usd", record.Volume24hUSD)
	}
	if record.PriceChangePct24h != nil {
		setDecimal("price_change_pct_24h", record.PriceChangePct24h)
	}
	return snapshot
}

// buildMessage assembles a multipart MIME message with the plain-text body
// and the report document attached.
func buildMessage(from string, to []string, note Notification) ([]byte, error) {
	body, err := renderBody(note)
	if err != nil {
		return nil, err
	}

	boundary := fmt.Sprintf("coinreport-%d", time.Now().UnixNano())

	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("From: %s\r\n", from))
	builder.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(to, ", ")))
	builder.WriteString(fmt.Sprintf("Subject: %s\r\n", Subject(note)))
	builder.WriteString("MIME-Version: 1.0\r\n")
	builder.WriteString(fmt.Sprintf("Content-Type: multipart/mixed; boundary=%q\r\n", boundary))
	builder.WriteString("\r\n")

	builder.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	builder.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	builder.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	builder.WriteString(body)
	builder.WriteString("\r\n")

	if len(note.Report) > 0 {
		name := note.ReportName
		if name == "" {
			name = fmt.Sprintf("report_%s.html", note.Date)
		}

		builder.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		builder.WriteString("Content-Type: application/octet-stream\r\n")
		builder.WriteString("Content-Transfer-Encoding: base64\r\n")
		builder.WriteString(fmt.Sprintf("Content-Disposition: attachment; filename=%q\r\n\r\n", name))

		encoded := base64.StdEncoding.EncodeToString(note.Report)
		for len(encoded) > 76 {
			builder.WriteString(encoded[:76])
			builder.WriteString("\r\n")
			encoded = encoded[76:]
		}
		builder.WriteString(encoded)
		builder.WriteString("\r\n")
	}

	builder.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
	return []byte(builder.String()), nil
}

var _ Notifier = (*EmailNotifier)(nil)
