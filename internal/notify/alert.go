package notify

import (
	"context"
	"sort"
	"time"

	"skipper/internal/ledger/auditlog"
	"skipper/internal/logger"
)

// Severity levels for alerts.
const (
	SeverityInfo     = "INFO"
	SeverityWarning  = "WARNING"
	SeverityCritical = "CRITICAL"
)

// Alert is one operator-facing event: a safety transition, a kill switch
// flip, a reconciliation failure, a quarantined proposal file.
type Alert struct {
	Severity string
	Kind     string
	Message  string
	Context  map[string]any
}

// Alerter fans alerts out to the text channel and the audit store. A send
// failure never fails the caller: the audit row is the durable record, the
// push is best-effort.
type Alerter struct {
	notifier TextNotifier
	audit    *auditlog.Store
	now      func() time.Time
}

func NewAlerter(notifier TextNotifier, audit *auditlog.Store) *Alerter {
	if notifier == nil {
		notifier = Nop{}
	}
	return &Alerter{notifier: notifier, audit: audit, now: time.Now}
}

// Send records and pushes one alert.
func (a *Alerter) Send(ctx context.Context, alert Alert) {
	if a.audit != nil {
		err := a.audit.AppendAlert(ctx, auditlog.AlertRecord{
			Severity:  alert.Severity,
			Kind:      alert.Kind,
			Message:   alert.Message,
			Context:   alert.Context,
			CreatedAt: a.now().Unix(),
		})
		if err != nil {
			logger.Errorf("告警写入审计库失败: %v", err)
		}
	}

	if err := a.notifier.SendText(renderAlert(alert, a.now())); err != nil {
		logger.Warnf("告警推送失败 (%s/%s): %v", alert.Severity, alert.Kind, err)
	}
}

func renderAlert(alert Alert, ts time.Time) string {
	icon := "ℹ️"
	switch alert.Severity {
	case SeverityWarning:
		icon = "⚠️"
	case SeverityCritical:
		icon = "🚨"
	}

	var lines []string
	keys := make([]string, 0, len(alert.Context))
	for k := range alert.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, KV(k, alert.Context[k]))
	}

	msg := StructuredMessage{
		Icon:      icon,
		Title:     alert.Kind,
		Sections:  []MessageSection{{Title: alert.Message, Lines: lines}},
		Timestamp: ts,
	}
	if len(lines) == 0 {
		msg.Sections = nil
		msg.Footer = alert.Message
	}
	return msg.RenderMarkdown()
}
