package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/events"
)

// Dialer is the subset of *gomail.Dialer the channel needs.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// MailChannel emails escalations and SLA breaches to a fixed distribution
// list. Other events are ignored.
type MailChannel struct {
	dialer Dialer
	from   string
	to     []string
	logger *zap.Logger
}

// NewMailChannel builds a channel sending through the configured SMTP relay.
func NewMailChannel(cfg config.NotificationConfig, logger *zap.Logger) *MailChannel {
	logger.Info("mail notification channel created",
		zap.String("host", cfg.SMTPHost),
		zap.Int("port", cfg.SMTPPort),
		zap.Int("receivers", len(cfg.EmailTo)))
	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
	return NewMailChannelWithDialer(dialer, cfg.EmailFrom, cfg.EmailTo, logger)
}

// NewMailChannelWithDialer wraps an existing dialer.
func NewMailChannelWithDialer(dialer Dialer, from string, to []string, logger *zap.Logger) *MailChannel {
	return &MailChannel{dialer: dialer, from: from, to: to, logger: logger}
}

func (m *MailChannel) Name() string { return "email" }

// Deliver sends the event when it is one worth a human's attention.
func (m *MailChannel) Deliver(_ context.Context, event events.Event) error {
	if len(m.to) == 0 {
		return nil
	}
	subject, body, ok := render(event)
	if !ok {
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("Bcc", m.to...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	m.logger.Debug("notification mail sent",
		zap.String("event_type", string(event.Type)),
		zap.String("issue_id", event.IssueID))
	return nil
}

func render(event events.Event) (string, string, bool) {
	switch payload := event.Payload.(type) {
	case events.IssueEscalatedPayload:
		subject := fmt.Sprintf("[helpdesk] Issue %s escalated %s -> %s", event.IssueID, payload.FromLevel, payload.ToLevel)
		var b strings.Builder
		fmt.Fprintf(&b, "Issue: %s\n", event.IssueID)
		fmt.Fprintf(&b, "From level: %s\n", payload.FromLevel)
		fmt.Fprintf(&b, "To level: %s\n", payload.ToLevel)
		fmt.Fprintf(&b, "Reason: %s\n", payload.Reason)
		fmt.Fprintf(&b, "Escalated by: %s\n", event.ActorID)
		fmt.Fprintf(&b, "Escalation count: %d\n", payload.EscalationCount)
		return subject, b.String(), true
	case events.SLABreachedPayload:
		subject := fmt.Sprintf("[helpdesk] %s SLA breached on issue %s", strings.ToLower(string(payload.Kind)), event.IssueID)
		var b strings.Builder
		fmt.Fprintf(&b, "Issue: %s\n", event.IssueID)
		fmt.Fprintf(&b, "Budget: %s, %d minutes\n", payload.Kind, payload.TargetMinutes)
		fmt.Fprintf(&b, "Breached at: %s\n", payload.BreachedAt.Format("2006-01-02 15:04:05 MST"))
		return subject, b.String(), true
	}
	return "", "", false
}
