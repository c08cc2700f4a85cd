package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPNotifier emails a plain rendering of each ledger event. The recipient
// comes from the event context ("email" key); events without one are
// silently skipped.
type SMTPNotifier struct {
	cfg SMTPConfig
}

func NewSMTP(cfg SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg}
}

func (n *SMTPNotifier) DispatchEvent(ctx context.Context, eventType string, eventContext map[string]any) error {
	_ = ctx
	to, _ := eventContext["email"].(string)
	if to == "" {
		return nil
	}

	subject := subjectFor(eventType)
	var body strings.Builder
	for key, value := range eventContext {
		if key == "email" {
			continue
		}
		fmt.Fprintf(&body, "%s: %v\r\n", key, value)
	}

	auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\n\r\n%s", to, subject, body.String()))
	return smtp.SendMail(addr, auth, n.cfg.From, []string{to}, msg)
}

func subjectFor(eventType string) string {
	switch eventType {
	case "payment_completed":
		return "Payment received"
	case "payment_failed":
		return "Payment failed"
	case "invoice_issued":
		return "New invoice"
	case "reward_earned":
		return "You earned a reward"
	default:
		return "Account update"
	}
}
