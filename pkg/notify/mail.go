// Package notify delivers run results to people. Currently email only.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/arvelex/veriplan/pkg/model"
	"github.com/arvelex/veriplan/pkg/report"
)

// Mailer emails the rendered run report. It is a report sink and follows the
// same isolation rule as every sink: a delivery failure never changes the
// run outcome.
type Mailer struct {
	Host     string // host:port
	From     string
	To       []string
	Username string
	Password string

	// send is swappable for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailer creates a mailer; auth is skipped when Username is empty.
func NewMailer(host, from string, to []string, username, password string) *Mailer {
	return &Mailer{
		Host:     host,
		From:     from,
		To:       to,
		Username: username,
		Password: password,
		send:     smtp.SendMail,
	}
}

func (m *Mailer) Name() string { return "mail" }

// Publish sends one message per run with the text report in the body.
func (m *Mailer) Publish(ctx context.Context, rep *model.RunReport) error {
	if len(m.To) == 0 {
		return fmt.Errorf("mail: no recipients")
	}
	var auth smtp.Auth
	if m.Username != "" {
		host := m.Host
		if idx := strings.Index(host, ":"); idx >= 0 {
			host = host[:idx]
		}
		auth = smtp.PlainAuth("", m.Username, m.Password, host)
	}

	subject := fmt.Sprintf("[veriplan] %s %s (run %s)", rep.TestCaseID, strings.ToUpper(string(rep.Overall)), rep.RunID)
	msg := buildMessage(m.From, m.To, subject, report.RenderText(rep))

	if err := m.send(m.Host, auth, m.From, m.To, msg); err != nil {
		return fmt.Errorf("mail: %w", err)
	}
	return nil
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
