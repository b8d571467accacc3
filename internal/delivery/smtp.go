package delivery

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/ashureev/incident-intake/internal/domain"
)

// SMTPForwarder mails reports through a relay, one connection per report.
type SMTPForwarder struct {
	addr    string
	from    string
	to      []string
	timeout time.Duration
}

// NewSMTPForwarder creates a forwarder for the relay at addr. A host
// without a port gets :25.
func NewSMTPForwarder(addr, from string, to []string, timeout time.Duration) *SMTPForwarder {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "25")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &SMTPForwarder{addr: addr, from: from, to: to, timeout: timeout}
}

// Forward connects, sends the report once and quits.
func (f *SMTPForwarder) Forward(ctx context.Context, report domain.Report) error {
	dialer := net.Dialer{Timeout: f.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", f.addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.addr, err)
	}

	deadline := time.Now().Add(f.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return fmt.Errorf("set deadline: %w", err)
	}

	host, _, _ := net.SplitHostPort(f.addr)
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.Mail(f.from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range f.to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write([]byte(f.message(report))); err != nil {
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp end data: %w", err)
	}
	if err := c.Quit(); err != nil {
		return fmt.Errorf("smtp QUIT: %w", err)
	}
	return nil
}

func (f *SMTPForwarder) message(report domain.Report) string {
	var b strings.Builder
	b.WriteString("From: " + f.from + "\r\n")
	b.WriteString("To: " + strings.Join(f.to, ", ") + "\r\n")
	b.WriteString("Subject: Incident report\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(MailBody(report))
	return b.String()
}

// MailBody renders the plaintext body: theme, description, contact and
// file path in that order, skipping empty fields.
func MailBody(report domain.Report) string {
	lines := []string{"Incident info:"}
	for _, v := range []string{report.Theme, report.Description, deref(report.Contact), deref(report.FilePath)} {
		if v != "" {
			lines = append(lines, v)
		}
	}
	return strings.Join(lines, "\r\n") + "\r\n"
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
