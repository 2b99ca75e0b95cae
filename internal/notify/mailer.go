// AngelaMos | 2026
// mailer.go

package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carterperez-dev/eternal-vault/internal/config"
)

const unlockSubject = "Your Time Capsule is Unlocked!"

// SMTPMailer delivers unlock notices over SMTP with STARTTLS when the
// server offers it.
type SMTPMailer struct {
	addr     string
	host     string
	username string
	password string
	from     string
	timeout  time.Duration
}

func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	return &SMTPMailer{
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		host:     cfg.Host,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		timeout:  30 * time.Second,
	}
}

func (m *SMTPMailer) SendUnlockNotice(ctx context.Context, n Notice) error {
	dialer := net.Dialer{Timeout: m.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", m.addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}

	deadline := time.Now().Add(m.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close() //nolint:errcheck // already failing
		return fmt.Errorf("set smtp deadline: %w", err)
	}

	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		_ = conn.Close() //nolint:errcheck // already failing
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close() //nolint:errcheck // Quit below reports the real outcome

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: m.host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}

	if m.username != "" {
		if err := client.Auth(smtp.PlainAuth("", m.username, m.password, m.host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(m.from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(n.To); err != nil {
		return fmt.Errorf("smtp rcpt %s: %w", n.To, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(buildMessage(m.from, n, time.Now())); err != nil {
		_ = w.Close() //nolint:errcheck // already failing
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}

	return client.Quit()
}

func unlockBody(n Notice) string {
	return fmt.Sprintf(
		"Hey! Your capsule %q is now unlocked! Open it now: %s\r\n",
		n.CapsuleName,
		n.Link,
	)
}

func buildMessage(from string, n Notice, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + n.To + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", unlockSubject) + "\r\n")
	b.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("Message-ID: <" + uuid.New().String() + "@eternal-vault>\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(unlockBody(n))
	return []byte(b.String())
}

// LogMailer writes notices to the log. It stands in for SMTP when no mail
// host is configured.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendUnlockNotice(ctx context.Context, n Notice) error {
	m.logger.InfoContext(ctx, "unlock notice",
		"to", n.To,
		"capsule_id", n.CapsuleID,
		"subject", unlockSubject,
		"body", strings.TrimSpace(unlockBody(n)),
	)
	return nil
}

// NewMailer picks SMTP when a host is configured.
func NewMailer(cfg config.MailConfig, logger *slog.Logger) Notifier {
	if cfg.Host == "" {
		return NewLogMailer(logger)
	}
	return NewSMTPMailer(cfg)
}
