// Package mail delivers auth messages over SMTP and renders reset emails.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	netmail "net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-portal-auth"
)

// Security selects how the SMTP connection is protected
type Security string

const (
	SecurityStartTLS Security = "starttls"
	SecuritySSL      Security = "ssl"
	SecurityNone     Security = "none"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	Security Security
	Timeout  time.Duration
}

// SMTPMailer implements auth.Mailer over net/smtp
type SMTPMailer struct {
	cfg    SMTPConfig
	logger auth.Logger
	now    func() time.Time
}

type SMTPOption func(*SMTPMailer)

func WithSMTPLogger(logger auth.Logger) SMTPOption {
	return func(m *SMTPMailer) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewSMTPMailer(cfg SMTPConfig, opts ...SMTPOption) (*SMTPMailer, error) {
	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.From = strings.TrimSpace(cfg.From)
	cfg.Security = Security(strings.ToLower(strings.TrimSpace(string(cfg.Security))))

	if cfg.Host == "" || cfg.From == "" {
		return nil, goerrors.New("smtp host and sender are required", goerrors.CategoryValidation).
			WithTextCode("SMTP_CONFIG_INVALID")
	}

	if cfg.Security == "" {
		cfg.Security = SecurityStartTLS
	}

	if cfg.Port == 0 {
		cfg.Port = 587
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	m := &SMTPMailer{cfg: cfg, logger: nopLogger{}, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}

	m.logger.Info("mailer enabled", "host", cfg.Host, "port", cfg.Port, "security", cfg.Security, "user", maskForLog(cfg.Username))
	return m, nil
}

// Send implements auth.Mailer
func (m *SMTPMailer) Send(ctx context.Context, msg auth.MailMessage) error {
	recipients := []string{msg.To}
	if msg.CC != "" {
		recipients = append(recipients, msg.CC)
	}

	body := m.message(msg)

	conn, err := m.dial(ctx)
	if err != nil {
		return err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(m.now().Add(m.cfg.Timeout))
	}

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	if m.cfg.Security == SecurityStartTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
				return err
			}
		}
	}

	if m.cfg.Username != "" && m.cfg.Password != "" {
		if err := client.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)); err != nil {
			return err
		}
	}

	if err := client.Mail(m.cfg.From); err != nil {
		return err
	}

	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}

	w, err := client.Data()
	if err != nil {
		return err
	}

	if _, err := w.Write(body); err != nil {
		w.Close()
		return err
	}

	if err := w.Close(); err != nil {
		return err
	}

	return client.Quit()
}

func (m *SMTPMailer) dial(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	dialer := &net.Dialer{Timeout: m.cfg.Timeout}

	if m.cfg.Security == SecuritySSL {
		td := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: m.cfg.Host}}
		return td.DialContext(ctx, "tcp", addr)
	}

	return dialer.DialContext(ctx, "tcp", addr)
}

func (m *SMTPMailer) message(msg auth.MailMessage) []byte {
	from := m.cfg.From
	if m.cfg.FromName != "" {
		from = (&netmail.Address{Name: m.cfg.FromName, Address: m.cfg.From}).String()
	}

	contentType := "text/plain; charset=utf-8"
	if msg.HTML {
		contentType = "text/html; charset=utf-8"
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	if msg.CC != "" {
		fmt.Fprintf(&buf, "Cc: %s\r\n", msg.CC)
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", m.now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: %s\r\n", contentType)
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	buf.WriteString("\r\n")
	return buf.Bytes()
}

func maskForLog(s string) string {
	if s == "" {
		return "(none)"
	}
	if len(s) <= 2 {
		return "***"
	}
	return s[:1] + "***" + s[len(s)-1:]
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
