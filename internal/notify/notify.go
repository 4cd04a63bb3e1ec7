package notify

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"mailwatch/internal/config"
	"mailwatch/internal/watch"
)

// Mailer delivers one notification email per candidate over SMTP. It dials
// per send; a watcher emits notifications rarely enough that a held-open
// session would mostly sit idle and time out.
type Mailer struct {
	cfg config.NotifyConfig
}

func New(cfg config.NotifyConfig) (*Mailer, error) {
	if cfg.SMTP.Host == "" {
		return nil, &config.Error{Source: "notify", Field: "smtp.host"}
	}
	if cfg.To == "" {
		return nil, &config.Error{Source: "notify", Field: "to"}
	}
	return &Mailer{cfg: cfg}, nil
}

// Notify implements watch.Dispatcher.
func (m *Mailer) Notify(ctx context.Context, c watch.Candidate) error {
	msg, err := buildMessage(m.cfg.From, m.cfg.To, c)
	if err != nil {
		return fmt.Errorf("failed to build message: %w", err)
	}

	client, err := m.dial()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.SendMail(m.cfg.From, []string{m.cfg.To}, msg); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}

func (m *Mailer) dial() (*smtp.Client, error) {
	addr := fmt.Sprintf("%s:%d", m.cfg.SMTP.Host, m.cfg.SMTP.Port)
	tlsCfg := &tls.Config{ServerName: m.cfg.SMTP.Host}

	var client *smtp.Client
	var err error
	switch {
	case m.cfg.SMTP.SSL:
		client, err = smtp.DialTLS(addr, tlsCfg)
	case m.cfg.SMTP.StartTLS:
		client, err = smtp.DialStartTLS(addr, tlsCfg)
	default:
		client, err = smtp.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
	}

	if m.cfg.SMTP.Password != "" {
		auth := sasl.NewPlainClient("", m.cfg.SMTP.Username, m.cfg.SMTP.Password)
		if err := client.Auth(auth); err != nil {
			client.Close()
			return nil, fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	return client, nil
}

// buildMessage composes the notification as a small plain-text email.
func buildMessage(from, to string, c watch.Candidate) (*bytes.Buffer, error) {
	var buf bytes.Buffer

	var header mail.Header
	header.SetDate(time.Now())
	header.SetSubject(notificationSubject(c))
	header.SetAddressList("From", []*mail.Address{{Address: from}})
	header.SetAddressList("To", []*mail.Address{{Address: to}})
	header.Set("Message-ID", generateMessageID(from))

	iw, err := mail.CreateInlineWriter(&buf, header)
	if err != nil {
		return nil, err
	}

	var h mail.InlineHeader
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	w, err := iw.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write([]byte(notificationBody(c))); err != nil {
		return nil, err
	}
	w.Close()

	if err := iw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

func notificationSubject(c watch.Candidate) string {
	sender := c.Sender
	if sender == "" {
		sender = c.Address
	}
	return fmt.Sprintf("New mail from %s: %s", sender, c.Subject)
}

func notificationBody(c watch.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\r\n", c.Sender, c.Address)
	fmt.Fprintf(&b, "Subject: %s\r\n", c.Subject)
	if !c.Date.IsZero() {
		fmt.Fprintf(&b, "Date: %s\r\n", c.Date.Format(time.RFC1123))
	}
	return b.String()
}

// generateMessageID produces an RFC 5322 compliant Message-ID using the
// domain of the sending address.
func generateMessageID(fromEmail string) string {
	domain := "localhost"
	if idx := strings.Index(fromEmail, "@"); idx >= 0 {
		domain = fromEmail[idx+1:]
	}

	b := make([]byte, 8)
	_, _ = rand.Read(b)

	return fmt.Sprintf("<%d.%s@%s>", time.Now().UnixNano(), hex.EncodeToString(b), domain)
}
