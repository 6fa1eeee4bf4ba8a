package delivery

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SMTPConfig describes one SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	// ImplicitTLS dials TLS directly (port 465). Otherwise STARTTLS is used when offered.
	ImplicitTLS bool
}

type smtpMailer struct {
	cfg SMTPConfig
	now func() time.Time
}

func newSMTPMailer(cfg SMTPConfig) (*smtpMailer, error) {
	if strings.TrimSpace(cfg.Host) == "" || strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("%w: smtp host and from are required", ErrNotConfigured)
	}
	if cfg.Port == 0 {
		cfg.Port = 587
		if cfg.ImplicitTLS {
			cfg.Port = 465
		}
	}
	return &smtpMailer{cfg: cfg, now: time.Now}, nil
}

// SendEmail sends msgs over one SMTP session. A failed recipient resets the
// session and continues. A failed dial or auth fails the whole call, and so
// does ctx ending before every message was handed over.
func (m *smtpMailer) SendEmail(ctx context.Context, msgs []EmailMessage) (Result, error) {
	if len(msgs) == 0 {
		return Result{}, nil
	}
	c, err := m.connect(ctx)
	if err != nil {
		return Result{}, err
	}
	defer c.Close()

	var res Result
	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("smtp: %w", err)
		}
		if err := m.sendOne(c, msg); err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return Result{}, fmt.Errorf("smtp: %w", cerr)
			}
			res.Failure++
			_ = c.Reset()
			continue
		}
		res.Success++
	}
	_ = c.Quit()
	return res, nil
}

func (m *smtpMailer) connect(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	tlsCfg := &tls.Config{ServerName: m.cfg.Host}

	d := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	if m.cfg.ImplicitTLS {
		conn = tls.Client(conn, tlsCfg)
	}

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smtp handshake: %w", err)
	}
	if !m.cfg.ImplicitTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(tlsCfg); err != nil {
				_ = c.Close()
				return nil, fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}
	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := c.Auth(auth); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("smtp auth: %w", err)
		}
	}
	return c, nil
}

func (m *smtpMailer) sendOne(c *smtp.Client, msg EmailMessage) error {
	body, err := buildMIME(m.cfg.From, m.cfg.FromName, msg, m.now())
	if err != nil {
		return err
	}
	if err := c.Mail(m.cfg.From); err != nil {
		return err
	}
	if err := c.Rcpt(msg.To); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// buildMIME renders a multipart/alternative message with text and HTML parts.
func buildMIME(from, fromName string, msg EmailMessage, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fromAddr := (&mail.Address{Name: fromName, Address: from}).String()
	toAddr := (&mail.Address{Name: msg.ToName, Address: msg.To}).String()
	domain := from[strings.LastIndexByte(from, '@')+1:]

	var hdr bytes.Buffer
	fmt.Fprintf(&hdr, "From: %s\r\n", fromAddr)
	fmt.Fprintf(&hdr, "To: %s\r\n", toAddr)
	fmt.Fprintf(&hdr, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&hdr, "Date: %s\r\n", now.UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&hdr, "Message-ID: <%s@%s>\r\n", uuid.NewString(), domain)
	hdr.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&hdr, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())

	for _, part := range []struct {
		ctype, body string
	}{
		{"text/plain; charset=utf-8", msg.Text},
		{"text/html; charset=utf-8", msg.HTML},
	} {
		if part.body == "" {
			continue
		}
		pw, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.ctype},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, err
		}
		qp := quotedprintable.NewWriter(pw)
		if _, err := qp.Write([]byte(part.body)); err != nil {
			return nil, err
		}
		if err := qp.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return append(hdr.Bytes(), buf.Bytes()...), nil
}
