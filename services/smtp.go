package services

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"alertreport/config"
	"alertreport/models"
)

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	// From is the envelope sender; FromName only appears in the header.
	From     string
	FromName string
	// Timeout bounds the whole SMTP conversation, dial included.
	Timeout time.Duration
}

// SMTPDispatcher sends the report over SMTP, upgrading to TLS with STARTTLS
// when the server offers it.
type SMTPDispatcher struct {
	config   SMTPConfig
	auth     smtp.Auth
	sendMail func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPDispatcher(cfg SMTPConfig) *SMTPDispatcher {
	var auth smtp.Auth
	if cfg.Username != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	d := &SMTPDispatcher{config: cfg, auth: auth}
	d.sendMail = d.deliver
	return d
}

// deliver is smtp.SendMail with a bounded dial and a connection that is
// closed as soon as ctx is done.
func (s *SMTPDispatcher) deliver(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	dialer := net.Dialer{Timeout: s.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return wrapCtxErr(ctx, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		_ = conn.Close()
		return wrapCtxErr(ctx, err)
	}
	defer func() { _ = c.Close() }()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.config.Host}); err != nil {
			return wrapCtxErr(ctx, err)
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(a); err != nil {
				return wrapCtxErr(ctx, err)
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return wrapCtxErr(ctx, err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return wrapCtxErr(ctx, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return wrapCtxErr(ctx, err)
	}
	if _, err := w.Write(msg); err != nil {
		return wrapCtxErr(ctx, err)
	}
	if err := w.Close(); err != nil {
		return wrapCtxErr(ctx, err)
	}
	return c.Quit()
}

// wrapCtxErr reports the context error when ctx ended the conversation. The
// connection deadline equals the context deadline, so a network timeout means
// ctx is about to be done.
func wrapCtxErr(ctx context.Context, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		if _, ok := ctx.Deadline(); ok {
			<-ctx.Done()
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}

func (s *SMTPDispatcher) Name() string {
	return config.ProviderSMTP
}

// buildMessage renders headers and body. Bcc recipients only go on the envelope.
func (s *SMTPDispatcher) buildMessage(req models.EmailRequest) []byte {
	from := s.config.From
	if strings.TrimSpace(s.config.FromName) != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	headers := []string{
		"From: " + sanitizeHeader(from),
		"To: " + sanitizeHeader(strings.Join(req.To, ", ")),
	}
	if len(req.Cc) > 0 {
		headers = append(headers, "Cc: "+sanitizeHeader(strings.Join(req.Cc, ", ")))
	}
	headers = append(headers,
		"Subject: "+sanitizeHeader(req.Subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		req.Body,
	)
	return []byte(strings.Join(headers, "\r\n"))
}

func envelopeRecipients(req models.EmailRequest) []string {
	all := make([]string, 0, len(req.To)+len(req.Cc)+len(req.Bcc))
	all = append(all, req.To...)
	all = append(all, req.Cc...)
	all = append(all, req.Bcc...)
	return all
}

func (s *SMTPDispatcher) Send(ctx context.Context, req models.EmailRequest) models.DispatchResult {
	result := models.DispatchResult{Provider: s.Name()}
	if err := ctx.Err(); err != nil {
		result.Err = transportError("send email via smtp", err)
		return result
	}

	addr := net.JoinHostPort(s.config.Host, s.config.Port)
	if err := s.sendMail(ctx, addr, s.auth, s.config.From, envelopeRecipients(req), s.buildMessage(req)); err != nil {
		result.Err = transportError("send email via smtp", err)
		result.Body = err.Error()
		return result
	}

	// 250 is the SMTP "requested mail action okay" reply.
	result.StatusCode = 250
	result.Body = "Email sent!"
	return result
}

func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}
