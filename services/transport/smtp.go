package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailgovernor/config"
	"github.com/customeros/mailgovernor/internal/tracing"
)

const (
	securityNone     = "none"
	securitySSL      = "ssl"
	securityTLS      = "tls"
	securityStartTLS = "startTLS"
)

type smtpSender struct {
	server   string
	port     int
	username string
	password string
	security string
	timeout  time.Duration
}

func newSMTPSender(cfg *config.TransportConfig) *smtpSender {
	return &smtpSender{
		server:   cfg.SMTPServer,
		port:     cfg.SMTPPort,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		security: cfg.SMTPSecurity,
		timeout:  cfg.Timeout,
	}
}

func (s *smtpSender) configured() bool {
	return s.server != ""
}

// send delivers a rendered message. The whole conversation is bounded by the
// context deadline or the configured timeout, whichever is earlier.
func (s *smtpSender) send(ctx context.Context, from string, recipients []string, raw []byte) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SMTPSender.send")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("smtp_server", s.server, "smtp_port", s.port, "security", s.security)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	addr := fmt.Sprintf("%s:%d", s.server, s.port)
	conn, err := s.dial(ctx, addr)
	if err != nil {
		err = fmt.Errorf("failed to connect to SMTP server: %w", err)
		tracing.TraceErr(span, err)
		return err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.server)
	if err != nil {
		err = fmt.Errorf("failed to create SMTP client: %w", err)
		tracing.TraceErr(span, err)
		return err
	}
	defer client.Close()

	if s.security == securityStartTLS {
		if err = client.StartTLS(&tls.Config{ServerName: s.server}); err != nil {
			err = fmt.Errorf("failed to start TLS: %w", err)
			tracing.TraceErr(span, err)
			return err
		}
	}

	if s.username != "" {
		if err = client.Auth(smtp.PlainAuth("", s.username, s.password, s.server)); err != nil {
			err = fmt.Errorf("SMTP authentication failed: %w", err)
			tracing.TraceErr(span, err)
			return err
		}
	}

	if err = client.Mail(from); err != nil {
		err = fmt.Errorf("SMTP MAIL command failed: %w", err)
		tracing.TraceErr(span, err)
		return err
	}
	for _, recipient := range recipients {
		if err = client.Rcpt(recipient); err != nil {
			err = fmt.Errorf("SMTP RCPT command failed for %s: %w", recipient, err)
			tracing.TraceErr(span, err)
			return err
		}
	}

	dataWriter, err := client.Data()
	if err != nil {
		err = fmt.Errorf("SMTP DATA command failed: %w", err)
		tracing.TraceErr(span, err)
		return err
	}
	if _, err = dataWriter.Write(raw); err != nil {
		err = fmt.Errorf("failed to write email data: %w", err)
		tracing.TraceErr(span, err)
		return err
	}
	if err = dataWriter.Close(); err != nil {
		err = fmt.Errorf("failed to close data writer: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	return client.Quit()
}

func (s *smtpSender) dial(ctx context.Context, addr string) (net.Conn, error) {
	dialer := &net.Dialer{}
	if s.security == securitySSL || s.security == securityTLS {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: s.server}}
		return tlsDialer.DialContext(ctx, "tcp", addr)
	}
	return dialer.DialContext(ctx, "tcp", addr)
}
