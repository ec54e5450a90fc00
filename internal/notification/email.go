package notification

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	accountdomain "github.com/smallbiznis/trafficwarden/internal/account/domain"
)

const senderName = "阿里云CDT监控"

// EmailSender delivers HTML mail through the SMTP server configured in
// the settings table. Connection security follows the secure setting:
// "ssl" is implicit TLS, "tls" is STARTTLS, empty is plaintext.
type EmailSender struct {
	log *zap.Logger
}

func NewEmailSender(log *zap.Logger) *EmailSender {
	return &EmailSender{log: log.Named("notify.email")}
}

func (s *EmailSender) Send(ctx context.Context, set accountdomain.EmailSettings, subject, htmlBody string) error {
	addr := net.JoinHostPort(set.Host, strconv.Itoa(set.Port))

	client, err := s.dial(ctx, addr, set)
	if err != nil {
		return err
	}
	defer client.Close()

	if set.Username != "" {
		auth := smtp.PlainAuth("", set.Username, set.Password, set.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(set.Username); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(set.To); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(buildMessage(set.Username, set.To, subject, htmlBody)); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}

	s.log.Debug("mail delivered", zap.String("to", set.To), zap.String("subject", subject))
	return client.Quit()
}

func (s *EmailSender) dial(ctx context.Context, addr string, set accountdomain.EmailSettings) (*smtp.Client, error) {
	dialer := &net.Dialer{}

	if strings.EqualFold(set.Secure, "ssl") {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: set.Host}}
		conn, err := tlsDialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("smtp dial tls: %w", err)
		}
		client, err := smtp.NewClient(conn, set.Host)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("smtp handshake: %w", err)
		}
		return client, nil
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("smtp dial: %w", err)
	}
	client, err := smtp.NewClient(conn, set.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smtp handshake: %w", err)
	}
	if strings.EqualFold(set.Secure, "tls") {
		if err := client.StartTLS(&tls.Config{ServerName: set.Host}); err != nil {
			client.Close()
			return nil, fmt.Errorf("smtp starttls: %w", err)
		}
	}
	return client, nil
}

func buildMessage(from, to, subject, htmlBody string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\r\n", mime.QEncoding.Encode("utf-8", senderName), from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	return []byte(b.String())
}
