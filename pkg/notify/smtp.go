// Package notify implements the outbound alert transport. The only
// transport is SMTP over implicit TLS; credentials come from the
// settings file, never from this package.
package notify

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

// SMTP sends mail through a TLS-wrapped SMTP session. It implements
// alert.Notifier.
type SMTP struct {
	Server string
	Port   int
	User   string
	Pass   string
	To     []string
}

// NewSMTP returns a notifier for the given account and recipients.
func NewSMTP(server string, port int, user, pass string, to []string) *SMTP {
	return &SMTP{Server: server, Port: port, User: user, Pass: pass, To: to}
}

// Send delivers one message. Every stage reports its own error so the
// caller's log shows whether connect, auth or submission failed.
func (s *SMTP) Send(subject, body string) error {
	addr := net.JoinHostPort(s.Server, strconv.Itoa(s.Port))

	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.Server})
	if err != nil {
		return fmt.Errorf("smtp connect: %w", err)
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, s.Server)
	if err != nil {
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	auth := smtp.PlainAuth("", s.User, s.Pass, s.Server)
	if err := c.Auth(auth); err != nil {
		return fmt.Errorf("smtp login: %w", err)
	}

	if err := c.Mail(s.User); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range s.To {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		s.User, strings.Join(s.To, ","), subject, body,
	)
	if _, err := wc.Write([]byte(msg)); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp submit: %w", err)
	}

	return c.Quit()
}
