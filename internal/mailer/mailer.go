// Package mailer delivers outbound email over SMTP.
package mailer

import (
	"errors"

	"gopkg.in/gomail.v2"
)

// SMTP sends plain-text mail through a single SMTP account. It performs no
// retries; a failed dial or send is returned to the caller.
type SMTP struct {
	host string
	port int
	user string
	pass string
	from string
}

// NewSMTP creates a mailer. from falls back to user when empty.
func NewSMTP(host string, port int, user, pass, from string) *SMTP {
	if from == "" {
		from = user
	}
	return &SMTP{host: host, port: port, user: user, pass: pass, from: from}
}

// Send delivers one message.
func (s *SMTP) Send(to, subject, body string) error {
	if s.host == "" || s.user == "" {
		return errors.New("smtp not configured")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	d := gomail.NewDialer(s.host, s.port, s.user, s.pass)
	return d.DialAndSend(m)
}
