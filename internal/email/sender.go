package email

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gopkg.in/gomail.v2"
)

// Dialer is the part of *gomail.Dialer the sender needs.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Message is a rendered HTML email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

type Sender struct {
	From   string
	Dialer Dialer
}

func NewSender(host string, port int, user, password, from string) *Sender {
	return &Sender{
		From:   from,
		Dialer: gomail.NewDialer(host, port, user, password),
	}
}

// Send delivers one message
func (s *Sender) Send(msg Message) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	if err := s.Dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send error: %w", err)
	}

	return nil
}

// SendWithRetry retries email sending with exponential backoff
func (s *Sender) SendWithRetry(
	ctx context.Context,
	msg Message,
	retries int,
) error {

	operation := func() error {
		return s.Send(msg)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = time.Duration(retries) * time.Second

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}
