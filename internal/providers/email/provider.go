package email

import "context"

// Message is a plain-text notification.
type Message struct {
	To      []string
	Subject string
	Body    string
}

type Provider interface {
	Send(ctx context.Context, msg Message) error
}

// NoOpProvider drops messages. It is used when SMTP is not configured.
type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, msg Message) error {
	return nil
}
