// Package mail is the outbound email collaborator: one Send verb behind a
// provider interface, with Mailgun and Resend implementations.
package mail

import (
	"context"
	"fmt"
	"sync"
)

// Message is one outbound email.
type Message struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
}

// Provider sends emails. Implementations return a provider message ID.
type Provider interface {
	Send(ctx context.Context, msg *Message) (string, error)
}

// validate checks the fields every provider requires.
func validate(msg *Message) error {
	if msg == nil {
		return fmt.Errorf("message cannot be nil")
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}
	if msg.Subject == "" {
		return fmt.Errorf("subject is required")
	}
	if msg.Text == "" && msg.HTML == "" {
		return fmt.Errorf("text or HTML body is required")
	}
	return nil
}

// Log is a Provider that records messages instead of sending them, for tests
// and dry runs.
type Log struct {
	mu       sync.Mutex
	messages []*Message
}

// Send implements Provider.
func (l *Log) Send(_ context.Context, msg *Message) (string, error) {
	if err := validate(msg); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
	return fmt.Sprintf("log-%d", len(l.messages)), nil
}

// Messages returns the recorded messages, oldest first.
func (l *Log) Messages() []*Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Message, len(l.messages))
	copy(out, l.messages)
	return out
}
