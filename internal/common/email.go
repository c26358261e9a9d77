package common

import "sync"

// EmailSender delivers one HTML email. Implementations own transport
// concerns; callers own content.
type EmailSender interface {
	Send(to, subject, html string) error
}

// Email is a captured outbound message.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// InMemoryEmail records messages instead of sending them. Safe for
// concurrent use; tests read Outbox after the work settles.
type InMemoryEmail struct {
	mu     sync.Mutex
	Outbox []Email
}

// Send appends the message to the outbox.
func (m *InMemoryEmail) Send(to, subject, html string) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Outbox = append(m.Outbox, Email{To: to, Subject: subject, HTML: html})
	return nil
}

// NopEmailSender drops every message. Used where email is configured off.
type NopEmailSender struct{}

// Send implements EmailSender.
func (NopEmailSender) Send(string, string, string) error { return nil }
