// ABOUTME: Mock messenger recording sent messages for tests
// ABOUTME: Thread-safe; can be scripted to fail

package messenger

import (
	"context"
	"sync"
)

// SentMessage is one recorded outbound message.
type SentMessage struct {
	To   string
	Body string
}

// Mock records sent messages instead of delivering them.
type Mock struct {
	mu   sync.Mutex
	sent []SentMessage

	// SendErr, when set, is returned by every Send call.
	SendErr error
}

// NewMock creates an empty mock messenger.
func NewMock() *Mock {
	return &Mock{}
}

// Send records the message.
func (m *Mock) Send(ctx context.Context, to, body string) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentMessage{To: to, Body: body})
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *Mock) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}
