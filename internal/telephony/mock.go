package telephony

import (
	"context"
	"fmt"
	"sync"
)

// PlacedCall records one PlaceCall invocation on MockDialer
type PlacedCall struct {
	To          string
	From        string
	CallbackURL string
	Handle      string
	Err         error
}

// SentMessage records one SendMessage invocation on MockDialer
type SentMessage struct {
	To   string
	From string
	Body string
}

// MockDialer is an in-memory Dialer and Messenger for tests and dry runs
type MockDialer struct {
	mu        sync.Mutex
	seq       int
	placed    []PlacedCall
	cancelled []string
	messages  []SentMessage

	// PlaceFunc allows tests to control placement results
	PlaceFunc func(to string) (string, error)
	// CancelFunc allows tests to control cancellation results
	CancelFunc func(handle string) error
}

// NewMockDialer creates a mock that accepts every call
func NewMockDialer() *MockDialer {
	return &MockDialer{}
}

// PlaceCall records the call and returns the configured handle. PlaceFunc
// runs outside the lock so tests may block in it.
func (m *MockDialer) PlaceCall(_ context.Context, to, from, callbackURL string) (string, error) {
	m.mu.Lock()
	m.seq++
	handle, err := fmt.Sprintf("CA%032d", m.seq), error(nil)
	place := m.PlaceFunc
	m.mu.Unlock()

	if place != nil {
		handle, err = place(to)
	}
	if err != nil {
		handle = ""
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.placed = append(m.placed, PlacedCall{
		To:          to,
		From:        from,
		CallbackURL: callbackURL,
		Handle:      handle,
		Err:         err,
	})
	return handle, err
}

// CancelCall records the cancellation
func (m *MockDialer) CancelCall(_ context.Context, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cancelled = append(m.cancelled, handle)
	if m.CancelFunc != nil {
		return m.CancelFunc(handle)
	}
	return nil
}

// SendMessage records the message
func (m *MockDialer) SendMessage(_ context.Context, to, from, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = append(m.messages, SentMessage{To: to, From: from, Body: body})
	return nil
}

// Placed returns a copy of all placement attempts
func (m *MockDialer) Placed() []PlacedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PlacedCall(nil), m.placed...)
}

// Cancelled returns a copy of all cancelled handles
func (m *MockDialer) Cancelled() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.cancelled...)
}

// Messages returns a copy of all sent messages
func (m *MockDialer) Messages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.messages...)
}

// HandleFor returns the handle placed to the given destination, if any
func (m *MockDialer) HandleFor(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.placed {
		if p.To == to {
			return p.Handle
		}
	}
	return ""
}
