package notifier

import (
	"context"
	"sync"
)

// MockSender records notifications for tests. FailTimes makes the first N
// sends fail, which exercises delivery retry paths.
type MockSender struct {
	mu        sync.Mutex
	sent      []Notification
	FailTimes int
	Err       error
	attempts  int
}

func NewMockSender() *MockSender {
	return &MockSender{}
}

func (m *MockSender) Name() string {
	return "mock"
}

func (m *MockSender) Send(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if m.Err != nil {
		return m.Err
	}
	if m.attempts <= m.FailTimes {
		return errTransient
	}
	m.sent = append(m.sent, n)
	return nil
}

// Sent returns a copy of the successfully delivered notifications.
func (m *MockSender) Sent() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Notification{}, m.sent...)
}

// Attempts returns the total number of Send calls.
func (m *MockSender) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

var errTransient = &transientError{}

type transientError struct{}

func (e *transientError) Error() string { return "transient send failure" }
