package recognizer

import (
	"context"
	"time"
)

// MockBackend is a scripted backend for tests.
type MockBackend struct {
	BackendName string
	Declared    []string
	Candidates  []Candidate
	Err         error

	// Calls records each recognized input.
	Calls []string
}

func (m *MockBackend) Name() string {
	if m.BackendName == "" {
		return "mock"
	}
	return m.BackendName
}

func (m *MockBackend) Locales() []string {
	return m.Declared
}

func (m *MockBackend) Recognize(_ context.Context, text string, _ time.Time) ([]Candidate, error) {
	m.Calls = append(m.Calls, text)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Candidates, nil
}
