package analytics

import (
	"context"
	"sync"
)

var _ Service = (*MockAnalytics)(nil)

// MockAnalytics is a mock implementation of Service for testing. Recorded
// events are kept in memory so tests can assert on them.
type MockAnalytics struct {
	mu     sync.Mutex
	events []Event
}

// NewMockAnalytics creates a new mock analytics instance
func NewMockAnalytics() *MockAnalytics {
	return &MockAnalytics{}
}

// RecordEvent stores the event in memory.
func (m *MockAnalytics) RecordEvent(ctx context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// EventsByRequestID returns recorded events matching the request ID.
func (m *MockAnalytics) EventsByRequestID(ctx context.Context, id string) ([]EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []EventRecord
	for _, ev := range m.events {
		if ev.RequestID == id {
			out = append(out, EventRecord{EventType: ev.Type, RequestID: ev.RequestID, AddonSlug: ev.AddonSlug})
		}
	}
	return out, nil
}

// Events returns a copy of every recorded event.
func (m *MockAnalytics) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
