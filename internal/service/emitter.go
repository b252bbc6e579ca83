package service

import (
	"context"
	"encoding/json"
	"log"
	"sync"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter — run notifications
// ─────────────────────────────────────────────────────────────

// EventEmitter receives join run notifications (`join:completed`,
// `join:failed`). Services take this interface so they can be tested with
// MockEmitter.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// LogEmitter writes each event to the standard logger as JSON.
type LogEmitter struct{}

func (LogEmitter) Emit(_ context.Context, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Printf("event %s: %v", event, data)
		return
	}
	log.Printf("event %s: %s", event, payload)
}

// MockEmitter is a test-friendly EventEmitter that records all calls.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Snapshot returns a copy of the events recorded so far.
func (m *MockEmitter) Snapshot() []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmittedEvent(nil), m.Events...)
}
