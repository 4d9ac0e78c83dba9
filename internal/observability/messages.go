package observability

import "sync"

// Messages receives non-fatal problems meant for the user.
type Messages interface {
	AddWarning(msg string)
	AddError(msg string)
}

// MessageAggregator buffers warnings and errors until consumed. Capacity <= 0 means unbounded.
type MessageAggregator struct {
	mu       sync.Mutex
	capacity int
	warnings []string
	errors   []string
}

// NewMessageAggregator creates an aggregator keeping at most capacity messages per severity.
func NewMessageAggregator(capacity int) *MessageAggregator {
	return &MessageAggregator{capacity: capacity}
}

func (m *MessageAggregator) AddWarning(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnings = m.offer(m.warnings, msg)
}

func (m *MessageAggregator) AddError(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = m.offer(m.errors, msg)
}

// offer drops the oldest entry once capacity is reached.
func (m *MessageAggregator) offer(queue []string, msg string) []string {
	if m.capacity > 0 && len(queue) >= m.capacity {
		copy(queue[0:], queue[1:])
		queue[len(queue)-1] = msg
		return queue
	}
	return append(queue, msg)
}

// ConsumeWarnings returns and clears the buffered warnings.
func (m *MessageAggregator) ConsumeWarnings() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.warnings
	m.warnings = nil
	return out
}

// ConsumeErrors returns and clears the buffered errors.
func (m *MessageAggregator) ConsumeErrors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.errors
	m.errors = nil
	return out
}

// Discard is a Messages sink that drops everything.
var Discard Messages = discardMessages{}

type discardMessages struct{}

func (discardMessages) AddWarning(string) {}
func (discardMessages) AddError(string)   {}
