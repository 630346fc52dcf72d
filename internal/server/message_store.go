// Package server keeps a bounded rolling history of accepted messages that is
// replayed to newly joined participants.
package server

import "sync"

// MessageStore is an append-only log that keeps the most recent messages.
type MessageStore struct {
	mu       sync.RWMutex
	capacity int
	messages []Message
}

// NewMessageStore creates a store holding at most capacity messages.
func NewMessageStore(capacity int) *MessageStore {
	if capacity <= 0 {
		capacity = 100
	}
	return &MessageStore{
		capacity: capacity,
		messages: make([]Message, 0, capacity),
	}
}

// Append adds msg to the tail, dropping the oldest messages past capacity.
func (s *MessageStore) Append(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg)
	if over := len(s.messages) - s.capacity; over > 0 {
		kept := make([]Message, s.capacity)
		copy(kept, s.messages[over:])
		s.messages = kept
	}
}

// Recent returns up to the last n messages in arrival order.
func (s *MessageStore) Recent(n int) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 {
		return []Message{}
	}
	if n > len(s.messages) {
		n = len(s.messages)
	}
	out := make([]Message, n)
	copy(out, s.messages[len(s.messages)-n:])
	return out
}

// All returns every stored message in arrival order.
func (s *MessageStore) All() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of stored messages.
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Capacity returns the maximum number of retained messages.
func (s *MessageStore) Capacity() int {
	return s.capacity
}
