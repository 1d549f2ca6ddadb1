// Package queue provides the durable, bounded FIFO backing the analytics
// pipeline. Events survive launcher restarts via a single-file sqlite
// database; when that is unavailable the queue degrades to memory.
package queue

import (
	"encoding/json"
	"fmt"
	"sync"
)

// DefaultEventCountLimit bounds the queue size. On overflow the oldest
// entries are dropped first.
const DefaultEventCountLimit = 200

// Event is a queued analytics message. IDs are unique and increasing within
// a queue instance; they exist so a send can be acknowledged later.
type Event struct {
	ID      int64
	Message json.RawMessage
}

// Queue is a bounded FIFO of analytics events.
//
// Enqueue appends, silently dropping the oldest entries on overflow.
// Peek returns the oldest entry without removing it.
// Consume removes the entry with the given id; it is idempotent.
type Queue interface {
	Enqueue(message json.RawMessage) error
	Peek() (Event, bool, error)
	Consume(id int64) error
	Close() error
}

// Memory is the volatile queue variant.
type Memory struct {
	mu     sync.Mutex
	events []Event
	nextID int64
	limit  int
}

func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = DefaultEventCountLimit
	}
	return &Memory{nextID: 1, limit: limit}
}

func (q *Memory) Enqueue(message json.RawMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, Event{ID: q.nextID, Message: message})
	q.nextID++
	if overflow := len(q.events) - q.limit; overflow > 0 {
		q.events = append([]Event(nil), q.events[overflow:]...)
	}
	return nil
}

func (q *Memory) Peek() (Event, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return Event{}, false, nil
	}
	return q.events[0], true, nil
}

func (q *Memory) Consume(id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.events {
		if e.ID == id {
			q.events = append(q.events[:i], q.events[i+1:]...)
			return nil
		}
	}
	return nil
}

func (q *Memory) Close() error {
	return nil
}

// Len reports the current queue depth.
func (q *Memory) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// NewCombined attempts to open the persistent queue at path and falls back
// to an in-memory queue on any error (missing directory, locked file,
// corruption). The returned description names the variant in use.
func NewCombined(path string, limit int) (q Queue, desc string, err error) {
	persistent, err := NewPersistent(path, limit)
	if err != nil {
		return NewMemory(limit), "memory", fmt.Errorf("cannot open persistent event queue: %w", err)
	}
	return persistent, "persistent", nil
}
