// Package eventqueue provides per-task event queues with replay.
// Every subscriber observes the task's full event history from event
// zero followed by live events, in the exact order they were written.
package eventqueue

import (
	"context"
	"errors"
	"sync"

	"github.com/kadirpekel/aloha/pkg/a2a"
)

// ErrQueueClosed is returned by Write after a final event was written.
var ErrQueueClosed = errors.New("event queue is closed")

// Queue is the event stream of a single task.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	events []a2a.Event
	closed bool
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Write appends an event and wakes all subscribers. A status update
// with Final=true closes the queue; later writes fail with
// ErrQueueClosed.
func (q *Queue) Write(event a2a.Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.events = append(q.events, event)
	if su, ok := event.(*a2a.StatusUpdateEvent); ok && su.Final {
		q.closed = true
	}
	q.cond.Broadcast()
	return nil
}

// Closed reports whether a final event has been written.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of events written so far.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Subscribe returns a channel that replays all events written so far
// and then delivers live events. The channel is closed after the final
// event has been delivered, or when ctx is canceled.
func (q *Queue) Subscribe(ctx context.Context) <-chan a2a.Event {
	ch := make(chan a2a.Event)

	// Wake the reader loop when the subscriber goes away, otherwise it
	// could sit in cond.Wait forever on an idle queue.
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})

	go func() {
		defer close(ch)
		defer stop()

		next := 0
		for {
			q.mu.Lock()
			for next >= len(q.events) && !q.closed && ctx.Err() == nil {
				q.cond.Wait()
			}
			if ctx.Err() != nil {
				q.mu.Unlock()
				return
			}
			if next >= len(q.events) && q.closed {
				q.mu.Unlock()
				return
			}
			event := q.events[next]
			next++
			q.mu.Unlock()

			select {
			case ch <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Manager tracks one queue per task id.
type Manager struct {
	mu     sync.RWMutex
	queues map[string]*Queue
}

// NewManager creates an empty queue manager.
func NewManager() *Manager {
	return &Manager{queues: make(map[string]*Queue)}
}

// GetOrCreate returns the queue for taskID, creating it if needed.
func (m *Manager) GetOrCreate(taskID string) *Queue {
	m.mu.Lock()
	defer m.mu.Unlock()

	if q, ok := m.queues[taskID]; ok {
		return q
	}
	q := NewQueue()
	m.queues[taskID] = q
	return q
}

// Get returns the queue for taskID, or nil when none exists.
func (m *Manager) Get(taskID string) *Queue {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queues[taskID]
}

// Destroy drops the queue for taskID.
func (m *Manager) Destroy(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.queues, taskID)
}
