// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package task provides task persistence. The in-memory store is the
// default; a SQL-backed store is available for deployments that want
// tasks to survive restarts.
package task

import (
	"context"
	"errors"
	"sync"

	"github.com/kadirpekel/aloha/pkg/a2a"
)

// ErrTaskFinal is returned by mutating operations against a task that
// already reached a terminal state.
var ErrTaskFinal = errors.New("task is in a terminal state")

// Store persists tasks. Get on an unknown id returns
// a2a.ErrTaskNotFound. All mutating operations reject tasks whose
// current state is terminal, except the status write that makes the
// task terminal in the first place.
type Store interface {
	// Get returns a snapshot of the task. Mutating the returned value
	// does not affect the stored task.
	Get(ctx context.Context, taskID string) (*a2a.Task, error)

	// Put inserts or replaces a task.
	Put(ctx context.Context, task *a2a.Task) error

	// SetStatus updates the task status.
	SetStatus(ctx context.Context, taskID string, status a2a.TaskStatus) error

	// AppendHistory appends a message to the task history.
	AppendHistory(ctx context.Context, taskID string, message a2a.Message) error

	// AppendArtifact appends an artifact to the task.
	AppendArtifact(ctx context.Context, taskID string, artifact a2a.Artifact) error
}

// MemoryStore is a concurrency-safe in-memory Store.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*a2a.Task
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*a2a.Task)}
}

func cloneTask(t *a2a.Task) *a2a.Task {
	c := *t
	c.History = append([]a2a.Message(nil), t.History...)
	c.Artifacts = append([]a2a.Artifact(nil), t.Artifacts...)
	return &c
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, taskID string) (*a2a.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return nil, a2a.ErrTaskNotFound
	}
	return cloneTask(t), nil
}

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, task *a2a.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[task.ID] = cloneTask(task)
	return nil
}

// SetStatus implements Store. A terminal task never changes state
// again; the write that enters the terminal state is the last one
// accepted.
func (s *MemoryStore) SetStatus(ctx context.Context, taskID string, status a2a.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return a2a.ErrTaskNotFound
	}
	if t.Status.State.IsTerminal() {
		return ErrTaskFinal
	}
	t.Status = status
	return nil
}

// AppendHistory implements Store.
func (s *MemoryStore) AppendHistory(ctx context.Context, taskID string, message a2a.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return a2a.ErrTaskNotFound
	}
	t.History = append(t.History, message)
	return nil
}

// AppendArtifact implements Store.
func (s *MemoryStore) AppendArtifact(ctx context.Context, taskID string, artifact a2a.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return a2a.ErrTaskNotFound
	}
	if t.Status.State.IsTerminal() {
		return ErrTaskFinal
	}
	t.Artifacts = append(t.Artifacts, artifact)
	return nil
}

// TruncateHistory returns the task with at most n most recent history
// entries. Nil, zero and negative n all keep the full history.
func TruncateHistory(t *a2a.Task, n *int) *a2a.Task {
	if n == nil || *n <= 0 || len(t.History) <= *n {
		return t
	}
	c := *t
	c.History = append([]a2a.Message(nil), t.History[len(t.History)-*n:]...)
	return &c
}

// Compile-time interface compliance check
var _ Store = (*MemoryStore)(nil)
