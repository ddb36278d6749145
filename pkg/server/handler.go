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

// Package server implements the transport-agnostic request handler.
// Every transport adapter decodes its native envelope into the shared
// protocol shapes and calls into RequestHandler; all task lifecycle
// logic lives here.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/aloha/pkg/a2a"
	"github.com/kadirpekel/aloha/pkg/eventqueue"
	"github.com/kadirpekel/aloha/pkg/executor"
	"github.com/kadirpekel/aloha/pkg/observability"
	"github.com/kadirpekel/aloha/pkg/task"
)

// DefaultSendTimeout caps how long a blocking send waits for the task
// to reach a terminal state.
const DefaultSendTimeout = 60 * time.Second

// RequestHandler serves the protocol operations over a task store, an
// executor and per-task event queues.
type RequestHandler struct {
	store       task.Store
	exec        executor.Executor
	queues      *eventqueue.Manager
	sendTimeout time.Duration

	mu         sync.Mutex
	executions map[string]*execution

	cardMu sync.RWMutex
	card   a2a.AgentCard
}

// execution tracks the apply loop of one task. done closes once the
// final event has been persisted to the store.
type execution struct {
	queue *eventqueue.Queue
	done  chan struct{}
}

// HandlerOption customizes a RequestHandler.
type HandlerOption func(*RequestHandler)

// WithSendTimeout overrides the blocking-send cap.
func WithSendTimeout(d time.Duration) HandlerOption {
	return func(h *RequestHandler) {
		h.sendTimeout = d
	}
}

// NewRequestHandler wires the handler.
func NewRequestHandler(store task.Store, exec executor.Executor, opts ...HandlerOption) *RequestHandler {
	h := &RequestHandler{
		store:       store,
		exec:        exec,
		queues:      eventqueue.NewManager(),
		sendTimeout: DefaultSendTimeout,
		executions:  make(map[string]*execution),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetAgentCard installs the card served to clients. The transport
// server calls this once it knows which interfaces are actually bound.
func (h *RequestHandler) SetAgentCard(card a2a.AgentCard) {
	h.cardMu.Lock()
	defer h.cardMu.Unlock()
	h.card = card
}

// AgentCard returns the advertised card.
func (h *RequestHandler) AgentCard() a2a.AgentCard {
	h.cardMu.RLock()
	defer h.cardMu.RUnlock()
	return h.card
}

// OnSendMessage runs the message to completion and returns the
// terminal task. If the execution outlives the send timeout the task
// is failed with a timeout message and returned in that state.
func (h *RequestHandler) OnSendMessage(ctx context.Context, params a2a.MessageSendParams) (*a2a.Task, error) {
	started, err := h.startExecution(ctx, params)
	if err != nil {
		return nil, err
	}
	if started.terminal != nil {
		return started.terminal, nil
	}

	timer := time.NewTimer(h.sendTimeout)
	defer timer.Stop()

	select {
	case <-started.exec.done:
	case <-timer.C:
		h.timeoutTask(started.taskID, started.contextID, started.exec)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return h.store.Get(ctx, started.taskID)
}

// OnSendMessageStream starts the execution and immediately returns the
// task's event stream: full replay from event zero, then live events,
// ending with the final status update.
func (h *RequestHandler) OnSendMessageStream(ctx context.Context, params a2a.MessageSendParams) (<-chan a2a.Event, error) {
	started, err := h.startExecution(ctx, params)
	if err != nil {
		return nil, err
	}
	if started.terminal != nil {
		// Replay the original event stream when it is still around,
		// otherwise synthesize the terminal status.
		if q := h.queues.Get(started.taskID); q != nil {
			return q.Subscribe(ctx), nil
		}
		return replayTerminal(started.terminal), nil
	}

	metrics := observability.GetGlobalMetrics()
	metrics.StreamOpened()
	ch := started.exec.queue.Subscribe(ctx)

	out := make(chan a2a.Event)
	go func() {
		defer close(out)
		defer metrics.StreamClosed()
		for e := range ch {
			// Persist-before-expose: the apply loop writes each event
			// to the store; waiting for the final event keeps the
			// stream's end synchronized with the stored terminal task.
			if su, ok := e.(*a2a.StatusUpdateEvent); ok && su.Final {
				<-started.exec.done
			}
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// OnGetTask returns a snapshot of the task, with history truncated to
// historyLength when set.
func (h *RequestHandler) OnGetTask(ctx context.Context, params a2a.TaskQueryParams) (*a2a.Task, error) {
	t, err := h.store.Get(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	return task.TruncateHistory(t, params.HistoryLength), nil
}

// OnCancelTask requests cancellation and returns the task once it is
// terminal. Unknown ids return a2a.ErrTaskNotFound; tasks that already
// finished return a2a.ErrTaskNotCancelable.
func (h *RequestHandler) OnCancelTask(ctx context.Context, params a2a.TaskCancelParams) (*a2a.Task, error) {
	t, err := h.store.Get(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	if t.Status.State.IsTerminal() {
		return nil, a2a.ErrTaskNotCancelable
	}

	exec := h.ensureExecution(params.ID)
	reqCtx := &executor.RequestContext{TaskID: t.ID, ContextID: t.ContextID, StoredTask: t}
	if err := h.exec.Cancel(ctx, reqCtx, exec.queue); err != nil {
		return nil, fmt.Errorf("failed to cancel task: %w", err)
	}

	select {
	case <-exec.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return h.store.Get(ctx, params.ID)
}

// startedExecution is the outcome of startExecution. Exactly one of
// exec and terminal is set: terminal short-circuits sends against
// tasks that already finished.
type startedExecution struct {
	taskID    string
	contextID string
	exec      *execution
	terminal  *a2a.Task
}

func (h *RequestHandler) startExecution(ctx context.Context, params a2a.MessageSendParams) (*startedExecution, error) {
	msg := params.Message
	if msg.MessageID == "" {
		msg.MessageID = uuid.New().String()
	}
	if msg.Role == "" {
		msg.Role = a2a.MessageRoleUser
	}
	msg.Kind = "message"

	var stored *a2a.Task
	taskID := msg.TaskID
	contextID := msg.ContextID

	if taskID != "" {
		t, err := h.store.Get(ctx, taskID)
		if err != nil {
			return nil, err
		}
		// A finished task never restarts; the caller gets the stored
		// terminal snapshot unchanged.
		if t.Status.State.IsTerminal() {
			return &startedExecution{taskID: taskID, terminal: t}, nil
		}
		stored = t
		contextID = t.ContextID
		if err := h.store.AppendHistory(ctx, taskID, msg); err != nil {
			return nil, err
		}
	} else {
		taskID = uuid.New().String()
		if contextID == "" {
			contextID = uuid.New().String()
		}
		msg.TaskID = taskID
		msg.ContextID = contextID

		t := &a2a.Task{
			Kind:      "task",
			ID:        taskID,
			ContextID: contextID,
			Status:    a2a.TaskStatus{State: a2a.TaskStateSubmitted, Timestamp: a2a.Now()},
			History:   []a2a.Message{msg},
		}
		if err := h.store.Put(ctx, t); err != nil {
			return nil, fmt.Errorf("failed to create task: %w", err)
		}
	}

	exec := h.ensureExecution(taskID)

	reqCtx := &executor.RequestContext{
		TaskID:     taskID,
		ContextID:  contextID,
		Message:    msg,
		StoredTask: stored,
	}

	// The execution is detached from the request context: a client
	// dropping its stream must not abort the task.
	go func() {
		if err := h.exec.Execute(context.Background(), reqCtx, exec.queue); err != nil {
			slog.Error("task execution failed", "taskID", taskID, "error", err)
		}
	}()

	return &startedExecution{taskID: taskID, contextID: contextID, exec: exec}, nil
}

// ensureExecution returns the task's execution, creating the queue and
// apply loop on first use.
func (h *RequestHandler) ensureExecution(taskID string) *execution {
	h.mu.Lock()
	defer h.mu.Unlock()

	if exec, ok := h.executions[taskID]; ok {
		return exec
	}
	exec := &execution{
		queue: h.queues.GetOrCreate(taskID),
		done:  make(chan struct{}),
	}
	h.executions[taskID] = exec
	go h.applyLoop(taskID, exec)
	return exec
}

// applyLoop persists the task's events in queue order. Events become
// visible in the store before waiters are released, so a returned
// terminal task always reflects every event of its stream.
func (h *RequestHandler) applyLoop(taskID string, exec *execution) {
	defer close(exec.done)

	ctx := context.Background()
	metrics := observability.GetGlobalMetrics()

	for event := range exec.queue.Subscribe(ctx) {
		switch e := event.(type) {
		case *a2a.StatusUpdateEvent:
			if e.Status.Message != nil {
				if err := h.store.AppendHistory(ctx, taskID, *e.Status.Message); err != nil {
					slog.Error("failed to append status message", "taskID", taskID, "error", err)
				}
			}
			if err := h.store.SetStatus(ctx, taskID, e.Status); err != nil {
				slog.Error("failed to persist status", "taskID", taskID, "state", e.Status.State, "error", err)
			} else {
				metrics.RecordTaskState(string(e.Status.State))
			}
			if e.Final {
				return
			}
		case *a2a.ArtifactUpdateEvent:
			if err := h.store.AppendArtifact(ctx, taskID, e.Artifact); err != nil {
				slog.Error("failed to persist artifact", "taskID", taskID, "error", err)
			}
		}
	}
}

// timeoutTask force-fails a task whose execution exceeded the send
// timeout, then waits for the failure to be persisted.
func (h *RequestHandler) timeoutTask(taskID, contextID string, exec *execution) {
	slog.Warn("task execution timed out", "taskID", taskID, "timeout", h.sendTimeout)

	failed := a2a.NewStatusUpdateEvent(taskID, contextID, a2a.TaskStatus{
		State: a2a.TaskStateFailed,
		Message: &a2a.Message{
			Kind:      "message",
			MessageID: uuid.New().String(),
			Role:      a2a.MessageRoleAgent,
			Parts:     []a2a.Part{a2a.NewTextPart(fmt.Sprintf("Task timed out after %s", h.sendTimeout))},
			TaskID:    taskID,
			ContextID: contextID,
		},
		Timestamp: a2a.Now(),
	}, true)

	// A concurrent terminal event may have closed the queue already;
	// either way a final event exists and done will close.
	if err := exec.queue.Write(failed); err != nil && !errors.Is(err, eventqueue.ErrQueueClosed) {
		slog.Error("failed to write timeout event", "taskID", taskID, "error", err)
	}
	<-exec.done
}

// replayTerminal synthesizes the single-event stream of a task that
// already finished before the subscriber arrived.
func replayTerminal(t *a2a.Task) <-chan a2a.Event {
	ch := make(chan a2a.Event, 1)
	ch <- a2a.NewStatusUpdateEvent(t.ID, t.ContextID, t.Status, true)
	close(ch)
	return ch
}
