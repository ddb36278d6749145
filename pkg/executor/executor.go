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

// Package executor runs one task execution: it turns an incoming
// message into a stream of lifecycle and artifact events.
//
// Event translation follows these rules:
//   - Invalid message (no parts, or text empty after trimming): emit a
//     single final status update with TaskStateFailed; the task never
//     enters working
//   - New task: emit a status update with TaskStateSubmitted
//   - Before reasoning: emit a status update with TaskStateWorking
//   - On success: emit an artifact update with the reply, then a final
//     status update with TaskStateCompleted
//   - On any error: emit a final status update with TaskStateFailed
//     whose message carries the error text
//   - Cancel: emit a final status update with TaskStateCanceled
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kadirpekel/aloha/pkg/a2a"
	"github.com/kadirpekel/aloha/pkg/eventqueue"
	"github.com/kadirpekel/aloha/pkg/reasoner"
)

// RequestContext carries everything an execution needs to know about
// the request. StoredTask is nil for brand new tasks.
type RequestContext struct {
	TaskID     string
	ContextID  string
	Message    a2a.Message
	StoredTask *a2a.Task
}

// Executor produces a task's events. Implementations write into the
// queue and return; they never touch the task store directly.
type Executor interface {
	Execute(ctx context.Context, reqCtx *RequestContext, queue *eventqueue.Queue) error
	Cancel(ctx context.Context, reqCtx *RequestContext, queue *eventqueue.Queue) error
}

// AgentExecutor runs the reasoner over the incoming message.
type AgentExecutor struct {
	reasoner reasoner.Reasoner
}

// NewAgentExecutor creates an executor backed by the given reasoner.
func NewAgentExecutor(r reasoner.Reasoner) *AgentExecutor {
	return &AgentExecutor{reasoner: r}
}

// Execute implements Executor. A closed queue means the task was
// canceled underneath us; execution stops quietly in that case.
func (e *AgentExecutor) Execute(ctx context.Context, reqCtx *RequestContext, queue *eventqueue.Queue) error {
	// Validation comes before any status write: an invalid message
	// fails the task without ever entering working.
	text := strings.TrimSpace(reqCtx.Message.Text())
	if len(reqCtx.Message.Parts) == 0 || text == "" {
		slog.Debug("Execute: rejecting message without text", "taskID", reqCtx.TaskID)
		return e.fail(queue, reqCtx, "Invalid message: no text content to process")
	}

	if reqCtx.StoredTask == nil {
		submitted := a2a.NewStatusUpdateEvent(reqCtx.TaskID, reqCtx.ContextID,
			a2a.TaskStatus{State: a2a.TaskStateSubmitted, Timestamp: a2a.Now()}, false)
		if err := e.write(queue, submitted); err != nil {
			return err
		}
	}

	working := a2a.NewStatusUpdateEvent(reqCtx.TaskID, reqCtx.ContextID,
		a2a.TaskStatus{State: a2a.TaskStateWorking, Timestamp: a2a.Now()}, false)
	if err := e.write(queue, working); err != nil {
		return err
	}

	reply, err := e.reasoner.Reason(ctx, text)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		slog.Error("Execute: reasoning failed", "taskID", reqCtx.TaskID, "error", err)
		msg := err.Error()
		if errors.Is(err, reasoner.ErrReasoningUnavailable) {
			msg = fmt.Sprintf("%v. Check that the reasoning service is running and reachable.", err)
		}
		return e.fail(queue, reqCtx, msg)
	}

	artifact := a2a.NewArtifactUpdateEvent(reqCtx.TaskID, reqCtx.ContextID, a2a.Artifact{
		ArtifactID: uuid.New().String(),
		Name:       "response",
		Parts:      []a2a.Part{a2a.NewTextPart(reply)},
	})
	if err := e.write(queue, artifact); err != nil {
		return err
	}

	completed := a2a.NewStatusUpdateEvent(reqCtx.TaskID, reqCtx.ContextID,
		a2a.TaskStatus{State: a2a.TaskStateCompleted, Timestamp: a2a.Now()}, true)
	return e.write(queue, completed)
}

// Cancel implements Executor.
func (e *AgentExecutor) Cancel(ctx context.Context, reqCtx *RequestContext, queue *eventqueue.Queue) error {
	canceled := a2a.NewStatusUpdateEvent(reqCtx.TaskID, reqCtx.ContextID,
		a2a.TaskStatus{State: a2a.TaskStateCanceled, Timestamp: a2a.Now()}, true)
	return e.write(queue, canceled)
}

// fail writes the terminal failed status carrying the error text as an
// agent message.
func (e *AgentExecutor) fail(queue *eventqueue.Queue, reqCtx *RequestContext, message string) error {
	failed := a2a.NewStatusUpdateEvent(reqCtx.TaskID, reqCtx.ContextID, a2a.TaskStatus{
		State: a2a.TaskStateFailed,
		Message: &a2a.Message{
			Kind:      "message",
			MessageID: uuid.New().String(),
			Role:      a2a.MessageRoleAgent,
			Parts:     []a2a.Part{a2a.NewTextPart(message)},
			TaskID:    reqCtx.TaskID,
			ContextID: reqCtx.ContextID,
		},
		Timestamp: a2a.Now(),
	}, true)
	return e.write(queue, failed)
}

func (e *AgentExecutor) write(queue *eventqueue.Queue, event a2a.Event) error {
	err := queue.Write(event)
	if errors.Is(err, eventqueue.ErrQueueClosed) {
		// The task reached a terminal state concurrently (cancel).
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// Compile-time interface compliance check
var _ Executor = (*AgentExecutor)(nil)
