// Package a2a implements the Agent-to-Agent (A2A) protocol data model:
// tasks, messages, artifacts, streaming events and agent cards.
// Specification: https://a2a-protocol.org/latest/specification/
package a2a

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ============================================================================
// PROTOCOL VERSION
// ============================================================================

const (
	ProtocolVersion = "0.3.0"
)

// ============================================================================
// PROTOCOL ERRORS
// Transport adapters map these onto their native error surface.
// ============================================================================

var (
	// ErrTaskNotFound is returned when a task id is unknown to the store.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskNotCancelable is returned when a cancel targets a task that
	// already reached a terminal state.
	ErrTaskNotCancelable = errors.New("task cannot be canceled")
)

// ============================================================================
// TASK STATE MACHINE
// submitted -> working -> completed | failed | canceled
// submitted -> canceled
// ============================================================================

// TaskState represents the lifecycle state of a task.
type TaskState string

const (
	TaskStateSubmitted TaskState = "submitted"
	TaskStateWorking   TaskState = "working"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
	TaskStateCanceled  TaskState = "canceled"
)

// IsTerminal reports whether no further state changes are allowed.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal
// lifecycle transition. Self transitions are not legal.
func (s TaskState) CanTransition(next TaskState) bool {
	switch s {
	case TaskStateSubmitted:
		return next == TaskStateWorking || next == TaskStateCanceled
	case TaskStateWorking:
		return next.IsTerminal()
	}
	return false
}

// ============================================================================
// MESSAGE AND PARTS
// Part is a union type discriminated by "kind". Only text parts are
// supported; unknown kinds are rejected at decode time.
// ============================================================================

// MessageRole identifies the sender of a message.
type MessageRole string

const (
	MessageRoleUser  MessageRole = "user"
	MessageRoleAgent MessageRole = "agent"
)

// PartKind discriminates the Part union.
type PartKind string

const (
	PartKindText PartKind = "text"
)

// Part is one unit of message or artifact content.
type Part struct {
	Kind PartKind `json:"kind"`
	Text string   `json:"text,omitempty"`
}

// UnmarshalJSON rejects parts whose kind this implementation does not
// understand, so malformed input fails the task instead of being
// silently dropped.
func (p *Part) UnmarshalJSON(data []byte) error {
	type part Part
	var raw part
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Kind != PartKindText {
		return fmt.Errorf("unsupported part kind: %q", raw.Kind)
	}
	*p = Part(raw)
	return nil
}

// NewTextPart builds a text part.
func NewTextPart(text string) Part {
	return Part{Kind: PartKindText, Text: text}
}

// Message is a single conversational turn.
type Message struct {
	Kind      string      `json:"kind,omitempty"` // always "message" on the wire
	MessageID string      `json:"messageId"`
	Role      MessageRole `json:"role"`
	Parts     []Part      `json:"parts"`
	TaskID    string      `json:"taskId,omitempty"`
	ContextID string      `json:"contextId,omitempty"`
}

// Text concatenates the message's text parts.
func (m *Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Kind == PartKindText {
			out += p.Text
		}
	}
	return out
}

// ============================================================================
// TASK, STATUS AND ARTIFACTS
// ============================================================================

// TaskStatus is the current lifecycle position of a task plus an
// optional status message (set on failures and cancellations).
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"` // RFC 3339
}

// Artifact is an output produced by task execution.
type Artifact struct {
	ArtifactID string `json:"artifactId"`
	Name       string `json:"name,omitempty"`
	Parts      []Part `json:"parts"`
}

// Task is the unit of work tracked by the runtime.
type Task struct {
	Kind      string     `json:"kind,omitempty"` // always "task" on the wire
	ID        string     `json:"id"`
	ContextID string     `json:"contextId"`
	Status    TaskStatus `json:"status"`
	History   []Message  `json:"history,omitempty"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// Now returns the protocol timestamp format for the current instant.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// ============================================================================
// STREAMING EVENTS
// Event is a union discriminated by "kind": "status-update" or
// "artifact-update". A status update with Final=true is the last event
// a task ever emits.
// ============================================================================

const (
	EventKindStatusUpdate   = "status-update"
	EventKindArtifactUpdate = "artifact-update"
)

// Event is one element of a task's event stream.
type Event interface {
	// EventTaskID returns the id of the task this event belongs to.
	EventTaskID() string
}

// StatusUpdateEvent signals a task state change.
type StatusUpdateEvent struct {
	Kind      string     `json:"kind"`
	TaskID    string     `json:"taskId"`
	ContextID string     `json:"contextId"`
	Status    TaskStatus `json:"status"`
	Final     bool       `json:"final"`
}

func (e *StatusUpdateEvent) EventTaskID() string { return e.TaskID }

// ArtifactUpdateEvent delivers a produced artifact.
type ArtifactUpdateEvent struct {
	Kind      string   `json:"kind"`
	TaskID    string   `json:"taskId"`
	ContextID string   `json:"contextId"`
	Artifact  Artifact `json:"artifact"`
}

func (e *ArtifactUpdateEvent) EventTaskID() string { return e.TaskID }

// NewStatusUpdateEvent builds a status-update event.
func NewStatusUpdateEvent(taskID, contextID string, status TaskStatus, final bool) *StatusUpdateEvent {
	return &StatusUpdateEvent{
		Kind:      EventKindStatusUpdate,
		TaskID:    taskID,
		ContextID: contextID,
		Status:    status,
		Final:     final,
	}
}

// NewArtifactUpdateEvent builds an artifact-update event.
func NewArtifactUpdateEvent(taskID, contextID string, artifact Artifact) *ArtifactUpdateEvent {
	return &ArtifactUpdateEvent{
		Kind:      EventKindArtifactUpdate,
		TaskID:    taskID,
		ContextID: contextID,
		Artifact:  artifact,
	}
}

// MarshalEvent encodes an event with its kind discriminator.
func MarshalEvent(e Event) ([]byte, error) {
	switch e.(type) {
	case *StatusUpdateEvent, *ArtifactUpdateEvent:
		return json.Marshal(e)
	}
	return nil, fmt.Errorf("unknown event type %T", e)
}

// UnmarshalEvent decodes an event by its kind discriminator.
func UnmarshalEvent(data []byte) (Event, error) {
	var probe struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	switch probe.Kind {
	case EventKindStatusUpdate:
		var e StatusUpdateEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return &e, nil
	case EventKindArtifactUpdate:
		var e ArtifactUpdateEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return &e, nil
	}
	return nil, fmt.Errorf("unknown event kind: %q", probe.Kind)
}

// ============================================================================
// RPC METHOD PARAMETERS
// Shared by all transports; each adapter decodes its native envelope
// into these shapes.
// ============================================================================

// MessageSendParams carries the payload of message/send and
// message/stream.
type MessageSendParams struct {
	Message Message `json:"message"`
}

// TaskQueryParams carries the payload of tasks/get.
type TaskQueryParams struct {
	ID            string `json:"id"`
	HistoryLength *int   `json:"historyLength,omitempty"`
}

// TaskCancelParams carries the payload of tasks/cancel.
type TaskCancelParams struct {
	ID string `json:"id"`
}

// ============================================================================
// AGENT CARD
// ============================================================================

// AgentCard advertises the agent's identity, transports and skills.
type AgentCard struct {
	Name                 string            `json:"name"`
	Description          string            `json:"description"`
	Version              string            `json:"version"`
	ProtocolVersion      string            `json:"protocolVersion"`
	URL                  string            `json:"url"`
	PreferredTransport   string            `json:"preferredTransport"`
	AdditionalInterfaces []AgentInterface  `json:"additionalInterfaces,omitempty"`
	Capabilities         AgentCapabilities `json:"capabilities"`
	DefaultInputModes    []string          `json:"defaultInputModes"`
	DefaultOutputModes   []string          `json:"defaultOutputModes"`
	Skills               []AgentSkill      `json:"skills,omitempty"`
}

// Transport identifiers used in agent cards.
const (
	TransportGRPC     = "GRPC"
	TransportJSONRPC  = "JSONRPC"
	TransportHTTPJSON = "HTTP+JSON"
)

// AgentInterface names one transport binding of the agent.
type AgentInterface struct {
	Transport string `json:"transport"`
	URL       string `json:"url"`
}

// AgentCapabilities describes optional protocol features.
type AgentCapabilities struct {
	Streaming         bool `json:"streaming"`
	PushNotifications bool `json:"pushNotifications"`
}

// AgentSkill describes one capability of the agent.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
}
