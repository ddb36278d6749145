package a2a

import (
	"encoding/json"
	"testing"
)

func TestTaskStateIsTerminal(t *testing.T) {
	tests := []struct {
		state    TaskState
		terminal bool
	}{
		{TaskStateSubmitted, false},
		{TaskStateWorking, false},
		{TaskStateCompleted, true},
		{TaskStateFailed, true},
		{TaskStateCanceled, true},
	}

	for _, tt := range tests {
		if got := tt.state.IsTerminal(); got != tt.terminal {
			t.Errorf("IsTerminal(%s) = %v, want %v", tt.state, got, tt.terminal)
		}
	}
}

func TestTaskStateCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from TaskState
		to   TaskState
		ok   bool
	}{
		{"submitted to working", TaskStateSubmitted, TaskStateWorking, true},
		{"submitted to canceled", TaskStateSubmitted, TaskStateCanceled, true},
		{"submitted to completed", TaskStateSubmitted, TaskStateCompleted, false},
		{"working to completed", TaskStateWorking, TaskStateCompleted, true},
		{"working to failed", TaskStateWorking, TaskStateFailed, true},
		{"working to canceled", TaskStateWorking, TaskStateCanceled, true},
		{"working to submitted", TaskStateWorking, TaskStateSubmitted, false},
		{"completed is frozen", TaskStateCompleted, TaskStateWorking, false},
		{"failed is frozen", TaskStateFailed, TaskStateCanceled, false},
		{"canceled is frozen", TaskStateCanceled, TaskStateWorking, false},
		{"no self transition", TaskStateWorking, TaskStateWorking, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.ok {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.ok)
			}
		})
	}
}

func TestPartUnmarshalRejectsUnknownKind(t *testing.T) {
	var p Part
	if err := json.Unmarshal([]byte(`{"kind":"file","uri":"x"}`), &p); err == nil {
		t.Fatal("expected error for unsupported part kind, got nil")
	}

	if err := json.Unmarshal([]byte(`{"kind":"text","text":"hello"}`), &p); err != nil {
		t.Fatalf("text part failed to decode: %v", err)
	}
	if p.Text != "hello" {
		t.Errorf("decoded text = %q, want %q", p.Text, "hello")
	}
}

func TestMessageText(t *testing.T) {
	m := Message{Parts: []Part{NewTextPart("roll "), NewTextPart("a dice")}}
	if got := m.Text(); got != "roll a dice" {
		t.Errorf("Text() = %q, want %q", got, "roll a dice")
	}

	empty := Message{}
	if got := empty.Text(); got != "" {
		t.Errorf("Text() on empty message = %q, want empty", got)
	}
}

func TestEventRoundTrip(t *testing.T) {
	status := NewStatusUpdateEvent("t1", "c1", TaskStatus{State: TaskStateCompleted, Timestamp: Now()}, true)
	data, err := MarshalEvent(status)
	if err != nil {
		t.Fatalf("MarshalEvent: %v", err)
	}

	decoded, err := UnmarshalEvent(data)
	if err != nil {
		t.Fatalf("UnmarshalEvent: %v", err)
	}
	su, ok := decoded.(*StatusUpdateEvent)
	if !ok {
		t.Fatalf("decoded type = %T, want *StatusUpdateEvent", decoded)
	}
	if su.TaskID != "t1" || su.Status.State != TaskStateCompleted || !su.Final {
		t.Errorf("decoded event mismatch: %+v", su)
	}

	artifact := NewArtifactUpdateEvent("t1", "c1", Artifact{
		ArtifactID: "a1",
		Name:       "response",
		Parts:      []Part{NewTextPart("result")},
	})
	data, err = MarshalEvent(artifact)
	if err != nil {
		t.Fatalf("MarshalEvent: %v", err)
	}
	decoded, err = UnmarshalEvent(data)
	if err != nil {
		t.Fatalf("UnmarshalEvent: %v", err)
	}
	au, ok := decoded.(*ArtifactUpdateEvent)
	if !ok {
		t.Fatalf("decoded type = %T, want *ArtifactUpdateEvent", decoded)
	}
	if au.Artifact.ArtifactID != "a1" || au.Artifact.Parts[0].Text != "result" {
		t.Errorf("decoded artifact mismatch: %+v", au.Artifact)
	}
}

func TestUnmarshalEventUnknownKind(t *testing.T) {
	if _, err := UnmarshalEvent([]byte(`{"kind":"message","taskId":"t1"}`)); err == nil {
		t.Fatal("expected error for unknown event kind, got nil")
	}
}
