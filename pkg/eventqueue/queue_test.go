package eventqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/aloha/pkg/a2a"
)

func statusEvent(taskID string, state a2a.TaskState, final bool) *a2a.StatusUpdateEvent {
	return a2a.NewStatusUpdateEvent(taskID, "ctx", a2a.TaskStatus{State: state, Timestamp: a2a.Now()}, final)
}

func collect(t *testing.T, ch <-chan a2a.Event) []a2a.Event {
	t.Helper()
	var events []a2a.Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, e)
		case <-timeout:
			t.Fatal("timed out waiting for channel to close")
		}
	}
}

func TestQueueReplayThenClose(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Write(statusEvent("t1", a2a.TaskStateSubmitted, false)))
	require.NoError(t, q.Write(statusEvent("t1", a2a.TaskStateWorking, false)))
	require.NoError(t, q.Write(statusEvent("t1", a2a.TaskStateCompleted, true)))

	// Subscribing after the final event still replays everything.
	events := collect(t, q.Subscribe(context.Background()))
	require.Len(t, events, 3)

	first := events[0].(*a2a.StatusUpdateEvent)
	last := events[2].(*a2a.StatusUpdateEvent)
	assert.Equal(t, a2a.TaskStateSubmitted, first.Status.State)
	assert.Equal(t, a2a.TaskStateCompleted, last.Status.State)
	assert.True(t, last.Final)
}

func TestQueueLiveDelivery(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Write(statusEvent("t1", a2a.TaskStateSubmitted, false)))

	ch := q.Subscribe(context.Background())

	go func() {
		q.Write(statusEvent("t1", a2a.TaskStateWorking, false))
		q.Write(a2a.NewArtifactUpdateEvent("t1", "ctx", a2a.Artifact{
			ArtifactID: "a1",
			Parts:      []a2a.Part{a2a.NewTextPart("done")},
		}))
		q.Write(statusEvent("t1", a2a.TaskStateCompleted, true))
	}()

	events := collect(t, ch)
	require.Len(t, events, 4)
	_, isArtifact := events[2].(*a2a.ArtifactUpdateEvent)
	assert.True(t, isArtifact, "third event should be the artifact update")
}

func TestQueueWriteAfterFinal(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Write(statusEvent("t1", a2a.TaskStateCanceled, true)))
	assert.True(t, q.Closed())

	err := q.Write(statusEvent("t1", a2a.TaskStateWorking, false))
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.Equal(t, 1, q.Len())
}

func TestQueueSubscribersSeeSameOrder(t *testing.T) {
	q := NewQueue()
	a := q.Subscribe(context.Background())
	b := q.Subscribe(context.Background())

	go func() {
		q.Write(statusEvent("t1", a2a.TaskStateSubmitted, false))
		q.Write(statusEvent("t1", a2a.TaskStateWorking, false))
		q.Write(statusEvent("t1", a2a.TaskStateFailed, true))
	}()

	eventsA := collect(t, a)
	eventsB := collect(t, b)
	require.Len(t, eventsA, 3)
	require.Len(t, eventsB, 3)
	for i := range eventsA {
		assert.Equal(t, eventsA[i], eventsB[i], "subscribers diverged at event %d", i)
	}
}

func TestQueueSubscribeCanceledContext(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	ch := q.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should close after context cancel")
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close after context cancel")
	}
}

func TestManager(t *testing.T) {
	m := NewManager()
	assert.Nil(t, m.Get("missing"))

	q1 := m.GetOrCreate("t1")
	q2 := m.GetOrCreate("t1")
	assert.Same(t, q1, q2)

	m.Destroy("t1")
	assert.Nil(t, m.Get("t1"))
}
