package stepbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEmitWithoutQueueIsNoop(t *testing.T) {
	b := New(4)
	// no EnsureQueue call; Emit must not panic or block
	b.Emit("missing-session", Event{Type: EventStep, Agent: "Zeus"})
}

func TestEmitDropsOnFullQueue(t *testing.T) {
	b := New(1)
	b.EnsureQueue("s1")
	b.Emit("s1", Event{Type: EventStep, Action: "first"})
	b.Emit("s1", Event{Type: EventStep, Action: "second"}) // dropped, queue cap 1

	var got []Event
	done := make(chan struct{})
	go func() {
		b.Stream("s1", 200*time.Millisecond, nil, func(ev Event) bool {
			got = append(got, ev)
			return true
		})
		close(done)
	}()
	<-done
	require.Len(t, got, 2) // first event + timeout event
	require.Equal(t, EventStep, got[0].Type)
	require.Equal(t, "first", got[0].Action)
	require.Equal(t, EventTimeout, got[1].Type)
}

func TestStreamStopsOnComplete(t *testing.T) {
	b := New(4)
	b.EnsureQueue("s2")
	go func() {
		b.Emit("s2", Event{Type: EventStep, Action: "load_context"})
		b.Emit("s2", Event{Type: EventStep, Action: "classify"})
		b.Emit("s2", Event{Type: EventComplete})
	}()

	var got []Event
	b.Stream("s2", 2*time.Second, nil, func(ev Event) bool {
		got = append(got, ev)
		return true
	})
	require.Len(t, got, 3)
	require.Equal(t, EventComplete, got[len(got)-1].Type)

	// queue removed after stream terminates
	b.mu.Lock()
	_, ok := b.queues["s2"]
	b.mu.Unlock()
	require.False(t, ok)
}

func TestStreamOrderingFIFO(t *testing.T) {
	b := New(16)
	b.EnsureQueue("s3")
	for i := 0; i < 5; i++ {
		b.Emit("s3", Event{Type: EventStep, Action: string(rune('a' + i))})
	}
	b.Emit("s3", Event{Type: EventComplete})

	var order []string
	b.Stream("s3", time.Second, nil, func(ev Event) bool {
		if ev.Type == EventStep {
			order = append(order, ev.Action)
		}
		return true
	})
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, order)
}
