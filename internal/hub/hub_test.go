package hub

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readEvent(t *testing.T, obs *Observer) *Event {
	t.Helper()
	select {
	case frame, ok := <-obs.Frames():
		require.True(t, ok, "frame channel closed")
		var ev Event
		require.NoError(t, json.Unmarshal(frame, &ev))
		return &ev
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received within timeout")
		return nil
	}
}

func assertNoFrame(t *testing.T, obs *Observer) {
	t.Helper()
	select {
	case frame := <-obs.Frames():
		t.Fatalf("unexpected frame: %s", frame)
	default:
	}
}

func TestHub_WelcomeOnlyToNewObserver(t *testing.T) {
	h := New(Options{
		Welcome: func() *Event {
			return NewEvent(KindSystem, "bienvenue", SenderSystem)
		},
	})

	a := h.Register()
	ev := readEvent(t, a)
	assert.Equal(t, KindSystem, ev.Type)
	assert.Equal(t, "bienvenue", ev.Content)

	// A later registration must not greet existing observers again.
	b := h.Register()
	ev = readEvent(t, b)
	assert.Equal(t, "bienvenue", ev.Content)
	assertNoFrame(t, a)
}

func TestHub_BroadcastOrdering(t *testing.T) {
	h := New(Options{BufferSize: 128})
	obs := h.Register()

	for i := 0; i < 50; i++ {
		h.Broadcast(NewEvent(KindAgent, fmt.Sprintf("message %d", i), "Agent"))
	}
	for i := 0; i < 50; i++ {
		ev := readEvent(t, obs)
		assert.Equal(t, fmt.Sprintf("message %d", i), ev.Content)
	}
}

func TestHub_SlowObserverDropped(t *testing.T) {
	h := New(Options{BufferSize: 4})
	slow := h.Register()
	fast := h.Register()

	// Saturate the slow observer's buffer without draining it.
	for i := 0; i < 4; i++ {
		require.True(t, h.SendTo(slow.ID(), NewEvent(KindSystem, "remplissage", SenderSystem)))
	}
	require.Equal(t, 2, h.Len())

	h.Broadcast(NewEvent(KindAgent, "au revoir", "Agent"))

	// The overflowing observer is dropped, the healthy one still delivers.
	assert.Equal(t, 1, h.Len())
	ev := readEvent(t, fast)
	assert.Equal(t, "au revoir", ev.Content)
}

func TestHub_UnregisterIdempotent(t *testing.T) {
	h := New(Options{})
	obs := h.Register()
	require.Equal(t, 1, h.Len())

	h.Unregister(obs.ID())
	h.Unregister(obs.ID())
	assert.Equal(t, 0, h.Len())

	_, ok := <-obs.Frames()
	assert.False(t, ok, "frame channel should be closed")
}

func TestHub_SendTo(t *testing.T) {
	h := New(Options{BufferSize: 1})
	obs := h.Register()

	assert.False(t, h.SendTo("nonexistent", NewEvent(KindSystem, "x", "y")))

	assert.True(t, h.SendTo(obs.ID(), NewEvent(KindSystem, "perso", SenderSystem)))
	ev := readEvent(t, obs)
	assert.Equal(t, "perso", ev.Content)

	// Fill the buffer, then overflow it: the observer is dropped.
	assert.True(t, h.SendTo(obs.ID(), NewEvent(KindSystem, "plein", SenderSystem)))
	assert.False(t, h.SendTo(obs.ID(), NewEvent(KindSystem, "trop", SenderSystem)))
	assert.Equal(t, 0, h.Len())
}

func TestHub_SubscribeReceivesBroadcastsOnly(t *testing.T) {
	h := New(Options{})
	obs := h.Register()
	id, ch := h.Subscribe(8)
	defer h.Unsubscribe(id)

	h.SendTo(obs.ID(), NewEvent(KindSystem, "perso", SenderSystem))
	h.Broadcast(NewEvent(KindError, "échec", SenderSystem))

	select {
	case ev := <-ch:
		assert.Equal(t, KindError, ev.Type)
		assert.Equal(t, "échec", ev.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not receive broadcast")
	}
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event: %+v", ev)
	default:
	}
}

func TestHub_ConcurrentBroadcasts(t *testing.T) {
	h := New(Options{BufferSize: 256})
	obs := h.Register()

	drained := make(chan int, 1)
	go func() {
		count := 0
		for range obs.Frames() {
			count++
		}
		drained <- count
	}()

	var wg conc.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Go(func() {
			for j := 0; j < 10; j++ {
				h.Broadcast(NewEvent(KindAgent, "tick", "Agent"))
			}
		})
	}
	wg.Wait()
	h.Unregister(obs.ID())

	select {
	case count := <-drained:
		assert.Equal(t, 100, count)
	case <-time.After(2 * time.Second):
		t.Fatal("observer did not drain")
	}
}
