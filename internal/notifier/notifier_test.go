package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestHub_DeliversInPublishOrder(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()

	sub := hub.Subscribe("")
	defer sub.Close()

	for i := 1; i <= 100; i++ {
		hub.Publish(Event{Type: EventSyncProgress, Session: "alpha", Payload: SyncProgressPayload{Count: i}})
	}

	for i := 1; i <= 100; i++ {
		ev := receive(t, sub)
		assert.Equal(t, i, ev.Payload.(SyncProgressPayload).Count)
		assert.False(t, ev.At.IsZero())
	}
}

func TestHub_SessionFilter(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()

	alpha := hub.Subscribe("alpha")
	defer alpha.Close()

	hub.Publish(Event{Type: EventReady, Session: "beta"})
	hub.Publish(Event{Type: EventReady, Session: "alpha"})

	ev := receive(t, alpha)
	assert.Equal(t, "alpha", ev.Session)
}

func TestHub_SlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()

	slow := hub.Subscribe("")
	defer slow.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Publish(Event{Type: EventSyncProgress, Session: "alpha", Payload: SyncProgressPayload{Count: i}})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on an idle subscriber")
	}

	for i := 0; i < 1000; i++ {
		ev := receive(t, slow)
		require.Equal(t, i, ev.Payload.(SyncProgressPayload).Count)
	}
}

func TestSubscription_CloseEndsChannel(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	defer hub.Close()

	sub := hub.Subscribe("")
	assert.Equal(t, 1, hub.SubscriberCount())
	sub.Close()
	sub.Close()

	_, ok := <-sub.C
	assert.False(t, ok)
	assert.Equal(t, 0, hub.SubscriberCount())
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Deliver(ctx context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if r.fail {
		return errors.New("sink down")
	}
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestHub_SinkReceivesEventsAndSurvivesErrors(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sink := &recordingSink{fail: true}
	hub.AddSink(sink)

	hub.Publish(Event{Type: EventReady, Session: "alpha"})
	hub.Publish(Event{Type: EventDisconnected, Session: "alpha"})

	require.Eventually(t, func() bool { return sink.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	hub.Close()

	assert.Equal(t, EventReady, sink.events[0].Type)
	assert.Equal(t, EventDisconnected, sink.events[1].Type)
}

func TestChannelFor(t *testing.T) {
	assert.Equal(t, "wamirror:events:905551234567", ChannelFor("905551234567"))
}
