// Package notifier fans lifecycle and sync progress events out to subscribers.
package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/wamirror-backend/internal/metrics"
)

const sinkDeliveryTimeout = 5 * time.Second

// Publisher is the write side of the hub
type Publisher interface {
	Publish(ev Event)
}

// Sink receives every event, in publish order, outside the publisher's goroutine
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev Event) error
}

// Hub is an in-process topic hub. Publish never blocks on subscribers: each
// subscription buffers into its own unbounded queue and a pump goroutine
// drains it, so per-session order is kept and nothing is dropped.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool

	sinkWG sync.WaitGroup
	log    zerolog.Logger
}

// NewHub creates an empty hub
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		subs: make(map[uint64]*Subscription),
		log:  logger.With().Str("component", "notifier").Logger(),
	}
}

// Publish delivers ev to all current subscribers
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	metrics.EventsPublished.WithLabelValues(string(ev.Type)).Inc()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		sub.enqueue(ev)
	}
}

// Subscribe registers a subscriber. An empty session receives every session's events.
func (h *Hub) Subscribe(session string) *Subscription {
	out := make(chan Event)
	sub := &Subscription{
		C:       out,
		out:     out,
		session: session,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		hub:     h,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.done)
		close(out)
		return sub
	}
	h.nextID++
	sub.id = h.nextID
	h.subs[sub.id] = sub
	h.mu.Unlock()

	go sub.pump()
	return sub
}

// AddSink forwards every event to sink. Delivery errors are logged and counted.
func (h *Hub) AddSink(sink Sink) {
	sub := h.Subscribe("")
	h.sinkWG.Add(1)
	go func() {
		defer h.sinkWG.Done()
		for ev := range sub.C {
			ctx, cancel := context.WithTimeout(context.Background(), sinkDeliveryTimeout)
			err := sink.Deliver(ctx, ev)
			cancel()
			if err != nil {
				metrics.SinkErrors.WithLabelValues(sink.Name()).Inc()
				h.log.Warn().Err(err).
					Str("sink", sink.Name()).
					Str("event", string(ev.Type)).
					Str("session", ev.Session).
					Msg("event sink delivery failed")
			}
		}
	}()
}

// SubscriberCount returns the number of open subscriptions, sinks included
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends all subscriptions and waits for sinks to stop
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	h.sinkWG.Wait()
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// Subscription is a single subscriber's ordered event stream. C is closed
// after Close.
type Subscription struct {
	C <-chan Event

	out     chan Event
	session string
	id      uint64
	hub     *Hub

	mu    sync.Mutex
	queue []Event
	wake  chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// Close unsubscribes; queued but undelivered events are discarded
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.hub.remove(s.id)
		close(s.done)
	})
}

func (s *Subscription) enqueue(ev Event) {
	if s.session != "" && s.session != ev.Session {
		return
	}
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		ev := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}
