package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Ananth-NQI/wamirror-backend/internal/notifier"
	"github.com/Ananth-NQI/wamirror-backend/internal/storage"
	"github.com/Ananth-NQI/wamirror-backend/internal/whatsapp"
)

// fakeHandle is a scriptable client handle
type fakeHandle struct {
	name   string
	events chan whatsapp.Event

	mu        sync.Mutex
	closed    bool
	onInit    func(h *fakeHandle)
	initErr   error
	history   map[string][]whatsapp.Message
	chats     []whatsapp.Chat
	sent      []whatsapp.Message
	fetches   []string
	fetchedAt []time.Time
	loggedOut bool
	destroyed int
	fetchHook func(chatID string)
}

func newFakeHandle(name string) *fakeHandle {
	return &fakeHandle{
		name:    name,
		events:  make(chan whatsapp.Event, 256),
		history: make(map[string][]whatsapp.Message),
	}
}

func (h *fakeHandle) Events() <-chan whatsapp.Event { return h.events }

func (h *fakeHandle) Initialize(ctx context.Context) error {
	h.mu.Lock()
	err, init := h.initErr, h.onInit
	h.mu.Unlock()
	if err != nil {
		return err
	}
	if init != nil {
		init(h)
	}
	return nil
}

// emit sends ev unless the handle was destroyed
func (h *fakeHandle) emit(ev whatsapp.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.events <- ev
}

func (h *fakeHandle) SendText(ctx context.Context, chatID, text string) (*whatsapp.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	msg := whatsapp.Message{
		ID:        "sent-" + chatID + "-" + text,
		From:      h.name + "@c.us",
		To:        chatID,
		FromMe:    true,
		Type:      "chat",
		Body:      text,
		Timestamp: time.Now().Unix(),
	}
	h.sent = append(h.sent, msg)
	return &msg, nil
}

func (h *fakeHandle) FetchMessages(ctx context.Context, chatID string, limit int) ([]whatsapp.Message, error) {
	h.mu.Lock()
	h.fetches = append(h.fetches, chatID)
	h.fetchedAt = append(h.fetchedAt, time.Now())
	hook := h.fetchHook
	msgs, ok := h.history[chatID]
	h.mu.Unlock()

	if hook != nil {
		hook(chatID)
	}
	if !ok {
		return nil, errors.New("chat not found")
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]whatsapp.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (h *fakeHandle) Chats(ctx context.Context) ([]whatsapp.Chat, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]whatsapp.Chat(nil), h.chats...), nil
}

func (h *fakeHandle) Logout(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loggedOut = true
	return nil
}

func (h *fakeHandle) Destroy() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.destroyed++
	if !h.closed {
		h.closed = true
		close(h.events)
	}
	return nil
}

func (h *fakeHandle) fetchCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.fetches)
}

// fakeProvider hands out preconfigured handles
type fakeProvider struct {
	mu       sync.Mutex
	handles  map[string]*fakeHandle
	acquired int
	setup    func(h *fakeHandle)
	err      error

	// when set, Acquire signals entered and then blocks until gate is closed
	entered chan struct{}
	gate    chan struct{}
}

func newFakeProvider(setup func(h *fakeHandle)) *fakeProvider {
	return &fakeProvider{handles: make(map[string]*fakeHandle), setup: setup}
}

func (p *fakeProvider) Acquire(ctx context.Context, name string) (whatsapp.Handle, error) {
	if p.gate != nil {
		p.entered <- struct{}{}
		<-p.gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.acquired++
	h := newFakeHandle(name)
	if p.setup != nil {
		p.setup(h)
	}
	p.handles[name] = h
	return h, nil
}

func (p *fakeProvider) handle(name string) *fakeHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handles[name]
}

func (p *fakeProvider) acquireCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired
}

// recorder captures published events
type recorder struct {
	mu     sync.Mutex
	events []notifier.Event
}

func (r *recorder) Publish(ev notifier.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []notifier.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notifier.Event(nil), r.events...)
}

func (r *recorder) ofType(t notifier.EventType) []notifier.Event {
	var out []notifier.Event
	for _, ev := range r.all() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func readyOnInit(h *fakeHandle) {
	h.onInit = func(h *fakeHandle) { h.emit(whatsapp.Event{Type: whatsapp.EventReady}) }
}

func qrOnInit(h *fakeHandle) {
	h.onInit = func(h *fakeHandle) { h.emit(whatsapp.Event{Type: whatsapp.EventQR, QR: "2@pairing-ref"}) }
}

type harness struct {
	store    *storage.MemoryStore
	provider *fakeProvider
	events   *recorder
	manager  *SessionManager
}

func newHarness(t *testing.T, setup func(h *fakeHandle), cfg ManagerConfig) *harness {
	t.Helper()
	if cfg.StartTimeout == 0 {
		cfg.StartTimeout = 2 * time.Second
	}
	if cfg.SyncInterChatDelay == 0 {
		cfg.SyncInterChatDelay = 10 * time.Millisecond
	}
	h := &harness{
		store:    storage.NewMemoryStore(),
		provider: newFakeProvider(setup),
		events:   &recorder{},
	}
	h.manager = NewSessionManager(h.store, h.provider, h.events, cfg, zerolog.Nop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, h.manager.Shutdown(ctx))
	})
	return h
}

// connect starts name and waits for the startup catch-up to settle
func (h *harness) connect(t *testing.T, name string) *fakeHandle {
	t.Helper()
	res, err := h.manager.Start(context.Background(), name, nil)
	require.NoError(t, err)
	require.Equal(t, "CONNECTED", string(res.Status))
	return h.provider.handle(name)
}

func textMsg(id, from string, ts int64, body string) whatsapp.Message {
	return whatsapp.Message{ID: id, From: from, To: "me@c.us", Type: "chat", Body: body, Timestamp: ts}
}
