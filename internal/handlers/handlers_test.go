package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ananth-NQI/wamirror-backend/internal/handlers"
	"github.com/Ananth-NQI/wamirror-backend/internal/models"
	"github.com/Ananth-NQI/wamirror-backend/internal/notifier"
	"github.com/Ananth-NQI/wamirror-backend/internal/routes"
	"github.com/Ananth-NQI/wamirror-backend/internal/services"
	"github.com/Ananth-NQI/wamirror-backend/internal/storage"
	"github.com/Ananth-NQI/wamirror-backend/internal/whatsapp"
)

// stubHandle connects as soon as it is initialized
type stubHandle struct {
	events chan whatsapp.Event
	once   sync.Once
	ready  bool
}

func (h *stubHandle) Events() <-chan whatsapp.Event { return h.events }

func (h *stubHandle) Initialize(ctx context.Context) error {
	if h.ready {
		h.events <- whatsapp.Event{Type: whatsapp.EventReady}
	} else {
		h.events <- whatsapp.Event{Type: whatsapp.EventQR, QR: "pairing-ref"}
	}
	return nil
}

func (h *stubHandle) SendText(ctx context.Context, chatID, text string) (*whatsapp.Message, error) {
	return &whatsapp.Message{ID: "out-1", To: chatID, FromMe: true, Type: "chat", Body: text, Timestamp: 1700000000}, nil
}

func (h *stubHandle) FetchMessages(ctx context.Context, chatID string, limit int) ([]whatsapp.Message, error) {
	return []whatsapp.Message{
		{ID: "in-1", From: chatID, Type: "chat", Body: "older", Timestamp: 1690000000},
	}, nil
}

func (h *stubHandle) Chats(ctx context.Context) ([]whatsapp.Chat, error) {
	return []whatsapp.Chat{{ID: "905551234567@c.us", Name: "Ali", Timestamp: 10}}, nil
}

func (h *stubHandle) Logout(ctx context.Context) error { return nil }

func (h *stubHandle) Destroy() error {
	h.once.Do(func() { close(h.events) })
	return nil
}

type stubProvider struct{ ready bool }

func (p stubProvider) Acquire(ctx context.Context, name string) (whatsapp.Handle, error) {
	return &stubHandle{events: make(chan whatsapp.Event, 16), ready: p.ready}, nil
}

type testApp struct {
	app     *fiber.App
	store   *storage.MemoryStore
	manager *services.SessionManager
	hub     *notifier.Hub
}

func newTestApp(t *testing.T, ready bool) *testApp {
	t.Helper()
	logger := zerolog.Nop()
	store := storage.NewMemoryStore()
	hub := notifier.NewHub(logger)
	manager := services.NewSessionManager(store, stubProvider{ready: ready}, hub, services.ManagerConfig{
		StartTimeout:       time.Second,
		SyncInterChatDelay: 10 * time.Millisecond,
	}, logger)

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler(logger)})
	routes.SetupRoutes(app, routes.Dependencies{
		Store:   store,
		Manager: manager,
		Replies: services.NewQuickReplyService(store),
		Hub:     hub,
		Logger:  logger,
	})

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = manager.Shutdown(ctx)
		hub.Close()
	})
	return &testApp{app: app, store: store, manager: manager, hub: hub}
}

func (a *testApp) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestStartSession(t *testing.T) {
	a := newTestApp(t, false)

	status, body := a.do(t, http.MethodPost, "/api/sessions/start", map[string]string{})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, handlers.CodeValidation, body["code"])

	status, body = a.do(t, http.MethodPost, "/api/sessions/start", map[string]string{"sessionName": "alpha"})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, string(models.StatusQRReady), body["status"])
	assert.True(t, strings.HasPrefix(body["pairing"].(string), "data:image/png;base64,"))
	assert.NotZero(t, body["sessionId"])

	status, body = a.do(t, http.MethodGet, "/api/sessions/alpha", nil)
	require.Equal(t, fiber.StatusOK, status)
	session := body["session"].(map[string]interface{})
	assert.Equal(t, true, session["live"])

	status, _ = a.do(t, http.MethodGet, "/api/sessions/ghost", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestSendMessage(t *testing.T) {
	a := newTestApp(t, true)

	status, body := a.do(t, http.MethodPost, "/api/messages/send", map[string]string{"sessionName": "alpha", "targetNumber": "905551234567", "text": "hi"})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, handlers.CodeSessionNotReady, body["code"])

	status, _ = a.do(t, http.MethodPost, "/api/messages/send", map[string]string{"sessionName": "alpha", "text": "hi"})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = a.do(t, http.MethodPost, "/api/sessions/start", map[string]string{"sessionName": "alpha"})
	require.Equal(t, fiber.StatusOK, status)

	status, body = a.do(t, http.MethodPost, "/api/messages/send", map[string]string{"sessionName": "alpha", "targetNumber": "+90 555 123 45 67", "text": "hi"})
	require.Equal(t, fiber.StatusOK, status)
	msg := body["message"].(map[string]interface{})
	assert.Equal(t, "out-1", msg["external_id"])
	assert.Equal(t, "outbound", msg["direction"])
}

func TestHistoryAndChats(t *testing.T) {
	a := newTestApp(t, true)
	status, _ := a.do(t, http.MethodPost, "/api/sessions/start", map[string]string{"sessionName": "alpha"})
	require.Equal(t, fiber.StatusOK, status)

	status, body := a.do(t, http.MethodPost, "/api/messages/history", map[string]interface{}{"sessionName": "alpha"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, handlers.CodeValidation, body["code"])

	status, body = a.do(t, http.MethodPost, "/api/messages/history", map[string]interface{}{
		"sessionName": "alpha",
		"contactId":   "905551234567@c.us",
		"limit":       20,
	})
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])

	status, body = a.do(t, http.MethodGet, "/api/sessions/alpha/chats", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])

	status, body = a.do(t, http.MethodGet, "/api/sessions/alpha/contacts", nil)
	require.Equal(t, fiber.StatusOK, status)
	contacts := body["contacts"].([]interface{})
	require.Len(t, contacts, 1)

	contact := contacts[0].(map[string]interface{})
	path := "/api/contacts/" + jsonNumber(contact["session_id"]) + "/" + jsonNumber(contact["id"])
	status, body = a.do(t, http.MethodPut, path, map[string]interface{}{
		"displayName": "Ali Veli",
		"tags":        []string{"vip"},
	})
	require.Equal(t, fiber.StatusOK, status)
	updated := body["contact"].(map[string]interface{})
	assert.Equal(t, "Ali Veli", updated["display_name"])

	status, _ = a.do(t, http.MethodPut, "/api/contacts/999/1", map[string]interface{}{"displayName": "x"})
	assert.Equal(t, fiber.StatusNotFound, status)
	status, _ = a.do(t, http.MethodPut, "/api/contacts/abc/1", map[string]interface{}{"displayName": "x"})
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func jsonNumber(v interface{}) string {
	raw, _ := json.Marshal(v)
	return string(raw)
}

func TestSyncSelected(t *testing.T) {
	a := newTestApp(t, true)

	status, body := a.do(t, http.MethodPost, "/api/sync/selected", map[string]interface{}{"sessionName": "alpha", "contactIds": []string{}})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, handlers.CodeValidation, body["code"])

	status, body = a.do(t, http.MethodPost, "/api/sync/selected", map[string]interface{}{"sessionName": "alpha", "contactIds": []string{"905551234567"}})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, handlers.CodeSessionNotReady, body["code"])

	status, _ = a.do(t, http.MethodPost, "/api/sessions/start", map[string]string{"sessionName": "alpha"})
	require.Equal(t, fiber.StatusOK, status)

	sub := a.hub.Subscribe("alpha")
	defer sub.Close()

	status, _ = a.do(t, http.MethodPost, "/api/sync/selected", map[string]interface{}{
		"sessionName": "alpha",
		"contactIds":  []string{"905551234567", "905551234568"},
		"delayMs":     10,
	})
	require.Equal(t, fiber.StatusAccepted, status)

	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-sub.C:
			if ev.Type == notifier.EventSyncComplete {
				return
			}
		case <-deadline:
			t.Fatal("sync did not complete")
		}
	}
}

func TestDeleteSession(t *testing.T) {
	a := newTestApp(t, true)
	status, _ := a.do(t, http.MethodPost, "/api/sessions/start", map[string]string{"sessionName": "alpha"})
	require.Equal(t, fiber.StatusOK, status)

	status, body := a.do(t, http.MethodDelete, "/api/sessions/alpha", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])

	status, _ = a.do(t, http.MethodDelete, "/api/sessions/alpha", nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body = a.do(t, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 0, body["count"])
}

func TestQuickReplies(t *testing.T) {
	a := newTestApp(t, true)

	status, _ := a.do(t, http.MethodPost, "/api/quick-replies", map[string]string{"title": "Hi"})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body := a.do(t, http.MethodPost, "/api/quick-replies", map[string]string{"title": "Hi", "body": "Hello {{name}}"})
	require.Equal(t, fiber.StatusCreated, status)
	id := body["quickReply"].(map[string]interface{})["id"].(string)
	assert.Equal(t, []interface{}{"name"}, body["parameters"])

	status, body = a.do(t, http.MethodPost, "/api/quick-replies/"+id+"/render", map[string]interface{}{"params": map[string]string{"name": "Ayşe"}})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Hello Ayşe", body["text"])

	status, _ = a.do(t, http.MethodPost, "/api/quick-replies/"+id+"/render", map[string]interface{}{"params": map[string]string{}})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = a.do(t, http.MethodGet, "/api/quick-replies", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])

	status, _ = a.do(t, http.MethodDelete, "/api/quick-replies/"+id, nil)
	require.Equal(t, fiber.StatusOK, status)
	status, _ = a.do(t, http.MethodDelete, "/api/quick-replies/"+id, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestHealth(t *testing.T) {
	a := newTestApp(t, true)
	status, body := a.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "OK", body["status"])
	assert.EqualValues(t, 0, body["liveSessions"])
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

func TestHealth_EventSink(t *testing.T) {
	store := storage.NewMemoryStore()
	manager := services.NewSessionManager(store, stubProvider{}, notifier.NewHub(zerolog.Nop()), services.ManagerConfig{}, zerolog.Nop())
	defer manager.Shutdown(context.Background())

	check := func(sink handlers.Pinger) (int, map[string]interface{}) {
		app := fiber.New()
		app.Get("/health", handlers.NewHealthHandler("test", store, manager, sink).Check)
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		require.NoError(t, err)
		defer resp.Body.Close()
		out := map[string]interface{}{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return resp.StatusCode, out
	}

	status, body := check(nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "in-process", body["events"])

	status, body = check(stubPinger{})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, "redis connected", body["events"])

	status, body = check(stubPinger{err: errors.New("connection refused")})
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "redis error: connection refused", body["events"])
}

func TestUnknownRoute(t *testing.T) {
	a := newTestApp(t, true)
	status, body := a.do(t, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, handlers.CodeNotFound, body["code"])
}

func TestEventStream(t *testing.T) {
	a := newTestApp(t, true)

	type result struct {
		body string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		req := httptest.NewRequest(http.MethodGet, "/api/events?session=alpha", nil)
		resp, err := a.app.Test(req, -1)
		if err != nil {
			done <- result{err: err}
			return
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		done <- result{body: string(raw), err: err}
	}()

	require.Eventually(t, func() bool { return a.hub.SubscriberCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	a.hub.Publish(notifier.Event{Type: notifier.EventSyncStatus, Session: "other"})
	a.hub.Publish(notifier.Event{Type: notifier.EventReady, Session: "alpha", Payload: notifier.ReadyPayload{SessionName: "alpha"}})
	time.Sleep(50 * time.Millisecond)
	a.hub.Close()

	select {
	case res := <-done:
		require.NoError(t, res.err)
		assert.Contains(t, res.body, "event: ready\n")
		assert.Contains(t, res.body, `"sessionName":"alpha"`)
		assert.NotContains(t, res.body, "sync-status")
	case <-time.After(3 * time.Second):
		t.Fatal("event stream did not end")
	}
}
