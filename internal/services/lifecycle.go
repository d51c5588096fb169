package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Ananth-NQI/wamirror-backend/internal/metrics"
	"github.com/Ananth-NQI/wamirror-backend/internal/models"
	"github.com/Ananth-NQI/wamirror-backend/internal/notifier"
	"github.com/Ananth-NQI/wamirror-backend/internal/storage"
	"github.com/Ananth-NQI/wamirror-backend/internal/utils"
	"github.com/Ananth-NQI/wamirror-backend/internal/whatsapp"
)

const (
	defaultStartTimeout = 60 * time.Second
	handleCallTimeout   = 30 * time.Second
)

// ManagerConfig tunes the session manager
type ManagerConfig struct {
	StartTimeout       time.Duration
	SyncPerChatLimit   int
	SyncInterChatDelay time.Duration
}

// StartResult is what a start request reports back
type StartResult struct {
	SessionID uint                 `json:"sessionId"`
	Status    models.SessionStatus `json:"status"`
	Pairing   *string              `json:"pairing,omitempty"`
	// Started is false when the session already had a registry entry
	Started bool `json:"started"`
}

// SessionView is a session as shown on the dashboard
type SessionView struct {
	ID        uint                 `json:"id"`
	Name      string               `json:"name"`
	OwnerID   *string              `json:"ownerId,omitempty"`
	Status    models.SessionStatus `json:"status"`
	Pairing   *string              `json:"pairing,omitempty"`
	Live      bool                 `json:"live"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

// Conversation is a one-to-one chat as listed by a live client
type Conversation struct {
	ID                    string `json:"id"`
	PhoneNumber           string `json:"phoneNumber"`
	DisplayName           string `json:"displayName"`
	UnreadCount           int    `json:"unreadCount"`
	LastActivityTimestamp int64  `json:"lastActivityTimestamp"`
}

// SessionManager owns the registry of client handles and drives each
// session's status from the events its handle emits.
type SessionManager struct {
	store    storage.Store
	provider whatsapp.Provider
	events   notifier.Publisher
	ingest   *Ingestor
	history  *HistorySync
	registry *registry
	cfg      ManagerConfig
	log      zerolog.Logger

	caughtUp sync.Map // session name -> struct{}

	// ctx outlives requests and is cancelled on Shutdown
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSessionManager creates a session manager
func NewSessionManager(store storage.Store, provider whatsapp.Provider, events notifier.Publisher, cfg ManagerConfig, logger zerolog.Logger) *SessionManager {
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = defaultStartTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &SessionManager{
		store:    store,
		provider: provider,
		events:   events,
		registry: newRegistry(),
		cfg:      cfg,
		log:      logger.With().Str("component", "sessions").Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}
	m.ingest = NewIngestor(store, logger)
	m.history = newHistorySync(m, cfg.SyncPerChatLimit, cfg.SyncInterChatDelay)
	return m
}

// History returns the history sync scheduler bound to this manager
func (m *SessionManager) History() *HistorySync {
	return m.history
}

// Ingestor returns the message ingest pipeline
func (m *SessionManager) Ingestor() *Ingestor {
	return m.ingest
}

// LiveCount returns the number of sessions held in the registry
func (m *SessionManager) LiveCount() int {
	return m.registry.len()
}

// Start brings a session up. A second call while the session is already
// registered is a no-op that reports the current state.
func (m *SessionManager) Start(ctx context.Context, name string, ownerID *string) (*StartResult, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: sessionName is required", ErrInvalidArgument)
	}

	entry, created := m.registry.reserve(name)
	if entry == nil {
		return nil, ErrManagerClosed
	}
	if !created {
		metrics.SessionsStarted.WithLabelValues("noop").Inc()
		status, pairing := entry.snapshot()
		entry.mu.Lock()
		id := entry.sessionID
		entry.mu.Unlock()
		return &StartResult{SessionID: id, Status: status, Pairing: pairing}, nil
	}

	log := m.log.With().Str("session", name).Logger()

	sess, err := m.store.EnsureSession(ctx, name, ownerID)
	if err != nil {
		m.registry.remove(name, entry)
		metrics.SessionsStarted.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	if entry.isRemoved() {
		m.dropResurrected(name)
		return nil, m.abandoned()
	}
	if err := m.store.UpdateSessionState(ctx, name, models.StatusInitializing, nil); err != nil {
		m.registry.remove(name, entry)
		metrics.SessionsStarted.WithLabelValues("failed").Inc()
		if entry.isRemoved() {
			return nil, m.abandoned()
		}
		return nil, fmt.Errorf("failed to reset session status: %w", err)
	}
	metrics.SessionTransitions.WithLabelValues(string(models.StatusInitializing)).Inc()

	entry.mu.Lock()
	entry.sessionID = sess.ID
	entry.mu.Unlock()

	handle, err := m.provider.Acquire(ctx, name)
	if err != nil {
		if !m.abortStart(entry, err) {
			return nil, m.abandoned()
		}
		return nil, fmt.Errorf("failed to acquire client: %w", err)
	}

	// Delete or Shutdown may have detached the entry while Acquire ran
	entry.mu.Lock()
	if entry.removed {
		entry.mu.Unlock()
		if err := handle.Destroy(); err != nil {
			log.Warn().Err(err).Msg("failed to destroy client")
		}
		metrics.SessionsStarted.WithLabelValues("failed").Inc()
		return nil, m.abandoned()
	}
	entry.handle = handle
	m.wg.Add(1)
	entry.mu.Unlock()
	metrics.LiveSessions.Inc()

	// The consumer must be attached before the handle is activated
	go m.run(entry, handle)

	if err := handle.Initialize(ctx); err != nil {
		if !m.abortStart(entry, err) {
			return nil, m.abandoned()
		}
		return nil, fmt.Errorf("failed to initialize client: %w", err)
	}

	log.Info().Msg("session starting, waiting for pairing code or ready event")

	timer := time.NewTimer(m.cfg.StartTimeout)
	defer timer.Stop()

	result := func() *StartResult {
		status, pairing := entry.snapshot()
		return &StartResult{SessionID: sess.ID, Status: status, Pairing: pairing, Started: true}
	}

	select {
	case <-entry.first:
		res := result()
		if res.Status == models.StatusDisconnected {
			metrics.SessionsStarted.WithLabelValues("failed").Inc()
			return res, fmt.Errorf("client disconnected during start")
		}
		if entry.isRemoved() {
			metrics.SessionsStarted.WithLabelValues("failed").Inc()
			return nil, m.abandoned()
		}
		metrics.SessionsStarted.WithLabelValues("started").Inc()
		return res, nil
	case <-timer.C:
		metrics.SessionsStarted.WithLabelValues("timeout").Inc()
		log.Warn().Dur("timeout", m.cfg.StartTimeout).Msg("no pairing code or ready event yet; client keeps running")
		return result(), ErrStartTimeout
	case <-ctx.Done():
		return result(), ctx.Err()
	}
}

// abortStart tears down a session whose handle never came up. It reports
// false when Delete or Shutdown had already taken the entry over.
func (m *SessionManager) abortStart(entry *sessionEntry, cause error) bool {
	metrics.SessionsStarted.WithLabelValues("failed").Inc()

	handle, owned := entry.detach()
	if !owned {
		return false
	}
	m.log.Error().Err(cause).Str("session", entry.name).Msg("session start failed")
	m.registry.remove(entry.name, entry)
	if handle != nil {
		metrics.LiveSessions.Dec()
		if err := handle.Destroy(); err != nil {
			m.log.Warn().Err(err).Str("session", entry.name).Msg("failed to destroy client")
		}
	}
	m.persistStatus(entry.name, models.StatusDisconnected)
	return true
}

// abandoned is the error for a start whose entry was taken over by Delete
// or Shutdown
func (m *SessionManager) abandoned() error {
	if m.ctx.Err() != nil {
		return ErrManagerClosed
	}
	return ErrSessionNotFound
}

// dropResurrected deletes a row that a start re-created after a concurrent
// Delete, unless a newer start already owns the name.
func (m *SessionManager) dropResurrected(name string) {
	if m.ctx.Err() != nil {
		return
	}
	m.registry.whenAbsent(name, func() {
		ctx, cancel := context.WithTimeout(context.Background(), handleCallTimeout)
		defer cancel()
		if err := m.store.DeleteSession(ctx, name); err != nil && !errors.Is(err, storage.ErrNotFound) {
			m.log.Warn().Err(err).Str("session", name).Msg("failed to drop session deleted during start")
		}
	})
}

// run is the single consumer of a handle's events
func (m *SessionManager) run(entry *sessionEntry, handle whatsapp.Handle) {
	defer m.wg.Done()
	for ev := range handle.Events() {
		m.dispatch(entry, ev)
	}
	m.handleDisconnect(entry, "event stream closed")
}

func (m *SessionManager) dispatch(entry *sessionEntry, ev whatsapp.Event) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().
				Str("session", entry.name).
				Str("event", string(ev.Type)).
				Interface("panic", r).
				Msg("recovered from panic in event handler")
		}
	}()

	switch ev.Type {
	case whatsapp.EventQR:
		m.handlePairing(entry, ev.QR)
	case whatsapp.EventReady:
		m.handleReady(entry)
	case whatsapp.EventMessage:
		if ev.Message == nil {
			return
		}
		direction := models.DirectionInbound
		if ev.Message.FromMe {
			direction = models.DirectionOutbound
		}
		ctx, cancel := context.WithTimeout(m.ctx, handleCallTimeout)
		defer cancel()
		m.ingest.Ingest(ctx, entry.name, ev.Message, direction)
	case whatsapp.EventDisconnected:
		m.handleDisconnect(entry, ev.Reason)
	default:
		m.log.Debug().Str("session", entry.name).Str("event", string(ev.Type)).Msg("ignoring unknown client event")
	}
}

func (m *SessionManager) handlePairing(entry *sessionEntry, code string) {
	dataURL, err := utils.RenderPairingCode(code)
	if err != nil {
		m.log.Error().Err(err).Str("session", entry.name).Msg("failed to render pairing code")
		return
	}
	if err := m.setStatus(entry, models.StatusQRReady, &dataURL); err != nil {
		m.log.Warn().Err(err).Str("session", entry.name).Msg("pairing code not applied")
		return
	}
	m.events.Publish(notifier.Event{
		Type:    notifier.EventPairingReady,
		Session: entry.name,
		Payload: notifier.PairingPayload{SessionName: entry.name, QR: dataURL},
	})
	entry.signalFirst()
}

func (m *SessionManager) handleReady(entry *sessionEntry) {
	status, _ := entry.snapshot()
	if !status.IsLive() {
		if err := m.setStatus(entry, models.StatusConnected, nil); err != nil {
			m.log.Warn().Err(err).Str("session", entry.name).Msg("ready event not applied")
			return
		}
	}
	m.log.Info().Str("session", entry.name).Msg("✅ session connected")
	m.events.Publish(notifier.Event{
		Type:    notifier.EventReady,
		Session: entry.name,
		Payload: notifier.ReadyPayload{SessionName: entry.name},
	})
	entry.signalFirst()

	if _, done := m.caughtUp.LoadOrStore(entry.name, struct{}{}); !done {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := m.history.CatchUp(m.ctx, entry.name); err != nil {
				m.log.Warn().Err(err).Str("session", entry.name).Msg("startup catch-up failed")
			}
		}()
	}
}

// handleDisconnect runs at most once per entry
func (m *SessionManager) handleDisconnect(entry *sessionEntry, reason string) {
	entry.mu.Lock()
	if entry.removed {
		entry.mu.Unlock()
		return
	}
	if err := m.applyLocked(entry, models.StatusDisconnected, nil); err != nil {
		m.log.Error().Err(err).Str("session", entry.name).Msg("failed to persist disconnected status")
	}
	entry.removed = true
	handle := entry.handle
	entry.handle = nil
	entry.mu.Unlock()

	m.registry.remove(entry.name, entry)
	entry.signalFirst()

	if handle != nil {
		metrics.LiveSessions.Dec()
		// Destroy waits for the producer, so it must not block this consumer
		go func() {
			if err := handle.Destroy(); err != nil {
				m.log.Warn().Err(err).Str("session", entry.name).Msg("failed to destroy client")
			}
		}()
	}

	m.log.Warn().Str("session", entry.name).Str("reason", reason).Msg("session disconnected")
	m.events.Publish(notifier.Event{
		Type:    notifier.EventDisconnected,
		Session: entry.name,
		Payload: notifier.DisconnectedPayload{SessionName: entry.name, Reason: reason},
	})
}

// setStatus moves entry to next if the transition is legal, persisting it first
func (m *SessionManager) setStatus(entry *sessionEntry, next models.SessionStatus, pairing *string) error {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.removed {
		return ErrSessionNotFound
	}
	if !entry.status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, entry.status, next)
	}
	return m.applyLocked(entry, next, pairing)
}

// applyLocked persists and records a status; entry.mu must be held
func (m *SessionManager) applyLocked(entry *sessionEntry, next models.SessionStatus, pairing *string) error {
	ctx, cancel := context.WithTimeout(context.Background(), handleCallTimeout)
	defer cancel()
	if err := m.store.UpdateSessionState(ctx, entry.name, next, pairing); err != nil {
		return fmt.Errorf("failed to persist status %s: %w", next, err)
	}
	entry.status = next
	entry.pairing = copyString(pairing)
	metrics.SessionTransitions.WithLabelValues(string(next)).Inc()
	return nil
}

func (m *SessionManager) persistStatus(name string, status models.SessionStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), handleCallTimeout)
	defer cancel()
	if err := m.store.UpdateSessionState(ctx, name, status, nil); err != nil {
		m.log.Error().Err(err).Str("session", name).Msg("failed to persist session status")
		return
	}
	metrics.SessionTransitions.WithLabelValues(string(status)).Inc()
}

// beginSync moves a CONNECTED session to SYNCING
func (m *SessionManager) beginSync(name string) (*sessionEntry, error) {
	entry, ok := m.registry.get(name)
	if !ok {
		return nil, ErrSessionNotReady
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.removed || entry.handle == nil {
		return nil, ErrSessionNotReady
	}
	switch entry.status {
	case models.StatusSyncing:
		return nil, ErrSyncInProgress
	case models.StatusConnected:
	default:
		return nil, ErrSessionNotReady
	}
	if err := m.applyLocked(entry, models.StatusSyncing, nil); err != nil {
		return nil, err
	}
	return entry, nil
}

// RestoreAll starts every session whose persisted status is CONNECTED or
// SYNCING, all at once so a hung client cannot hold up the others.
// Individual failures are logged.
func (m *SessionManager) RestoreAll(ctx context.Context) error {
	sessions, err := m.store.ListSessionsByStatus(ctx, models.StatusConnected, models.StatusSyncing)
	if err != nil {
		return fmt.Errorf("failed to list sessions to restore: %w", err)
	}
	if len(sessions) == 0 {
		m.log.Info().Msg("no sessions to restore")
		return nil
	}

	m.log.Info().Int("count", len(sessions)).Msg("🔄 restoring sessions")

	g, gctx := errgroup.WithContext(ctx)
	for _, sess := range sessions {
		sess := sess
		g.Go(func() error {
			res, err := m.Start(gctx, sess.Name, sess.OwnerID)
			switch {
			case errors.Is(err, ErrManagerClosed), errors.Is(err, ErrSessionNotFound):
				m.log.Info().Str("session", sess.Name).Msg("restore abandoned")
			case errors.Is(err, ErrStartTimeout):
				m.log.Warn().Str("session", sess.Name).Msg("restore still waiting on client")
			case err != nil:
				m.log.Error().Err(err).Str("session", sess.Name).Msg("failed to restore session")
			default:
				m.log.Info().Str("session", sess.Name).Str("status", string(res.Status)).Msg("session restored")
			}
			return nil
		})
	}
	return g.Wait()
}

// Delete tears down the live handle, if any, and removes the session with
// its contacts and messages.
func (m *SessionManager) Delete(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("%w: sessionName is required", ErrInvalidArgument)
	}

	if entry, ok := m.registry.get(name); ok {
		handle, _ := entry.detach()
		m.registry.remove(name, entry)
		entry.signalFirst()
		if handle != nil {
			metrics.LiveSessions.Dec()
			logoutCtx, cancel := context.WithTimeout(ctx, handleCallTimeout)
			if err := handle.Logout(logoutCtx); err != nil {
				m.log.Warn().Err(err).Str("session", name).Msg("logout failed")
			}
			cancel()
			if err := handle.Destroy(); err != nil {
				m.log.Warn().Err(err).Str("session", name).Msg("failed to destroy client")
			}
		}
	}
	m.caughtUp.Delete(name)

	if err := m.store.DeleteSession(ctx, name); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}
	m.log.Info().Str("session", name).Msg("🗑️ session deleted")
	return nil
}

// SendMessage sends text to target through the session's client and records
// it as an outbound message.
func (m *SessionManager) SendMessage(ctx context.Context, name, target, text string) (*models.Message, error) {
	chatID := utils.ChatID(target)
	switch {
	case name == "":
		return nil, fmt.Errorf("%w: sessionName is required", ErrInvalidArgument)
	case chatID == "":
		return nil, fmt.Errorf("%w: targetNumber must contain digits", ErrInvalidArgument)
	case text == "":
		return nil, fmt.Errorf("%w: text is required", ErrInvalidArgument)
	}

	entry, ok := m.registry.get(name)
	if !ok {
		return nil, ErrSessionNotReady
	}
	handle, _, ok := entry.liveHandle()
	if !ok {
		return nil, ErrSessionNotReady
	}

	sent, err := handle.SendText(ctx, chatID, text)
	if err != nil {
		if errors.Is(err, whatsapp.ErrNotReady) {
			return nil, ErrSessionNotReady
		}
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	if sent == nil {
		return nil, fmt.Errorf("failed to send message: client returned no message")
	}

	sent.FromMe = true
	if sent.To == "" {
		sent.To = chatID
	}
	if sent.Type == "" {
		sent.Type = models.MessageTypeText
	}
	if sent.Body == "" {
		sent.Body = text
	}
	if sent.Timestamp == 0 {
		sent.Timestamp = time.Now().Unix()
	}

	if res := m.ingest.Ingest(ctx, name, sent, models.DirectionOutbound); res != ResultStored {
		return nil, fmt.Errorf("message sent but not recorded (%s)", res)
	}
	return m.store.GetMessageByExternalID(ctx, sent.ID)
}

// ListConversations returns the one-to-one chats of a live session, most
// recently active first.
func (m *SessionManager) ListConversations(ctx context.Context, name string) ([]Conversation, error) {
	entry, ok := m.registry.get(name)
	if !ok {
		return nil, ErrSessionNotReady
	}
	handle, _, ok := entry.liveHandle()
	if !ok {
		return nil, ErrSessionNotReady
	}

	chats, err := handle.Chats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}

	out := make([]Conversation, 0, len(chats))
	for _, chat := range chats {
		if chat.IsGroup || !utils.IsOneToOneAddress(chat.ID) {
			continue
		}
		phone := utils.NormalizePhone(chat.ID)
		display := chat.Name
		if display == "" {
			display = phone
		}
		out = append(out, Conversation{
			ID:                    chat.ID,
			PhoneNumber:           phone,
			DisplayName:           display,
			UnreadCount:           chat.UnreadCount,
			LastActivityTimestamp: chat.Timestamp,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastActivityTimestamp > out[j].LastActivityTimestamp
	})
	return out, nil
}

// Status reports a session's current state, preferring the registry
func (m *SessionManager) Status(ctx context.Context, name string) (*SessionView, error) {
	sess, err := m.store.GetSession(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return m.view(sess), nil
}

// ListSessions returns every persisted session with its live flag
func (m *SessionManager) ListSessions(ctx context.Context) ([]*SessionView, error) {
	sessions, err := m.store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]*SessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, m.view(sess))
	}
	return views, nil
}

func (m *SessionManager) view(sess *models.Session) *SessionView {
	v := &SessionView{
		ID:        sess.ID,
		Name:      sess.Name,
		OwnerID:   sess.OwnerID,
		Status:    sess.Status,
		Pairing:   sess.PairingPayload,
		UpdatedAt: sess.UpdatedAt,
	}
	if entry, ok := m.registry.get(sess.Name); ok && !entry.isRemoved() {
		v.Status, v.Pairing = entry.snapshot()
		v.Live = true
	}
	return v
}

// Reconcile marks sessions DISCONNECTED whose persisted status claims an
// active client that this process does not hold. It returns how many were
// corrected.
func (m *SessionManager) Reconcile(ctx context.Context) (int, error) {
	sessions, err := m.store.ListSessionsByStatus(ctx,
		models.StatusInitializing, models.StatusQRReady, models.StatusConnected, models.StatusSyncing)
	if err != nil {
		return 0, fmt.Errorf("failed to list active sessions: %w", err)
	}

	fixed := 0
	for _, sess := range sessions {
		name := sess.Name
		var updateErr error
		absent := m.registry.whenAbsent(name, func() {
			updateErr = m.store.UpdateSessionState(ctx, name, models.StatusDisconnected, nil)
		})
		if !absent {
			continue
		}
		if updateErr != nil {
			m.log.Error().Err(updateErr).Str("session", name).Msg("failed to reconcile session status")
			continue
		}
		fixed++
		metrics.SessionTransitions.WithLabelValues(string(models.StatusDisconnected)).Inc()
		m.log.Info().Str("session", name).Str("was", string(sess.Status)).Msg("reconciled orphaned session to DISCONNECTED")
	}
	return fixed, nil
}

// Shutdown destroys every live handle without touching persisted status so
// the next process restores the same sessions.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.cancel()

	for _, entry := range m.registry.closeAll() {
		handle, _ := entry.detach()
		m.registry.remove(entry.name, entry)
		entry.signalFirst()
		if handle == nil {
			continue
		}
		metrics.LiveSessions.Dec()
		if err := handle.Destroy(); err != nil {
			m.log.Warn().Err(err).Str("session", entry.name).Msg("failed to destroy client")
		}
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
