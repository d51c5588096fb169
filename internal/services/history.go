package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/wamirror-backend/internal/metrics"
	"github.com/Ananth-NQI/wamirror-backend/internal/models"
	"github.com/Ananth-NQI/wamirror-backend/internal/notifier"
	"github.com/Ananth-NQI/wamirror-backend/internal/storage"
	"github.com/Ananth-NQI/wamirror-backend/internal/utils"
	"github.com/Ananth-NQI/wamirror-backend/internal/whatsapp"
)

const (
	// Below this many local rows an on-demand load asks the client for more
	HistoryFetchThreshold = 5
	HistoryFetchBatch     = 50
	DefaultHistoryLimit   = 50
	MaxHistoryLimit       = 500

	CatchUpChats       = 15
	CatchUpPerChat     = 10
	defaultPerChatSync = 50
	defaultChatDelay   = 3 * time.Second
)

// SyncOptions overrides the bulk sync defaults; zero values keep them
type SyncOptions struct {
	PerChatLimit   int
	InterChatDelay time.Duration
}

// HistorySync pulls older messages from live clients into the store
type HistorySync struct {
	m            *SessionManager
	perChatLimit int
	chatDelay    time.Duration
	log          zerolog.Logger
}

func newHistorySync(m *SessionManager, perChatLimit int, chatDelay time.Duration) *HistorySync {
	if perChatLimit <= 0 {
		perChatLimit = defaultPerChatSync
	}
	if chatDelay <= 0 {
		chatDelay = defaultChatDelay
	}
	return &HistorySync{
		m:            m,
		perChatLimit: perChatLimit,
		chatDelay:    chatDelay,
		log:          m.log.With().Str("component", "history").Logger(),
	}
}

// LoadHistory returns up to limit messages of one conversation, oldest first.
// When the store holds fewer than HistoryFetchThreshold of them and the
// session is live, a batch is fetched from the client first. With a
// beforeID cursor the fetch is skipped once the newest batch is already
// stored, since the client only returns the newest messages.
func (h *HistorySync) LoadHistory(ctx context.Context, sessionName, contactRef string, limit int, beforeID string) ([]*models.Message, error) {
	phone := utils.NormalizePhone(contactRef)
	switch {
	case sessionName == "":
		return nil, fmt.Errorf("%w: sessionName is required", ErrInvalidArgument)
	case phone == "":
		return nil, fmt.Errorf("%w: contactId must be a chat id or phone number", ErrInvalidArgument)
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	sess, err := h.m.store.GetSession(ctx, sessionName)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	local, err := h.queryLocal(ctx, sess.ID, phone, limit, beforeID)
	if err != nil {
		return nil, err
	}

	if len(local) < HistoryFetchThreshold && !(beforeID != "" && h.newestBatchStored(ctx, sess.ID, phone)) {
		if handle, ok := h.handleFor(sessionName); ok {
			h.fetchInto(ctx, sessionName, handle, utils.ChatID(phone), HistoryFetchBatch, "on_demand", nil)
			if local, err = h.queryLocal(ctx, sess.ID, phone, limit, beforeID); err != nil {
				return nil, err
			}
		}
	}

	// newest-first from the store
	for i, j := 0, len(local)-1; i < j; i, j = i+1, j-1 {
		local[i], local[j] = local[j], local[i]
	}
	return local, nil
}

func (h *HistorySync) queryLocal(ctx context.Context, sessionID uint, phone string, limit int, beforeID string) ([]*models.Message, error) {
	contact, err := h.m.store.GetContactByPhone(ctx, sessionID, phone)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return []*models.Message{}, nil
		}
		return nil, err
	}
	msgs, err := h.m.store.ListMessages(ctx, sessionID, contact.ID, limit, beforeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return []*models.Message{}, nil
		}
		return nil, err
	}
	return msgs, nil
}

func (h *HistorySync) newestBatchStored(ctx context.Context, sessionID uint, phone string) bool {
	newest, err := h.queryLocal(ctx, sessionID, phone, HistoryFetchBatch, "")
	return err == nil && len(newest) >= HistoryFetchBatch
}

func (h *HistorySync) handleFor(sessionName string) (whatsapp.Handle, bool) {
	entry, ok := h.m.registry.get(sessionName)
	if !ok {
		return nil, false
	}
	handle, _, ok := entry.liveHandle()
	return handle, ok
}

// fetchInto ingests up to limit client messages of chatID. keep, when set,
// filters messages before ingest; onStored runs after each stored message.
func (h *HistorySync) fetchInto(ctx context.Context, sessionName string, handle whatsapp.Handle, chatID string, limit int, mode string, keep func(whatsapp.Message) bool, onStored ...func(count int)) (int, error) {
	msgs, err := handle.FetchMessages(ctx, chatID, limit)
	if err != nil {
		metrics.HistoryFetches.WithLabelValues(mode, "error").Inc()
		h.log.Warn().Err(err).Str("session", sessionName).Str("chat", chatID).Msg("failed to fetch messages from client")
		return 0, err
	}
	metrics.HistoryFetches.WithLabelValues(mode, "ok").Inc()

	stored := 0
	for i := range msgs {
		msg := msgs[i]
		if keep != nil && !keep(msg) {
			continue
		}
		direction := models.DirectionInbound
		if msg.FromMe {
			direction = models.DirectionOutbound
		}
		if h.m.ingest.Ingest(ctx, sessionName, &msg, direction) == ResultStored {
			stored++
			for _, fn := range onStored {
				fn(stored)
			}
		}
	}
	return stored, nil
}

// SyncSelected runs a bulk sync of contactRefs and blocks until it ends
func (h *HistorySync) SyncSelected(ctx context.Context, sessionName string, contactRefs []string, opts SyncOptions) error {
	entry, chats, err := h.beginSync(sessionName, contactRefs)
	if err != nil {
		return err
	}
	h.runSync(ctx, entry, chats, opts)
	return nil
}

// SyncSelectedAsync validates and claims the session like SyncSelected, then
// runs the sync in the background.
func (h *HistorySync) SyncSelectedAsync(sessionName string, contactRefs []string, opts SyncOptions) error {
	entry, chats, err := h.beginSync(sessionName, contactRefs)
	if err != nil {
		return err
	}
	h.m.wg.Add(1)
	go func() {
		defer h.m.wg.Done()
		h.runSync(h.m.ctx, entry, chats, opts)
	}()
	return nil
}

func (h *HistorySync) beginSync(sessionName string, contactRefs []string) (*sessionEntry, []string, error) {
	if sessionName == "" {
		return nil, nil, fmt.Errorf("%w: sessionName is required", ErrInvalidArgument)
	}
	chats := make([]string, 0, len(contactRefs))
	for _, ref := range contactRefs {
		id := utils.ChatID(ref)
		if id == "" {
			return nil, nil, fmt.Errorf("%w: invalid contact id %q", ErrInvalidArgument, ref)
		}
		chats = append(chats, id)
	}
	if len(chats) == 0 {
		return nil, nil, fmt.Errorf("%w: contactIds must not be empty", ErrInvalidArgument)
	}
	entry, err := h.m.beginSync(sessionName)
	if err != nil {
		return nil, nil, err
	}
	return entry, chats, nil
}

func (h *HistorySync) runSync(ctx context.Context, entry *sessionEntry, chats []string, opts SyncOptions) {
	perChat := opts.PerChatLimit
	if perChat <= 0 {
		perChat = h.perChatLimit
	}
	delay := opts.InterChatDelay
	if delay <= 0 {
		delay = h.chatDelay
	}

	name := entry.name
	log := h.log.With().Str("session", name).Logger()
	log.Info().Int("chats", len(chats)).Int("per_chat", perChat).Msg("📥 bulk sync started")

	// still registered and not torn down
	active := func() (whatsapp.Handle, uint, bool) {
		if !h.m.registry.current(entry) {
			return nil, 0, false
		}
		entry.mu.Lock()
		defer entry.mu.Unlock()
		if entry.removed || entry.handle == nil {
			return nil, 0, false
		}
		return entry.handle, entry.sessionID, true
	}

	total := len(chats)
	for i, chatID := range chats {
		if i > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				log.Info().Msg("bulk sync cancelled")
				return
			}
		}

		handle, sessionID, ok := active()
		if !ok {
			log.Info().Msg("session went away, bulk sync stopped")
			return
		}

		h.m.events.Publish(notifier.Event{
			Type:    notifier.EventSyncStatus,
			Session: name,
			Payload: notifier.SyncStatusPayload{
				Current:  i + 1,
				Total:    total,
				ChatName: h.chatName(ctx, sessionID, chatID),
			},
		})

		progress := func(count int) {
			h.m.events.Publish(notifier.Event{
				Type:    notifier.EventSyncProgress,
				Session: name,
				Payload: notifier.SyncProgressPayload{Count: count},
			})
		}
		stillActive := func(whatsapp.Message) bool {
			_, _, ok := active()
			return ok
		}
		if _, err := h.fetchInto(ctx, name, handle, chatID, perChat, "bulk", stillActive, progress); err != nil {
			log.Warn().Err(err).Str("chat", chatID).Msg("skipping chat")
		}
	}

	if _, _, ok := active(); !ok {
		log.Info().Msg("session went away, bulk sync stopped")
		return
	}
	h.m.events.Publish(notifier.Event{
		Type:    notifier.EventSyncComplete,
		Session: name,
		Payload: notifier.SyncCompletePayload{},
	})
	if err := h.m.setStatus(entry, models.StatusConnected, nil); err != nil {
		log.Warn().Err(err).Msg("failed to leave SYNCING")
		return
	}
	log.Info().Int("chats", total).Msg("✅ bulk sync complete")
}

func (h *HistorySync) chatName(ctx context.Context, sessionID uint, chatID string) string {
	phone := utils.NormalizePhone(chatID)
	if contact, err := h.m.store.GetContactByPhone(ctx, sessionID, phone); err == nil && contact.DisplayName != "" {
		return contact.DisplayName
	}
	return phone
}

// CatchUp fetches what arrived while the process was down: the newest
// messages of the most recently active chats, keeping only those strictly
// newer than anything already stored for the session.
func (h *HistorySync) CatchUp(ctx context.Context, sessionName string) error {
	handle, ok := h.handleFor(sessionName)
	if !ok {
		return ErrSessionNotReady
	}
	sess, err := h.m.store.GetSession(ctx, sessionName)
	if err != nil {
		return err
	}
	latest, err := h.m.store.LatestMessageTimestamp(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("failed to read latest message timestamp: %w", err)
	}

	chats, err := handle.Chats(ctx)
	if err != nil {
		return fmt.Errorf("failed to list chats: %w", err)
	}
	direct := chats[:0:0]
	for _, chat := range chats {
		if !chat.IsGroup && utils.IsOneToOneAddress(chat.ID) {
			direct = append(direct, chat)
		}
	}
	sort.SliceStable(direct, func(i, j int) bool { return direct[i].Timestamp > direct[j].Timestamp })
	if len(direct) > CatchUpChats {
		direct = direct[:CatchUpChats]
	}

	newer := func(msg whatsapp.Message) bool { return msg.Timestamp > latest }
	stored := 0
	for _, chat := range direct {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, _ := h.fetchInto(ctx, sessionName, handle, chat.ID, CatchUpPerChat, "catch_up", newer)
		stored += n
	}

	h.log.Info().
		Str("session", sessionName).
		Int("chats", len(direct)).
		Int("stored", stored).
		Int64("since", latest).
		Msg("catch-up finished")
	return nil
}
