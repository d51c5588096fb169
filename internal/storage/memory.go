package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ananth-NQI/wamirror-backend/internal/models"
)

// MemoryStore holds all data in memory. Used for local runs and tests.
type MemoryStore struct {
	sessions     map[string]*models.Session // by name
	contacts     map[uint]*models.Contact
	messages     map[string]*models.Message // by external id
	quickReplies map[string]*models.QuickReply

	// one lock for all maps so cascades stay atomic
	mu sync.RWMutex

	// Counters for ID generation
	sessionCounter uint
	contactCounter uint
	messageCounter uint
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:     make(map[string]*models.Session),
		contacts:     make(map[uint]*models.Contact),
		messages:     make(map[string]*models.Message),
		quickReplies: make(map[string]*models.QuickReply),
	}
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Session operations

func (m *MemoryStore) EnsureSession(ctx context.Context, name string, ownerID *string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, exists := m.sessions[name]; exists {
		if s.OwnerID == nil && ownerID != nil {
			owner := *ownerID
			s.OwnerID = &owner
			s.UpdatedAt = time.Now()
		}
		return copySession(s), nil
	}

	m.sessionCounter++
	now := time.Now()
	s := &models.Session{
		ID:        m.sessionCounter,
		Name:      name,
		Status:    models.StatusInitializing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if ownerID != nil {
		owner := *ownerID
		s.OwnerID = &owner
	}
	m.sessions[name] = s
	return copySession(s), nil
}

func (m *MemoryStore) GetSession(ctx context.Context, name string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, exists := m.sessions[name]
	if !exists {
		return nil, fmt.Errorf("session %q: %w", name, ErrNotFound)
	}
	return copySession(s), nil
}

func (m *MemoryStore) ListSessions(ctx context.Context) ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, copySession(s))
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
	return sessions, nil
}

func (m *MemoryStore) ListSessionsByStatus(ctx context.Context, statuses ...models.SessionStatus) ([]*models.Session, error) {
	all, _ := m.ListSessions(ctx)

	var results []*models.Session
	for _, s := range all {
		for _, status := range statuses {
			if s.Status == status {
				results = append(results, s)
				break
			}
		}
	}
	return results, nil
}

func (m *MemoryStore) UpdateSessionState(ctx context.Context, name string, status models.SessionStatus, pairing *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, exists := m.sessions[name]
	if !exists {
		return fmt.Errorf("session %q: %w", name, ErrNotFound)
	}
	s.Status = status
	s.PairingPayload = nil
	if pairing != nil {
		p := *pairing
		s.PairingPayload = &p
	}
	s.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, exists := m.sessions[name]
	if !exists {
		return fmt.Errorf("session %q: %w", name, ErrNotFound)
	}
	for id, msg := range m.messages {
		if msg.SessionID == s.ID {
			delete(m.messages, id)
		}
	}
	for id, c := range m.contacts {
		if c.SessionID == s.ID {
			delete(m.contacts, id)
		}
	}
	delete(m.sessions, name)
	return nil
}

// Contact operations

func (m *MemoryStore) UpsertContact(ctx context.Context, sessionID uint, phone, displayName string) (*models.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.sessionExistsLocked(sessionID) {
		return nil, fmt.Errorf("session %d: %w", sessionID, ErrNotFound)
	}

	if c := m.contactByPhoneLocked(sessionID, phone); c != nil {
		if displayName != "" {
			c.DisplayName = displayName
		}
		c.UpdatedAt = time.Now()
		return copyContact(c), nil
	}

	m.contactCounter++
	now := time.Now()
	c := &models.Contact{
		ID:          m.contactCounter,
		SessionID:   sessionID,
		PhoneNumber: phone,
		DisplayName: displayName,
		Tags:        []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.contacts[c.ID] = c
	return copyContact(c), nil
}

func (m *MemoryStore) GetContact(ctx context.Context, sessionID, contactID uint) (*models.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, exists := m.contacts[contactID]
	if !exists || c.SessionID != sessionID {
		return nil, fmt.Errorf("contact %d: %w", contactID, ErrNotFound)
	}
	return copyContact(c), nil
}

func (m *MemoryStore) GetContactByPhone(ctx context.Context, sessionID uint, phone string) (*models.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := m.contactByPhoneLocked(sessionID, phone)
	if c == nil {
		return nil, fmt.Errorf("contact %s: %w", phone, ErrNotFound)
	}
	return copyContact(c), nil
}

func (m *MemoryStore) ListContacts(ctx context.Context, sessionID uint) ([]*models.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var contacts []*models.Contact
	for _, c := range m.contacts {
		if c.SessionID == sessionID {
			contacts = append(contacts, copyContact(c))
		}
	}
	sort.Slice(contacts, func(i, j int) bool { return contacts[i].ID < contacts[j].ID })
	return contacts, nil
}

func (m *MemoryStore) UpdateContact(ctx context.Context, sessionID, contactID uint, update models.ContactUpdate) (*models.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, exists := m.contacts[contactID]
	if !exists || c.SessionID != sessionID {
		return nil, fmt.Errorf("contact %d: %w", contactID, ErrNotFound)
	}
	c.DisplayName = update.DisplayName
	c.Email = update.Email
	c.Notes = update.Notes
	c.Tags = append([]string{}, update.Tags...)
	c.UpdatedAt = time.Now()
	return copyContact(c), nil
}

// Message operations

func (m *MemoryStore) UpsertMessage(ctx context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.ExternalID == "" {
		return fmt.Errorf("message has no external id")
	}
	if !m.sessionExistsLocked(msg.SessionID) {
		return fmt.Errorf("session %d: %w", msg.SessionID, ErrNotFound)
	}
	if c, ok := m.contacts[msg.ContactID]; !ok || c.SessionID != msg.SessionID {
		return fmt.Errorf("contact %d: %w", msg.ContactID, ErrNotFound)
	}

	now := time.Now()
	if existing, exists := m.messages[msg.ExternalID]; exists {
		existing.SessionID = msg.SessionID
		existing.ContactID = msg.ContactID
		existing.Direction = msg.Direction
		existing.Type = msg.Type
		existing.Body = msg.Body
		existing.Timestamp = msg.Timestamp
		existing.UpdatedAt = now
		msg.ID = existing.ID
		msg.CreatedAt = existing.CreatedAt
		return nil
	}

	m.messageCounter++
	stored := *msg
	stored.ID = m.messageCounter
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.messages[stored.ExternalID] = &stored
	msg.ID = stored.ID
	msg.CreatedAt = now
	return nil
}

func (m *MemoryStore) GetMessageByExternalID(ctx context.Context, externalID string) (*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, exists := m.messages[externalID]
	if !exists {
		return nil, fmt.Errorf("message %s: %w", externalID, ErrNotFound)
	}
	cp := *msg
	return &cp, nil
}

func (m *MemoryStore) ListMessages(ctx context.Context, sessionID, contactID uint, limit int, beforeExternalID string) ([]*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var anchor *models.Message
	if beforeExternalID != "" {
		a, exists := m.messages[beforeExternalID]
		if !exists {
			return nil, fmt.Errorf("message %s: %w", beforeExternalID, ErrNotFound)
		}
		anchor = a
	}

	var results []*models.Message
	for _, msg := range m.messages {
		if msg.SessionID != sessionID || msg.ContactID != contactID {
			continue
		}
		// same order as the sort below: (timestamp, id) descending
		if anchor != nil && !olderThan(msg, anchor) {
			continue
		}
		cp := *msg
		results = append(results, &cp)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Timestamp != results[j].Timestamp {
			return results[i].Timestamp > results[j].Timestamp
		}
		return results[i].ID > results[j].ID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func olderThan(msg, anchor *models.Message) bool {
	if msg.Timestamp != anchor.Timestamp {
		return msg.Timestamp < anchor.Timestamp
	}
	return msg.ID < anchor.ID
}

func (m *MemoryStore) LatestMessageTimestamp(ctx context.Context, sessionID uint) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest int64
	for _, msg := range m.messages {
		if msg.SessionID == sessionID && msg.Timestamp > latest {
			latest = msg.Timestamp
		}
	}
	return latest, nil
}

func (m *MemoryStore) CountMessages(ctx context.Context, sessionID uint) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, msg := range m.messages {
		if msg.SessionID == sessionID {
			count++
		}
	}
	return count, nil
}

// Quick reply operations

func (m *MemoryStore) ListQuickReplies(ctx context.Context) ([]*models.QuickReply, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	replies := make([]*models.QuickReply, 0, len(m.quickReplies))
	for _, q := range m.quickReplies {
		cp := *q
		replies = append(replies, &cp)
	}
	sort.Slice(replies, func(i, j int) bool { return replies[i].CreatedAt.Before(replies[j].CreatedAt) })
	return replies, nil
}

func (m *MemoryStore) GetQuickReply(ctx context.Context, id string) (*models.QuickReply, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, exists := m.quickReplies[id]
	if !exists {
		return nil, fmt.Errorf("quick reply %s: %w", id, ErrNotFound)
	}
	cp := *q
	return &cp, nil
}

func (m *MemoryStore) CreateQuickReply(ctx context.Context, reply *models.QuickReply) (*models.QuickReply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *reply
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.CreatedAt = time.Now()
	m.quickReplies[stored.ID] = &stored
	cp := stored
	return &cp, nil
}

func (m *MemoryStore) DeleteQuickReply(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.quickReplies[id]; !exists {
		return fmt.Errorf("quick reply %s: %w", id, ErrNotFound)
	}
	delete(m.quickReplies, id)
	return nil
}

func (m *MemoryStore) sessionExistsLocked(id uint) bool {
	for _, s := range m.sessions {
		if s.ID == id {
			return true
		}
	}
	return false
}

func (m *MemoryStore) contactByPhoneLocked(sessionID uint, phone string) *models.Contact {
	for _, c := range m.contacts {
		if c.SessionID == sessionID && c.PhoneNumber == phone {
			return c
		}
	}
	return nil
}

func copySession(s *models.Session) *models.Session {
	cp := *s
	if s.PairingPayload != nil {
		p := *s.PairingPayload
		cp.PairingPayload = &p
	}
	if s.OwnerID != nil {
		o := *s.OwnerID
		cp.OwnerID = &o
	}
	return &cp
}

func copyContact(c *models.Contact) *models.Contact {
	cp := *c
	cp.Tags = append([]string{}, c.Tags...)
	return &cp
}
