package storage

import (
	"context"
	"errors"

	"github.com/Ananth-NQI/wamirror-backend/internal/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// Store defines the interface for storage operations
type Store interface {
	Ping(ctx context.Context) error

	// Session operations
	EnsureSession(ctx context.Context, name string, ownerID *string) (*models.Session, error)
	GetSession(ctx context.Context, name string) (*models.Session, error)
	ListSessions(ctx context.Context) ([]*models.Session, error)
	ListSessionsByStatus(ctx context.Context, statuses ...models.SessionStatus) ([]*models.Session, error)
	// UpdateSessionState sets the status and pairing payload together; a nil
	// pairing clears the stored payload.
	UpdateSessionState(ctx context.Context, name string, status models.SessionStatus, pairing *string) error
	// DeleteSession removes the session along with its contacts and messages
	DeleteSession(ctx context.Context, name string) error

	// Contact operations
	// UpsertContact creates the (session, phone) contact or refreshes it. An
	// empty displayName keeps the stored name.
	UpsertContact(ctx context.Context, sessionID uint, phone, displayName string) (*models.Contact, error)
	GetContact(ctx context.Context, sessionID, contactID uint) (*models.Contact, error)
	GetContactByPhone(ctx context.Context, sessionID uint, phone string) (*models.Contact, error)
	ListContacts(ctx context.Context, sessionID uint) ([]*models.Contact, error)
	UpdateContact(ctx context.Context, sessionID, contactID uint, update models.ContactUpdate) (*models.Contact, error)

	// Message operations
	// UpsertMessage inserts or overwrites the message keyed by ExternalID
	UpsertMessage(ctx context.Context, msg *models.Message) error
	GetMessageByExternalID(ctx context.Context, externalID string) (*models.Message, error)
	// ListMessages returns up to limit messages of one conversation, newest
	// first, optionally strictly older than the message beforeExternalID.
	ListMessages(ctx context.Context, sessionID, contactID uint, limit int, beforeExternalID string) ([]*models.Message, error)
	// LatestMessageTimestamp returns the newest protocol timestamp stored for
	// the session, or 0 when it has no messages.
	LatestMessageTimestamp(ctx context.Context, sessionID uint) (int64, error)
	CountMessages(ctx context.Context, sessionID uint) (int64, error)

	// Quick reply operations
	ListQuickReplies(ctx context.Context) ([]*models.QuickReply, error)
	GetQuickReply(ctx context.Context, id string) (*models.QuickReply, error)
	CreateQuickReply(ctx context.Context, reply *models.QuickReply) (*models.QuickReply, error)
	DeleteQuickReply(ctx context.Context, id string) error
}
