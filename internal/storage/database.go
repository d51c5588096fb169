package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Ananth-NQI/wamirror-backend/internal/models"
)

// DatabaseStore persists everything in PostgreSQL through gorm
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore wraps an open gorm connection
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

func (d *DatabaseStore) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Session operations

func (d *DatabaseStore) EnsureSession(ctx context.Context, name string, ownerID *string) (*models.Session, error) {
	session := &models.Session{
		Name:    name,
		OwnerID: ownerID,
		Status:  models.StatusInitializing,
	}
	err := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).
		Create(session).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create session %q: %w", name, err)
	}

	existing, err := d.GetSession(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing.OwnerID == nil && ownerID != nil {
		if err := d.db.WithContext(ctx).Model(existing).Update("owner_id", *ownerID).Error; err != nil {
			return nil, fmt.Errorf("failed to set session owner: %w", err)
		}
		existing.OwnerID = ownerID
	}
	return existing, nil
}

func (d *DatabaseStore) GetSession(ctx context.Context, name string) (*models.Session, error) {
	var session models.Session
	err := d.db.WithContext(ctx).Where("name = ?", name).First(&session).Error
	if err != nil {
		return nil, wrapNotFound(err, "session %q", name)
	}
	return &session, nil
}

func (d *DatabaseStore) ListSessions(ctx context.Context) ([]*models.Session, error) {
	var sessions []*models.Session
	if err := d.db.WithContext(ctx).Order("id").Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

func (d *DatabaseStore) ListSessionsByStatus(ctx context.Context, statuses ...models.SessionStatus) ([]*models.Session, error) {
	var sessions []*models.Session
	err := d.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("id").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (d *DatabaseStore) UpdateSessionState(ctx context.Context, name string, status models.SessionStatus, pairing *string) error {
	res := d.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("name = ?", name).
		Updates(map[string]interface{}{
			"status":          status,
			"pairing_payload": pairing,
			"updated_at":      time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update session %q: %w", name, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("session %q: %w", name, ErrNotFound)
	}
	return nil
}

func (d *DatabaseStore) DeleteSession(ctx context.Context, name string) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.Session
		if err := tx.Where("name = ?", name).First(&session).Error; err != nil {
			return wrapNotFound(err, "session %q", name)
		}
		if err := tx.Where("session_id = ?", session.ID).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", session.ID).Delete(&models.Contact{}).Error; err != nil {
			return err
		}
		return tx.Delete(&session).Error
	})
}

// Contact operations

func (d *DatabaseStore) UpsertContact(ctx context.Context, sessionID uint, phone, displayName string) (*models.Contact, error) {
	contact := &models.Contact{
		SessionID:   sessionID,
		PhoneNumber: phone,
		DisplayName: displayName,
		Tags:        []string{},
	}
	err := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "session_id"}, {Name: "phone_number"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"display_name": gorm.Expr("COALESCE(NULLIF(EXCLUDED.display_name, ''), contacts.display_name)"),
				"updated_at":   time.Now(),
			}),
		}).
		Create(contact).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert contact %s: %w", phone, err)
	}
	return d.GetContactByPhone(ctx, sessionID, phone)
}

func (d *DatabaseStore) GetContact(ctx context.Context, sessionID, contactID uint) (*models.Contact, error) {
	var contact models.Contact
	err := d.db.WithContext(ctx).
		Where("id = ? AND session_id = ?", contactID, sessionID).
		First(&contact).Error
	if err != nil {
		return nil, wrapNotFound(err, "contact %d", contactID)
	}
	return &contact, nil
}

func (d *DatabaseStore) GetContactByPhone(ctx context.Context, sessionID uint, phone string) (*models.Contact, error) {
	var contact models.Contact
	err := d.db.WithContext(ctx).
		Where("session_id = ? AND phone_number = ?", sessionID, phone).
		First(&contact).Error
	if err != nil {
		return nil, wrapNotFound(err, "contact %s", phone)
	}
	return &contact, nil
}

func (d *DatabaseStore) ListContacts(ctx context.Context, sessionID uint) ([]*models.Contact, error) {
	var contacts []*models.Contact
	err := d.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id").
		Find(&contacts).Error
	if err != nil {
		return nil, err
	}
	return contacts, nil
}

func (d *DatabaseStore) UpdateContact(ctx context.Context, sessionID, contactID uint, update models.ContactUpdate) (*models.Contact, error) {
	contact, err := d.GetContact(ctx, sessionID, contactID)
	if err != nil {
		return nil, err
	}
	contact.DisplayName = update.DisplayName
	contact.Email = update.Email
	contact.Notes = update.Notes
	contact.Tags = append([]string{}, update.Tags...)

	err = d.db.WithContext(ctx).
		Model(contact).
		Select("display_name", "email", "notes", "tags", "updated_at").
		Updates(contact).Error
	if err != nil {
		return nil, fmt.Errorf("failed to update contact %d: %w", contactID, err)
	}
	return contact, nil
}

// Message operations

func (d *DatabaseStore) UpsertMessage(ctx context.Context, msg *models.Message) error {
	if msg.ExternalID == "" {
		return fmt.Errorf("message has no external id")
	}
	err := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"session_id", "contact_id", "direction", "type", "body", "timestamp", "updated_at",
			}),
		}).
		Create(msg).Error
	if err != nil {
		return fmt.Errorf("failed to upsert message %s: %w", msg.ExternalID, err)
	}
	return nil
}

func (d *DatabaseStore) GetMessageByExternalID(ctx context.Context, externalID string) (*models.Message, error) {
	var msg models.Message
	if err := d.db.WithContext(ctx).Where("external_id = ?", externalID).First(&msg).Error; err != nil {
		return nil, wrapNotFound(err, "message %s", externalID)
	}
	return &msg, nil
}

func (d *DatabaseStore) ListMessages(ctx context.Context, sessionID, contactID uint, limit int, beforeExternalID string) ([]*models.Message, error) {
	query := d.db.WithContext(ctx).
		Where("session_id = ? AND contact_id = ?", sessionID, contactID)

	if beforeExternalID != "" {
		anchor, err := d.GetMessageByExternalID(ctx, beforeExternalID)
		if err != nil {
			return nil, err
		}
		query = query.Where(`("timestamp" < ? OR ("timestamp" = ? AND id < ?))`,
			anchor.Timestamp, anchor.Timestamp, anchor.ID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var messages []*models.Message
	err := query.
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: true}).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (d *DatabaseStore) LatestMessageTimestamp(ctx context.Context, sessionID uint) (int64, error) {
	var latest int64
	err := d.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("session_id = ?", sessionID).
		Select(`COALESCE(MAX("timestamp"), 0)`).
		Scan(&latest).Error
	return latest, err
}

func (d *DatabaseStore) CountMessages(ctx context.Context, sessionID uint) (int64, error) {
	var count int64
	err := d.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}

// Quick reply operations

func (d *DatabaseStore) ListQuickReplies(ctx context.Context) ([]*models.QuickReply, error) {
	var replies []*models.QuickReply
	if err := d.db.WithContext(ctx).Order("created_at").Find(&replies).Error; err != nil {
		return nil, err
	}
	return replies, nil
}

func (d *DatabaseStore) GetQuickReply(ctx context.Context, id string) (*models.QuickReply, error) {
	var reply models.QuickReply
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&reply).Error; err != nil {
		return nil, wrapNotFound(err, "quick reply %s", id)
	}
	return &reply, nil
}

func (d *DatabaseStore) CreateQuickReply(ctx context.Context, reply *models.QuickReply) (*models.QuickReply, error) {
	if err := d.db.WithContext(ctx).Create(reply).Error; err != nil {
		return nil, fmt.Errorf("failed to create quick reply: %w", err)
	}
	return reply, nil
}

func (d *DatabaseStore) DeleteQuickReply(ctx context.Context, id string) error {
	res := d.db.WithContext(ctx).Where("id = ?", id).Delete(&models.QuickReply{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("quick reply %s: %w", id, ErrNotFound)
	}
	return nil
}

func wrapNotFound(err error, format string, args ...interface{}) error {
	what := fmt.Sprintf(format, args...)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}
