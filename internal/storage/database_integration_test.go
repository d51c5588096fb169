//go:build integration

package storage_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/Ananth-NQI/wamirror-backend/database"
	"github.com/Ananth-NQI/wamirror-backend/internal/models"
	"github.com/Ananth-NQI/wamirror-backend/internal/storage"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		db.Exec("TRUNCATE messages, contacts, sessions, quick_replies RESTART IDENTITY CASCADE")
	})
	return db
}

func TestDatabaseStore_Upserts_Integration(t *testing.T) {
	ctx := context.Background()
	s := storage.NewDatabaseStore(openTestDB(t))

	session, err := s.EnsureSession(ctx, "905551234567", nil)
	require.NoError(t, err)
	again, err := s.EnsureSession(ctx, "905551234567", nil)
	require.NoError(t, err)
	assert.Equal(t, session.ID, again.ID)

	contact, err := s.UpsertContact(ctx, session.ID, "905550000000", "Mehmet")
	require.NoError(t, err)
	same, err := s.UpsertContact(ctx, session.ID, "905550000000", "")
	require.NoError(t, err)
	assert.Equal(t, contact.ID, same.ID)
	assert.Equal(t, "Mehmet", same.DisplayName)

	msg := &models.Message{
		ExternalID: "ext-1",
		SessionID:  session.ID,
		ContactID:  contact.ID,
		Direction:  models.DirectionInbound,
		Type:       models.MessageTypeText,
		Body:       "first",
		Timestamp:  1700000000,
	}
	require.NoError(t, s.UpsertMessage(ctx, msg))
	require.NoError(t, s.UpsertMessage(ctx, &models.Message{
		ExternalID: "ext-1",
		SessionID:  session.ID,
		ContactID:  contact.ID,
		Direction:  models.DirectionInbound,
		Type:       models.MessageTypeText,
		Body:       "second",
		Timestamp:  1700000000,
	}))

	count, err := s.CountMessages(ctx, session.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	stored, err := s.GetMessageByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, "second", stored.Body)

	require.NoError(t, s.DeleteSession(ctx, "905551234567"))
	_, err = s.GetMessageByExternalID(ctx, "ext-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDatabaseStore_ListMessagesCursorKeepsSameSecondMessages_Integration(t *testing.T) {
	ctx := context.Background()
	s := storage.NewDatabaseStore(openTestDB(t))

	session, err := s.EnsureSession(ctx, "905551234567", nil)
	require.NoError(t, err)
	contact, err := s.UpsertContact(ctx, session.ID, "905550000000", "")
	require.NoError(t, err)

	stamps := map[string]int64{"m1": 100, "m2": 150, "m3": 200, "m4": 200, "m5": 200, "m6": 250}
	for _, id := range []string{"m1", "m2", "m3", "m4", "m5", "m6"} {
		require.NoError(t, s.UpsertMessage(ctx, &models.Message{
			ExternalID: id,
			SessionID:  session.ID,
			ContactID:  contact.ID,
			Direction:  models.DirectionInbound,
			Type:       models.MessageTypeText,
			Timestamp:  stamps[id],
		}))
	}

	var paged []string
	before := ""
	for {
		page, err := s.ListMessages(ctx, session.ID, contact.ID, 2, before)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, msg := range page {
			paged = append(paged, msg.ExternalID)
		}
		before = page[len(page)-1].ExternalID
	}

	assert.Equal(t, []string{"m6", "m5", "m4", "m3", "m2", "m1"}, paged)
}
