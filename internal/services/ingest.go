package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ananth-NQI/wamirror-backend/internal/metrics"
	"github.com/Ananth-NQI/wamirror-backend/internal/models"
	"github.com/Ananth-NQI/wamirror-backend/internal/storage"
	"github.com/Ananth-NQI/wamirror-backend/internal/utils"
	"github.com/Ananth-NQI/wamirror-backend/internal/whatsapp"
)

// Result is the outcome of ingesting one message event
type Result string

const (
	ResultStored   Result = "stored"
	ResultFiltered Result = "filtered"
	ResultFailed   Result = "failed"
)

// Ingestor turns client message events into contacts and messages. It is
// the only writer of message rows.
type Ingestor struct {
	store storage.Store
	log   zerolog.Logger
}

// NewIngestor creates an ingest pipeline over store
func NewIngestor(store storage.Store, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		store: store,
		log:   logger.With().Str("component", "ingest").Logger(),
	}
}

// Ingest records raw for sessionName. Errors never escape: they are logged,
// counted and reported as ResultFailed.
func (i *Ingestor) Ingest(ctx context.Context, sessionName string, raw *whatsapp.Message, direction models.Direction) (result Result) {
	log := i.log.With().Str("session", sessionName).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic while ingesting message")
			metrics.MessagesDropped.WithLabelValues("panic").Inc()
			result = ResultFailed
		}
	}()

	if raw == nil || raw.ID == "" {
		metrics.MessagesDropped.WithLabelValues("invalid").Inc()
		return ResultFailed
	}
	if raw.Type != models.MessageTypeText {
		metrics.MessagesDropped.WithLabelValues("non_text").Inc()
		return ResultFiltered
	}

	counterparty := raw.From
	if direction == models.DirectionOutbound {
		counterparty = raw.To
	}
	if !utils.IsOneToOneAddress(counterparty) {
		metrics.MessagesDropped.WithLabelValues("group").Inc()
		return ResultFiltered
	}
	phone := utils.NormalizePhone(counterparty)

	sess, err := i.store.GetSession(ctx, sessionName)
	if err != nil {
		log.Error().Err(err).Str("message_id", raw.ID).Msg("failed to resolve session for message")
		metrics.MessagesDropped.WithLabelValues("store_error").Inc()
		return ResultFailed
	}

	displayName := ""
	if direction == models.DirectionInbound {
		displayName = raw.NotifyName
	}
	contact, err := i.store.UpsertContact(ctx, sess.ID, phone, displayName)
	if err != nil {
		log.Error().Err(err).Str("phone", phone).Msg("failed to upsert contact")
		metrics.MessagesDropped.WithLabelValues("store_error").Inc()
		return ResultFailed
	}

	ts := raw.Timestamp
	if ts == 0 {
		ts = time.Now().Unix()
	}
	msg := &models.Message{
		ExternalID: raw.ID,
		SessionID:  sess.ID,
		ContactID:  contact.ID,
		Direction:  direction,
		Type:       raw.Type,
		Body:       raw.Body,
		Timestamp:  ts,
	}
	if err := i.store.UpsertMessage(ctx, msg); err != nil {
		log.Error().Err(err).Str("message_id", raw.ID).Msg("failed to store message")
		metrics.MessagesDropped.WithLabelValues("store_error").Inc()
		return ResultFailed
	}

	metrics.MessagesIngested.WithLabelValues(string(direction)).Inc()
	log.Debug().Str("message_id", raw.ID).Str("direction", string(direction)).Msg("message stored")
	return ResultStored
}
