package models

import (
	"time"
)

// SessionStatus is the lifecycle state of a messaging session
type SessionStatus string

// Session lifecycle states
const (
	StatusInitializing SessionStatus = "INITIALIZING"
	StatusQRReady      SessionStatus = "QR_READY"
	StatusConnected    SessionStatus = "CONNECTED"
	StatusSyncing      SessionStatus = "SYNCING"
	StatusDisconnected SessionStatus = "DISCONNECTED"
)

var sessionTransitions = map[SessionStatus][]SessionStatus{
	StatusInitializing: {StatusQRReady, StatusConnected, StatusDisconnected},
	StatusQRReady:      {StatusQRReady, StatusConnected, StatusDisconnected},
	StatusConnected:    {StatusSyncing, StatusDisconnected},
	StatusSyncing:      {StatusConnected, StatusDisconnected},
	// DISCONNECTED is only left through an explicit start
	StatusDisconnected: {StatusInitializing},
}

// CanTransition reports whether a session may move from s to next
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	for _, allowed := range sessionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsLive reports whether the status claims an open client connection
func (s SessionStatus) IsLive() bool {
	return s == StatusConnected || s == StatusSyncing
}

// Session is one paired messaging account
type Session struct {
	ID             uint          `json:"id" gorm:"primaryKey;autoIncrement"`
	Name           string        `json:"name" gorm:"uniqueIndex;not null"`
	OwnerID        *string       `json:"owner_id,omitempty" gorm:"index"`
	Status         SessionStatus `json:"status" gorm:"type:varchar(20);not null;default:'INITIALIZING';index"`
	PairingPayload *string       `json:"pairing_payload,omitempty" gorm:"type:text"`
	CreatedAt      time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for Session
func (Session) TableName() string {
	return "sessions"
}
