package models

import "time"

// Direction of a message relative to the session owner
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// MessageTypeText is the protocol content type for plain text messages
const MessageTypeText = "chat"

// Message is one mirrored conversation message. ExternalID is the
// protocol-assigned id and the dedup key across all sessions.
type Message struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	ExternalID string    `json:"external_id" gorm:"type:varchar(255);uniqueIndex;not null"`
	SessionID  uint      `json:"session_id" gorm:"not null;index:ix_message_conversation,priority:1"`
	ContactID  uint      `json:"contact_id" gorm:"not null;index:ix_message_conversation,priority:2"`
	Direction  Direction `json:"direction" gorm:"type:varchar(10);not null"`
	Type       string    `json:"type" gorm:"type:varchar(32);not null"`
	Body       string    `json:"body" gorm:"type:text"`
	Timestamp  int64     `json:"timestamp" gorm:"not null;index:ix_message_conversation,priority:3"` // protocol clock, seconds
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	Session *Session `json:"-" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	Contact *Contact `json:"-" gorm:"foreignKey:ContactID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for Message
func (Message) TableName() string {
	return "messages"
}
