package models

import "time"

// Contact is a counterparty phone number tracked within one session
type Contact struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	SessionID   uint      `json:"session_id" gorm:"not null;uniqueIndex:ux_contact_session_phone,priority:1"`
	PhoneNumber string    `json:"phone_number" gorm:"type:varchar(32);not null;uniqueIndex:ux_contact_session_phone,priority:2"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Notes       string    `json:"notes" gorm:"type:text"`
	Tags        []string  `json:"tags" gorm:"serializer:json;type:text"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	Session *Session `json:"-" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for Contact
func (Contact) TableName() string {
	return "contacts"
}

// ContactUpdate carries the editable contact fields
type ContactUpdate struct {
	DisplayName string   `json:"displayName"`
	Email       string   `json:"email"`
	Notes       string   `json:"notes"`
	Tags        []string `json:"tags"`
}
