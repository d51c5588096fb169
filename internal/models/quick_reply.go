package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QuickReply is a reusable canned response. Body may contain {{param}} placeholders.
type QuickReply struct {
	ID        string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	OwnerID   *string   `json:"owner_id,omitempty" gorm:"index"`
	Title     string    `json:"title" gorm:"not null"`
	Body      string    `json:"body" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for QuickReply
func (QuickReply) TableName() string {
	return "quick_replies"
}

// BeforeCreate assigns an id when none was provided
func (q *QuickReply) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	return nil
}
