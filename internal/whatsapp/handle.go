// Package whatsapp defines the client handle contract the session manager
// drives, and a browser-automation implementation of it.
package whatsapp

import (
	"context"
	"errors"
)

// EventType tells what a client handle is reporting
type EventType string

const (
	EventQR           EventType = "qr"
	EventReady        EventType = "ready"
	EventMessage      EventType = "message"
	EventDisconnected EventType = "disconnected"
)

// ErrNotReady is returned by handle operations that need an authenticated client
var ErrNotReady = errors.New("client not ready")

// Event is emitted on a handle's event channel. Only the field matching
// Type is populated.
type Event struct {
	Type    EventType
	QR      string
	Message *Message
	Reason  string
}

// Message is a protocol message as surfaced by the client
type Message struct {
	ID         string `json:"id"`
	From       string `json:"from"`
	To         string `json:"to"`
	FromMe     bool   `json:"fromMe"`
	Type       string `json:"type"`
	Body       string `json:"body"`
	Timestamp  int64  `json:"timestamp"` // seconds
	NotifyName string `json:"notifyName"`
}

// Chat is a conversation known to the client
type Chat struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsGroup     bool   `json:"isGroup"`
	UnreadCount int    `json:"unreadCount"`
	Timestamp   int64  `json:"timestamp"`
}

// Handle is one live client connection. Events are delivered in order on a
// single channel that is closed once the handle is gone; a handle never
// emits overlapping events.
type Handle interface {
	Events() <-chan Event
	// Initialize activates the connection. Callers must start consuming
	// Events first.
	Initialize(ctx context.Context) error
	SendText(ctx context.Context, chatID, text string) (*Message, error)
	// FetchMessages returns up to limit of the newest messages of a chat, oldest first
	FetchMessages(ctx context.Context, chatID string, limit int) ([]Message, error)
	Chats(ctx context.Context) ([]Chat, error)
	Logout(ctx context.Context) error
	Destroy() error
}

// Provider creates client handles for sessions
type Provider interface {
	Acquire(ctx context.Context, sessionName string) (Handle, error)
}
