package notifier

import "time"

// EventType names a real-time topic
type EventType string

const (
	EventPairingReady EventType = "pairing-ready"
	EventReady        EventType = "ready"
	EventSyncStatus   EventType = "sync-status"
	EventSyncProgress EventType = "sync-progress"
	EventSyncComplete EventType = "sync-complete"
	EventDisconnected EventType = "disconnected"
)

// Event is one published notification
type Event struct {
	Type    EventType   `json:"type"`
	Session string      `json:"session"`
	Payload interface{} `json:"payload"`
	At      time.Time   `json:"at"`
}

// PairingPayload carries a renderable pairing code
type PairingPayload struct {
	SessionName string `json:"sessionName"`
	QR          string `json:"qr"`
}

type ReadyPayload struct {
	SessionName string `json:"sessionName"`
}

// SyncStatusPayload announces the conversation a bulk sync moved to.
// Current is 1-based.
type SyncStatusPayload struct {
	Current  int    `json:"current"`
	Total    int    `json:"total"`
	ChatName string `json:"chatName"`
}

// SyncProgressPayload is the running count within the current conversation
type SyncProgressPayload struct {
	Count int `json:"count"`
}

type SyncCompletePayload struct{}

type DisconnectedPayload struct {
	SessionName string `json:"sessionName"`
	Reason      string `json:"reason"`
}
