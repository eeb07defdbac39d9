package model

import "time"

// DenyEntry marks a conversation whose messages are dropped at ingest.
type DenyEntry struct {
	ConversationID string
	BlockedAt      time.Time
	Reason         string
	Notes          string
}
