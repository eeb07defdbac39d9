package model

import "time"

// InboundMessage is one row from the external message store.
type InboundMessage struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        string
	Timestamp      time.Time
	DisplayName    string
	MediaKind      MediaKind
}

// HistoryEntry is one line of conversation history used to build the
// reply-generation context window.
type HistoryEntry struct {
	Content   string
	FromMe    bool
	Timestamp time.Time
}

// FlushedBatch is the result of coalescing buffered fragments for one
// conversation: the combined text plus the reply suggested for it.
type FlushedBatch struct {
	ConversationID string
	LastFragmentID string
	DisplayName    string
	CombinedText   string
	SuggestedReply string
}
