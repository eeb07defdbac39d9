package model

import (
	"strings"
	"time"
)

type QueueStatus string

const (
	QueueStatusPending QueueStatus = "pending"
	QueueStatusActive  QueueStatus = "active"
	QueueStatusDone    QueueStatus = "done"
)

type MediaKind string

const (
	MediaNone     MediaKind = ""
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
	MediaVoice    MediaKind = "voice"
)

// Priority values sort ascending: lower surfaces first. Short greeting-like
// messages can wait behind substantive ones.
const (
	PriorityStandard = 20
	PriorityGreeting = 50
)

// QueueItem is one unit of work awaiting an operator decision. Items are never
// deleted, only marked done; they double as the recovery record after restart.
type QueueItem struct {
	ID               int64
	SourceMessageID  string
	ConversationID   string
	DisplayName      string
	Content          string
	MediaKind        MediaKind
	MediaRef         string
	SuggestedReply   string
	AuditRef         string
	Status           QueueStatus
	Priority         int
	CreatedAt        time.Time
	LastTransitionAt time.Time
}

var greetingKeywords = []string{
	"hi", "hello", "hey", "assalam", "good morning", "good evening", "good night", "salam",
}

// ClassifyPriority assigns the insert-time priority for content. The value is
// fixed for the life of the item.
func ClassifyPriority(content string) int {
	t := strings.ToLower(strings.TrimSpace(content))
	if t == "" || len(t) > 30 {
		return PriorityStandard
	}
	for _, k := range greetingKeywords {
		if strings.Contains(t, k) {
			return PriorityGreeting
		}
	}
	return PriorityStandard
}

// CanTransition reports whether a status change is legal: pending->active,
// active->done, active->pending (defer). Done is terminal.
func CanTransition(from, to QueueStatus) bool {
	switch from {
	case QueueStatusPending:
		return to == QueueStatusActive
	case QueueStatusActive:
		return to == QueueStatusDone || to == QueueStatusPending
	default:
		return false
	}
}
