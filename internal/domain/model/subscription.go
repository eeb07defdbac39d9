package model

import (
	"time"
)

type Tier string

const (
	TierFree    Tier = "free"
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
)

// TierLimits describes what a tier is allowed per day and how eagerly its
// messages are batched.
type TierLimits struct {
	DailyReplies  int // -1 = unlimited
	Transcription bool
	// BatchWindow overrides the default idle window; negative means no override.
	BatchWindow time.Duration
}

func (t Tier) Limits() TierLimits {
	switch t {
	case TierBasic:
		return TierLimits{DailyReplies: 50, Transcription: true, BatchWindow: 10 * time.Minute}
	case TierPremium:
		return TierLimits{DailyReplies: -1, Transcription: true, BatchWindow: 0}
	default:
		return TierLimits{DailyReplies: 10, Transcription: false, BatchWindow: -1}
	}
}

// Subscription is the per-conversation tier record with its lazy daily counter.
type Subscription struct {
	ConversationID string
	Tier           Tier
	DailyCount     int
	LastReset      time.Time
	SubscribedAt   time.Time
	ExpiresAt      *time.Time
	Notes          string
}

func (s *Subscription) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// CountFor returns the daily counter as of now, treating a stale LastReset as
// a fresh day.
func (s *Subscription) CountFor(now time.Time) int {
	y1, m1, d1 := s.LastReset.Date()
	y2, m2, d2 := now.Date()
	if y1 != y2 || m1 != m2 || d1 != d2 {
		return 0
	}
	return s.DailyCount
}
