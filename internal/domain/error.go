package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrExpired            = errors.New("approval target expired or already processed")
	ErrRateLimited        = errors.New("upstream rate limited")
	ErrUnavailable        = errors.New("upstream unavailable")
	ErrDeniedConversation = errors.New("conversation is denylisted")
	ErrDailyLimitReached  = errors.New("daily reply limit reached")
)

// Transient reports whether err is worth retrying on a later cycle.
// Everything else is treated as a permanent fault for the input that caused it.
func Transient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable)
}
