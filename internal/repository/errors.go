package repository

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a conversation does not exist.
	ErrNotFound = errors.New("conversation not found")
	// ErrInvalidMessage is returned for an empty text or an unknown sender.
	ErrInvalidMessage = errors.New("invalid message")
)

const defaultListLimit = 50

// storeNow is the default store clock. Postgres keeps microseconds, so
// timestamps are truncated to match on both dialects.
func storeNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// nextTimestamp keeps message timestamps non-decreasing within a
// conversation even if the wall clock steps backwards.
func nextTimestamp(now, lastUpdate time.Time) time.Time {
	if now.Before(lastUpdate) {
		return lastUpdate
	}
	return now
}
