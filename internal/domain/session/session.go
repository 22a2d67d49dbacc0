package session

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/geocheckin/geocheckin/internal/domain/geo"
)

// Window is how long a session accepts check-ins after creation.
const Window = 5 * time.Minute

var ErrNotFound = errors.New("session not found")

// ClosedReason explains why a session no longer accepts check-ins.
type ClosedReason string

const (
	ClosedNone     ClosedReason = ""
	ClosedInactive ClosedReason = "Inactive"
	ClosedExpired  ClosedReason = "Expired"
)

// Session is a host's location-bound attendance window.
type Session struct {
	ID           int64          `json:"-"`
	SessionID    uuid.UUID      `json:"session_id"`
	HostID       string         `json:"host_id"`
	HostLocation geo.Coordinate `json:"host_location"`
	CreatedAt    time.Time      `json:"created_at"`
	ExpiresAt    time.Time      `json:"expires_at"`
	IsActive     bool           `json:"is_active"`
}

// New builds an active session for hostID opened at now.
func New(hostID string, hostLocation geo.Coordinate, now time.Time) *Session {
	return &Session{
		SessionID:    uuid.New(),
		HostID:       hostID,
		HostLocation: hostLocation,
		CreatedAt:    now,
		ExpiresAt:    now.Add(Window),
		IsActive:     true,
	}
}

// IsExpired reports whether the check-in window has elapsed at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// IsOpenForCheckIn reports whether a check-in may be admitted at now.
func (s *Session) IsOpenForCheckIn(now time.Time) bool {
	return s.IsActive && !s.IsExpired(now)
}

// ClosedReason returns ClosedNone for an open session. An ended session
// reports ClosedInactive even after it has also expired.
func (s *Session) ClosedReason(now time.Time) ClosedReason {
	switch {
	case !s.IsActive:
		return ClosedInactive
	case s.IsExpired(now):
		return ClosedExpired
	default:
		return ClosedNone
	}
}

// Remaining is the time left in the window, never negative.
func (s *Session) Remaining(now time.Time) time.Duration {
	if s.IsExpired(now) {
		return 0
	}
	return s.ExpiresAt.Sub(now)
}
