package query

import (
	"context"

	"github.com/google/uuid"

	appAttendance "github.com/geocheckin/geocheckin/internal/application/attendance"
	"github.com/geocheckin/geocheckin/internal/domain/attendance"
)

// Service serves the read-only attendance views. Calls have no side effects
// and are safe to poll.
type Service struct {
	ledger *appAttendance.Service
}

func NewService(ledger *appAttendance.Service) *Service {
	return &Service{ledger: ledger}
}

// SessionAttendance returns a session's records in check-in order.
func (s *Service) SessionAttendance(ctx context.Context, sessionID uuid.UUID) ([]*attendance.Record, error) {
	return s.ledger.ListBySession(ctx, sessionID)
}

// StudentHistory returns the student's most recent records, newest first.
func (s *Service) StudentHistory(ctx context.Context, studentID string) ([]*attendance.Record, error) {
	return s.ledger.ListByStudent(ctx, studentID, attendance.DefaultHistoryLimit)
}
