package attendance

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	domainAttendance "github.com/geocheckin/geocheckin/internal/domain/attendance"
)

// Service is the attendance ledger. It is the enforcement point for one
// record per (session, student) and for the geofence radius on stored records.
type Service struct {
	repo   domainAttendance.Repository
	feed   domainAttendance.Feed
	logger zerolog.Logger
}

// NewService creates a ledger service. feed may be nil.
func NewService(repo domainAttendance.Repository, feed domainAttendance.Feed, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		feed:   feed,
		logger: logger.With().Str("service", "attendance").Logger(),
	}
}

// HasRecord reports whether studentID already checked into sessionID.
func (s *Service) HasRecord(ctx context.Context, sessionID uuid.UUID, studentID string) (bool, error) {
	ok, err := s.repo.Exists(ctx, sessionID, studentID)
	if err != nil {
		return false, fmt.Errorf("failed to check attendance: %w", err)
	}
	return ok, nil
}

// Insert admits r. It returns domainAttendance.ErrDuplicate when the pair is
// already recorded and domainAttendance.ErrOutsideGeofence when the distance
// exceeds the radius.
func (s *Service) Insert(ctx context.Context, r *domainAttendance.Record) error {
	if !r.WithinGeofence() {
		return domainAttendance.ErrOutsideGeofence
	}
	if err := s.repo.Insert(ctx, r); err != nil {
		if errors.Is(err, domainAttendance.ErrDuplicate) {
			return err
		}
		return fmt.Errorf("failed to record attendance: %w", err)
	}

	s.logger.Info().
		Str("session_id", r.SessionID.String()).
		Str("student_id", r.StudentID).
		Float64("distance_meters", r.DistanceMeters).
		Msg("attendance recorded")

	if s.feed != nil {
		s.feed.Publish(r)
	}
	return nil
}

// ListBySession returns the session's records in insertion order.
func (s *Service) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*domainAttendance.Record, error) {
	records, err := s.repo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session attendance: %w", err)
	}
	return nonNil(records), nil
}

// ListByStudent returns the student's newest records first. A non-positive
// limit falls back to domainAttendance.DefaultHistoryLimit.
func (s *Service) ListByStudent(ctx context.Context, studentID string, limit int) ([]*domainAttendance.Record, error) {
	if limit <= 0 {
		limit = domainAttendance.DefaultHistoryLimit
	}
	records, err := s.repo.ListByStudent(ctx, studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list student attendance: %w", err)
	}
	if len(records) > limit {
		records = records[:limit]
	}
	return nonNil(records), nil
}

func nonNil(records []*domainAttendance.Record) []*domainAttendance.Record {
	if records == nil {
		return []*domainAttendance.Record{}
	}
	return records
}
