package checkin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appAttendance "github.com/geocheckin/geocheckin/internal/application/attendance"
	appSession "github.com/geocheckin/geocheckin/internal/application/session"
	"github.com/geocheckin/geocheckin/internal/domain/attendance"
	"github.com/geocheckin/geocheckin/internal/domain/geo"
	domainSession "github.com/geocheckin/geocheckin/internal/domain/session"
)

// Service decides whether a student may check in and records it.
type Service struct {
	sessions *appSession.Service
	ledger   *appAttendance.Service
	logger   zerolog.Logger
}

// NewService creates a check-in service.
func NewService(sessions *appSession.Service, ledger *appAttendance.Service, logger zerolog.Logger) *Service {
	return &Service{
		sessions: sessions,
		ledger:   ledger,
		logger:   logger.With().Str("service", "checkin").Logger(),
	}
}

// Input is one student's check-in submission. Identity fields are taken as
// supplied by the client.
type Input struct {
	SessionID       uuid.UUID
	StudentID       string
	StudentName     string
	StudentLocation geo.Coordinate
}

// CheckIn admits the submission at now or returns a *Rejection. Checks run
// in a fixed order and stop at the first failure: session exists, session
// open, not already marked, within the geofence. The ledger insert is the
// authoritative duplicate check.
func (s *Service) CheckIn(ctx context.Context, in Input, now time.Time) (*attendance.Record, error) {
	sess, err := s.sessions.Get(ctx, in.SessionID)
	if err != nil {
		if errors.Is(err, domainSession.ErrNotFound) {
			return nil, s.reject(in, &Rejection{Reason: ReasonSessionNotFound})
		}
		return nil, err
	}

	if !sess.IsOpenForCheckIn(now) {
		return nil, s.reject(in, &Rejection{Reason: ReasonSessionClosed, Closed: sess.ClosedReason(now)})
	}

	marked, err := s.ledger.HasRecord(ctx, in.SessionID, in.StudentID)
	if err != nil {
		return nil, err
	}
	if marked {
		return nil, s.reject(in, &Rejection{Reason: ReasonAlreadyMarked})
	}

	distance := geo.DistanceMeters(sess.HostLocation, in.StudentLocation)
	if distance > attendance.GeofenceRadiusMeters {
		return nil, s.reject(in, &Rejection{Reason: ReasonOutOfRange, DistanceMeters: distance})
	}

	record := &attendance.Record{
		SessionID:       in.SessionID,
		StudentID:       in.StudentID,
		StudentName:     in.StudentName,
		StudentLocation: in.StudentLocation,
		DistanceMeters:  distance,
		MarkedAt:        now,
	}
	if err := s.ledger.Insert(ctx, record); err != nil {
		switch {
		case errors.Is(err, attendance.ErrDuplicate):
			return nil, s.reject(in, &Rejection{Reason: ReasonAlreadyMarked})
		case errors.Is(err, attendance.ErrOutsideGeofence):
			return nil, s.reject(in, &Rejection{Reason: ReasonOutOfRange, DistanceMeters: distance})
		default:
			return nil, fmt.Errorf("check-in failed: %w", err)
		}
	}

	return record, nil
}

func (s *Service) reject(in Input, rej *Rejection) *Rejection {
	evt := s.logger.Debug().
		Str("session_id", in.SessionID.String()).
		Str("student_id", in.StudentID).
		Str("reason", string(rej.Reason))
	if rej.Closed != domainSession.ClosedNone {
		evt = evt.Str("closed", string(rej.Closed))
	}
	if rej.Reason == ReasonOutOfRange {
		evt = evt.Float64("distance_meters", rej.DistanceMeters)
	}
	evt.Msg("check-in rejected")
	return rej
}
