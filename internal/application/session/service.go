package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/geocheckin/geocheckin/internal/domain/geo"
	domainSession "github.com/geocheckin/geocheckin/internal/domain/session"
)

// Service owns the session lifecycle.
type Service struct {
	repo   domainSession.Repository
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates a session service.
func NewService(repo domainSession.Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("service", "session").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create opens a new session at hostLocation. The id is always minted here,
// so retrying a failed create never reuses an identifier.
func (s *Service) Create(ctx context.Context, hostID string, hostLocation geo.Coordinate) (*domainSession.Session, error) {
	sess := domainSession.New(hostID, hostLocation, s.now())
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info().
		Str("session_id", sess.SessionID.String()).
		Str("host_id", sess.HostID).
		Time("expires_at", sess.ExpiresAt).
		Msg("session created")

	return sess, nil
}

// Get returns the session or domainSession.ErrNotFound.
func (s *Service) Get(ctx context.Context, sessionID uuid.UUID) (*domainSession.Session, error) {
	sess, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if sess == nil {
		return nil, domainSession.ErrNotFound
	}
	return sess, nil
}

// End closes the session for check-ins. Ending an ended session is a no-op
// that still returns it.
func (s *Service) End(ctx context.Context, sessionID uuid.UUID) (*domainSession.Session, error) {
	sess, err := s.repo.Deactivate(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}
	if sess == nil {
		return nil, domainSession.ErrNotFound
	}

	s.logger.Info().
		Str("session_id", sess.SessionID.String()).
		Msg("session ended")

	return sess, nil
}
