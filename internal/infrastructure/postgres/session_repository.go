package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geocheckin/geocheckin/internal/domain/session"
)

// SessionRepository implements session.Repository.
type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

const sessionColumns = `id, session_id, host_id, host_location_lat, host_location_lng, created_at, expires_at, is_active`

func (r *SessionRepository) Create(ctx context.Context, s *session.Session) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO sessions
		(session_id, host_id, host_location_lat, host_location_lng, created_at, expires_at, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id
	`, s.SessionID, s.HostID, s.HostLocation.Latitude, s.HostLocation.Longitude, s.CreatedAt, s.ExpiresAt, s.IsActive).Scan(&s.ID)
}

func (r *SessionRepository) GetByID(ctx context.Context, sessionID uuid.UUID) (*session.Session, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id=$1`, sessionID)
	return scanSession(row)
}

func (r *SessionRepository) Deactivate(ctx context.Context, sessionID uuid.UUID) (*session.Session, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE sessions SET is_active=false WHERE session_id=$1
		RETURNING `+sessionColumns, sessionID)
	return scanSession(row)
}

func scanSession(row pgx.Row) (*session.Session, error) {
	var s session.Session
	if err := row.Scan(&s.ID, &s.SessionID, &s.HostID, &s.HostLocation.Latitude, &s.HostLocation.Longitude, &s.CreatedAt, &s.ExpiresAt, &s.IsActive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.ExpiresAt = s.ExpiresAt.UTC()
	return &s, nil
}
