package session

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence for sessions. Lookups return (nil, nil)
// when the session does not exist.
type Repository interface {
	Create(ctx context.Context, session *Session) error
	GetByID(ctx context.Context, sessionID uuid.UUID) (*Session, error)
	// Deactivate clears IsActive and returns the stored session.
	Deactivate(ctx context.Context, sessionID uuid.UUID) (*Session, error)
}
