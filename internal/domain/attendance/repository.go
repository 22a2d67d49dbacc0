package attendance

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository,Feed

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence for attendance records.
type Repository interface {
	// Insert stores r unless a record for (r.SessionID, r.StudentID) exists,
	// in which case it returns ErrDuplicate. Concurrent inserts of the same
	// pair must admit exactly one.
	Insert(ctx context.Context, r *Record) error
	Exists(ctx context.Context, sessionID uuid.UUID, studentID string) (bool, error)
	// ListBySession returns records in insertion order.
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*Record, error)
	// ListByStudent returns the newest records first, at most limit.
	ListByStudent(ctx context.Context, studentID string, limit int) ([]*Record, error)
}

// Feed receives admitted records for live delivery to hosts.
type Feed interface {
	Publish(r *Record)
}
