package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/geocheckin/geocheckin/internal/domain/attendance"
)

type recordKey struct {
	sessionID uuid.UUID
	studentID string
}

// AttendanceRepository implements attendance.Repository in process memory.
// A single mutex serializes inserts, which makes the duplicate check and the
// write one atomic step.
type AttendanceRepository struct {
	mu        sync.RWMutex
	seq       int64
	keys      map[recordKey]struct{}
	bySession map[uuid.UUID][]attendance.Record
	byStudent map[string][]attendance.Record
}

func NewAttendanceRepository() *AttendanceRepository {
	return &AttendanceRepository{
		keys:      make(map[recordKey]struct{}),
		bySession: make(map[uuid.UUID][]attendance.Record),
		byStudent: make(map[string][]attendance.Record),
	}
}

func (r *AttendanceRepository) Insert(_ context.Context, rec *attendance.Record) error {
	key := recordKey{sessionID: rec.SessionID, studentID: rec.StudentID}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.keys[key]; ok {
		return attendance.ErrDuplicate
	}
	r.seq++
	rec.ID = r.seq
	r.keys[key] = struct{}{}
	r.bySession[rec.SessionID] = append(r.bySession[rec.SessionID], *rec)
	r.byStudent[rec.StudentID] = append(r.byStudent[rec.StudentID], *rec)
	return nil
}

func (r *AttendanceRepository) Exists(_ context.Context, sessionID uuid.UUID, studentID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.keys[recordKey{sessionID: sessionID, studentID: studentID}]
	return ok, nil
}

func (r *AttendanceRepository) ListBySession(_ context.Context, sessionID uuid.UUID) ([]*attendance.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyRecords(r.bySession[sessionID]), nil
}

func (r *AttendanceRepository) ListByStudent(_ context.Context, studentID string, limit int) ([]*attendance.Record, error) {
	r.mu.RLock()
	out := copyRecords(r.byStudent[studentID])
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MarkedAt.Equal(out[j].MarkedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].MarkedAt.After(out[j].MarkedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyRecords(src []attendance.Record) []*attendance.Record {
	out := make([]*attendance.Record, 0, len(src))
	for i := range src {
		rec := src[i]
		out = append(out, &rec)
	}
	return out
}
