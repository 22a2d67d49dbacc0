// Package repotest holds the behavior every session and attendance storage
// backend must share. Backend test files call Run with a factory that
// returns fresh, empty repositories.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geocheckin/geocheckin/internal/domain/attendance"
	"github.com/geocheckin/geocheckin/internal/domain/geo"
	"github.com/geocheckin/geocheckin/internal/domain/session"
)

// Factory returns empty repositories backed by the store under test.
type Factory func(t *testing.T) (session.Repository, attendance.Repository)

var (
	campus = geo.Coordinate{Latitude: 21.96309, Longitude: 70.77614}
	// millisecond precision survives every backend
	t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
)

// Run executes the shared conformance tests.
func Run(t *testing.T, newRepos Factory) {
	t.Run("session create and get", func(t *testing.T) {
		sessions, _ := newRepos(t)
		ctx := context.Background()
		want := session.New("host-1", campus, t0)
		require.NoError(t, sessions.Create(ctx, want))

		got, err := sessions.GetByID(ctx, want.SessionID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assertSessionEqual(t, want, got)
	})

	t.Run("session get missing", func(t *testing.T) {
		sessions, _ := newRepos(t)
		got, err := sessions.GetByID(context.Background(), uuid.New())
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("session id is unique", func(t *testing.T) {
		sessions, _ := newRepos(t)
		ctx := context.Background()
		s := session.New("host-1", campus, t0)
		require.NoError(t, sessions.Create(ctx, s))

		dup := *s
		dup.HostID = "host-2"
		assert.Error(t, sessions.Create(ctx, &dup))
	})

	t.Run("deactivate is idempotent", func(t *testing.T) {
		sessions, _ := newRepos(t)
		ctx := context.Background()
		s := session.New("host-1", campus, t0)
		require.NoError(t, sessions.Create(ctx, s))

		first, err := sessions.Deactivate(ctx, s.SessionID)
		require.NoError(t, err)
		require.NotNil(t, first)
		assert.False(t, first.IsActive)

		second, err := sessions.Deactivate(ctx, s.SessionID)
		require.NoError(t, err)
		require.NotNil(t, second)
		assert.False(t, second.IsActive)
		assertSessionEqual(t, first, second)

		stored, err := sessions.GetByID(ctx, s.SessionID)
		require.NoError(t, err)
		assert.False(t, stored.IsActive)
		assert.True(t, stored.ExpiresAt.Equal(s.ExpiresAt))
	})

	t.Run("deactivate missing", func(t *testing.T) {
		sessions, _ := newRepos(t)
		got, err := sessions.Deactivate(context.Background(), uuid.New())
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("insert rejects duplicates", func(t *testing.T) {
		sessions, records := newRepos(t)
		ctx := context.Background()
		s := mustSession(t, sessions)

		require.NoError(t, records.Insert(ctx, newRecord(s.SessionID, "student-a", t0.Add(10*time.Second))))
		err := records.Insert(ctx, newRecord(s.SessionID, "student-a", t0.Add(20*time.Second)))
		assert.True(t, errors.Is(err, attendance.ErrDuplicate), "got %v", err)

		list, err := records.ListBySession(ctx, s.SessionID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.True(t, list[0].MarkedAt.Equal(t0.Add(10*time.Second)), "first record must not be overwritten")
	})

	t.Run("concurrent inserts admit exactly one", func(t *testing.T) {
		sessions, records := newRepos(t)
		ctx := context.Background()
		s := mustSession(t, sessions)

		const workers = 32
		var (
			wg         sync.WaitGroup
			mu         sync.Mutex
			ok, dup    int
			unexpected []error
		)
		start := make(chan struct{})
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				err := records.Insert(ctx, newRecord(s.SessionID, "student-a", t0.Add(time.Second)))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					ok++
				case errors.Is(err, attendance.ErrDuplicate):
					dup++
				default:
					unexpected = append(unexpected, err)
				}
			}()
		}
		close(start)
		wg.Wait()

		require.Empty(t, unexpected)
		assert.Equal(t, 1, ok)
		assert.Equal(t, workers-1, dup)
	})

	t.Run("exists", func(t *testing.T) {
		sessions, records := newRepos(t)
		ctx := context.Background()
		s := mustSession(t, sessions)
		require.NoError(t, records.Insert(ctx, newRecord(s.SessionID, "student-a", t0)))

		ok, err := records.Exists(ctx, s.SessionID, "student-a")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = records.Exists(ctx, s.SessionID, "student-b")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("same student in distinct sessions", func(t *testing.T) {
		sessions, records := newRepos(t)
		ctx := context.Background()
		a := mustSession(t, sessions)
		b := mustSession(t, sessions)

		require.NoError(t, records.Insert(ctx, newRecord(a.SessionID, "student-a", t0)))
		require.NoError(t, records.Insert(ctx, newRecord(b.SessionID, "student-a", t0.Add(time.Minute))))

		ok, err := records.Exists(ctx, b.SessionID, "student-a")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("list by session keeps insertion order", func(t *testing.T) {
		sessions, records := newRepos(t)
		ctx := context.Background()
		s := mustSession(t, sessions)
		other := mustSession(t, sessions)

		// marked_at deliberately out of order
		students := []string{"carol", "alice", "bob"}
		offsets := []time.Duration{30 * time.Second, 10 * time.Second, 20 * time.Second}
		for i, id := range students {
			require.NoError(t, records.Insert(ctx, newRecord(s.SessionID, id, t0.Add(offsets[i]))))
		}
		require.NoError(t, records.Insert(ctx, newRecord(other.SessionID, "dave", t0)))

		list, err := records.ListBySession(ctx, s.SessionID)
		require.NoError(t, err)
		require.Len(t, list, 3)
		for i, id := range students {
			assert.Equal(t, id, list[i].StudentID)
			assert.Equal(t, s.SessionID, list[i].SessionID)
		}

		first := list[0]
		assert.Equal(t, "Name carol", first.StudentName)
		assert.InDelta(t, campus.Latitude, first.StudentLocation.Latitude, 1e-12)
		assert.InDelta(t, campus.Longitude, first.StudentLocation.Longitude, 1e-12)
		assert.InDelta(t, 42.5, first.DistanceMeters, 1e-9)
	})

	t.Run("list by session empty", func(t *testing.T) {
		_, records := newRepos(t)
		list, err := records.ListBySession(context.Background(), uuid.New())
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("list by student newest first with limit", func(t *testing.T) {
		sessions, records := newRepos(t)
		ctx := context.Background()
		for i := 0; i < 7; i++ {
			s := mustSession(t, sessions)
			require.NoError(t, records.Insert(ctx, newRecord(s.SessionID, "student-a", t0.Add(time.Duration(i)*time.Hour))))
		}
		s := mustSession(t, sessions)
		require.NoError(t, records.Insert(ctx, newRecord(s.SessionID, "student-b", t0.Add(100*time.Hour))))

		list, err := records.ListByStudent(ctx, "student-a", 5)
		require.NoError(t, err)
		require.Len(t, list, 5)
		for i, rec := range list {
			assert.Equal(t, "student-a", rec.StudentID)
			want := t0.Add(time.Duration(6-i) * time.Hour)
			assert.True(t, rec.MarkedAt.Equal(want), "position %d: got %s want %s", i, rec.MarkedAt, want)
		}
	})
}

func mustSession(t *testing.T, repo session.Repository) *session.Session {
	t.Helper()
	s := session.New("host-1", campus, t0)
	require.NoError(t, repo.Create(context.Background(), s))
	return s
}

func newRecord(sessionID uuid.UUID, studentID string, markedAt time.Time) *attendance.Record {
	return &attendance.Record{
		SessionID:       sessionID,
		StudentID:       studentID,
		StudentName:     fmt.Sprintf("Name %s", studentID),
		StudentLocation: campus,
		DistanceMeters:  42.5,
		MarkedAt:        markedAt,
	}
}

func assertSessionEqual(t *testing.T, want, got *session.Session) {
	t.Helper()
	assert.Equal(t, want.SessionID, got.SessionID)
	assert.Equal(t, want.HostID, got.HostID)
	assert.InDelta(t, want.HostLocation.Latitude, got.HostLocation.Latitude, 1e-12)
	assert.InDelta(t, want.HostLocation.Longitude, got.HostLocation.Longitude, 1e-12)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at %s != %s", got.CreatedAt, want.CreatedAt)
	assert.True(t, want.ExpiresAt.Equal(got.ExpiresAt), "expires_at %s != %s", got.ExpiresAt, want.ExpiresAt)
	assert.Equal(t, want.IsActive, got.IsActive)
}
