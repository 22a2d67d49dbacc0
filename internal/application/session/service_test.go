package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/geocheckin/geocheckin/internal/domain/geo"
	domainSession "github.com/geocheckin/geocheckin/internal/domain/session"
	sessionMocks "github.com/geocheckin/geocheckin/internal/domain/session/mocks"
)

var (
	campus = geo.Coordinate{Latitude: 21.96309, Longitude: 70.77614}
	t0     = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
)

func newTestService(t *testing.T) (*Service, *sessionMocks.MockRepository) {
	t.Helper()
	ctrl := gomock.NewController(t)
	repo := sessionMocks.NewMockRepository(ctrl)
	svc := NewService(repo, zerolog.Nop())
	svc.now = func() time.Time { return t0 }
	return svc, repo
}

func TestService_Create(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc, repo := newTestService(t)
		ctx := context.Background()

		repo.EXPECT().
			Create(ctx, gomock.Any()).
			DoAndReturn(func(_ context.Context, s *domainSession.Session) error {
				assert.NotEqual(t, uuid.Nil, s.SessionID)
				assert.Equal(t, "host-1", s.HostID)
				assert.Equal(t, campus, s.HostLocation)
				return nil
			})

		sess, err := svc.Create(ctx, "host-1", campus)
		require.NoError(t, err)
		assert.Equal(t, t0, sess.CreatedAt)
		assert.Equal(t, t0.Add(domainSession.Window), sess.ExpiresAt)
		assert.True(t, sess.IsActive)
	})

	t.Run("each call mints a new id", func(t *testing.T) {
		svc, repo := newTestService(t)
		ctx := context.Background()
		repo.EXPECT().Create(ctx, gomock.Any()).Return(nil).Times(2)

		a, err := svc.Create(ctx, "host-1", campus)
		require.NoError(t, err)
		b, err := svc.Create(ctx, "host-1", campus)
		require.NoError(t, err)
		assert.NotEqual(t, a.SessionID, b.SessionID)
	})

	t.Run("storage error is reported", func(t *testing.T) {
		svc, repo := newTestService(t)
		ctx := context.Background()
		storeErr := errors.New("connection refused")
		repo.EXPECT().Create(ctx, gomock.Any()).Return(storeErr).Times(1)

		sess, err := svc.Create(ctx, "host-1", campus)
		require.ErrorIs(t, err, storeErr)
		assert.Nil(t, sess)
	})
}

func TestService_Get(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		svc, repo := newTestService(t)
		ctx := context.Background()
		want := domainSession.New("host-1", campus, t0)
		repo.EXPECT().GetByID(ctx, want.SessionID).Return(want, nil)

		got, err := svc.Get(ctx, want.SessionID)
		require.NoError(t, err)
		assert.Same(t, want, got)
	})

	t.Run("not found", func(t *testing.T) {
		svc, repo := newTestService(t)
		ctx := context.Background()
		id := uuid.New()
		repo.EXPECT().GetByID(ctx, id).Return(nil, nil)

		_, err := svc.Get(ctx, id)
		assert.ErrorIs(t, err, domainSession.ErrNotFound)
	})

	t.Run("storage error is not a not-found", func(t *testing.T) {
		svc, repo := newTestService(t)
		ctx := context.Background()
		id := uuid.New()
		repo.EXPECT().GetByID(ctx, id).Return(nil, errors.New("timeout"))

		_, err := svc.Get(ctx, id)
		require.Error(t, err)
		assert.NotErrorIs(t, err, domainSession.ErrNotFound)
	})
}

func TestService_End(t *testing.T) {
	t.Run("idempotent", func(t *testing.T) {
		svc, repo := newTestService(t)
		ctx := context.Background()
		stored := domainSession.New("host-1", campus, t0)
		repo.EXPECT().
			Deactivate(ctx, stored.SessionID).
			DoAndReturn(func(context.Context, uuid.UUID) (*domainSession.Session, error) {
				stored.IsActive = false
				return stored, nil
			}).
			Times(2)

		first, err := svc.End(ctx, stored.SessionID)
		require.NoError(t, err)
		second, err := svc.End(ctx, stored.SessionID)
		require.NoError(t, err)

		assert.False(t, first.IsActive)
		assert.False(t, second.IsActive)
		assert.Equal(t, first, second)
	})

	t.Run("not found", func(t *testing.T) {
		svc, repo := newTestService(t)
		ctx := context.Background()
		id := uuid.New()
		repo.EXPECT().Deactivate(ctx, id).Return(nil, nil)

		_, err := svc.End(ctx, id)
		assert.ErrorIs(t, err, domainSession.ErrNotFound)
	})
}
