package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"bookingsync/internal/config"
	"bookingsync/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCache struct {
	mock.Mock
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]byte), args.Bool(1), args.Error(2)
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *mockCache) Remove(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *mockCache) List(ctx context.Context, prefix string) ([]domain.CacheEntry, error) {
	args := m.Called(ctx, prefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CacheEntry), args.Error(1)
}

func newFailover(t *testing.T) (*FailoverCacheRepository, *mockCache, *mockCache, *time.Time) {
	t.Helper()
	primary := new(mockCache)
	fallback := new(mockCache)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverCacheRepository(primary, fallback, &logger)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	return repo, primary, fallback, &now
}

func TestFailoverCacheRepository_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("PrimaryHit", func(t *testing.T) {
		repo, primary, fallback, _ := newFailover(t)
		primary.On("Get", ctx, "k").Return([]byte("p"), true, nil).Once()

		got, ok, err := repo.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("p"), got)
		primary.AssertExpectations(t)
		fallback.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})

	t.Run("PrimaryMissChecksFallback", func(t *testing.T) {
		repo, primary, fallback, _ := newFailover(t)
		primary.On("Get", ctx, "k").Return(nil, false, nil).Once()
		fallback.On("Get", ctx, "k").Return([]byte("f"), true, nil).Once()

		got, ok, err := repo.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("f"), got)
		assert.False(t, repo.Degraded())
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		repo, primary, fallback, _ := newFailover(t)
		primary.On("Get", ctx, "k").Return(nil, false, errors.New("fail")).Once()
		fallback.On("Get", ctx, "k").Return([]byte("f"), true, nil).Once()

		got, _, err := repo.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("f"), got)
		assert.True(t, repo.Degraded())
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		repo, primary, fallback, now := newFailover(t)
		primary.On("Get", ctx, "k").Return(nil, false, errors.New("fail")).Once()
		fallback.On("Get", ctx, "k").Return(nil, false, nil).Twice()

		_, _, _ = repo.Get(ctx, "k")
		require.True(t, repo.Degraded())

		// Within the window the primary is skipped.
		_, _, _ = repo.Get(ctx, "k")
		primary.AssertNumberOfCalls(t, "Get", 1)

		*now = now.Add(2 * time.Minute)
		primary.On("Get", ctx, "k").Return([]byte("p"), true, nil).Once()

		got, ok, err := repo.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte("p"), got)
		assert.False(t, repo.Degraded())
		fallback.AssertExpectations(t)
	})

	t.Run("RecoveryAttemptFail", func(t *testing.T) {
		repo, primary, fallback, now := newFailover(t)
		repo.markDown(errors.New("initial"), "test")
		*now = now.Add(2 * time.Minute)

		primary.On("Get", ctx, "k").Return(nil, false, errors.New("still fail")).Once()
		fallback.On("Get", ctx, "k").Return(nil, false, nil).Once()

		_, _, err := repo.Get(ctx, "k")
		assert.NoError(t, err)
		assert.True(t, repo.Degraded())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})
}

func TestFailoverCacheRepository_Set(t *testing.T) {
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		repo, primary, fallback, _ := newFailover(t)
		primary.On("Set", ctx, "k", []byte("v")).Return(nil).Once()

		require.NoError(t, repo.Set(ctx, "k", []byte("v")))
		fallback.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Failover", func(t *testing.T) {
		repo, primary, fallback, _ := newFailover(t)
		primary.On("Set", ctx, "k", []byte("v")).Return(errors.New("fail")).Once()
		fallback.On("Set", ctx, "k", []byte("v")).Return(nil).Once()

		require.NoError(t, repo.Set(ctx, "k", []byte("v")))
		assert.True(t, repo.Degraded())
		fallback.AssertExpectations(t)
	})

	t.Run("AlreadyDown", func(t *testing.T) {
		repo, primary, fallback, _ := newFailover(t)
		repo.markDown(errors.New("down"), "test")
		fallback.On("Set", ctx, "k", []byte("v")).Return(nil).Once()

		require.NoError(t, repo.Set(ctx, "k", []byte("v")))
		primary.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("BothFail", func(t *testing.T) {
		repo, primary, fallback, _ := newFailover(t)
		primary.On("Set", ctx, "k", []byte("v")).Return(errors.New("fail")).Once()
		fallback.On("Set", ctx, "k", []byte("v")).Return(errors.New("disk full")).Once()

		assert.EqualError(t, repo.Set(ctx, "k", []byte("v")), "disk full")
	})
}

func TestFailoverCacheRepository_Remove(t *testing.T) {
	ctx := context.Background()

	t.Run("RemovesFromBoth", func(t *testing.T) {
		repo, primary, fallback, _ := newFailover(t)
		primary.On("Remove", ctx, "k").Return(nil).Once()
		fallback.On("Remove", ctx, "k").Return(nil).Once()

		require.NoError(t, repo.Remove(ctx, "k"))
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("PrimaryFailureTolerated", func(t *testing.T) {
		repo, primary, fallback, _ := newFailover(t)
		primary.On("Remove", ctx, "k").Return(errors.New("fail")).Once()
		fallback.On("Set", ctx, "tombstone:k", []byte("k")).Return(nil).Once()
		fallback.On("Remove", ctx, "k").Return(nil).Once()

		require.NoError(t, repo.Remove(ctx, "k"))
		assert.True(t, repo.Degraded())
		assert.True(t, repo.buried("k"))
		fallback.AssertExpectations(t)
	})

	t.Run("TombstoneWriteFails", func(t *testing.T) {
		repo, primary, fallback, _ := newFailover(t)
		primary.On("Remove", ctx, "k").Return(errors.New("fail")).Once()
		fallback.On("Set", ctx, "tombstone:k", []byte("k")).Return(errors.New("disk full")).Once()

		assert.EqualError(t, repo.Remove(ctx, "k"), "disk full")
		fallback.AssertNotCalled(t, "Remove", mock.Anything, mock.Anything)
	})

	t.Run("TriesPrimaryWhileDown", func(t *testing.T) {
		repo, primary, fallback, _ := newFailover(t)
		repo.markDown(errors.New("down"), "test")
		primary.On("Remove", ctx, "k").Return(nil).Once()
		fallback.On("Remove", ctx, "k").Return(nil).Once()

		require.NoError(t, repo.Remove(ctx, "k"))
		primary.AssertExpectations(t)
		assert.True(t, repo.Degraded())
	})
}

func TestFailoverCacheRepository_List(t *testing.T) {
	ctx := context.Background()

	t.Run("MergesPrimaryFirst", func(t *testing.T) {
		repo, primary, fallback, _ := newFailover(t)
		fallback.On("List", ctx, tombstonePrefix).Return([]domain.CacheEntry{}, nil).Once()
		primary.On("List", ctx, "booking_").Return([]domain.CacheEntry{
			{Key: "booking_1", Value: []byte("p1")},
			{Key: "booking_2", Value: []byte("p2")},
		}, nil).Once()
		fallback.On("List", ctx, "booking_").Return([]domain.CacheEntry{
			{Key: "booking_2", Value: []byte("f2")},
			{Key: "booking_3", Value: []byte("f3")},
		}, nil).Once()

		entries, err := repo.List(ctx, "booking_")
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, []byte("p2"), entries[1].Value)
		assert.Equal(t, "booking_3", entries[2].Key)
	})

	t.Run("PrimaryDown", func(t *testing.T) {
		repo, primary, fallback, _ := newFailover(t)
		fallback.On("List", ctx, tombstonePrefix).Return([]domain.CacheEntry{}, nil).Once()
		primary.On("List", ctx, "").Return(nil, errors.New("fail")).Once()
		fallback.On("List", ctx, "").Return([]domain.CacheEntry{{Key: "a"}}, nil).Once()

		entries, err := repo.List(ctx, "")
		require.NoError(t, err)
		assert.Len(t, entries, 1)
		assert.True(t, repo.Degraded())
	})

	t.Run("FallbackError", func(t *testing.T) {
		repo, primary, fallback, _ := newFailover(t)
		fallback.On("List", ctx, tombstonePrefix).Return([]domain.CacheEntry{}, nil).Once()
		primary.On("List", ctx, "").Return([]domain.CacheEntry{}, nil).Once()
		fallback.On("List", ctx, "").Return(nil, errors.New("broken")).Once()

		_, err := repo.List(ctx, "")
		assert.Error(t, err)
	})
}

func TestFailoverCacheRepository_WithRealStores(t *testing.T) {
	ctx := context.Background()
	primary := new(mockCache)
	fallback := NewMemoryCacheRepository()
	logger := zerolog.Nop()
	repo := NewFailoverCacheRepository(primary, fallback, &logger)

	primary.On("Set", ctx, "booking_1", []byte("v")).Return(errors.New("redis down")).Once()
	require.NoError(t, repo.Set(ctx, "booking_1", []byte("v")))

	got, ok, err := repo.Get(ctx, "booking_1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)
}

func TestFailoverCacheRepository_SetClearsTombstone(t *testing.T) {
	ctx := context.Background()
	repo, primary, fallback, _ := newFailover(t)

	primary.On("Remove", ctx, "k").Return(errors.New("fail")).Once()
	fallback.On("Set", ctx, "tombstone:k", []byte("k")).Return(nil).Once()
	fallback.On("Remove", ctx, "k").Return(nil).Once()
	require.NoError(t, repo.Remove(ctx, "k"))

	fallback.On("Remove", ctx, "tombstone:k").Return(nil).Once()
	fallback.On("Set", ctx, "k", []byte("v")).Return(nil).Once()
	require.NoError(t, repo.Set(ctx, "k", []byte("v")))

	assert.False(t, repo.buried("k"))
	fallback.AssertExpectations(t)
}

func TestFailoverCacheRepository_RedisOutageDuringRemove(t *testing.T) {
	ctx := context.Background()
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer client.Close()

	fallback := NewMemoryCacheRepository()
	logger := zerolog.Nop()
	newRepo := func(now *time.Time) *FailoverCacheRepository {
		repo := NewFailoverCacheRepository(NewRedisCacheRepository(client, "offline:"), fallback, &logger)
		repo.now = func() time.Time { return *now }
		return repo
	}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := newRepo(&now)

	require.NoError(t, repo.Set(ctx, "booking_BK-1", []byte("v1")))
	require.NoError(t, repo.Set(ctx, "booking_BK-2", []byte("v2")))
	require.True(t, s.Exists("offline:entry:booking_BK-1"))

	s.SetError("ERR server unavailable")
	require.NoError(t, repo.Remove(ctx, "booking_BK-1"))
	assert.True(t, repo.Degraded())

	s.SetError("")
	now = now.Add(2 * time.Minute)

	t.Run("RestartSeesNoRemovedEntry", func(t *testing.T) {
		restarted := newRepo(&now)
		entries, err := restarted.List(ctx, "booking_")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "booking_BK-2", entries[0].Key)
		assert.False(t, s.Exists("offline:entry:booking_BK-1"))
	})

	t.Run("TombstoneConsumed", func(t *testing.T) {
		left, err := fallback.List(ctx, tombstonePrefix)
		require.NoError(t, err)
		assert.Empty(t, left)
	})
}
