package locationstore_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/phonetap/phonetap-server/platform"
	"github.com/phonetap/phonetap-server/terminal/locationstore"
	"github.com/stretchr/testify/require"
)

func newRedisRepo(t *testing.T, opts ...locationstore.RedisOption) (*locationstore.RedisRepo, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	repo, err := locationstore.NewRedisRepo(context.Background(), "redis://"+mr.Addr(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo, mr
}

func repos(t *testing.T) map[string]locationstore.Repo {
	redisRepo, _ := newRedisRepo(t)
	return map[string]locationstore.Repo{
		"inmemory": locationstore.NewInMemoryRepo(),
		"redis":    redisRepo,
	}
}

func TestRepo_GetPutClear(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := repo.Get(ctx)
			require.NoError(t, err)
			require.False(t, ok)

			loc := platform.Location{ID: "tml_1", DisplayName: "Front Desk"}
			require.NoError(t, repo.Put(ctx, loc))

			got, ok, err := repo.Get(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, loc, got)

			require.NoError(t, repo.Clear(ctx))
			_, ok, err = repo.Get(ctx)
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestRepo_LockIsExclusive(t *testing.T) {
	for name, repo := range repos(t) {
		t.Run(name, func(t *testing.T) {
			unlock, err := repo.Lock(context.Background())
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
			defer cancel()
			_, err = repo.Lock(ctx)
			require.ErrorIs(t, err, context.DeadlineExceeded)

			unlock()
			unlock() // releasing twice is harmless

			again, err := repo.Lock(context.Background())
			require.NoError(t, err)
			again()
		})
	}
}

func TestRedisRepo_CacheExpires(t *testing.T) {
	repo, mr := newRedisRepo(t, locationstore.WithCacheTTL(time.Minute))
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, platform.Location{ID: "tml_1"}))
	mr.FastForward(2 * time.Minute)

	_, ok, err := repo.Get(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisRepo_LockLeaseExpires(t *testing.T) {
	repo, mr := newRedisRepo(t, locationstore.WithLockTTL(time.Second))

	_, err := repo.Lock(context.Background())
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlock, err := repo.Lock(ctx)
	require.NoError(t, err, "a dead holder's lease must not block forever")
	unlock()
}

func TestRedisRepo_SharedAcrossReplicas(t *testing.T) {
	first, mr := newRedisRepo(t)
	second, err := locationstore.NewRedisRepo(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	require.NoError(t, first.Put(context.Background(), platform.Location{ID: "tml_shared"}))

	got, ok, err := second.Get(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "tml_shared", got.ID)
}

func TestNewRedisRepo_BadURL(t *testing.T) {
	_, err := locationstore.NewRedisRepo(context.Background(), "not a url")
	require.Error(t, err)
}
