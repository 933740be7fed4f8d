package locationstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phonetap/phonetap-server/platform"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	defaultPrefix   = "phonetap:terminal:location:"
	defaultLockTTL  = 30 * time.Second
	lockPollEvery   = 50 * time.Millisecond
	defaultCacheTTL = 24 * time.Hour
)

// releaseLock deletes the lock only if this holder still owns it
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var _ Repo = (*RedisRepo)(nil)

// RedisRepo shares the resolved location and the create lock across replicas.
type RedisRepo struct {
	client   *redis.Client
	prefix   string
	ttl      time.Duration
	lockTTL  time.Duration
	pollStep time.Duration
}

type RedisOption func(*RedisRepo)

func WithPrefix(prefix string) RedisOption {
	return func(r *RedisRepo) { r.prefix = prefix }
}

func WithCacheTTL(ttl time.Duration) RedisOption {
	return func(r *RedisRepo) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithLockTTL(ttl time.Duration) RedisOption {
	return func(r *RedisRepo) {
		if ttl > 0 {
			r.lockTTL = ttl
		}
	}
}

// NewRedisRepo connects using a redis:// URL and pings the server.
func NewRedisRepo(ctx context.Context, redisURL string, opts ...RedisOption) (*RedisRepo, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("[NewRedisRepo] invalid redis url: %w", err)
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("[NewRedisRepo] redis ping failed: %w", err)
	}
	return NewRedisRepoFromClient(client, opts...), nil
}

func NewRedisRepoFromClient(client *redis.Client, opts ...RedisOption) *RedisRepo {
	r := &RedisRepo{
		client:   client,
		prefix:   defaultPrefix,
		ttl:      defaultCacheTTL,
		lockTTL:  defaultLockTTL,
		pollStep: lockPollEvery,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisRepo) currentKey() string { return r.prefix + "current" }
func (r *RedisRepo) lockKey() string    { return r.prefix + "lock" }

func (r *RedisRepo) Get(ctx context.Context) (platform.Location, bool, error) {
	raw, err := r.client.Get(ctx, r.currentKey()).Bytes()
	if err == redis.Nil {
		return platform.Location{}, false, nil
	}
	if err != nil {
		return platform.Location{}, false, fmt.Errorf("[RedisRepo Get] %w", err)
	}
	var loc platform.Location
	if err := json.Unmarshal(raw, &loc); err != nil {
		return platform.Location{}, false, fmt.Errorf("[RedisRepo Get] corrupt cached location: %w", err)
	}
	return loc, true, nil
}

func (r *RedisRepo) Put(ctx context.Context, loc platform.Location) error {
	data, err := json.Marshal(loc)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.currentKey(), data, r.ttl).Err()
}

// Lock takes a SET NX lease. The lease expires on its own if the holder dies.
func (r *RedisRepo) Lock(ctx context.Context) (func(), error) {
	token := uuid.New().String()
	ticker := time.NewTicker(r.pollStep)
	defer ticker.Stop()

	for {
		acquired, err := r.client.SetNX(ctx, r.lockKey(), token, r.lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("[RedisRepo Lock] %w", err)
		}
		if acquired {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return func() {
		// the caller's ctx may already be cancelled
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseLock.Run(releaseCtx, r.client, []string{r.lockKey()}, token).Err(); err != nil {
			log.Warn().Err(err).Msg("Failed to release location lock, it will expire")
		}
	}, nil
}

func (r *RedisRepo) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.currentKey()).Err()
}

func (r *RedisRepo) Close() error {
	return r.client.Close()
}
