package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hodei-pipelines/orchestrator/pkg/ids"
	"github.com/redis/go-redis/v9"
)

// ErrTokenNotFound is returned when a session token has expired or was
// never issued.
var ErrTokenNotFound = errors.New("storage: session token not found")

// TokenStore issues and validates the sessionToken handed back in a
// RegistrationResponse (§4.6). A redis-backed realization lets a worker
// reconnect against any orchestrator process in a horizontally scaled
// deployment without trusting client-supplied state, adapting the
// teacher's in-process token map (pkg/manager/token.go) to a shared,
// expiring store.
type TokenStore interface {
	Issue(ctx context.Context, workerID string, ttl time.Duration) (token string, err error)
	Validate(ctx context.Context, token string) (workerID string, err error)
	Revoke(ctx context.Context, token string) error
}

// RedisTokenStore is the TokenStore realization backed by go-redis,
// grounded in jordigilh-kubernaut's redis dependency.
type RedisTokenStore struct {
	client *redis.Client
	prefix string
}

// NewRedisTokenStore wraps an already-configured *redis.Client.
func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client, prefix: "hodei:session-token:"}
}

func (s *RedisTokenStore) Issue(ctx context.Context, workerID string, ttl time.Duration) (string, error) {
	token := ids.Token()
	if err := s.client.Set(ctx, s.prefix+token, workerID, ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

func (s *RedisTokenStore) Validate(ctx context.Context, token string) (string, error) {
	workerID, err := s.client.Get(ctx, s.prefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrTokenNotFound
	}
	if err != nil {
		return "", err
	}
	return workerID, nil
}

func (s *RedisTokenStore) Revoke(ctx context.Context, token string) error {
	return s.client.Del(ctx, s.prefix+token).Err()
}
