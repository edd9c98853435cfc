package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "idem:issue:"
	pendingValue = "pending"
	donePrefix   = "done:"
)

// Redis shares idempotency keys across instances. A reservation is a SETNX
// of a pending marker; completion overwrites it with the stored result.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (s *Redis) Reserve(ctx context.Context, key string, ttl time.Duration) (State, []byte, error) {
	if err := validate(key, ttl); err != nil {
		return 0, nil, err
	}
	ok, err := s.client.SetNX(ctx, keyPrefix+key, pendingValue, ttl).Result()
	if err != nil {
		return 0, nil, err
	}
	if ok {
		return Reserved, nil, nil
	}

	val, err := s.client.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET.
		return s.Reserve(ctx, key, ttl)
	}
	if err != nil {
		return 0, nil, err
	}
	if result, ok := strings.CutPrefix(val, donePrefix); ok {
		return Completed, []byte(result), nil
	}
	return InFlight, nil, nil
}

func (s *Redis) Complete(ctx context.Context, key string, result []byte, ttl time.Duration) error {
	if err := validate(key, ttl); err != nil {
		return err
	}
	return s.client.Set(ctx, keyPrefix+key, donePrefix+string(result), ttl).Err()
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Release drops a pending reservation. Completed results are left in place.
func (s *Redis) Release(ctx context.Context, key string) error {
	return releaseScript.Run(ctx, s.client, []string{keyPrefix + key}, pendingValue).Err()
}
