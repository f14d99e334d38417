package twofactor

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
)

const challengePrefix = "signin:2fa:challenge:"

// RedisLedger records consumed two-factor challenges in redis so replays
// are rejected across processes.
type RedisLedger struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedisLedger(client redis.UniversalClient) *RedisLedger {
	return &RedisLedger{client: client, now: time.Now}
}

// WithClock overrides time.Now.
func (l *RedisLedger) WithClock(now func() time.Time) *RedisLedger {
	if now != nil {
		l.now = now
	}
	return l
}

// Consume marks id as used until the given time. It returns false when id
// was already consumed.
func (l *RedisLedger) Consume(ctx context.Context, id string, until time.Time) (bool, error) {
	ttl := until.Sub(l.now())
	if ttl <= 0 {
		// expired challenges cannot be redeemed anyway
		return false, nil
	}

	ok, err := l.client.SetNX(ctx, challengePrefix+id, 1, ttl).Result()
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume two-factor challenge")
	}
	return ok, nil
}

// IsConsumed reports whether id is still recorded as consumed.
func (l *RedisLedger) IsConsumed(ctx context.Context, id string) (bool, error) {
	n, err := l.client.Exists(ctx, challengePrefix+id).Result()
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read two-factor challenge")
	}
	return n > 0, nil
}
