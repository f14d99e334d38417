package signin

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger is a process local ChallengeLedger. Use a shared ledger
// (see twofactor.RedisLedger) when several instances serve sign-ins.
type MemoryLedger struct {
	mu       sync.Mutex
	consumed map[string]time.Time
	now      func() time.Time
}

// NewMemoryLedger returns an empty ledger. now defaults to time.Now.
func NewMemoryLedger(now func() time.Time) *MemoryLedger {
	if now == nil {
		now = time.Now
	}
	return &MemoryLedger{
		consumed: map[string]time.Time{},
		now:      now,
	}
}

// Consume marks id as used until the given time. It returns false when id
// was already consumed.
func (l *MemoryLedger) Consume(ctx context.Context, id string, until time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	if _, ok := l.consumed[id]; ok {
		return false, nil
	}
	if !until.After(now) {
		until = now.Add(time.Minute)
	}
	l.consumed[id] = until
	return true, nil
}

// IsConsumed reports whether id was consumed and has not yet expired.
func (l *MemoryLedger) IsConsumed(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now())
	_, ok := l.consumed[id]
	return ok, nil
}

func (l *MemoryLedger) prune(now time.Time) {
	for key, exp := range l.consumed {
		if !exp.After(now) {
			delete(l.consumed, key)
		}
	}
}
