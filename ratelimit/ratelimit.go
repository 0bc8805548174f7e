package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter budgets requests per key. Allow only checks the budget; Hit
// consumes one unit.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Hit(ctx context.Context, key string) error
}

type Rate struct {
	Limit  int
	Window time.Duration
}

// ClientID is the hex sha256 of a client address.
func ClientID(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])
}

// IncrementKey scopes a limit to one plugin and one client.
func IncrementKey(pluginName, clientID string) string {
	return "increment:" + pluginName + ":" + clientID
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter keeps one token bucket per key in process memory. A bucket
// holds Limit tokens and refills one token every Window/Limit.
type MemoryLimiter struct {
	rate     Rate
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	now      func() time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

func NewMemoryLimiter(r Rate) *MemoryLimiter {
	return &MemoryLimiter{
		rate:     r,
		limiters: make(map[string]*clientLimiter),
		now:      time.Now,
	}
}

func (l *MemoryLimiter) get(key string, now time.Time) *rate.Limiter {
	entry, ok := l.limiters[key]
	if !ok {
		every := l.rate.Window
		if l.rate.Limit > 0 {
			every = l.rate.Window / time.Duration(l.rate.Limit)
		}
		entry = &clientLimiter{limiter: rate.NewLimiter(rate.Every(every), l.rate.Limit)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now

	return entry.limiter
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	return l.get(key, now).TokensAt(now) >= 1, nil
}

func (l *MemoryLimiter) Hit(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.get(key, now).AllowN(now, 1)

	// idle buckets are full again after one window
	if len(l.limiters) > 1024 {
		for k, entry := range l.limiters {
			if now.Sub(entry.lastSeen) > l.rate.Window {
				delete(l.limiters, k)
			}
		}
	}

	return nil
}
