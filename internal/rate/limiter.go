package rate

import (
	"sync"
	"time"

	xrate "golang.org/x/time/rate"
)

// KeyedLimiter enforces a per-key token bucket with shared settings. Keys
// idle for a full window are dropped lazily on the next Allow call.
type KeyedLimiter struct {
	mu        sync.Mutex
	limit     xrate.Limit
	burst     int
	window    time.Duration
	items     map[string]*keyedEntry
	lastSweep time.Time
}

type keyedEntry struct {
	limiter  *xrate.Limiter
	lastSeen time.Time
}

// NewKeyedLimiter lets each key act burst times right away, refilling at
// burst-per-window afterwards.
func NewKeyedLimiter(burst int, window time.Duration) *KeyedLimiter {
	if burst < 1 {
		burst = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &KeyedLimiter{
		limit:     xrate.Every(window / time.Duration(burst)),
		burst:     burst,
		window:    window,
		items:     make(map[string]*keyedEntry),
		lastSweep: time.Now(),
	}
}

// Allow reports whether the key may act now and consumes a token if so.
func (l *KeyedLimiter) Allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.maybeSweep(now)

	entry, ok := l.items[key]
	if !ok {
		entry = &keyedEntry{limiter: xrate.NewLimiter(l.limit, l.burst)}
		l.items[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.Allow()
}

func (l *KeyedLimiter) maybeSweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	for key, entry := range l.items {
		if now.Sub(entry.lastSeen) >= l.window {
			delete(l.items, key)
		}
	}
	l.lastSweep = now
}
