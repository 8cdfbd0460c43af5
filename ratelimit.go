package notifykit

import (
	"sync"
	"time"
)

// tokenBucket tracks remaining tokens for one rate-limit key.
type tokenBucket struct {
	tokens     int
	lastRefill time.Time
}

// creationLimiter bounds notification creation with token buckets keyed
// globally, per user and per source. Buckets refill to capacity once per
// minute; limits are interpreted as events per minute.
type creationLimiter struct {
	mu      sync.Mutex
	cfg     RateLimitingConfig
	buckets map[string]*tokenBucket
}

func newCreationLimiter(cfg RateLimitingConfig) *creationLimiter {
	return &creationLimiter{
		cfg:     cfg,
		buckets: make(map[string]*tokenBucket),
	}
}

// allow consumes one token from each applicable bucket. The check across
// buckets is all-or-nothing: a draft blocked by any dimension consumes no
// tokens from the others.
func (l *creationLimiter) allow(userID, source string, now time.Time) bool {
	if !l.cfg.Enabled {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	type dim struct {
		key   string
		limit int
	}
	dims := []dim{{"global", l.cfg.GlobalLimit}}
	if userID != "" {
		dims = append(dims, dim{"user:" + userID, l.cfg.UserLimit})
	}
	if source != "" {
		dims = append(dims, dim{"source:" + source, l.cfg.SourceLimit})
	}

	checked := make([]*tokenBucket, 0, len(dims))
	for _, d := range dims {
		if d.limit <= 0 {
			continue
		}
		b := l.bucket(d.key, d.limit, now)
		if b.tokens <= 0 {
			return false
		}
		checked = append(checked, b)
	}
	for _, b := range checked {
		b.tokens--
	}
	return true
}

// bucket fetches or creates the bucket for a key, refilling it to
// capacity when a full minute has elapsed since the last refill.
func (l *creationLimiter) bucket(key string, capacity int, now time.Time) *tokenBucket {
	b, ok := l.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: capacity, lastRefill: now}
		l.buckets[key] = b
		return b
	}
	if now.Sub(b.lastRefill) >= time.Minute {
		b.tokens = capacity
		b.lastRefill = now
	}
	return b
}
