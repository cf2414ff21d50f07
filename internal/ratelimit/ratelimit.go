// Package ratelimit implements a per-process sliding-window limiter keyed by client.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxKeys bounds how many clients are tracked at once.
const DefaultMaxKeys = 500

// ErrRateLimitExceeded is wrapped by every ExceededError.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// ExceededError reports a denied request and when the oldest hit leaves the window.
type ExceededError struct {
	Key        string
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: %d per %s, retry after %s",
		e.Key, e.Limit, e.Window, e.RetryAfter)
}

func (e *ExceededError) Unwrap() error { return ErrRateLimitExceeded }

// Limiter admits at most limit requests per key in any trailing window.
// When more than maxKeys clients are tracked, the least recently seen is
// forgotten and starts over with an empty window.
type Limiter struct {
	mu   sync.Mutex
	keys *lru.Cache[string, []time.Time]
	now  func() time.Time
}

// New creates a limiter tracking up to maxKeys clients.
func New(maxKeys int) *Limiter {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	keys, err := lru.New[string, []time.Time](maxKeys)
	if err != nil {
		// Only returned for a non-positive size.
		panic(err)
	}
	return &Limiter{keys: keys, now: time.Now}
}

// Admit records a hit for key, or returns *ExceededError without recording
// one when limit hits already fall inside window.
func (l *Limiter) Admit(key string, limit int, window time.Duration) error {
	if limit <= 0 || window <= 0 {
		return &ExceededError{Key: key, Limit: limit, Window: window}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-window)

	hits, _ := l.keys.Get(key)
	live := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			live = append(live, t)
		}
	}

	if len(live) >= limit {
		l.keys.Add(key, live)
		return &ExceededError{
			Key:        key,
			Limit:      limit,
			Window:     window,
			RetryAfter: live[0].Add(window).Sub(now),
		}
	}

	l.keys.Add(key, append(live, now))
	return nil
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.keys.Len()
}
