package provider

import "sync"

// Breaker counts consecutive failures across the whole generation boundary.
// Any success resets the count. Once the limit is reached Trip returns true
// and callers must surface ErrConsecutiveFailures.
type Breaker struct {
	mu    sync.Mutex
	count int
	limit int
}

const DefaultBreakerLimit = 10

func NewBreaker(limit int) *Breaker {
	if limit <= 0 {
		limit = DefaultBreakerLimit
	}
	return &Breaker{limit: limit}
}

// Success resets the consecutive failure count.
func (b *Breaker) Success() {
	b.mu.Lock()
	b.count = 0
	b.mu.Unlock()
}

// Failure records one failed request and reports whether the breaker tripped.
func (b *Breaker) Failure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count++
	return b.count >= b.limit
}

// Tripped reports whether the boundary is already past its limit.
func (b *Breaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count >= b.limit
}
