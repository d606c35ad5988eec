// Package fetch coordinates concurrent message retrieval: an arbiter
// that lets only the newest fetch win, a prefetcher that keeps at most
// one background fetch in flight, and a reentrant busy counter driving
// a single busy indicator across overlapping operations.
package fetch

import "sync"

// Token identifies one fetch request. Tokens are issued in strictly
// increasing order and never reused.
type Token uint64

// Arbiter decides which of several overlapping fetches is allowed to
// surface its result. Starting a new fetch invalidates all earlier
// ones, so a slow fetch for a message the user already navigated away
// from is silently dropped.
type Arbiter struct {
	mu      sync.Mutex
	next    Token
	current Token
	active  bool
}

// NewArbiter returns an arbiter with no fetch in flight.
func NewArbiter() *Arbiter {
	return &Arbiter{}
}

// Start registers a new fetch and returns its token. Any previously
// issued token becomes stale.
func (a *Arbiter) Start() Token {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	a.current = a.next
	a.active = true
	return a.current
}

// Complete reports whether the fetch identified by token is still the
// current one. On true the arbiter is cleared; stale completions leave
// the current fetch untouched.
func (a *Arbiter) Complete(token Token) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active || token != a.current {
		return false
	}
	a.active = false
	return true
}

// Cancel invalidates the current fetch, if any. A later Complete for
// its token returns false.
func (a *Arbiter) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = false
}
