package fetch

import "sync"

// Prefetcher tracks at most one pending speculative fetch. Starting a
// new prefetch supersedes any earlier pending one without cancelling
// the operation already running against it; a superseded fetch may
// finish and its result still lands in the cache harmlessly.
type Prefetcher struct {
	mu         sync.Mutex
	pending    uint32
	hasPending bool
}

// NewPrefetcher returns a prefetcher with nothing pending.
func NewPrefetcher() *Prefetcher {
	return &Prefetcher{}
}

// Start records uid as the sole pending prefetch, replacing any earlier
// pending id. It returns false when uid is already pending, so callers
// do not launch a duplicate fetch for the same message.
func (p *Prefetcher) Start(uid uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hasPending && p.pending == uid {
		return false
	}
	p.pending = uid
	p.hasPending = true
	return true
}

// IsPending reports whether uid is the currently pending prefetch.
func (p *Prefetcher) IsPending(uid uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasPending && p.pending == uid
}

// Complete clears pending state when uid matches the pending id. A
// completion for a superseded id leaves state untouched.
func (p *Prefetcher) Complete(uid uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hasPending && p.pending == uid {
		p.hasPending = false
	}
}

// Reset drops any pending state, e.g. on disconnect.
func (p *Prefetcher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hasPending = false
	p.pending = 0
}
