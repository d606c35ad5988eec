package fetch

import "sync"

// BusyCounter tracks overlapping long-running operations and reports
// transitions between idle and busy. Each operation pairs Acquire with
// Release; the optional callback fires only on the edges, so nested
// operations toggle the indicator exactly once.
type BusyCounter struct {
	mu       sync.Mutex
	count    int
	onChange func(busy bool)
}

// NewBusyCounter creates a counter. onChange may be nil.
func NewBusyCounter(onChange func(busy bool)) *BusyCounter {
	return &BusyCounter{onChange: onChange}
}

// Acquire increments the counter, firing the callback when the counter
// leaves zero.
func (b *BusyCounter) Acquire() {
	b.mu.Lock()
	b.count++
	fire := b.count == 1
	b.mu.Unlock()
	if fire && b.onChange != nil {
		b.onChange(true)
	}
}

// Release decrements the counter, firing the callback when it reaches
// zero. Extra releases are ignored, the counter never goes negative.
func (b *BusyCounter) Release() {
	b.mu.Lock()
	if b.count == 0 {
		b.mu.Unlock()
		return
	}
	b.count--
	fire := b.count == 0
	b.mu.Unlock()
	if fire && b.onChange != nil {
		b.onChange(false)
	}
}

// Busy reports whether any operation is in flight.
func (b *BusyCounter) Busy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count > 0
}

// Reset forces the counter back to idle, firing the callback when it
// was busy.
func (b *BusyCounter) Reset() {
	b.mu.Lock()
	fire := b.count > 0
	b.count = 0
	b.mu.Unlock()
	if fire && b.onChange != nil {
		b.onChange(false)
	}
}
