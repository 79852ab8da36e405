package idempotency

import (
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
)

// bloomFilterSet implements a sliding window bloom filter using two
// underlying bloom filters. Keys are always added to the "current" filter,
// while lookups check both "current" and "previous". Periodic rotation
// swaps current to previous and creates a fresh current filter, providing
// a bounded time window for duplicate suppression.
type bloomFilterSet struct {
	current  *bloom.BloomFilter
	previous *bloom.BloomFilter
	mu       sync.RWMutex
	window   time.Duration
	capacity uint
	fpRate   float64
}

// newBloomFilterSet creates a bloomFilterSet with the given sliding window
// duration, expected capacity (submissions per window), and false positive
// rate.
func newBloomFilterSet(window time.Duration, capacity uint, fpRate float64) *bloomFilterSet {
	return &bloomFilterSet{
		current:  bloom.NewWithEstimates(capacity, fpRate),
		previous: bloom.NewWithEstimates(capacity, fpRate),
		window:   window,
		capacity: capacity,
		fpRate:   fpRate,
	}
}

// seen reports whether key exists in either filter. If not found, it adds
// the key to the current filter and returns false. Safe for concurrent use.
func (b *bloomFilterSet) seen(key string) bool {
	data := []byte(key)

	b.mu.RLock()
	if b.current.Test(data) || b.previous.Test(data) {
		b.mu.RUnlock()
		return true
	}
	b.mu.RUnlock()

	b.mu.Lock()
	// Double-check after acquiring the write lock: another goroutine may
	// have added the same key between RUnlock and Lock.
	if b.current.Test(data) || b.previous.Test(data) {
		b.mu.Unlock()
		return true
	}
	b.current.Add(data)
	b.mu.Unlock()

	return false
}

// rotate swaps the current filter to previous and creates a fresh current
// filter. Called every window/2 so the sliding overlap keeps a key visible
// for at least one full window.
func (b *bloomFilterSet) rotate() {
	b.mu.Lock()
	b.previous = b.current
	b.current = bloom.NewWithEstimates(b.capacity, b.fpRate)
	b.mu.Unlock()
}

func (b *bloomFilterSet) Window() time.Duration {
	return b.window
}
