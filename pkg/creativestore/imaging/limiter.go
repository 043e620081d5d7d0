package imaging

import (
	"runtime"
	"sync"

	"github.com/creativestore/creative-store/pkg/creativestore"
)

// DefaultMemoryBudget bounds the working set available to concurrent decode
// and render work.
const DefaultMemoryBudget = 512 << 20

// Limiter gates image work by projected memory use. A proposed allocation is
// sized against the managed heap plus everything already admitted; one
// collection retry runs before the request is rejected as retryable.
type Limiter struct {
	mu       sync.Mutex
	budget   int64
	admitted int64
}

// NewLimiter creates a limiter with the given budget in bytes. A zero or
// negative budget falls back to DefaultMemoryBudget.
func NewLimiter(budget int64) *Limiter {
	if budget <= 0 {
		budget = DefaultMemoryBudget
	}
	return &Limiter{budget: budget}
}

// Admit reserves size bytes of working set. The caller must pair every
// successful Admit with a Release.
func (l *Limiter) Admit(size int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fits(size) {
		l.admitted += size
		return nil
	}

	// One compaction attempt before declining: a recently finished render
	// may still dominate the heap.
	runtime.GC()
	if l.fits(size) {
		l.admitted += size
		return nil
	}
	return creativestore.ErrMemoryLimited
}

// Release returns a reservation taken by Admit.
func (l *Limiter) Release(size int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.admitted -= size
	if l.admitted < 0 {
		l.admitted = 0
	}
}

func (l *Limiter) fits(size int64) bool {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return int64(stats.HeapAlloc)+l.admitted+size <= l.budget
}
