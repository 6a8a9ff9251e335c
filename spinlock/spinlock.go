// Package spinlock implements mutual exclusion by test-and-set, the
// only synchronization primitive available before the scheduler (and
// therefore goroutine parking) exists. It never yields the underlying
// thread: a locked section is expected to be short, and the core's
// discipline (spec §5) forbids calling back into another lock while
// one is held.
package spinlock

import (
	"runtime"
	"sync/atomic"
)

// Spinlock_t is embedded by value in the handful of global structures
// that need it (frame allocator, kernel heap, mount table), mirroring
// how the teacher embeds sync.Mutex.
type Spinlock_t struct {
	held uint32
}

// Lock spins until the lock is acquired.
func (l *Spinlock_t) Lock() {
	for !atomic.CompareAndSwapUint32(&l.held, 0, 1) {
		runtime.Gosched()
	}
}

// Unlock releases the lock. Unlocking an unheld lock is a bug.
func (l *Spinlock_t) Unlock() {
	if !atomic.CompareAndSwapUint32(&l.held, 1, 0) {
		panic("spinlock: unlock of unheld lock")
	}
}

// TryLock attempts to acquire the lock without spinning.
func (l *Spinlock_t) TryLock() bool {
	return atomic.CompareAndSwapUint32(&l.held, 0, 1)
}
