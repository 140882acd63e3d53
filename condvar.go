package futx

import (
	"sync"
	"sync/atomic"

	"github.com/llxisdsh/futx/internal/futex"
)

// Condvar is a condition variable: goroutines wait on it for a change
// announced by NotifyOne or NotifyAll.
//
// It owns no data and no lock. Wait is given the lock that protects the
// condition; any sync.Locker works, typically a *RawMutex or, through
// MutexGuard.Wait, the mutex of a Mutex[T].
//
// Implementation:
// A generation counter doubles as the futex word. Wait snapshots it before
// dropping the lock, so a notify issued after the snapshot changes the word
// and can't be slept through. A notify issued before the snapshot is not
// seen at all, and wakeups may be spurious, so callers always loop on their
// own predicate.
//
// It is zero-value usable.
//
// Size: 4 bytes.
type Condvar struct {
	_       noCopy
	counter uint32
}

// Wait atomically unlocks l and suspends the calling goroutine, then locks
// l again before returning. l must be held by the caller.
//
//	mu.Lock()
//	for !ready {
//		cv.Wait(&mu)
//	}
//	mu.Unlock()
func (c *Condvar) Wait(l sync.Locker) {
	gen := atomic.LoadUint32(&c.counter)
	// Unlocking may itself wake a goroutine parked on l.
	l.Unlock()
	futex.Wait(&c.counter, gen)
	l.Lock()
}

// NotifyOne wakes one goroutine waiting on c, if there is any.
func (c *Condvar) NotifyOne() {
	atomic.AddUint32(&c.counter, 1)
	futex.WakeOne(&c.counter)
}

// NotifyAll wakes all goroutines waiting on c.
func (c *Condvar) NotifyAll() {
	atomic.AddUint32(&c.counter, 1)
	futex.WakeAll(&c.counter)
}
