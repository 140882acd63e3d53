package futx

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/llxisdsh/futx/internal/futex"
	"github.com/llxisdsh/futx/internal/opt"
)

// RawRWLock is a reader/writer lock that parks blocked goroutines instead of
// spinning.
//
// Properties:
//   - Many readers or one writer.
//   - Writer-preferring: once a writer is waiting, new readers block until
//     it has had its turn, so a steady stream of readers can't starve it.
//   - Not reentrant; a reader that re-acquires while a writer waits
//     deadlocks.
//
// It is zero-value usable. The write side implements sync.Locker, so a
// Condvar can wait under it.
type RawRWLock struct {
	_ noCopy
	// state:
	//   readers*2 + 1 if a writer is waiting
	//   math.MaxUint32 if write-locked
	//
	// Readers may enter while state is even and must park while it is odd
	// (the write-locked value is odd as well).
	state uint32
	_     [opt.CacheLineSize_ - 4]byte
	// writerWake is bumped to wake parked writers. Its value carries no
	// meaning beyond "changed since you looked".
	writerWake uint32
}

const (
	rwWriteLocked = math.MaxUint32
	rwWriterBit   = 1
	rwReadUnit    = 2

	// rwMaxState caps the reader count at half the range the state word
	// can express.
	rwMaxState = 1 << 31

	// rwLastReaderWithWriter is the state a read unlock observes when it
	// is the last reader out while a writer waits: one reader plus the
	// waiting bit.
	rwLastReaderWithWriter = rwReadUnit + rwWriterBit
)

// RLock acquires a read lock.
func (rw *RawRWLock) RLock() {
	s := atomic.LoadUint32(&rw.state)
	for {
		if s&rwWriterBit == 0 {
			if s >= rwMaxState {
				fatal("futx: too many readers")
			}
			if atomic.CompareAndSwapUint32(&rw.state, s, s+rwReadUnit) {
				return
			}
			s = atomic.LoadUint32(&rw.state)
			continue
		}
		// A writer holds the lock or is waiting for it.
		futex.Wait(&rw.state, s)
		s = atomic.LoadUint32(&rw.state)
	}
}

// TryRLock acquires a read lock if that is possible without blocking.
func (rw *RawRWLock) TryRLock() bool {
	for {
		s := atomic.LoadUint32(&rw.state)
		if s&rwWriterBit != 0 || s >= rwMaxState {
			return false
		}
		if atomic.CompareAndSwapUint32(&rw.state, s, s+rwReadUnit) {
			return true
		}
	}
}

// RUnlock releases a read lock.
func (rw *RawRWLock) RUnlock() {
	s := atomic.AddUint32(&rw.state, ^uint32(rwReadUnit-1)) + rwReadUnit
	switch {
	case s == rwLastReaderWithWriter:
		// We were the last reader and a writer is waiting: hand over.
		atomic.AddUint32(&rw.writerWake, 1)
		futex.WakeOne(&rw.writerWake)
	case s < rwReadUnit || s == rwWriteLocked:
		fatal("futx: RUnlock of unlocked RWLock")
	}
}

// Lock acquires the write lock.
func (rw *RawRWLock) Lock() {
	s := atomic.LoadUint32(&rw.state)
	for {
		// No readers: take it, whether or not the waiting bit is set.
		if s <= rwWriterBit {
			if atomic.CompareAndSwapUint32(&rw.state, s, rwWriteLocked) {
				return
			}
			s = atomic.LoadUint32(&rw.state)
			continue
		}

		// Readers are in. Announce ourselves so no new ones enter.
		if s&rwWriterBit == 0 {
			if !atomic.CompareAndSwapUint32(&rw.state, s, s+rwWriterBit) {
				s = atomic.LoadUint32(&rw.state)
				continue
			}
		}

		// Load the token before re-checking state: a release between the
		// two bumps the token and makes the wait return immediately.
		w := atomic.LoadUint32(&rw.writerWake)
		s = atomic.LoadUint32(&rw.state)
		if s >= rwReadUnit {
			futex.Wait(&rw.writerWake, w)
			s = atomic.LoadUint32(&rw.state)
		}
	}
}

// TryLock acquires the write lock if it is free.
// It does not set the waiting bit on failure.
func (rw *RawRWLock) TryLock() bool {
	for {
		s := atomic.LoadUint32(&rw.state)
		if s > rwWriterBit {
			return false
		}
		if atomic.CompareAndSwapUint32(&rw.state, s, rwWriteLocked) {
			return true
		}
	}
}

// Unlock releases the write lock, wakes one waiting writer and all readers
// parked behind the waiting bit. Whoever wins the race next takes the lock.
func (rw *RawRWLock) Unlock() {
	if atomic.LoadUint32(&rw.state) != rwWriteLocked {
		fatal("futx: Unlock of unlocked RWLock")
	}
	atomic.StoreUint32(&rw.state, 0)
	atomic.AddUint32(&rw.writerWake, 1)
	futex.WakeOne(&rw.writerWake)
	futex.WakeAll(&rw.state)
}

// RLocker returns a sync.Locker that takes the read side of rw.
func (rw *RawRWLock) RLocker() sync.Locker {
	return (*rlocker)(rw)
}

type rlocker RawRWLock

func (r *rlocker) Lock()   { (*RawRWLock)(r).RLock() }
func (r *rlocker) Unlock() { (*RawRWLock)(r).RUnlock() }

// RWLock protects a value of type T with a RawRWLock.
//
// Usage:
//
//	cfg := futx.NewRWLock(Config{})
//
//	r := cfg.Read()
//	use(r.Get().Addr)
//	r.Unlock()
//
//	w := cfg.Write()
//	w.Get().Addr = "new"
//	w.Unlock()
type RWLock[T any] struct {
	raw   RawRWLock
	value T
}

// NewRWLock returns an RWLock guarding value.
func NewRWLock[T any](value T) *RWLock[T] {
	return &RWLock[T]{value: value}
}

// Read acquires shared access.
func (l *RWLock[T]) Read() ReadGuard[T] {
	l.raw.RLock()
	return ReadGuard[T]{l: l}
}

// TryRead acquires shared access if no writer holds or awaits the lock.
func (l *RWLock[T]) TryRead() (ReadGuard[T], bool) {
	if !l.raw.TryRLock() {
		return ReadGuard[T]{}, false
	}
	return ReadGuard[T]{l: l}, true
}

// Write acquires exclusive access.
func (l *RWLock[T]) Write() WriteGuard[T] {
	l.raw.Lock()
	return WriteGuard[T]{l: l}
}

// TryWrite acquires exclusive access if the lock is free.
func (l *RWLock[T]) TryWrite() (WriteGuard[T], bool) {
	if !l.raw.TryLock() {
		return WriteGuard[T]{}, false
	}
	return WriteGuard[T]{l: l}, true
}

// ReadGuard grants shared access to the value of a read-locked RWLock.
// Like MutexGuard it releases exactly once and must not be copied.
type ReadGuard[T any] struct {
	l *RWLock[T]
}

// Get returns the protected value. Other readers see it at the same time:
// it must not be modified through this pointer.
func (g *ReadGuard[T]) Get() *T {
	if g.l == nil {
		panic("futx: use of released ReadGuard")
	}
	return &g.l.value
}

// Unlock releases the read lock if the guard still holds it.
func (g *ReadGuard[T]) Unlock() {
	l := g.l
	if l == nil {
		return
	}
	g.l = nil
	l.raw.RUnlock()
}

// WriteGuard grants exclusive access to the value of a write-locked RWLock.
type WriteGuard[T any] struct {
	l *RWLock[T]
}

func (g *WriteGuard[T]) lock() *RWLock[T] {
	if g.l == nil {
		panic("futx: use of released WriteGuard")
	}
	return g.l
}

// Get returns the protected value.
func (g *WriteGuard[T]) Get() *T {
	return &g.lock().value
}

// Set replaces the protected value.
func (g *WriteGuard[T]) Set(v T) {
	g.lock().value = v
}

// Unlock releases the write lock if the guard still holds it.
func (g *WriteGuard[T]) Unlock() {
	l := g.l
	if l == nil {
		return
	}
	g.l = nil
	l.raw.Unlock()
}
