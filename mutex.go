package futx

import (
	"sync/atomic"

	"github.com/llxisdsh/futx/internal/futex"
)

// RawMutex is a mutual exclusion lock that parks contended goroutines on
// its own state word.
//
// It is zero-value usable and implements sync.Locker. It is not reentrant:
// locking it again from the holder deadlocks. There is no owner check and
// no fairness beyond what the parking order gives.
//
// Size: 4 bytes.
type RawMutex struct {
	_ noCopy
	// state:
	//   0: unlocked
	//   1: locked, nobody parked
	//   2: locked, goroutines may be parked
	state uint32
}

const (
	mutexUnlocked  = 0
	mutexLocked    = 1
	mutexContended = 2
)

// Lock acquires the mutex, blocking until it is available.
func (m *RawMutex) Lock() {
	if atomic.CompareAndSwapUint32(&m.state, mutexUnlocked, mutexLocked) {
		return
	}
	m.lockSlow()
}

func (m *RawMutex) lockSlow() {
	// Optimistic spin while the holder is alone: a short critical section
	// often ends before parking would have paid off.
	var spins int
	for atomic.LoadUint32(&m.state) == mutexLocked && trySpin(&spins) {
	}
	if atomic.CompareAndSwapUint32(&m.state, mutexUnlocked, mutexLocked) {
		return
	}
	// From here on we cannot know whether others are parked, so whoever
	// takes the lock leaves it marked contended and the next Unlock wakes
	// someone.
	for atomic.SwapUint32(&m.state, mutexContended) != mutexUnlocked {
		futex.Wait(&m.state, mutexContended)
	}
}

// TryLock acquires the mutex if it is free and reports whether it did.
func (m *RawMutex) TryLock() bool {
	return atomic.CompareAndSwapUint32(&m.state, mutexUnlocked, mutexLocked)
}

// Unlock releases the mutex and wakes one parked goroutine, if any.
// Unlocking an unlocked mutex is a fatal error.
func (m *RawMutex) Unlock() {
	switch atomic.SwapUint32(&m.state, mutexUnlocked) {
	case mutexLocked:
	case mutexContended:
		futex.WakeOne(&m.state)
	default:
		fatal("futx: unlock of unlocked mutex")
	}
}

// Mutex protects a value of type T with a RawMutex.
// The value is only reachable through a MutexGuard, which releases the lock.
//
// It is zero-value usable (guarding the zero T).
//
// Usage:
//
//	var m futx.Mutex[[]int]
//
//	g := m.Lock()
//	defer g.Unlock()
//	*g.Get() = append(*g.Get(), 1)
type Mutex[T any] struct {
	raw   RawMutex
	value T
}

// NewMutex returns a Mutex guarding value.
func NewMutex[T any](value T) *Mutex[T] {
	return &Mutex[T]{value: value}
}

// Lock acquires the mutex and returns the guard for the protected value.
func (m *Mutex[T]) Lock() MutexGuard[T] {
	m.raw.Lock()
	return MutexGuard[T]{m: m}
}

// TryLock acquires the mutex only if it is free.
func (m *Mutex[T]) TryLock() (MutexGuard[T], bool) {
	if !m.raw.TryLock() {
		return MutexGuard[T]{}, false
	}
	return MutexGuard[T]{m: m}, true
}

// With runs fn with the lock held. The lock is released when fn returns or
// panics.
func (m *Mutex[T]) With(fn func(v *T)) {
	g := m.Lock()
	defer g.Unlock()
	fn(g.Get())
}

// MutexGuard grants access to the value of a locked Mutex.
//
// A guard is released exactly once: the first Unlock releases the mutex,
// later calls do nothing. That makes `defer g.Unlock()` safe even when the
// lock is released early on some paths. A guard must stay in the goroutine
// that acquired it and must not be copied.
type MutexGuard[T any] struct {
	m *Mutex[T]
}

func (g *MutexGuard[T]) mutex() *Mutex[T] {
	if g.m == nil {
		panic("futx: use of released MutexGuard")
	}
	return g.m
}

// Get returns the protected value. The pointer must not be used after
// Unlock.
func (g *MutexGuard[T]) Get() *T {
	return &g.mutex().value
}

// Set replaces the protected value.
func (g *MutexGuard[T]) Set(v T) {
	g.mutex().value = v
}

// Unlock releases the mutex if the guard still holds it.
func (g *MutexGuard[T]) Unlock() {
	m := g.m
	if m == nil {
		return
	}
	g.m = nil
	m.raw.Unlock()
}

// Wait releases the mutex, blocks until c is notified and reacquires the
// mutex before returning. Wakeups may be spurious; re-check the condition
// after Wait returns, or use WaitWhile.
func (g *MutexGuard[T]) Wait(c *Condvar) {
	c.Wait(&g.mutex().raw)
}

// WaitWhile waits on c as long as cond reports true for the protected value.
// cond runs with the mutex held.
func (g *MutexGuard[T]) WaitWhile(c *Condvar, cond func(v *T) bool) {
	m := g.mutex()
	for cond(&m.value) {
		c.Wait(&m.raw)
	}
}
