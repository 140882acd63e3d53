package opt

import (
	_ "unsafe" // for linkname
)

// Sema is a zero-allocation parking slot.
// It is a direct wrapper around runtime.semacquire/semrelease, so a
// goroutine blocked in Acquire is parked by the scheduler rather than
// holding an OS thread.
//
// Release before Acquire is remembered: the next Acquire returns at once.
type Sema uint32

// Acquire blocks until the semaphore has a count, then decrements it.
func (s *Sema) Acquire() {
	runtime_semacquire((*uint32)(s))
}

// Release increments the semaphore and wakes one parked Acquire, if any.
func (s *Sema) Release() {
	runtime_semrelease((*uint32)(s), false, 0)
}

//go:linkname runtime_semacquire sync.runtime_Semacquire
func runtime_semacquire(s *uint32)

//go:linkname runtime_semrelease sync.runtime_Semrelease
func runtime_semrelease(s *uint32, handoff bool, skipframes int)
