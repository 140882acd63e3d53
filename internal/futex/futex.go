// Package futex provides the block-on-word / wake-on-address facility the
// futx locks park on.
//
//   - Wait(addr, expected) blocks while *addr == expected. The comparison and
//     the enqueue are atomic with respect to WakeOne/WakeAll on the same
//     address, so a wake that happens after Wait loaded the word is never
//     lost. Wait may also return spuriously; callers re-check their state.
//   - WakeOne(addr) wakes at most one goroutine parked on addr.
//   - WakeAll(addr) wakes every goroutine parked on addr.
//
// Two backends exist. The default one keeps an address-keyed parking table
// and parks goroutines on runtime semaphores, so it works on every platform
// and never pins an OS thread. Building with the futx_osfutex tag on linux
// switches to the FUTEX_WAIT/FUTEX_WAKE system call instead.
//
// The address must stay stable while anyone waits on it; the word therefore
// has to live in heap memory (anything shared between goroutines already
// does).
package futex
