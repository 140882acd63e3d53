package futx

import (
	"runtime"
	_ "unsafe" // for linkname
)

// noCopy may be added to structs which must not be copied
// after the first use.
//
// See https://golang.org/issues/8005#issuecomment-190753527
// for details.
//
// Note that it must not be embedded, due to the Lock and Unlock methods.
type noCopy struct{}

// Lock is a no-op used by -copylocks checker from `go vet`.
func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// trySpin busy-waits for a short while if the runtime thinks spinning can
// pay off (multicore, other Ps running, few spins so far).
func trySpin(spins *int) bool {
	if runtime_canSpin(*spins) {
		*spins++
		runtime_doSpin()
		return true
	}
	return false
}

// relax is the backoff for windows expected to last microseconds: spin
// while the runtime allows it, otherwise yield the P. It never parks.
func relax(spins *int) {
	if trySpin(spins) {
		return
	}
	*spins = 0
	runtime.Gosched()
}

// fatal terminates the process with msg.
// The panic is raised on a fresh goroutine so no deferred recover in the
// caller's stack can swallow it; the caller blocks until the crash.
func fatal(msg string) {
	//goland:noinspection All
	go panic(msg)
	select {}
}

// nolint:all
//
//go:linkname runtime_canSpin sync.runtime_canSpin
//goland:noinspection ALL
func runtime_canSpin(i int) bool

// nolint:all
//
//go:linkname runtime_doSpin sync.runtime_doSpin
//goland:noinspection ALL
func runtime_doSpin()
