//go:build linux && futx_osfutex

package futex

import (
	"math"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	_FUTEX_WAIT         = 0
	_FUTEX_WAKE         = 1
	_FUTEX_PRIVATE_FLAG = 128

	_FUTEX_WAIT_PRIVATE = _FUTEX_WAIT | _FUTEX_PRIVATE_FLAG
	_FUTEX_WAKE_PRIVATE = _FUTEX_WAKE | _FUTEX_PRIVATE_FLAG
)

// Wait blocks while *addr == expected.
//
// The kernel compares the word and enqueues atomically. EAGAIN (value
// changed) and EINTR are both reported to the caller as a plain return.
func Wait(addr *uint32, expected uint32) {
	_, _, _ = unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		_FUTEX_WAIT_PRIVATE,
		uintptr(expected),
		0, 0, 0,
	)
}

// WakeOne wakes at most one thread parked on addr.
func WakeOne(addr *uint32) {
	futexWake(addr, 1)
}

// WakeAll wakes every thread parked on addr.
func WakeAll(addr *uint32) {
	futexWake(addr, math.MaxInt32)
}

func futexWake(addr *uint32, n uintptr) {
	_, _, _ = unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		_FUTEX_WAKE_PRIVATE,
		n,
		0, 0, 0,
	)
}
