//go:build !(linux && futx_osfutex)

package futex

import (
	"sync/atomic"
	"unsafe"

	"github.com/llxisdsh/pb"

	"github.com/llxisdsh/futx/internal/opt"
)

// waiter is one parked goroutine.
type waiter struct {
	next *waiter
	sema opt.Sema
}

// waitQueue is the FIFO of goroutines parked on one address.
// It is only touched inside ProcessEntry, under the table's entry lock.
type waitQueue struct {
	head *waiter
	tail *waiter
	n    int
}

func (q *waitQueue) push(w *waiter) {
	if q.tail == nil {
		q.head = w
	} else {
		q.tail.next = w
	}
	q.tail = w
	q.n++
}

func (q *waitQueue) pop() *waiter {
	w := q.head
	if w == nil {
		return nil
	}
	q.head = w.next
	if q.head == nil {
		q.tail = nil
	}
	w.next = nil
	q.n--
	return w
}

// table maps a word address to the goroutines parked on it.
// Empty queues are deleted, so the table only holds contended words.
var table pb.MapOf[uintptr, *waitQueue]

type queueEntry = pb.EntryOf[uintptr, *waitQueue]

func keyOf(addr *uint32) uintptr {
	return uintptr(unsafe.Pointer(addr))
}

// Wait blocks while *addr == expected.
func Wait(addr *uint32, expected uint32) {
	var w *waiter
	table.ProcessEntry(
		keyOf(addr),
		func(e *queueEntry) (*queueEntry, *waitQueue, bool) {
			// Re-check under the entry lock: a waker that changed the word
			// before this point has not looked at the queue yet, or will
			// find us in it.
			if atomic.LoadUint32(addr) != expected {
				return e, nil, false
			}
			w = &waiter{}
			if e == nil {
				q := &waitQueue{}
				q.push(w)
				return &queueEntry{Value: q}, q, true
			}
			e.Value.push(w)
			return e, e.Value, true
		},
	)
	if w != nil {
		w.sema.Acquire()
	}
}

// WakeOne wakes at most one goroutine parked on addr.
func WakeOne(addr *uint32) {
	wake(addr, 1)
}

// WakeAll wakes every goroutine parked on addr.
func WakeAll(addr *uint32) {
	wake(addr, -1)
}

func wake(addr *uint32, limit int) {
	var first, last *waiter
	table.ProcessEntry(
		keyOf(addr),
		func(e *queueEntry) (*queueEntry, *waitQueue, bool) {
			if e == nil {
				return nil, nil, false
			}
			q := e.Value
			for n := 0; limit < 0 || n < limit; n++ {
				w := q.pop()
				if w == nil {
					break
				}
				if last == nil {
					first = w
				} else {
					last.next = w
				}
				last = w
			}
			if q.head == nil {
				return nil, nil, true
			}
			return e, q, true
		},
	)
	// Release outside the entry lock; a woken goroutine usually goes
	// straight back to the same word.
	for w := first; w != nil; {
		next := w.next
		w.sema.Release()
		w = next
	}
}

// parked reports how many goroutines are queued on addr.
func parked(addr *uint32) int {
	var n int
	table.ProcessEntry(
		keyOf(addr),
		func(e *queueEntry) (*queueEntry, *waitQueue, bool) {
			if e != nil {
				n = e.Value.n
			}
			return e, nil, false
		},
	)
	return n
}
