package futx

import (
	"sync/atomic"
)

// Arc is an atomically reference-counted shared-ownership handle.
//
// Every Arc handle owns one strong reference to a shared allocation block.
// The payload stays alive while at least one strong reference exists; when
// the last one is dropped the payload's destructor runs exactly once.
// Weak handles (see Downgrade) observe the block without keeping the payload
// alive.
//
// Handles have explicit ownership: each *Arc obtained from NewArc, Clone or
// Weak.Upgrade must be released with Drop exactly once. A handle must not be
// used after Drop, and must not be shared by goroutines that may Drop it;
// give every goroutine its own Clone instead. The payload reachable through
// Get may be shared freely while its handle is alive.
//
// Example:
//
//	a := NewArcFunc(conn, func(c *net.Conn) { (*c).Close() })
//	b := a.Clone()
//	go func() { defer b.Drop(); use(*b.Get()) }()
//	a.Drop() // conn is closed after both handles are gone
type Arc[T any] struct {
	_ noCopy
	b *arcBlock[T]
}

// Weak is a non-owning handle to an Arc allocation.
// It must be upgraded to reach the payload and released with Drop.
type Weak[T any] struct {
	_ noCopy
	b *arcBlock[T]
}

// Dropper is implemented by payloads that need cleanup when the last strong
// reference goes away.
type Dropper interface {
	Drop()
}

// arcBlock is the shared allocation.
//
//   - strong: number of Arc handles.
//   - weak: number of Weak handles, plus one while strong > 0.
//
// The payload is valid exactly while strong > 0. weak can only reach zero
// after strong did, at which point the block is released.
type arcBlock[T any] struct {
	strong atomic.Uintptr
	weak   atomic.Uintptr
	value  T
	drop   func(*T)
}

const (
	// maxRefCount bounds both counters. Crossing it means a leak of
	// astronomical size or a wraparound in progress; both are fatal.
	maxRefCount = ^uintptr(0) >> 1

	// arcLocked is stored in weak while GetMut checks for uniqueness.
	arcLocked = ^uintptr(0)
)

// NewArc allocates a block holding value and returns its first strong
// handle. If *T (or T itself) implements Dropper, Drop is called on the
// payload when the last strong handle is released.
func NewArc[T any](value T) *Arc[T] {
	return NewArcFunc(value, nil)
}

// NewArcFunc is like NewArc with an explicit destructor. drop may be nil.
func NewArcFunc[T any](value T, drop func(*T)) *Arc[T] {
	b := &arcBlock[T]{value: value, drop: drop}
	b.strong.Store(1)
	// The implicit weak unit held on behalf of all strong handles.
	b.weak.Store(1)
	return &Arc[T]{b: b}
}

func (a *Arc[T]) block() *arcBlock[T] {
	b := a.b
	if b == nil {
		panic("futx: use of dropped Arc")
	}
	return b
}

// Get returns the shared payload. The pointer is valid while the handle is
// alive. Concurrent mutation through it needs external synchronization; use
// GetMut for exclusive access.
func (a *Arc[T]) Get() *T {
	return &a.block().value
}

// Clone returns a new strong handle to the same payload.
func (a *Arc[T]) Clone() *Arc[T] {
	b := a.block()
	// Relaxed in spirit: the caller's own handle already keeps the
	// payload alive, so nothing needs to synchronize with this increment.
	if b.strong.Add(1)-1 > maxRefCount {
		fatal("futx: Arc strong count overflow")
	}
	return &Arc[T]{b: b}
}

// Drop releases the handle. If it was the last strong handle, the payload
// is destroyed before Drop returns.
func (a *Arc[T]) Drop() {
	b := a.block()
	a.b = nil
	// The decrement publishes this handle's uses of the payload (release);
	// the goroutine that observes 1 also acquires every earlier release, so
	// the destructor runs after all other uses have finished.
	if b.strong.Add(^uintptr(0)) != 0 {
		return
	}
	b.destroy()
	// Release the weak unit that stood for all strong handles.
	b.dropWeak()
}

// destroy runs the destructor and clears the payload slot.
func (b *arcBlock[T]) destroy() {
	if b.drop != nil {
		b.drop(&b.value)
	} else if d, ok := any(&b.value).(Dropper); ok {
		d.Drop()
	} else if d, ok := any(b.value).(Dropper); ok {
		d.Drop()
	}
	b.drop = nil
	var zero T
	b.value = zero
}

func (b *arcBlock[T]) dropWeak() {
	if b.weak.Add(^uintptr(0)) != 0 {
		return
	}
	// Nothing can reach the block any more; drop what it still references.
	b.drop = nil
}

// Downgrade returns a new weak handle to the same allocation.
func (a *Arc[T]) Downgrade() *Weak[T] {
	b := a.block()
	var spins int
	n := b.weak.Load()
	for {
		if n == arcLocked {
			// GetMut is checking uniqueness; it holds the sentinel for a
			// handful of instructions.
			relax(&spins)
			n = b.weak.Load()
			continue
		}
		if n > maxRefCount {
			fatal("futx: Arc weak count overflow")
		}
		// Acquire: pairs with the release store in GetMut, so a strong
		// count observed by GetMut cannot be affected by handles this weak
		// reference will later produce.
		if b.weak.CompareAndSwap(n, n+1) {
			return &Weak[T]{b: b}
		}
		n = b.weak.Load()
	}
}

// GetMut returns the payload for exclusive mutation if a is the only strong
// handle and no weak handles exist. Otherwise it returns nil, false.
//
// While a weak handle exists another goroutine could Upgrade it at any
// moment, so its mere presence denies access.
func (a *Arc[T]) GetMut() (*T, bool) {
	b := a.block()
	// Lock out Downgrade: with weak == 1 only our side holds the implicit
	// unit, and only a handle on our side could create new weak handles.
	// Acquire pairs with Weak.Drop's release so upgrades done through
	// weak handles that are gone now are visible to the strong load below.
	if !b.weak.CompareAndSwap(1, arcLocked) {
		return nil, false
	}
	unique := b.strong.Load() == 1
	// Release: unblocks pending Downgrade calls.
	b.weak.Store(1)
	if !unique {
		return nil, false
	}
	// Acquire edge with the Arc.Drop release of every other handle is
	// provided by the strong load above.
	return &b.value, true
}

// TryUnwrap returns the payload if a is the only strong handle, consuming
// the handle. The destructor does not run: ownership of the value moves to
// the caller. Existing weak handles can no longer upgrade afterwards.
//
// On failure the handle is left untouched and still owned by the caller.
func (a *Arc[T]) TryUnwrap() (T, bool) {
	b := a.block()
	if !b.strong.CompareAndSwap(1, 0) {
		var zero T
		return zero, false
	}
	a.b = nil
	v := b.value
	var zero T
	b.value = zero
	b.drop = nil
	b.dropWeak()
	return v, true
}

// StrongCount returns the number of strong handles. The value is a snapshot
// and may be stale by the time it is used.
func (a *Arc[T]) StrongCount() int {
	return int(a.block().strong.Load())
}

// WeakCount returns the number of weak handles, without the implicit unit.
// It reports 0 while GetMut is inspecting the block.
func (a *Arc[T]) WeakCount() int {
	return weakCount(a.block())
}

func weakCount[T any](b *arcBlock[T]) int {
	w := b.weak.Load()
	if w == arcLocked {
		return 0
	}
	if b.strong.Load() == 0 {
		// The payload is gone; nothing can be upgraded any more.
		return 0
	}
	return int(w - 1)
}

// PtrEq reports whether a and other share one allocation.
func (a *Arc[T]) PtrEq(other *Arc[T]) bool {
	return a.block() == other.block()
}

// Upgrade returns a new strong handle if the payload is still alive.
// Once the last strong handle has been dropped Upgrade fails forever.
func (w *Weak[T]) Upgrade() (*Arc[T], bool) {
	b := w.block()
	n := b.strong.Load()
	for {
		if n == 0 {
			return nil, false
		}
		if n > maxRefCount {
			fatal("futx: Arc strong count overflow")
		}
		if b.strong.CompareAndSwap(n, n+1) {
			return &Arc[T]{b: b}, true
		}
		n = b.strong.Load()
	}
}

// Clone returns another weak handle to the same allocation.
func (w *Weak[T]) Clone() *Weak[T] {
	b := w.block()
	if b.weak.Add(1)-1 > maxRefCount {
		fatal("futx: Arc weak count overflow")
	}
	return &Weak[T]{b: b}
}

// Drop releases the weak handle.
func (w *Weak[T]) Drop() {
	b := w.block()
	w.b = nil
	b.dropWeak()
}

// StrongCount returns the number of strong handles of the allocation.
func (w *Weak[T]) StrongCount() int {
	return int(w.block().strong.Load())
}

// WeakCount returns the number of weak handles of the allocation, or 0 once
// the last strong handle has been dropped.
func (w *Weak[T]) WeakCount() int {
	return weakCount(w.block())
}

func (w *Weak[T]) block() *arcBlock[T] {
	b := w.b
	if b == nil {
		panic("futx: use of dropped Weak")
	}
	return b
}
