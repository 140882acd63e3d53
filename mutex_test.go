package futx

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"golang.org/x/sync/errgroup"
)

func TestRawMutexSize(t *testing.T) {
	var m RawMutex
	if size := unsafe.Sizeof(m); size != 4 {
		t.Errorf("RawMutex size = %d, want 4", size)
	}
}

func TestRawMutex_Basic(t *testing.T) {
	var m RawMutex
	m.Lock()
	if m.TryLock() {
		t.Fatal("TryLock succeeded on a locked mutex")
	}
	m.Unlock()
	if !m.TryLock() {
		t.Fatal("TryLock failed on an unlocked mutex")
	}
	m.Unlock()
	if s := atomic.LoadUint32(&m.state); s != mutexUnlocked {
		t.Fatalf("state = %d after Unlock", s)
	}
}

func TestRawMutex_ContendedStateAndWake(t *testing.T) {
	var m RawMutex
	m.Lock()

	acquired := make(chan struct{})
	go func() {
		m.Lock()
		close(acquired)
		m.Unlock()
	}()

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadUint32(&m.state) != mutexContended {
		if time.Now().After(deadline) {
			t.Fatal("waiter never marked the mutex contended")
		}
		time.Sleep(time.Millisecond)
	}
	select {
	case <-acquired:
		t.Fatal("second Lock succeeded while held")
	default:
	}

	m.Unlock()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("Unlock did not wake the parked waiter")
	}
}

// Two goroutines push 1 and 2 under the lock: the result is [1 2] or [2 1],
// never a lost or duplicated element.
func TestMutex_TwoPushes(t *testing.T) {
	for range 200 {
		m := NewMutex(make([]int, 0, 2))

		var wg sync.WaitGroup
		wg.Add(2)
		for _, v := range []int{1, 2} {
			go func() {
				defer wg.Done()
				g := m.Lock()
				defer g.Unlock()
				*g.Get() = append(*g.Get(), v)
			}()
		}
		wg.Wait()

		g := m.Lock()
		got := *g.Get()
		g.Unlock()
		if len(got) != 2 || got[0]+got[1] != 3 || got[0] == got[1] {
			t.Fatalf("got %v, want [1 2] or [2 1]", got)
		}
	}
}

func TestMutex_Counter(t *testing.T) {
	load := stressFor(t, "mutex")
	var m Mutex[int]

	var g errgroup.Group
	for range load.Goroutines {
		g.Go(func() error {
			for range load.Iterations {
				guard := m.Lock()
				*guard.Get()++
				guard.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	guard := m.Lock()
	defer guard.Unlock()
	if want := load.Goroutines * load.Iterations; *guard.Get() != want {
		t.Fatalf("counter = %d, want %d", *guard.Get(), want)
	}
}

// A multi-word value written under the lock is never observed torn.
func TestMutex_NoTornValues(t *testing.T) {
	load := stressFor(t, "mutex")
	type pair struct{ a, b, c int }
	m := NewMutex(pair{})

	var g errgroup.Group
	for w := range load.Goroutines {
		g.Go(func() error {
			for i := range load.Iterations {
				if i%2 == 0 {
					m.With(func(p *pair) {
						v := w*load.Iterations + i
						*p = pair{v, v, v}
					})
					continue
				}
				m.With(func(p *pair) {
					if p.a != p.b || p.b != p.c {
						t.Errorf("torn value %+v", *p)
					}
				})
			}
			return nil
		})
	}
	_ = g.Wait()
}

func TestMutex_RoundTrip(t *testing.T) {
	m := NewMutex("")
	written := make(chan struct{})
	go func() {
		g := m.Lock()
		g.Set("hello from A")
		g.Unlock()
		close(written)
	}()
	<-written

	g := m.Lock()
	defer g.Unlock()
	if got := *g.Get(); got != "hello from A" {
		t.Fatalf("got %q", got)
	}
}

func TestMutex_TryLock(t *testing.T) {
	m := NewMutex(1)
	g := m.Lock()
	if _, ok := m.TryLock(); ok {
		t.Fatal("TryLock succeeded while held")
	}
	g.Unlock()

	g2, ok := m.TryLock()
	if !ok {
		t.Fatal("TryLock failed on a free mutex")
	}
	if *g2.Get() != 1 {
		t.Fatal("wrong value")
	}
	g2.Unlock()
}

func TestMutexGuard_UnlockIsIdempotent(t *testing.T) {
	m := NewMutex(0)
	g := m.Lock()
	g.Unlock()
	g.Unlock()

	// A second holder must not be released by the stale guard.
	g2 := m.Lock()
	g.Unlock()
	if m.raw.TryLock() {
		t.Fatal("stale guard released someone else's lock")
	}
	g2.Unlock()
}

func TestMutexGuard_GetAfterUnlockPanics(t *testing.T) {
	m := NewMutex(0)
	g := m.Lock()
	g.Unlock()
	defer func() {
		if recover() == nil {
			t.Fatal("Get on a released guard did not panic")
		}
	}()
	g.Get()
}

func TestMutex_WithReleasesOnPanic(t *testing.T) {
	m := NewMutex(0)
	func() {
		defer func() { _ = recover() }()
		m.With(func(v *int) {
			*v = 7
			panic("boom")
		})
	}()

	g, ok := m.TryLock()
	if !ok {
		t.Fatal("mutex still held after a panic inside With")
	}
	defer g.Unlock()
	if *g.Get() != 7 {
		t.Fatalf("value = %d, want 7", *g.Get())
	}
}

func TestRawMutex_Locker(t *testing.T) {
	var l sync.Locker = new(RawMutex)
	l.Lock()
	l.Unlock()
}
