package futx

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func TestCondvar_NotifyOne(t *testing.T) {
	m := NewMutex(0)
	var cv Condvar

	go func() {
		time.Sleep(100 * time.Millisecond)
		g := m.Lock()
		g.Set(123)
		g.Unlock()
		cv.NotifyOne()
	}()

	wakeups := 0
	g := m.Lock()
	for *g.Get() < 100 {
		g.Wait(&cv)
		wakeups++
	}
	v := *g.Get()
	g.Unlock()

	if v != 123 {
		t.Fatalf("value = %d, want 123", v)
	}
	// Waiting must park, not spin; a few spurious wakeups are allowed.
	if wakeups >= 10 {
		t.Fatalf("wakeups = %d, the waiter is spinning", wakeups)
	}
}

func TestCondvar_NotifyAll(t *testing.T) {
	var mu RawMutex
	var cv Condvar
	ready := false
	const n = 16

	var woke atomic.Int32
	var wg sync.WaitGroup
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			mu.Lock()
			for !ready {
				cv.Wait(&mu)
			}
			mu.Unlock()
			woke.Add(1)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	ready = true
	mu.Unlock()
	cv.NotifyAll()

	ch := make(chan struct{})
	go func() {
		wg.Wait()
		close(ch)
	}()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("only %d/%d waiters woke up", woke.Load(), n)
	}
}

func TestCondvar_NotifyWithoutWaiters(t *testing.T) {
	var cv Condvar
	cv.NotifyOne()
	cv.NotifyAll()
	if cv.counter != 2 {
		t.Fatalf("counter = %d, want 2", cv.counter)
	}
}

// Extra spurious notifications must not change what the waiter ends up
// observing: it loops until its own predicate holds.
func TestCondvar_SpuriousWakeups(t *testing.T) {
	m := NewMutex(0)
	var cv Condvar
	var stop atomic.Bool

	var noise sync.WaitGroup
	noise.Add(1)
	go func() {
		defer noise.Done()
		for !stop.Load() {
			cv.NotifyAll()
			time.Sleep(50 * time.Microsecond)
		}
	}()

	done := make(chan int)
	go func() {
		g := m.Lock()
		g.WaitWhile(&cv, func(v *int) bool { return *v != 5 })
		done <- *g.Get()
		g.Unlock()
	}()

	for i := 1; i <= 5; i++ {
		time.Sleep(5 * time.Millisecond)
		g := m.Lock()
		g.Set(i)
		g.Unlock()
	}
	cv.NotifyOne()

	select {
	case v := <-done:
		if v != 5 {
			t.Fatalf("waiter observed %d, want 5", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never observed the final value")
	}
	stop.Store(true)
	noise.Wait()
}

// Producer/consumer hand-off through a one-slot buffer. Every item is
// consumed exactly once; a lost notify stalls the test.
func TestCondvar_ProducerConsumer(t *testing.T) {
	load := stressFor(t, "condvar")
	type slot struct {
		full bool
		v    int
	}
	m := NewMutex(slot{})
	var notEmpty, notFull Condvar
	items := load.Iterations

	var sum atomic.Int64
	var g errgroup.Group
	for range load.Goroutines {
		g.Go(func() error {
			for {
				guard := m.Lock()
				guard.WaitWhile(&notEmpty, func(s *slot) bool { return !s.full })
				s := guard.Get()
				v := s.v
				s.full = false
				guard.Unlock()
				notFull.NotifyOne()
				if v < 0 {
					return nil
				}
				sum.Add(int64(v))
			}
		})
	}

	put := func(v int) {
		guard := m.Lock()
		guard.WaitWhile(&notFull, func(s *slot) bool { return s.full })
		guard.Set(slot{full: true, v: v})
		guard.Unlock()
		notEmpty.NotifyOne()
	}
	for i := 1; i <= items; i++ {
		put(i)
	}
	for range load.Goroutines {
		put(-1)
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("producer/consumer stalled: a notification was lost")
	}
	if want := int64(items) * int64(items+1) / 2; sum.Load() != want {
		t.Fatalf("sum = %d, want %d", sum.Load(), want)
	}
}

func TestCondvar_UnderRWLock(t *testing.T) {
	var rw RawRWLock
	var cv Condvar
	n := 0

	done := make(chan struct{})
	go func() {
		rw.Lock()
		for n == 0 {
			cv.Wait(&rw)
		}
		rw.Unlock()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	rw.Lock()
	n = 1
	rw.Unlock()
	cv.NotifyAll()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter under RawRWLock never woke")
	}
}
