package futx

import (
	"github.com/llxisdsh/pb"
)

// RWLockGroup allows shared Reader-Writer locking on arbitrary keys.
// Each key gets its own RawRWLock on first use.
//
// Features:
//   - RLock/RUnlock for shared read access.
//   - Lock/Unlock for exclusive write access.
//   - Infinite Keys & Auto-Cleanup: a key's lock is dropped from the group
//     once nobody holds or waits for it.
//
// Usage:
//
//	var group RWLockGroup[string]
//
//	// Readers
//	group.RLock("config")
//	read(config)
//	group.RUnlock("config")
//
//	// Writer
//	group.Lock("config")
//	write(config)
//	group.Unlock("config")
//
// It is zero-value usable.
type RWLockGroup[K comparable] struct {
	_ noCopy
	m pb.MapOf[K, *rwLockGroupEntry]
}

// rwLockGroupEntry is a per-key lock. ref counts the goroutines holding or
// waiting for it and is only changed inside ProcessEntry.
type rwLockGroupEntry struct {
	mu  RawRWLock
	ref int32
}

// acquire pins the entry for k, creating it if needed.
func (g *RWLockGroup[K]) acquire(k K) *rwLockGroupEntry {
	v, _ := g.m.ProcessEntry(
		k,
		func(e *pb.EntryOf[K, *rwLockGroupEntry]) (*pb.EntryOf[K, *rwLockGroupEntry], *rwLockGroupEntry, bool) {
			if e != nil {
				e.Value.ref++
				return e, e.Value, true
			}
			v := &rwLockGroupEntry{ref: 1}
			return &pb.EntryOf[K, *rwLockGroupEntry]{Value: v}, v, false
		},
	)
	return v
}

// release unpins the entry for k and drops it when unused.
func (g *RWLockGroup[K]) release(k K, unlock func(*rwLockGroupEntry)) {
	var missing bool
	g.m.ProcessEntry(
		k,
		func(e *pb.EntryOf[K, *rwLockGroupEntry]) (*pb.EntryOf[K, *rwLockGroupEntry], *rwLockGroupEntry, bool) {
			if e == nil {
				missing = true
				return nil, nil, false
			}
			unlock(e.Value)
			e.Value.ref--
			if e.Value.ref <= 0 {
				return nil, nil, false
			}
			return e, e.Value, true
		},
	)
	if missing {
		panic("futx: unlock of unlocked RWLockGroup key")
	}
}

// Lock acquires the write lock for k.
func (g *RWLockGroup[K]) Lock(k K) {
	g.acquire(k).mu.Lock()
}

// Unlock releases the write lock for k.
func (g *RWLockGroup[K]) Unlock(k K) {
	g.release(k, func(e *rwLockGroupEntry) { e.mu.Unlock() })
}

// RLock acquires a read lock for k.
func (g *RWLockGroup[K]) RLock(k K) {
	g.acquire(k).mu.RLock()
}

// RUnlock releases a read lock for k.
func (g *RWLockGroup[K]) RUnlock(k K) {
	g.release(k, func(e *rwLockGroupEntry) { e.mu.RUnlock() })
}

// refs reports the holders and waiters pinned on k.
func (g *RWLockGroup[K]) refs(k K) int32 {
	var n int32
	g.m.ProcessEntry(
		k,
		func(e *pb.EntryOf[K, *rwLockGroupEntry]) (*pb.EntryOf[K, *rwLockGroupEntry], *rwLockGroupEntry, bool) {
			if e != nil {
				n = e.Value.ref
			}
			return e, nil, false
		},
	)
	return n
}
