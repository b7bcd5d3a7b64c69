package nlae

import "sort"

// LockTracker stands in for the source's thread-local
// entity_address→count maps (spec §4.3 "Locking discipline"). Go has no
// thread-local storage; the idiomatic equivalent is to make the tracker
// an explicit object the caller owns for the lifetime of one logical
// "thread of control" (one goroutine, or one request) and threads
// through every NLAE call, rather than reach for goroutine-local hacks.
// A LockTracker must not be shared across concurrent goroutines.
type LockTracker struct {
	reads  map[ID]int
	writes map[ID]int
}

func NewLockTracker() *LockTracker {
	return &LockTracker{reads: make(map[ID]int), writes: make(map[ID]int)}
}

// AcquireRead is a no-op if this tracker already holds a read or write
// on e; otherwise it acquires the shared lock (spec §4.3 bullet 3).
func (lt *LockTracker) AcquireRead(e *Entity) {
	if lt.writes[e.ID] > 0 {
		return // shadow read registered by the write holder; pure no-op
	}
	if lt.reads[e.ID] > 0 {
		lt.reads[e.ID]++
		return
	}
	e.mu.RLock()
	lt.reads[e.ID] = 1
}

// ReleaseRead undoes one AcquireRead. A read taken while this tracker
// already held a write is the write holder's shadow read and releases
// nothing (the matching ReleaseWrite will).
func (lt *LockTracker) ReleaseRead(e *Entity) {
	if lt.writes[e.ID] > 0 {
		return
	}
	n, ok := lt.reads[e.ID]
	if !ok || n == 0 {
		panic(errLockBug)
	}
	n--
	if n == 0 {
		delete(lt.reads, e.ID)
		e.mu.RUnlock()
		return
	}
	lt.reads[e.ID] = n
}

// AcquireWrite is a no-op if this tracker already holds a write on e;
// otherwise it acquires the exclusive lock and registers a shadow read
// so that nested AcquireRead calls from the same tracker never attempt
// a shared acquisition against the exclusive holder (spec §4.3 bullet
// 4).
func (lt *LockTracker) AcquireWrite(e *Entity) {
	if lt.writes[e.ID] > 0 {
		lt.writes[e.ID]++
		return
	}
	e.mu.Lock()
	lt.writes[e.ID] = 1
}

// ReleaseWrite releases one AcquireWrite; the exclusive lock is
// released only once the tracker's write count for e reaches zero.
func (lt *LockTracker) ReleaseWrite(e *Entity) {
	n, ok := lt.writes[e.ID]
	if !ok || n == 0 {
		panic(errLockBug)
	}
	n--
	if n == 0 {
		delete(lt.writes, e.ID)
		e.mu.Unlock()
		return
	}
	lt.writes[e.ID] = n
}

// AcquireBulk locks a set of entities for write in the process-wide
// deterministic order (ascending id, containers before files on tie;
// spec §4.3 "Bulk locking"), using try-lock with release-and-retry on
// any failure to avoid deadlock against a concurrent bulk locker.
func (lt *LockTracker) AcquireBulk(entities []*Entity) {
	ordered := make([]*Entity, len(entities))
	copy(ordered, entities)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID.Less(ordered[j].ID) })

	for {
		acquired := make([]*Entity, 0, len(ordered))
		ok := true
		for _, e := range ordered {
			if lt.writes[e.ID] > 0 {
				lt.writes[e.ID]++
				acquired = append(acquired, e)
				continue
			}
			if e.mu.TryLock() {
				lt.writes[e.ID] = 1
				acquired = append(acquired, e)
				continue
			}
			ok = false
			break
		}
		if ok {
			return
		}
		for _, e := range acquired {
			lt.ReleaseWrite(e)
		}
	}
}

// ReleaseBulk is the inverse of AcquireBulk.
func (lt *LockTracker) ReleaseBulk(entities []*Entity) {
	for _, e := range entities {
		lt.ReleaseWrite(e)
	}
}
