package sob

import (
	"sync"
	"time"

	cuckoo "github.com/seiflotfy/cuckoofilter"
)

// tombstoneTable resolves the Open Question in spec §9 ("auto-create on
// UPDATE"): a late UPDATE for a deleted subject must not resurrect it.
// Entries expire after ttl so a tombstone does not block legitimate
// re-creation forever. A cuckoo filter gives a fast, allocation-free
// negative check ("definitely not tombstoned") before the authoritative
// map lookup on the hot create_subject/UPDATE path, the same kind of
// probabilistic pre-filter the teacher's ais/s3compat layer uses ahead
// of the real backend is to avoid slow fallthrough calls.
type tombstoneTable struct {
	mu      sync.Mutex
	filter  *cuckoo.Filter
	deleted map[string]time.Time
	ttl     time.Duration
}

func newTombstoneTable(ttl time.Duration) *tombstoneTable {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &tombstoneTable{
		filter:  cuckoo.NewFilter(16384),
		deleted: make(map[string]time.Time),
		ttl:     ttl,
	}
}

func (t *tombstoneTable) Add(subjectID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.filter.InsertUnique([]byte(subjectID))
	t.deleted[subjectID] = time.Now()
}

// IsTombstoned reports whether subjectID was deleted within the last
// ttl. The cuckoo filter can false-positive (never false-negative): a
// miss there is conclusive; a hit falls through to the authoritative
// map+TTL check.
func (t *tombstoneTable) IsTombstoned(subjectID string) bool {
	if !t.filter.Lookup([]byte(subjectID)) {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	deletedAt, ok := t.deleted[subjectID]
	if !ok {
		return false
	}
	if time.Since(deletedAt) > t.ttl {
		delete(t.deleted, subjectID)
		t.filter.Delete([]byte(subjectID))
		return false
	}
	return true
}

// Sweep drops expired tombstones; intended to run off a periodic ticker
// so long-idle subjects don't leak map entries forever.
func (t *tombstoneTable) Sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	for id, deletedAt := range t.deleted {
		if now.Sub(deletedAt) > t.ttl {
			delete(t.deleted, id)
			t.filter.Delete([]byte(id))
		}
	}
}
