package sob

import (
	"strconv"
	"strings"
	"sync"

	"github.com/tidwall/buntdb"
)

// store backs one subject's "ordered mapping from key to Entry" (spec
// §3) with an in-memory buntdb database: buntdb keeps keys in a sorted
// b-tree index and wraps every mutation in an ACID transaction, which is
// exactly the property open_tx/close_tx batching needs. For QUEUE
// subjects, append order (distinct from the lexicographic key order
// buntdb gives us) is tracked separately in queueOrder.
type store struct {
	mu         sync.Mutex
	db         *buntdb.DB
	kind       Kind
	queueOrder []string
}

func newStore(kind Kind) *store {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		// :memory: databases cannot fail to open barring OOM; treat as fatal
		// configuration error rather than threading an error return through
		// every subject constructor.
		panic("sob: failed to open in-memory store: " + err.Error())
	}
	return &store{db: db, kind: kind}
}

func encodeEntry(e Entry) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(e.Mtime, 10))
	b.WriteByte('\x1f')
	b.WriteString(strconv.FormatInt(e.EntryChangeID, 10))
	b.WriteByte('\x1f')
	b.WriteString(e.Value)
	return b.String()
}

func decodeEntry(key, raw string) (Entry, bool) {
	parts := strings.SplitN(raw, "\x1f", 3)
	if len(parts) != 3 {
		return Entry{}, false
	}
	mtime, err1 := strconv.ParseInt(parts[0], 10, 64)
	cid, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil {
		return Entry{}, false
	}
	return Entry{Key: key, Value: parts[2], Mtime: mtime, EntryChangeID: cid}, true
}

func (s *store) Set(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(e.Key, encodeEntry(e), nil)
		return err
	})
	if s.kind == KindQueue {
		s.queueOrder = append(s.queueOrder, e.Key)
	}
}

func (s *store) Get(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var raw string
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(key)
		raw = v
		return err
	})
	if err != nil {
		return Entry{}, false
	}
	return decodeEntry(key, raw)
}

func (s *store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(key)
		return err
	})
	if s.kind == KindQueue {
		for i, k := range s.queueOrder {
			if k == key {
				s.queueOrder = append(s.queueOrder[:i], s.queueOrder[i+1:]...)
				break
			}
		}
	}
}

// All returns every entry, ordered by key for HASH subjects and by
// append order for QUEUE subjects.
func (s *store) All() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kind == KindQueue {
		out := make([]Entry, 0, len(s.queueOrder))
		_ = s.db.View(func(tx *buntdb.Tx) error {
			for _, k := range s.queueOrder {
				if raw, err := tx.Get(k); err == nil {
					if e, ok := decodeEntry(k, raw); ok {
						out = append(out, e)
					}
				}
			}
			return nil
		})
		return out
	}
	var out []Entry
	_ = s.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(key, raw string) bool {
			if e, ok := decodeEntry(key, raw); ok {
				out = append(out, e)
			}
			return true
		})
	})
	return out
}

// Reset clears the store, used when a BCREPLY snapshot replaces local
// state wholesale (spec §4.1 "Broadcast request").
func (s *store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.db.Update(func(tx *buntdb.Tx) error {
		var keys []string
		_ = tx.Ascend("", func(key, _ string) bool {
			keys = append(keys, key)
			return true
		})
		for _, k := range keys {
			_, _ = tx.Delete(k)
		}
		return nil
	})
	s.queueOrder = s.queueOrder[:0]
}
