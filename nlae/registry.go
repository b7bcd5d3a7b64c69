package nlae

import (
	"sync"
	"sync/atomic"

	"github.com/eoscore/eoscore/cmn"
)

// Registry is the central index of namespace entities (Design Notes
// "Cyclic graphs"): containers and files hold only IDs of their
// relatives, and every lookup goes back through here, so the graph
// never needs weak references or manual cycle breaking.
type Registry struct {
	mu       sync.RWMutex
	entities map[ID]*Entity
	nextNum  uint64

	locks  atomic.Int64
	attrOp atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{entities: make(map[ID]*Entity)}
}

// Create allocates a new entity of kind under parent (parent is ignored
// for top-level containers) and registers it.
func (r *Registry) Create(kind Kind, path string, parent ID, hasParent bool) *Entity {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextNum++
	id := ID{Kind: kind, Num: r.nextNum}
	e := newEntity(id, path)
	e.ParentID, e.HasParent = parent, hasParent
	r.entities[id] = e
	if hasParent {
		if p, ok := r.entities[parent]; ok {
			p.Children = append(p.Children, id)
		}
	}
	return e
}

func (r *Registry) Lookup(id ID) (*Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[id]
	if !ok {
		return nil, &cmn.ErrNotFound{What: "entity", Path: idString(id)}
	}
	return e, nil
}

// Remove drops an entity from the registry and unlinks it from its
// parent's child list. Callers must already hold the entity's write
// lock and the parent's write lock (bulk-locked in that order).
func (r *Registry) Remove(id ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[id]
	if !ok {
		return &cmn.ErrGone{Path: idString(id)}
	}
	if e.HasParent {
		if p, ok := r.entities[e.ParentID]; ok {
			for i, c := range p.Children {
				if c == id {
					p.Children = append(p.Children[:i], p.Children[i+1:]...)
					break
				}
			}
		}
	}
	delete(r.entities, id)
	return nil
}

func idString(id ID) string {
	if id.Kind == KindContainer {
		return "container#" + itoa(id.Num)
	}
	return "file#" + itoa(id.Num)
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
