package sob

import (
	"sync"

	"github.com/OneOfOne/xxhash"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/eoscore/eoscore/3rdparty/glog"
	"github.com/eoscore/eoscore/cmn"
)

// Bus is the Shared-Object Bus: a local, eventually-consistent replica
// of named subjects whose authoritative copy lives on some peer (spec
// §4.1). It plays the same process-global-registry role the teacher's
// ec.Manager plays for EC xactions, but keyed by subject id instead of
// bucket name.
type Bus struct {
	mu       sync.RWMutex
	subjects map[string]*Subject
	tomb     *tombstoneTable
	broker   Broker
	metrics  *metrics
}

// New constructs a Bus. reg may be nil to skip metrics registration
// (tests construct Bus this way).
func New(broker Broker, reg prometheus.Registerer) *Bus {
	if broker == nil {
		broker = NopBroker{}
	}
	cfg := cmn.GCO.Get().SOB
	return &Bus{
		subjects: make(map[string]*Subject),
		tomb:     newTombstoneTable(cfg.TombstoneTTL),
		broker:   broker,
		metrics:  newMetrics(reg),
	}
}

// CreateSubject implements create_subject(id, kind, bcast_queue): a
// unique id is created; an existing subject only has its broadcast
// queue updated (spec §4.1 table).
func (b *Bus) CreateSubject(id string, kind Kind, bcastQueue string) (created bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.subjects[id]; ok {
		s.BroadcastQueue = bcastQueue
		return false
	}
	b.subjects[id] = newSubject(id, bcastQueue, kind)
	if b.metrics != nil {
		b.metrics.subjectsTotal.Set(float64(len(b.subjects)))
	}
	return true
}

// DeleteSubject implements delete_subject(id): always succeeds,
// idempotent, and tombstones the id so a stale in-flight UPDATE cannot
// resurrect it (spec §9 Open Question, resolved in SPEC_FULL.md §3).
func (b *Bus) DeleteSubject(id string) {
	b.mu.Lock()
	delete(b.subjects, id)
	if b.metrics != nil {
		b.metrics.subjectsTotal.Set(float64(len(b.subjects)))
	}
	b.mu.Unlock()
	b.tomb.Add(id)
}

func (b *Bus) getSubject(id string) (*Subject, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.subjects[id]
	return s, ok
}

func (b *Bus) autoCreate(id string, kind Kind) *Subject {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.subjects[id]; ok {
		return s
	}
	s := newSubject(id, "", kind)
	b.subjects[id] = s
	if b.metrics != nil {
		b.metrics.subjectsTotal.Set(float64(len(b.subjects)))
	}
	return s
}

// Set implements set(id, key, value, broadcast?): the entry is stored,
// mtime=now, entry_change_id is incremented. If broadcast is true and a
// transaction is open on the subject, the key is added to the pending
// transaction set instead of emitting immediately (spec §4.1
// "Transaction protocol").
func (b *Bus) Set(id, key, value string, broadcast bool) error {
	s, ok := b.getSubject(id)
	if !ok {
		return &cmn.ErrNotFound{What: "subject", Path: id}
	}
	e := Entry{Key: key, Value: value, Mtime: now(), EntryChangeID: s.nextChangeID()}
	s.store.Set(e)

	if !broadcast {
		return nil
	}
	if s.inTx.Load() {
		// txMu is already held by the open transaction (OpenTx).
		delete(s.delSet, key)
		s.txSet[key] = struct{}{}
		return nil
	}
	b.emitUpdate(s, []Entry{e})
	return nil
}

// Delete implements delete(id, key, broadcast?).
func (b *Bus) Delete(id, key string, broadcast bool) error {
	s, ok := b.getSubject(id)
	if !ok {
		return nil
	}
	s.store.Delete(key)
	if !broadcast {
		return nil
	}
	if s.inTx.Load() {
		// txMu is already held by the open transaction (OpenTx).
		delete(s.txSet, key)
		s.delSet[key] = struct{}{}
		return nil
	}
	b.emitDelete(s, []string{key})
	return nil
}

// OpenTx implements open_tx(id): acquires the per-subject transaction
// mutex and clears the transaction set.
func (b *Bus) OpenTx(id string) error {
	s, ok := b.getSubject(id)
	if !ok {
		return &cmn.ErrNotFound{What: "subject", Path: id}
	}
	s.txMu.Lock()
	s.txSet = make(map[string]struct{})
	s.delSet = make(map[string]struct{})
	s.inTx.Store(true)
	if b.metrics != nil {
		b.metrics.txInflight.Inc()
	}
	return nil
}

// CloseTx implements close_tx(id): emits at most one UPDATE (if the
// transaction set is non-empty) and at most one DELETE (if the deletion
// set is non-empty), then releases the mutex. Invariant: either all
// batched keys are observed in the emitted message or none are (no
// partial emission) — the whole batch is built before any Publish call.
func (b *Bus) CloseTx(id string) error {
	s, ok := b.getSubject(id)
	if !ok {
		return &cmn.ErrNotFound{What: "subject", Path: id}
	}
	defer func() {
		s.inTx.Store(false)
		s.txMu.Unlock()
		if b.metrics != nil {
			b.metrics.txInflight.Dec()
		}
	}()

	if len(s.txSet) > 0 {
		entries := make([]Entry, 0, len(s.txSet))
		for key := range s.txSet {
			if e, ok := s.store.Get(key); ok {
				entries = append(entries, e)
			}
		}
		if len(entries) > 0 {
			b.emitUpdate(s, entries)
		}
	}
	if len(s.delSet) > 0 {
		keys := make([]string, 0, len(s.delSet))
		for key := range s.delSet {
			keys = append(keys, key)
		}
		b.emitDelete(s, keys)
	}
	return nil
}

func (b *Bus) emitUpdate(s *Subject, entries []Entry) {
	body := EncodeEnvelope(Envelope{Cmd: CmdUpdate, Subject: s.ID, Type: s.Kind, Pairs: entries})
	b.publish(s, body)
}

func (b *Bus) emitDelete(s *Subject, keys []string) {
	body := EncodeEnvelope(Envelope{Cmd: CmdDelete, Subject: s.ID, Type: s.Kind, Keys: keys})
	b.publish(s, body)
}

// publish is best-effort: broker unavailability is non-fatal and the
// emission is dropped silently by design (spec §4.1 "Failure
// semantics").
func (b *Bus) publish(s *Subject, body string) {
	if err := b.broker.Publish(s.BroadcastQueue, body); err != nil {
		glog.Warningf("sob: drop emission for %s: %v", s.ID, err)
	}
}

// BroadcastRequest implements broadcast_request(id, reply_to): sends a
// BCREQ carrying the caller's reply address.
func (b *Bus) BroadcastRequest(id, replyTo string) error {
	if replyTo == "" {
		return &cmn.ErrInvalid{Reason: "broadcast_request: reply_to required"}
	}
	s, ok := b.getSubject(id)
	if !ok {
		return &cmn.ErrNotFound{What: "subject", Path: id}
	}
	body := EncodeEnvelope(Envelope{Cmd: CmdBCRequest, Subject: id, Type: s.Kind, ReplyTo: replyTo})
	b.publish(s, body)
	return nil
}

// ApplyEnvelope applies an incoming broker message (spec §4.1
// "parse_envelope"). UPDATE auto-creates an unknown subject (intentional
// — a late-joining node catches up automatically — but short-circuited
// by the tombstone table per SPEC_FULL.md §3). BCREQ/DELETE never
// auto-create.
func (b *Bus) ApplyEnvelope(env Envelope) {
	switch env.Cmd {
	case CmdUpdate:
		b.applyUpdate(env)
	case CmdDelete:
		b.applyDelete(env)
	case CmdBCRequest:
		b.applyBCRequest(env)
	case CmdBCReply:
		b.applyBCReply(env)
	default:
		b.drop("unknown-cmd")
	}
}

func (b *Bus) applyUpdate(env Envelope) {
	if b.tomb.IsTombstoned(env.Subject) {
		b.drop("tombstoned")
		return
	}
	s := b.autoCreate(env.Subject, env.Type)
	for _, e := range env.Pairs {
		e.Mtime = now()
		s.store.Set(e)
	}
}

func (b *Bus) applyDelete(env Envelope) {
	s, ok := b.getSubject(env.Subject)
	if !ok {
		b.drop("unknown-subject")
		return
	}
	for _, k := range env.Keys {
		s.store.Delete(k)
	}
}

// applyBCRequest is the peer side of broadcast_request: under a (logical)
// read lock, build a BCREPLY with the full pairs tag and send it back as
// a monitor-class message (spec §4.1).
func (b *Bus) applyBCRequest(env Envelope) {
	s, ok := b.getSubject(env.Subject)
	if !ok {
		b.drop("unknown-subject")
		return
	}
	entries := s.store.All()
	body := EncodeEnvelope(Envelope{Cmd: CmdBCReply, Subject: s.ID, Type: s.Kind, Pairs: entries})
	if err := b.broker.Publish(env.ReplyTo, body); err != nil {
		glog.Warningf("sob: drop bcreply for %s: %v", s.ID, err)
	}
}

// applyBCReply clears the local store for the subject and re-populates
// it from the full snapshot (spec §8 "SOB bcreply reset").
func (b *Bus) applyBCReply(env Envelope) {
	s := b.autoCreate(env.Subject, env.Type)
	s.store.Reset()
	for _, e := range env.Pairs {
		e.Mtime = now()
		s.store.Set(e)
	}
}

func (b *Bus) drop(reason string) {
	if b.metrics != nil {
		b.metrics.messagesDropped.WithLabelValues(reason).Inc()
	}
}

// Snapshot returns a copy of subject id's current entries, ordered per
// its kind. Used by tests and by nlae's attribute-refresh notifications.
func (b *Bus) Snapshot(id string) ([]Entry, bool) {
	s, ok := b.getSubject(id)
	if !ok {
		return nil, false
	}
	return s.store.All(), true
}

// shard picks a worker index for subject id, used by the reader pipeline
// (reader.go) to preserve per-subject-per-sender FIFO while parallelizing
// across subjects (spec §5 "Ordering guarantees").
func shard(id string, n int) int {
	if n <= 1 {
		return 0
	}
	return int(xxhash.ChecksumString64(id) % uint64(n))
}
