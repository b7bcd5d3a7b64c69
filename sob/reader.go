package sob

import (
	"github.com/eoscore/eoscore/3rdparty/glog"
	"github.com/eoscore/eoscore/cmn"
)

// Reader owns the single broker subscription for a bus and fans
// delivered messages out to a fixed pool of worker goroutines, the same
// producer/one-reader-many-workers shape the teacher's transport layer
// uses ahead of its object-write handlers (see Design Notes "Coroutine/
// callback control flow"). Subject id is hashed to a worker so all
// messages for a given subject are processed in delivery order, while
// unrelated subjects proceed in parallel.
type Reader struct {
	bus         *Bus
	queue       string
	workQueues  []chan string
	unsubscribe func()
}

// NewReader creates (but does not start) a reader bound to bus,
// listening on the given broker queue, with the given worker count (from
// cmn.SOBConf.Workers) and per-worker channel depth (from
// cmn.SOBConf.QueueDepth).
func NewReader(bus *Bus, queue string, workers, depth int) *Reader {
	if workers < 1 {
		workers = 1
	}
	if depth < 1 {
		depth = 1
	}
	r := &Reader{bus: bus, queue: queue}
	r.workQueues = make([]chan string, workers)
	for i := range r.workQueues {
		r.workQueues[i] = make(chan string, depth)
	}
	return r
}

// Start subscribes to the broker and launches the worker pool. Stop must
// be called to release the subscription and drain workers.
func (r *Reader) Start() error {
	for i, wq := range r.workQueues {
		go r.worker(wq, i)
	}
	unsub, err := r.bus.broker.Subscribe(r.queue, r.onMessage)
	if err != nil {
		return &cmn.ErrTransport{Reason: err.Error()}
	}
	r.unsubscribe = unsub
	return nil
}

// Stop unsubscribes from the broker and closes every worker channel,
// letting each worker goroutine drain its backlog and exit.
func (r *Reader) Stop() {
	if r.unsubscribe != nil {
		r.unsubscribe()
	}
	for _, wq := range r.workQueues {
		close(wq)
	}
}

// onMessage is the broker delivery callback: it only peeks at
// mqsh.subject to pick a shard, deferring full envelope parsing to the
// worker so the broker's own delivery goroutine never blocks on
// application logic.
func (r *Reader) onMessage(body string) {
	subj := peekSubject(body)
	idx := shard(subj, len(r.workQueues))
	select {
	case r.workQueues[idx] <- body:
	default:
		glog.Warningf("sob: worker %d queue full, dropping message for subject %q", idx, subj)
		r.bus.drop("queue-full")
	}
}

func (r *Reader) worker(wq chan string, idx int) {
	for body := range wq {
		env, err := ParseEnvelope(body)
		if err != nil {
			glog.Warningf("sob: worker %d: %v", idx, err)
			r.bus.drop("parse-error")
			continue
		}
		r.bus.ApplyEnvelope(env)
	}
}

// peekSubject extracts mqsh.subject without fully parsing the envelope,
// used only to pick a worker shard before the real parse happens.
func peekSubject(body string) string {
	const key = "mqsh.subject="
	start := -1
	for i := 0; i+len(key) <= len(body); i++ {
		if body[i:i+len(key)] == key {
			start = i + len(key)
			break
		}
	}
	if start < 0 {
		return ""
	}
	end := len(body)
	for i := start; i < len(body); i++ {
		if body[i] == '&' {
			end = i
			break
		}
	}
	return body[start:end]
}
