package nlae

import (
	"strings"
	"time"

	"github.com/eoscore/eoscore/audit"
	"github.com/eoscore/eoscore/cluster"
	"github.com/eoscore/eoscore/cmn"
)

// Engine ties a Registry, a notification sink, and process metrics
// together as the thing callers actually invoke attr_*/qos_*/stripe
// operations on.
type Engine struct {
	reg     *Registry
	metrics *metrics
	notify  func(containerID, parentID ID) // FUSE refresh notification, spec §4.3 step 5
	classes []QoSClass                     // registered QoS class table (Design Notes "Global mutable state")
	Fs      *cluster.FsMap                 // fsid drain/acceptance state consulted by the commit protocol
	Audit   *audit.Sink                    // optional collaborator sink (spec §4.5); nil disables auditing
}

func NewEngine(reg *Registry, notify func(containerID, parentID ID)) *Engine {
	if notify == nil {
		notify = func(ID, ID) {}
	}
	return &Engine{reg: reg, notify: notify, metrics: newMetrics(), Fs: cluster.NewFsMap()}
}

// audit appends a record to eng.Audit if one is configured; a nil sink
// is a silent no-op, matching the collaborator's own "failures dropped
// at the record level" contract (spec §4.5).
func (eng *Engine) audit(event string, payload interface{}) {
	if eng.Audit == nil {
		return
	}
	eng.Audit.Append(audit.NewRecord("nlae", event, payload))
}

// AttrGet implements attr_get (spec §4.3 steps 1-2): read-lock, resolve,
// return the value. The obfuscate key is never returned.
func (eng *Engine) AttrGet(lt *LockTracker, id ID, key string) (string, error) {
	if key == obfuscateAttr {
		return "", &cmn.ErrNotFound{What: "attribute", Path: key}
	}
	e, err := eng.reg.Lookup(id)
	if err != nil {
		return "", err
	}
	lt.AcquireRead(e)
	defer lt.ReleaseRead(e)
	v, ok := e.attrs[key]
	if !ok {
		return "", &cmn.ErrNotFound{What: "attribute", Path: key}
	}
	return v, nil
}

// AttrList implements attr_ls: like AttrGet but returns every key/value
// pair, with the obfuscate key filtered out (spec §4.3 step 3).
func (eng *Engine) AttrList(lt *LockTracker, id ID) (map[string]string, error) {
	e, err := eng.reg.Lookup(id)
	if err != nil {
		return nil, err
	}
	lt.AcquireRead(e)
	defer lt.ReleaseRead(e)
	out := make(map[string]string, len(e.attrs))
	for k, v := range e.attrs {
		if k == obfuscateAttr {
			continue
		}
		out[k] = v
	}
	return out, nil
}

// AttrSetOpts controls attr_set's exclusive-set semantics.
type AttrSetOpts struct {
	Exclusive bool // fail AlreadyExists if the key is already present
}

// AttrSet implements attr_set (spec §4.3 steps 1-5).
func (eng *Engine) AttrSet(lt *LockTracker, rc *RequestContext, id ID, key, value string, opts AttrSetOpts) error {
	e, err := eng.reg.Lookup(id)
	if err != nil {
		return err
	}
	if strings.HasPrefix(key, reservedSysPrefix) && !rc.IsSudoerOrRoot() {
		return &cmn.ErrPermissionDenied{Reason: "sys.* reserved", Path: key}
	}

	lt.AcquireWrite(e)
	defer lt.ReleaseWrite(e)

	if e.locked && !rc.IsSudoerOrRoot() {
		return &cmn.ErrPermissionDenied{Reason: "attribute lock held", Path: e.Path}
	}
	if opts.Exclusive {
		if _, exists := e.attrs[key]; exists {
			return &cmn.ErrAlreadyExists{What: "attribute", Path: key}
		}
	}
	e.attrs[key] = value
	if key != etagAttr {
		e.ctime = nowUnixNano()
	}
	e.mtime = nowUnixNano()
	eng.metrics.attrOps.Inc()

	if e.HasParent {
		go eng.notify(id, e.ParentID)
	}
	return nil
}

// AttrRemove implements attr_rm.
func (eng *Engine) AttrRemove(lt *LockTracker, rc *RequestContext, id ID, key string) error {
	e, err := eng.reg.Lookup(id)
	if err != nil {
		return err
	}
	if strings.HasPrefix(key, reservedSysPrefix) && !rc.IsSudoerOrRoot() {
		return &cmn.ErrPermissionDenied{Reason: "sys.* reserved", Path: key}
	}
	lt.AcquireWrite(e)
	defer lt.ReleaseWrite(e)

	if e.locked && !rc.IsSudoerOrRoot() {
		return &cmn.ErrPermissionDenied{Reason: "attribute lock held", Path: e.Path}
	}
	if _, ok := e.attrs[key]; !ok {
		return &cmn.ErrNotFound{What: "attribute", Path: key}
	}
	delete(e.attrs, key)
	e.ctime = nowUnixNano()
	eng.metrics.attrOps.Inc()

	if e.HasParent {
		go eng.notify(id, e.ParentID)
	}
	return nil
}

func nowUnixNano() int64 { return time.Now().UnixNano() }
