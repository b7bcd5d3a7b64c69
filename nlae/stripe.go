package nlae

import (
	"fmt"
	"sync"

	"github.com/eoscore/eoscore/cmn"
)

// VerifyRequest is the opaque out-of-band query sent to the owning
// storage node by VerifyStripe (spec §4.3 "Verify").
type VerifyRequest struct {
	LocalPrefix string
	HexFileID   string
	ManagerID   string
	LogicalPath string
	LayoutID    int
	Attrs       map[string]string
}

// VerifyStripe implements _verifystripe. It is idempotent and never
// mutates metadata; errors are reported, not raised against the
// namespace.
func (eng *Engine) VerifyStripe(lt *LockTracker, rc *RequestContext, fileID ID, fsid int, managerID, localPrefix string, send func(VerifyRequest) error) error {
	file, err := eng.reg.Lookup(fileID)
	if err != nil {
		return err
	}
	if !file.HasParent {
		return &cmn.ErrNotFound{What: "parent container", Path: file.Path}
	}
	parent, err := eng.reg.Lookup(file.ParentID)
	if err != nil {
		return err
	}

	lt.AcquireRead(parent)
	dirACL, hasACL := func() (Rule, bool) {
		parent.mu.RLock()
		defer parent.mu.RUnlock()
		r, ok := parent.attrs["sys.acl"]
		if !ok {
			return Rule{}, false
		}
		rule, valid := ParseRule(r)
		return rule, valid
	}()
	lt.ReleaseRead(parent)
	if hasACL && !(dirACL.Has(PermWrite) && dirACL.Has(PermExecute)) && !rc.IsSudoerOrRoot() {
		return &cmn.ErrPermissionDenied{Reason: "W+X required on parent", Path: parent.Path}
	}

	lt.AcquireRead(file)
	found := false
	for _, loc := range file.Locations {
		if loc == fsid {
			found = true
			break
		}
	}
	attrs := make(map[string]string, len(file.attrs))
	for k, v := range file.attrs {
		attrs[k] = v
	}
	lt.ReleaseRead(file)
	if !found {
		return &cmn.ErrNotFound{What: "filesystem", Path: itoa(uint64(fsid))}
	}

	req := VerifyRequest{
		LocalPrefix: localPrefix,
		HexFileID:   fmt.Sprintf("%x", fileID.Num),
		ManagerID:   managerID,
		LogicalPath: file.Path,
		LayoutID:    0,
		Attrs:       attrs,
	}
	return send(req)
}

// DropStripe implements _dropstripe. The reverse filesystem-view erase
// (force=true) must happen outside the namespace lock per spec §4.3
// because it may load a lazy view; onForceErase is invoked after the
// entity lock is released.
func (eng *Engine) DropStripe(lt *LockTracker, rc *RequestContext, fileID ID, fsid int, force bool, onForceErase func(fsid int) error) error {
	file, err := eng.reg.Lookup(fileID)
	if err != nil {
		return err
	}
	if !file.HasParent {
		if !rc.IsSudoerOrRoot() {
			return &cmn.ErrPermissionDenied{Reason: "detached file requires root", Path: file.Path}
		}
	} else {
		parent, err := eng.reg.Lookup(file.ParentID)
		if err != nil {
			return err
		}
		lt.AcquireRead(parent)
		dirACL, hasACL := func() (Rule, bool) {
			parent.mu.RLock()
			defer parent.mu.RUnlock()
			r, ok := parent.attrs["sys.acl"]
			if !ok {
				return Rule{}, false
			}
			rule, valid := ParseRule(r)
			return rule, valid
		}()
		lt.ReleaseRead(parent)
		if hasACL && !(dirACL.Has(PermWrite) && dirACL.Has(PermExecute)) && !rc.IsSudoerOrRoot() {
			return &cmn.ErrPermissionDenied{Reason: "W+X required on parent", Path: parent.Path}
		}
	}

	lt.AcquireWrite(file)
	found := -1
	for i, loc := range file.Locations {
		if loc == fsid {
			found = i
			break
		}
	}
	if found < 0 {
		lt.ReleaseWrite(file)
		return &cmn.ErrNotFound{What: "filesystem location", Path: itoa(uint64(fsid))}
	}
	if force {
		file.Locations = append(file.Locations[:found], file.Locations[found+1:]...)
	} else {
		file.Unlinked[fsid] = struct{}{}
	}
	appendTrackingLocked(file, fsid)
	lt.ReleaseWrite(file)

	eng.audit("drop-stripe", map[string]interface{}{"file": fileID.Num, "fsid": fsid, "force": force})

	if force && onForceErase != nil {
		return onForceErase(fsid)
	}
	return nil
}

// appendTrackingLocked appends fsid to sys.fs.tracking in the
// "<fsid>[-<fsid>]*" form (spec §4.3 "Drop"); caller must already hold
// file's write lock.
func appendTrackingLocked(file *Entity, fsid int) {
	cur := file.attrs["sys.fs.tracking"]
	tok := fmt.Sprintf("%d", fsid)
	if cur == "" {
		file.attrs["sys.fs.tracking"] = tok
		return
	}
	file.attrs["sys.fs.tracking"] = cur + "-" + tok
}

// DropAllStripes implements _dropallstripes: refuses to act if the only
// remaining location is the reserved tape pseudo-filesystem.
func (eng *Engine) DropAllStripes(lt *LockTracker, rc *RequestContext, fileID ID, force bool, onForceErase func(fsid int) error) error {
	file, err := eng.reg.Lookup(fileID)
	if err != nil {
		return err
	}
	lt.AcquireRead(file)
	locs := append([]int(nil), file.Locations...)
	lt.ReleaseRead(file)

	live := make([]int, 0, len(locs))
	for _, l := range locs {
		if l != reservedTapeFS {
			live = append(live, l)
		}
	}
	if len(live) == 0 {
		return nil
	}
	for _, fsid := range live {
		if err := eng.DropStripe(lt, rc, fileID, fsid, force, onForceErase); err != nil {
			return err
		}
	}
	return nil
}

// replicateTracker deduplicates in-flight replicate/move jobs by file
// id (spec §4.3 "Replicate / Move": "rejects if already tracked").
type replicateTracker struct {
	mu      sync.Mutex
	inFlight map[uint64]struct{}
}

func newReplicateTracker() *replicateTracker {
	return &replicateTracker{inFlight: make(map[uint64]struct{})}
}

// ReplicateStripe implements _replicatestripe.
func (eng *Engine) ReplicateStripe(rt *replicateTracker, lt *LockTracker, fileID ID, srcFsid, dstFsid int, schedule func(fid uint64, src, dst int) error) error {
	file, err := eng.reg.Lookup(fileID)
	if err != nil {
		return err
	}

	lt.AcquireRead(file)
	var hasSrc, hasDst bool
	for _, l := range file.Locations {
		if l == srcFsid {
			hasSrc = true
		}
		if l == dstFsid {
			hasDst = true
		}
	}
	lt.ReleaseRead(file)

	if !hasSrc || hasDst {
		return &cmn.ErrAlreadyExists{What: "replicate target", Path: itoa(uint64(dstFsid))}
	}

	rt.mu.Lock()
	if _, busy := rt.inFlight[fileID.Num]; busy {
		rt.mu.Unlock()
		return &cmn.ErrBusy{What: "replicate job", Path: itoa(fileID.Num)}
	}
	rt.inFlight[fileID.Num] = struct{}{}
	rt.mu.Unlock()

	if err := schedule(fileID.Num, srcFsid, dstFsid); err != nil {
		rt.mu.Lock()
		delete(rt.inFlight, fileID.Num)
		rt.mu.Unlock()
		return err
	}
	return nil
}

// ReplicateDone releases the dedup entry once the transfer job
// finishes, letting a future replicate of the same file be scheduled.
func (rt *replicateTracker) ReplicateDone(fileNum uint64) {
	rt.mu.Lock()
	delete(rt.inFlight, fileNum)
	rt.mu.Unlock()
}
