package nlae

import (
	"github.com/eoscore/eoscore/cluster"
	"github.com/eoscore/eoscore/cmn"
)

// DrainState is the filesystem acceptance state referenced by spec
// §4.3 step 1 ("target filesystem still accepting (config >= Drain)").
// It is an alias of cluster.DrainState: cluster owns the canonical
// per-fsid state that SOB gossips about, NLAE only consults it.
type DrainState = cluster.DrainState

const (
	DrainNone     = cluster.DrainNone
	DrainDraining = cluster.DrainDraining
	DrainAccepting = cluster.DrainAccepting
)

// CommitReport is what a storage node reports on write completion (spec
// §4.3 "Commit protocol").
type CommitReport struct {
	FileID      uint64
	Fsid        int
	Size        int64
	Checksum    string
	ReplicaMode bool
	Atomic      bool
	Chunked     bool
	TempName    string
	FinalName   string
	ChunkFlags  int // remaining-chunk counter; final chunk is flags==0
}

// FileMeta is the subset of stored file metadata the commit protocol
// consults and mutates.
type FileMeta struct {
	ID              ID
	Size            int64
	Checksum        string
	Locations       []int
	PendingSiblings map[int]struct{} // fsid to drop once this commit lands
}

// CommitWriteFs is CommitWrite with the fs acceptance state resolved
// from eng.Fs (cluster's gossiped fsid state) instead of passed by the
// caller directly.
func (eng *Engine) CommitWriteFs(lt *LockTracker, fsid cluster.Fsid, meta *FileMeta, report CommitReport, quota func(fsid int, delta int64), rename func(temp, final string) error) error {
	return eng.CommitWrite(lt, eng.Fs.State(fsid), meta, report, quota, rename)
}

// CommitWrite implements the fsctl commit handling of spec §4.3 steps
// 1-5, grounded on the original commit fsctl path (file id lookup,
// mismatch checks, quota rebalance, atomic/chunked rename).
func (eng *Engine) CommitWrite(lt *LockTracker, fs DrainState, meta *FileMeta, report CommitReport, quota func(fsid int, delta int64), rename func(temp, final string) error) error {
	if fs < DrainAccepting {
		eng.metrics.commitRejects.WithLabelValues("not-accepting").Inc()
		return &cmn.ErrTransport{Reason: "filesystem not accepting writes"}
	}
	if meta == nil {
		eng.metrics.commitRejects.WithLabelValues("gone").Inc()
		return &cmn.ErrGone{Path: itoa(report.FileID)}
	}
	if meta.ID.Num != report.FileID {
		eng.metrics.commitRejects.WithLabelValues("mismatch").Inc()
		return &cmn.ErrInvalid{Reason: "commit: file id mismatch"}
	}

	if report.ReplicaMode {
		if report.Size != meta.Size {
			eng.metrics.commitRejects.WithLabelValues("size").Inc()
			removeLocation(meta, report.Fsid)
			return &cmn.ErrConflict{Reason: "size mismatch", Path: itoa(report.FileID)}
		}
		if report.Checksum != "" && meta.Checksum != "" && report.Checksum != meta.Checksum {
			eng.metrics.commitRejects.WithLabelValues("checksum").Inc()
			removeLocation(meta, report.Fsid)
			return &cmn.ErrConflict{Reason: "checksum mismatch", Path: itoa(report.FileID)}
		}
	}

	// Rebalance quota usage: drop the stale accounting, add the
	// confirmed size (spec §4.3 step 4 "remove then re-add").
	quota(report.Fsid, -meta.Size)
	quota(report.Fsid, report.Size)
	meta.Size = report.Size
	addLocation(meta, report.Fsid)

	for fsid := range meta.PendingSiblings {
		removeLocation(meta, fsid)
		delete(meta.PendingSiblings, fsid)
	}

	if report.Atomic || report.Chunked {
		if report.Chunked && report.ChunkFlags > 0 {
			return nil // not the final chunk; transaction stays open
		}
		if err := rename(report.TempName, report.FinalName); err != nil {
			return &cmn.ErrTransport{Reason: err.Error()}
		}
	}
	eng.audit("commit", report)
	return nil
}

func addLocation(meta *FileMeta, fsid int) {
	for _, l := range meta.Locations {
		if l == fsid {
			return
		}
	}
	meta.Locations = append(meta.Locations, fsid)
}

func removeLocation(meta *FileMeta, fsid int) {
	for i, l := range meta.Locations {
		if l == fsid {
			meta.Locations = append(meta.Locations[:i], meta.Locations[i+1:]...)
			return
		}
	}
}
