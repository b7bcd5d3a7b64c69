package nlae_test

import (
	"sync"
	"testing"
	"time"

	"github.com/eoscore/eoscore/nlae"
)

func TestReentrantWriteThenNestedRead(t *testing.T) {
	reg := nlae.NewRegistry()
	c := reg.Create(nlae.KindContainer, "/c", nlae.ID{}, false)
	lt := nlae.NewLockTracker()

	lt.AcquireWrite(c)
	lt.AcquireRead(c) // must not block: write implies shadow read
	lt.AcquireRead(c)
	lt.ReleaseRead(c)
	lt.ReleaseRead(c)
	lt.ReleaseWrite(c)
}

func TestReentrantWriteUnderContention(t *testing.T) {
	reg := nlae.NewRegistry()
	c := reg.Create(nlae.KindContainer, "/c", nlae.ID{}, false)

	lt1 := nlae.NewLockTracker()
	lt1.AcquireWrite(c)
	lt1.AcquireRead(c) // nested, same tracker: must not block

	var t2Observed string
	blocked := make(chan struct{})
	released := make(chan struct{})
	go func() {
		lt2 := nlae.NewLockTracker()
		close(blocked)
		lt2.AcquireRead(c)
		t2Observed = c.Path
		lt2.ReleaseRead(c)
		close(released)
	}()

	<-blocked
	time.Sleep(20 * time.Millisecond)
	select {
	case <-released:
		t.Fatal("second tracker's read acquired before first tracker's write released")
	default:
	}

	c.Path = "/c/mutated"
	lt1.ReleaseRead(c)
	lt1.ReleaseWrite(c)

	<-released
	if t2Observed != "/c/mutated" {
		t.Fatalf("second tracker observed %q, want mutated value", t2Observed)
	}
}

func TestAcquireBulkLocksContainerAndFile(t *testing.T) {
	reg := nlae.NewRegistry()
	f := reg.Create(nlae.KindFile, "/c/f", nlae.ID{}, false)
	c := reg.Create(nlae.KindContainer, "/c", nlae.ID{}, false)

	lt := nlae.NewLockTracker()
	lt.AcquireBulk([]*nlae.Entity{f, c})
	lt.ReleaseBulk([]*nlae.Entity{f, c})
}

func TestACLDeleteOverridesWrite(t *testing.T) {
	dirACL, ok := nlae.ParseRule("w!d")
	if !ok {
		t.Fatal("ParseRule failed to parse w!d")
	}
	if nlae.CanDeleteChild(dirACL, false) {
		t.Fatal("!d must forbid delete of a non-owned child even though w is present")
	}
	if !nlae.CanDeleteChild(dirACL, true) {
		t.Fatal("owner should still be able to delete despite !d (applies to non-owners only)")
	}
}

func TestACLWriteAlonePermitsDelete(t *testing.T) {
	dirACL, ok := nlae.ParseRule("w")
	if !ok {
		t.Fatal("ParseRule failed")
	}
	if !nlae.CanDeleteChild(dirACL, false) {
		t.Fatal("plain w should permit deleting a non-owned child")
	}
}

func TestCommitSizeMismatchLeavesLocationUnchanged(t *testing.T) {
	reg := nlae.NewRegistry()
	lt := nlae.NewLockTracker()
	eng := nlae.NewEngine(reg, nil)

	meta := &nlae.FileMeta{
		ID:        nlae.ID{Kind: nlae.KindFile, Num: 1},
		Size:      1000,
		Locations: []int{3},
	}
	report := nlae.CommitReport{FileID: 1, Fsid: 7, Size: 999, ReplicaMode: true}

	err := eng.CommitWrite(lt, nlae.DrainAccepting, meta, report, func(int, int64) {}, func(string, string) error { return nil })
	if err == nil {
		t.Fatal("expected error on size mismatch")
	}
	if len(meta.Locations) != 1 || meta.Locations[0] != 3 {
		t.Fatalf("locations mutated on rejected commit: %v", meta.Locations)
	}
}

func TestCommitChunkedOnlyRenamesOnFinalChunk(t *testing.T) {
	reg := nlae.NewRegistry()
	lt := nlae.NewLockTracker()
	eng := nlae.NewEngine(reg, nil)
	meta := &nlae.FileMeta{ID: nlae.ID{Kind: nlae.KindFile, Num: 2}, Size: 10}

	var renamed bool
	rename := func(string, string) error { renamed = true; return nil }

	report := nlae.CommitReport{FileID: 2, Fsid: 1, Size: 10, Chunked: true, ChunkFlags: 2}
	if err := eng.CommitWrite(lt, nlae.DrainAccepting, meta, report, func(int, int64) {}, rename); err != nil {
		t.Fatalf("CommitWrite: %v", err)
	}
	if renamed {
		t.Fatal("rename invoked before final chunk")
	}

	report.ChunkFlags = 0
	if err := eng.CommitWrite(lt, nlae.DrainAccepting, meta, report, func(int, int64) {}, rename); err != nil {
		t.Fatalf("CommitWrite: %v", err)
	}
	if !renamed {
		t.Fatal("final chunk should trigger rename")
	}
}

func TestAttrSetSysPrefixRequiresSudoOrRoot(t *testing.T) {
	reg := nlae.NewRegistry()
	f := reg.Create(nlae.KindFile, "/f", nlae.ID{}, false)
	lt := nlae.NewLockTracker()
	eng := nlae.NewEngine(reg, nil)

	rcUser, _ := nlae.NewRequestContext(500, false, "", "")
	if err := eng.AttrSet(lt, rcUser, f.ID, "sys.foo", "bar", nlae.AttrSetOpts{}); err == nil {
		t.Fatal("expected permission denied for non-sudoer setting sys.*")
	}

	rcRoot, _ := nlae.NewRequestContext(0, false, "", "")
	if err := eng.AttrSet(lt, rcRoot, f.ID, "sys.foo", "bar", nlae.AttrSetOpts{}); err != nil {
		t.Fatalf("root AttrSet: %v", err)
	}
	v, err := eng.AttrGet(lt, f.ID, "sys.foo")
	if err != nil || v != "bar" {
		t.Fatalf("AttrGet after root set: got %q, %v", v, err)
	}
}

func TestAttrSetExclusiveAlreadyExists(t *testing.T) {
	reg := nlae.NewRegistry()
	f := reg.Create(nlae.KindFile, "/f", nlae.ID{}, false)
	lt := nlae.NewLockTracker()
	eng := nlae.NewEngine(reg, nil)
	rc, _ := nlae.NewRequestContext(0, false, "", "")

	if err := eng.AttrSet(lt, rc, f.ID, "k", "v1", nlae.AttrSetOpts{Exclusive: true}); err != nil {
		t.Fatalf("first set: %v", err)
	}
	if err := eng.AttrSet(lt, rc, f.ID, "k", "v2", nlae.AttrSetOpts{Exclusive: true}); err == nil {
		t.Fatal("expected AlreadyExists on exclusive re-set")
	}
}

func TestAttrListHidesObfuscateKey(t *testing.T) {
	reg := nlae.NewRegistry()
	f := reg.Create(nlae.KindFile, "/f", nlae.ID{}, false)
	lt := nlae.NewLockTracker()
	eng := nlae.NewEngine(reg, nil)
	rc, _ := nlae.NewRequestContext(0, false, "", "")

	_ = eng.AttrSet(lt, rc, f.ID, "user.obfuscate.key", "secret", nlae.AttrSetOpts{})
	_ = eng.AttrSet(lt, rc, f.ID, "user.visible", "shown", nlae.AttrSetOpts{})

	attrs, err := eng.AttrList(lt, f.ID)
	if err != nil {
		t.Fatalf("AttrList: %v", err)
	}
	if _, ok := attrs["user.obfuscate.key"]; ok {
		t.Fatal("obfuscate key must never be listed")
	}
	if attrs["user.visible"] != "shown" {
		t.Fatalf("missing visible attribute: %+v", attrs)
	}
}

func TestQoSConvergencePersistsMatchedClass(t *testing.T) {
	reg := nlae.NewRegistry()
	c := reg.Create(nlae.KindContainer, "/c", nlae.ID{}, false)
	lt := nlae.NewLockTracker()
	eng := nlae.NewEngine(reg, nil)
	eng.RegisterClass(nlae.QoSClass{Name: "bronze", Layout: "replica", Replica: 2, Checksum: "adler", Placement: "scattered"})

	got, err := eng.QoSLs(lt, c.ID, "replica", "adler", "scattered", 2)
	if err != nil {
		t.Fatalf("QoSLs: %v", err)
	}
	if got != "bronze" {
		t.Fatalf("got %q, want bronze", got)
	}

	got2, err := eng.QoSLs(lt, c.ID, "replica", "adler", "scattered", 2)
	if err != nil {
		t.Fatalf("QoSLs second call: %v", err)
	}
	if got2 != "bronze" {
		t.Fatalf("second call got %q, want bronze (read persisted attribute)", got2)
	}
}

func TestDropAllStripesNoOpWhenOnlyTapeRemains(t *testing.T) {
	reg := nlae.NewRegistry()
	f := reg.Create(nlae.KindFile, "/f", nlae.ID{}, false)
	f.Locations = []int{-1}
	lt := nlae.NewLockTracker()
	eng := nlae.NewEngine(reg, nil)
	rc, _ := nlae.NewRequestContext(0, false, "", "")

	if err := eng.DropAllStripes(lt, rc, f.ID, true, nil); err != nil {
		t.Fatalf("DropAllStripes: %v", err)
	}
	if len(f.Locations) != 1 || f.Locations[0] != -1 {
		t.Fatalf("tape location should be untouched: %v", f.Locations)
	}
}

func TestConcurrentAttrSetsSerialize(t *testing.T) {
	reg := nlae.NewRegistry()
	f := reg.Create(nlae.KindFile, "/f", nlae.ID{}, false)
	eng := nlae.NewEngine(reg, nil)
	rc, _ := nlae.NewRequestContext(0, false, "", "")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lt := nlae.NewLockTracker()
			_ = eng.AttrSet(lt, rc, f.ID, "counter", "x", nlae.AttrSetOpts{})
		}()
	}
	wg.Wait()

	lt := nlae.NewLockTracker()
	v, err := eng.AttrGet(lt, f.ID, "counter")
	if err != nil || v != "x" {
		t.Fatalf("got %q, %v", v, err)
	}
}
