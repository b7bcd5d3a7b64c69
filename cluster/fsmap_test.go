package cluster_test

import (
	"testing"

	"github.com/eoscore/eoscore/cluster"
)

func TestFsMapUnknownFsidIsNone(t *testing.T) {
	fm := cluster.NewFsMap()
	if got := fm.State(7); got != cluster.DrainNone {
		t.Fatalf("expected DrainNone for unknown fsid, got %v", got)
	}
}

func TestFsMapAcceptingMap(t *testing.T) {
	fm := cluster.NewFsMap()
	fm.Add(&cluster.Filesystem{ID: 1, Drain: cluster.DrainAccepting})
	fm.Add(&cluster.Filesystem{ID: 2, Drain: cluster.DrainDraining})

	accepting := fm.AcceptingMap()
	if len(accepting) != 1 {
		t.Fatalf("expected 1 accepting filesystem, got %d", len(accepting))
	}
	if _, ok := accepting[1]; !ok {
		t.Fatal("expected fsid 1 in accepting map")
	}
	if !fm.Contains(2) {
		t.Fatal("expected fsid 2 to be known even though not accepting")
	}
}

func TestTapeFsidIsNegativeSentinel(t *testing.T) {
	if cluster.TapeFsid >= 0 {
		t.Fatal("tape sentinel must not collide with a real fsid")
	}
}
