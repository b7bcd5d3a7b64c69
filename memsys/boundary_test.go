package memsys

import (
	"testing"

	"github.com/eoscore/eoscore/cmn"
)

func TestGetBufferZeroSizeReturnsSlotZero(t *testing.T) {
	mgr := NewBufferManager(cmn.RBFConf{MaxSize: 4 << 20, Slots: 3, BaseSize: 1 << 20})
	buf := mgr.GetBuffer(0)
	if buf == nil {
		t.Fatal("expected a valid zero-length buffer from slot 0")
	}
	if buf.Length != 0 {
		t.Fatalf("expected Length 0, got %d", buf.Length)
	}
	mgr.Recycle(buf)
}

func TestGetBufferNegativeSizeTreatedAsZero(t *testing.T) {
	mgr := NewBufferManager(cmn.RBFConf{MaxSize: 4 << 20, Slots: 3, BaseSize: 1 << 20})
	buf := mgr.GetBuffer(-1)
	if buf == nil {
		t.Fatal("expected a valid buffer for a negative size request")
	}
	mgr.Recycle(buf)
}

func TestGetBufferOversizeRefused(t *testing.T) {
	mgr := NewBufferManager(cmn.RBFConf{MaxSize: 4 << 20, Slots: 3, BaseSize: 1 << 20})
	buf := mgr.GetBuffer(513 << 20)
	if buf != nil {
		t.Fatal("expected nil for a request over the 512MiB ceiling")
	}
}

func TestWriteBeyondCapacityRefused(t *testing.T) {
	mgr := NewBufferManager(cmn.RBFConf{MaxSize: 4 << 20, Slots: 3, BaseSize: 1 << 20})
	rb := NewRainBlock(mgr, 16)
	defer rb.Release()

	if _, err := rb.Write(make([]byte, 20), 0); err == nil {
		t.Fatal("expected an error writing past capacity")
	}
	if _, err := rb.Write(make([]byte, 10), 10); err == nil {
		t.Fatal("expected an error when offset+len exceeds capacity")
	}
}

func TestParityLayoutBounds(t *testing.T) {
	cases := []struct {
		cfg     cmn.RAINConf
		wantErr bool
	}{
		{cmn.RAINConf{StripeWidth: 64, NbParity: 2, NbTotal: 6}, false},
		{cmn.RAINConf{StripeWidth: 64, NbParity: 0, NbTotal: 6}, true},
		{cmn.RAINConf{StripeWidth: 64, NbParity: 2, NbTotal: 2}, true},
	}
	for _, c := range cases {
		pl, err := NewParityLayout(c.cfg)
		if c.wantErr {
			if err == nil {
				t.Fatalf("expected error for %+v", c.cfg)
			}
			continue
		}
		if err != nil {
			t.Fatalf("unexpected error for %+v: %v", c.cfg, err)
		}
		if pl.RequiredEncodeTargets() != c.cfg.NbTotal {
			t.Fatalf("expected %d encode targets, got %d", c.cfg.NbTotal, pl.RequiredEncodeTargets())
		}
		if pl.RequiredRestoreTargets() != c.cfg.NbTotal-c.cfg.NbParity {
			t.Fatalf("expected %d restore targets, got %d", c.cfg.NbTotal-c.cfg.NbParity, pl.RequiredRestoreTargets())
		}
	}
}
