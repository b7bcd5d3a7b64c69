package memsys

import (
	"github.com/eoscore/eoscore/cmn"
	"github.com/klauspost/reedsolomon"
)

// ParityLayout answers "how many live stripe locations does this
// erasure-coded layout need" as a standalone helper (nlae's drop-all
// and replicate code does not call it), the way the teacher's
// ec.Manager derives required target counts before calling into its
// encoder. RBF stops at shard-count arithmetic: the bit-level
// encode/decode math is out of CORE scope (spec §1) and is delegated to
// reedsolomon.Encoder, constructed here purely to validate the
// data/parity split the config asks for.
type ParityLayout struct {
	dataShards   int
	parityShards int
	enc          reedsolomon.Encoder
}

// NewParityLayout validates {stripe_width, nb_parity, nb_total} against
// the bounds spec §6 names (nb_total >= nb_parity+1, nb_parity >= 1) and
// the teacher's own MinSliceCount/MaxSliceCount constants, then builds
// the underlying Reed-Solomon encoder.
func NewParityLayout(cfg cmn.RAINConf) (*ParityLayout, error) {
	if cfg.NbParity < 1 {
		return nil, &cmn.ErrInvalid{Reason: "rain: nb_parity must be >= 1"}
	}
	if cfg.NbTotal < cfg.NbParity+1 {
		return nil, &cmn.ErrInvalid{Reason: "rain: nb_total must be >= nb_parity+1"}
	}
	dataShards := cfg.NbTotal - cfg.NbParity
	if dataShards < cmn.MinSliceCount || dataShards > cmn.MaxSliceCount {
		return nil, &cmn.ErrInvalid{Reason: "rain: data shard count out of bounds"}
	}

	enc, err := reedsolomon.New(dataShards, cfg.NbParity)
	if err != nil {
		return nil, &cmn.ErrInvalid{Reason: "rain: " + err.Error()}
	}
	return &ParityLayout{dataShards: dataShards, parityShards: cfg.NbParity, enc: enc}, nil
}

// DataShards is the number of data (non-parity) stripe locations.
func (p *ParityLayout) DataShards() int { return p.dataShards }

// ParityShards is the number of parity stripe locations.
func (p *ParityLayout) ParityShards() int { return p.parityShards }

// TotalShards is the full stripe width, data plus parity.
func (p *ParityLayout) TotalShards() int { return p.dataShards + p.parityShards }

// RequiredEncodeTargets is the number of live locations a fresh write
// must reach before the layout is considered complete: every shard,
// data and parity (mirrored from ec.Manager.EncodeObject's target
// count).
func (p *ParityLayout) RequiredEncodeTargets() int { return p.TotalShards() }

// RequiredRestoreTargets is the minimum number of surviving locations
// from which the original data can still be reconstructed (mirrored
// from ec.Manager.RestoreObject): any dataShards of the total suffice.
func (p *ParityLayout) RequiredRestoreTargets() int { return p.dataShards }

// CanDropAllExcept reports whether it is still safe to drop every
// location of a file except the ones listed, i.e. whether at least
// RequiredRestoreTargets would remain (spec §4.3 "Drop all").
func (p *ParityLayout) CanDropAllExcept(remaining int) bool {
	return remaining >= p.RequiredRestoreTargets()
}
