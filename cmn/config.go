/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/eoscore/eoscore/cmn/jsp"
)

// EC slice-count bounds, reused by memsys' ParityLayout helper — kept
// here because the teacher's own cmn/config.go defines these same
// constants alongside the rest of the config surface.
const (
	MinSliceCount = 1
	MaxSliceCount = 32
)

const MetaverConfig = 1

type (
	Validator interface{ Validate() error }

	SOBConf struct {
		TombstoneTTL  time.Duration `json:"tombstone_ttl"`
		Workers       int           `json:"workers"`
		QueueDepth    int           `json:"queue_depth"`
	}

	UCCConf struct {
		Mode         string `json:"mode"`          // "per_message_salt" | "fixed_salt"
		SecretSource string `json:"secret_source"` // "file_path" | "raw_password"
		Secret       string `json:"secret"`
	}

	NLAEConf struct {
		SudoerGroup string `json:"sudoer_group"`
	}

	RBFConf struct {
		MaxSize  int64 `json:"max_size"`
		Slots    int   `json:"slots"`
		BaseSize int64 `json:"base_size"`
	}

	AuditConf struct {
		BaseDir          string `json:"base_dir"`
		RotationSeconds  int    `json:"rotation_seconds"`
		CompressionLevel int    `json:"compression_level"`
	}

	RAINConf struct {
		StripeWidth int `json:"stripe_width"`
		NbParity    int `json:"nb_parity"`
		NbTotal     int `json:"nb_total"`
	}

	Config struct {
		SOB   SOBConf   `json:"sob"`
		UCC   UCCConf   `json:"ucc"`
		NLAE  NLAEConf  `json:"nlae"`
		RBF   RBFConf   `json:"rbf"`
		Audit AuditConf `json:"audit"`
		RAIN  RAINConf  `json:"rain"`
	}
)

var _ jsp.Opts = (*Config)(nil)

var configJspOpts = jsp.CCSign("eoscore")

func (*Config) JspOpts() jsp.Options { return configJspOpts }

func DefaultConfig() *Config {
	return &Config{
		SOB: SOBConf{
			TombstoneTTL: 10 * time.Minute,
			Workers:      8,
			QueueDepth:   4096,
		},
		UCC: UCCConf{
			Mode:         "per_message_salt",
			SecretSource: "raw_password",
		},
		NLAE: NLAEConf{SudoerGroup: "wheel"},
		RBF: RBFConf{
			MaxSize:  256 << 20,
			Slots:    6,
			BaseSize: 1 << 20,
		},
		Audit: AuditConf{
			BaseDir:          "/var/log/eoscore/audit",
			RotationSeconds:  300,
			CompressionLevel: 3,
		},
		RAIN: RAINConf{StripeWidth: 64, NbParity: 2, NbTotal: 6},
	}
}

func (c *Config) Validate() error {
	if c.RBF.Slots <= 0 {
		return errors.New("rbf.slots must be > 0")
	}
	if c.RBF.BaseSize <= 0 {
		return errors.New("rbf.base_size must be > 0")
	}
	if c.Audit.RotationSeconds < 1 {
		return errors.New("audit.rotation_seconds must be >= 1")
	}
	if c.UCC.Mode != "per_message_salt" && c.UCC.Mode != "fixed_salt" {
		return errors.New("ucc.mode must be per_message_salt or fixed_salt")
	}
	if c.RAIN.StripeWidth < 64 {
		return errors.New("rain.stripe_width must be >= 64")
	}
	if c.RAIN.NbParity < 1 {
		return errors.New("rain.nb_parity must be >= 1")
	}
	if c.RAIN.NbTotal < c.RAIN.NbParity+1 {
		return errors.New("rain.nb_total must be >= nb_parity+1")
	}
	return nil
}

///////////////////////
// globalConfigOwner //
///////////////////////

// GCO (Global Config Owner) holds the atomically-swappable process-wide
// *Config, exactly as cmn.GCO is used across the teacher codebase
// (ec.Manager reads cmn.GCO.Get() at init). Bootstrapped explicitly by
// the process entrypoint; never constructed in a static initializer
// (Design Notes §9, "Global mutable state").
type globalConfigOwner struct {
	c atomic.Pointer[Config]
}

var GCO = &globalConfigOwner{}

func (gco *globalConfigOwner) Get() *Config {
	if p := gco.c.Load(); p != nil {
		return p
	}
	return DefaultConfig()
}

func (gco *globalConfigOwner) Put(config *Config) { gco.c.Store(config) }
