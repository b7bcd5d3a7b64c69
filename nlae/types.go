// Package nlae implements the Namespace Locking & Attribute Engine:
// re-entrant multi-granularity locking over file/container metadata,
// attribute and ACL operations, QoS classification, stripe lifecycle,
// and the storage-node commit protocol.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package nlae

import (
	"sync"

	"github.com/eoscore/eoscore/cluster"
	"github.com/eoscore/eoscore/cmn"
)

// Kind tags the two sum types a namespace entity collapses to (Design
// Notes "Dynamic dispatch": FileOrContainer is a tagged union, not a
// virtual hierarchy).
type Kind uint8

const (
	KindFile Kind = iota
	KindContainer
)

// ID addresses one namespace entity: a Kind tag plus the numeric
// identifier, ordered (numeric id asc, containers before files on tie) so bulk locking
// can sort a set of IDs into the process-wide deterministic order (spec
// §4.3 "Bulk locking").
type ID struct {
	Kind Kind
	Num  uint64
}

// Less implements the lock-ordering invariant: containers before files
// on tie, ascending identifier otherwise (spec §5 "Ordering guarantees").
func (a ID) Less(b ID) bool {
	if a.Num != b.Num {
		return a.Num < b.Num
	}
	return a.Kind == KindContainer && b.Kind != KindContainer
}

// Entity is one locked namespace object: file or container metadata.
// The mutex is the shared/exclusive lock named in spec §4.3.
type Entity struct {
	ID ID

	mu   sync.RWMutex
	Path string

	attrs  map[string]string
	ctime  int64
	mtime  int64
	locked bool // file-attribute "lock xattr": foreign lockers refused

	ParentID  ID
	HasParent bool

	// Locations tracks live filesystem ids for a file entity (spec
	// §4.3 Stripe operations); unused for containers.
	Locations []int
	Unlinked  map[int]struct{}

	// Children holds child identifiers for a container entity; not an
	// owning reference, per Design Notes "Cyclic graphs" — lookups
	// always go back through the Registry.
	Children []ID
}

func newEntity(id ID, path string) *Entity {
	return &Entity{
		ID:       id,
		Path:     path,
		attrs:    make(map[string]string),
		Unlinked: make(map[int]struct{}),
	}
}

// reservedSysPrefix is the extended-attribute namespace writable only
// by a sudoer or uid=0 (spec §4.3 step 3).
const reservedSysPrefix = "sys."

// etagAttr never bumps ctime on write (spec §6 "sys.tmp.etag").
const etagAttr = "sys.tmp.etag"

// obfuscateAttr is never listed or returned (spec §4.3 step 3, §6).
const obfuscateAttr = "user.obfuscate.key"

// reservedTapeFS is the sentinel fsid excluded from drop-all semantics
// (spec GLOSSARY "Filesystem (fsid)"); cluster.TapeFsid is the same
// sentinel SOB's fsid gossip and the commit protocol share.
const reservedTapeFS = int(cluster.TapeFsid)

var errLockBug = &cmn.ErrInvalid{Reason: "nlae: lock discipline violated"}
