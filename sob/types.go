// Package sob implements the Shared-Object Bus: a pub/sub replicated
// key-value/queue layer over an external message broker. Subjects are
// multicast-synchronized across cluster nodes with transaction batching,
// broadcast-request reconciliation, and monitor-class delivery.
//
// The package mirrors the shape of the teacher's ec.Manager (a
// process-global bucket/xaction registry reacting to cluster-map and
// bucket-metadata change notifications) but gossips arbitrary named
// key-value subjects instead of erasure-coding xactions.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package sob

import (
	"sync"
	"time"

	"github.com/eoscore/eoscore/3rdparty/atomic"
)

type Kind string

const (
	KindHash  Kind = "hash"
	KindQueue Kind = "queue"
)

// Entry is one value inside a subject (spec §3 "Entry").
type Entry struct {
	Key           string
	Value         string
	Mtime         int64 // real-time nanosecond timestamp
	EntryChangeID int64 // increments on every assignment; parsed off the
	// wire but never consulted for merge — see Open Question #1 in
	// SPEC_FULL.md §9.
}

// Subject is a named replicated object (spec §3 "Subject").
type Subject struct {
	ID             string
	BroadcastQueue string
	Kind           Kind

	changeID atomic.Int64
	store    *store

	txMu   sync.Mutex
	inTx   atomic.Bool
	txSet  map[string]struct{}
	delSet map[string]struct{}
}

func newSubject(id, queue string, kind Kind) *Subject {
	return &Subject{
		ID:             id,
		BroadcastQueue: queue,
		Kind:           kind,
		store:          newStore(kind),
	}
}

func (s *Subject) ChangeID() int64 { return s.changeID.Load() }

func (s *Subject) nextChangeID() int64 { return s.changeID.Add(1) }

func now() int64 { return time.Now().UnixNano() }
