// Package audit implements the append-only structured-record sink that
// spec §4.5 specifies as a collaborator contract for nlae and sob: one
// compressed, time-bucketed segment at a time, reachable through a
// stable "audit.zstd" symlink, never surfacing a write failure to its
// caller.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package audit

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/karrick/godirwalk"
	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/zstd"

	"github.com/eoscore/eoscore/3rdparty/glog"
	"github.com/eoscore/eoscore/cmn"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const symlinkName = "audit.zstd"

// Record is one structured audit entry; nlae appends free-form
// payloads (offending path, lock scope) through Append.
type Record struct {
	ID      string      `json:"id"`
	Time    time.Time   `json:"time"`
	Source  string      `json:"source"` // "nlae" | "sob" | ...
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

var initShortID sync.Once

// NewRecord stamps rec.ID with a short, human-readable correlation id
// (cmn.GenUUID, the teacher's own id generator wrapping
// teris-io/shortid), so a rotated-away record can still be traced back
// to the operation that produced it.
func NewRecord(source, event string, payload interface{}) Record {
	initShortID.Do(func() { cmn.InitShortID(uint64(time.Now().UnixNano())) })
	return Record{
		ID:      cmn.GenUUID(),
		Time:    time.Now(),
		Source:  source,
		Event:   event,
		Payload: payload,
	}
}

// Sink serializes writes behind a mutex and rotates into a fresh
// zstd-compressed segment every RotationSeconds (spec §4.5). A Sink
// with Retention>0 sweeps stale segments on each rotation using
// godirwalk, the teacher's own fast-walk dependency.
type Sink struct {
	mu        sync.Mutex
	cfg       cmn.AuditConf
	retention int
	curFile   *os.File
	curPath   string
	enc       *zstd.Encoder
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewSink opens base_dir (creating it if needed), rotates immediately
// to produce a current segment, and starts the background rotation
// ticker. Startup failure to open the audit dir is fatal per spec §6
// "Exit conditions".
func NewSink(cfg cmn.AuditConf, retention int) (*Sink, error) {
	if cfg.RotationSeconds < 1 {
		cfg.RotationSeconds = 300
	}
	if err := os.MkdirAll(cfg.BaseDir, 0755); err != nil {
		return nil, err
	}
	s := &Sink{cfg: cfg, retention: retention, stopCh: make(chan struct{})}
	if err := s.rotate(); err != nil {
		return nil, err
	}
	s.wg.Add(1)
	go s.rotationLoop()
	return s, nil
}

// Append writes one JSON-encoded record followed by a newline to the
// current segment. Failures are logged and dropped at the record level
// (spec §4.5), never returned to the caller.
func (s *Sink) Append(rec Record) {
	b, err := json.Marshal(rec)
	if err != nil {
		glog.Errorf("audit: marshal failed: %v", err)
		return
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enc == nil {
		return
	}
	if _, err := s.enc.Write(b); err != nil {
		glog.Errorf("audit: write failed: %v", err)
	}
}

// rotate closes the current segment (if any), opens a fresh
// timestamp-named one, re-points the audit.zstd symlink at it, and
// sweeps stale segments beyond retention. Called holding no lock; it
// takes the lock itself so Append cannot observe a half-rotated state.
func (s *Sink) rotate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.enc != nil {
		s.enc.Close()
	}
	if s.curFile != nil {
		s.curFile.Close()
	}

	name := "audit-" + time.Now().UTC().Format("20060102T150405.000000000Z") + ".jsonl.zst"
	path := filepath.Join(s.cfg.BaseDir, name)

	level := zstd.EncoderLevelFromZstd(s.cfg.CompressionLevel)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(level))
	if err != nil {
		f.Close()
		return err
	}
	// An empty frame, flushed immediately, so a concurrent tail reader
	// can open the segment through the symlink without error the
	// instant rotation completes (spec §4.5).
	if err := enc.Flush(); err != nil {
		enc.Close()
		f.Close()
		return err
	}

	s.curFile, s.curPath, s.enc = f, path, enc

	link := filepath.Join(s.cfg.BaseDir, symlinkName)
	_ = os.Remove(link)
	if err := os.Symlink(name, link); err != nil {
		glog.Errorf("audit: failed to relink %s: %v", symlinkName, err)
	}

	s.sweep()
	return nil
}

// sweep removes segments beyond the configured retention count, oldest
// first, walking base_dir with godirwalk.
func (s *Sink) sweep() {
	if s.retention <= 0 {
		return
	}
	var segments []string
	err := godirwalk.Walk(s.cfg.BaseDir, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsRegular() && filepath.Ext(path) == ".zst" {
				segments = append(segments, path)
			}
			return nil
		},
		Unsorted: true,
	})
	if err != nil {
		glog.Errorf("audit: sweep walk failed: %v", err)
		return
	}
	sort.Strings(segments)
	if len(segments) <= s.retention {
		return
	}
	for _, p := range segments[:len(segments)-s.retention] {
		if p == s.curPath {
			continue
		}
		if err := os.Remove(p); err != nil {
			glog.Errorf("audit: failed to remove stale segment %s: %v", p, err)
		}
	}
}

func (s *Sink) rotationLoop() {
	defer s.wg.Done()
	t := time.NewTicker(time.Duration(s.cfg.RotationSeconds) * time.Second)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := s.rotate(); err != nil {
				glog.Errorf("audit: rotation failed: %v", err)
			}
		case <-s.stopCh:
			return
		}
	}
}

// Close stops the rotation loop and flushes the current segment.
// Cancellation follows the cooperative-stop-flag discipline of spec §5.
func (s *Sink) Close() {
	close(s.stopCh)
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enc != nil {
		s.enc.Close()
	}
	if s.curFile != nil {
		s.curFile.Close()
	}
}
