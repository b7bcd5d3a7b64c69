// Package jsp (JSON persistence) stores and loads arbitrary JSON-encoded
// structures with optional checksumming, matching the teacher's
// cmn/jsp package (cmn/jsp/file.go) — used here to persist cmn.Config.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package jsp

import (
	"errors"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/eoscore/eoscore/3rdparty/glog"
	"github.com/eoscore/eoscore/cmn/cos"
	"github.com/eoscore/eoscore/cmn/debug"
)

const Metaver = 1 // current JSP version for this module

type (
	// Opts lets a type declare how it wants to be persisted, matching
	// the teacher's jsp.Opts interface implemented by cmn.Config et al.
	Opts interface {
		JspOpts() Options
	}
	Options struct {
		Checksum bool
		Signature string // e.g. "eoscore"
	}
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func Plain() Options { return Options{} }

func CCSign(sig string) Options { return Options{Checksum: true, Signature: sig} }

func SaveMeta(filepath string, meta Opts) error {
	return Save(filepath, meta, meta.JspOpts())
}

func Save(filepath string, v interface{}, opts Options) (err error) {
	var (
		file *os.File
		tmp  = filepath + ".tmp." + cos.GenTie()
	)
	if file, err = cos.CreateFile(tmp); err != nil {
		return
	}
	defer func() {
		if err == nil {
			return
		}
		if nestedErr := cos.RemoveFile(tmp); nestedErr != nil {
			glog.Errorf("nested (%v): failed to remove %s: %v", err, tmp, nestedErr)
		}
	}()
	debug.Assert(v != nil)
	if err = Encode(file, v, opts); err != nil {
		glog.Errorf("failed to encode %s: %v", filepath, err)
		cos.Close(file)
		return
	}
	if err = cos.FlushClose(file); err != nil {
		glog.Errorf("failed to flush and close %s: %v", tmp, err)
		return
	}
	return os.Rename(tmp, filepath)
}

func LoadMeta(filepath string, meta Opts) (*cos.Cksum, error) {
	return Load(filepath, meta, meta.JspOpts())
}

func Load(filepath string, v interface{}, opts Options) (checksum *cos.Cksum, err error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Decode(file, v, opts, filepath)
}

func Encode(w io.Writer, v interface{}, opts Options) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if opts.Checksum {
		cksum := cos.ChecksumBytes(b)
		if _, err := io.WriteString(w, opts.Signature+"|"+cksum.Value()+"|"); err != nil {
			return err
		}
	}
	_, err = w.Write(b)
	return err
}

func Decode(r io.Reader, v interface{}, opts Options, tag string) (*cos.Cksum, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if opts.Checksum {
		sig, rest, ok := cutHeader(b)
		if !ok || sig != opts.Signature {
			return nil, errors.New("jsp: bad or missing signature in " + tag)
		}
		expected, body, ok := cutCksum(rest)
		if !ok {
			return nil, errors.New("jsp: malformed checksum header in " + tag)
		}
		actual := cos.ChecksumBytes(body)
		if !actual.Equal(cos.NewCksum(cos.ChecksumCRC32C, expected)) {
			return nil, cos.NewErrBadCksum(cos.NewCksum(cos.ChecksumCRC32C, expected), actual)
		}
		b = body
	}
	if err := json.Unmarshal(b, v); err != nil {
		return nil, err
	}
	return cos.ChecksumBytes(b), nil
}

func cutHeader(b []byte) (sig string, rest []byte, ok bool) {
	for i, c := range b {
		if c == '|' {
			return string(b[:i]), b[i+1:], true
		}
	}
	return "", nil, false
}

func cutCksum(b []byte) (value string, rest []byte, ok bool) {
	for i, c := range b {
		if c == '|' {
			return string(b[:i]), b[i+1:], true
		}
	}
	return "", nil, false
}
