// Package ucc implements the URI Capability Cipher: encryption and
// decryption of short redirection capabilities carried as the CGI
// fields cap.sym/cap.msg.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package ucc

import (
	"encoding/binary"

	"github.com/eoscore/eoscore/cmn"
)

const (
	headerSize = 56
	saltSize   = 16
	nonceSize  = 12
	tagSize    = 16

	version = 1
	kdfID   = 1
	aeadID  = 1
)

// header is the exact wire layout (little-endian): version at byte 0,
// kdf id 1, aead id 2, reserved 3, N 4-11, r 12-19, p 20-27, salt
// 28-43, nonce 44-55. encoding/binary is used deliberately
// here instead of a general serialization library: the layout is a
// fixed external contract, not a value to be marshaled generically.
type header struct {
	version  uint8
	kdfID    uint8
	aeadID   uint8
	reserved uint8
	scryptN  uint64
	scryptR  uint64
	scryptP  uint64
	salt     [saltSize]byte
	nonce    [nonceSize]byte
}

func (h *header) marshal() []byte {
	buf := make([]byte, headerSize)
	buf[0] = h.version
	buf[1] = h.kdfID
	buf[2] = h.aeadID
	buf[3] = h.reserved
	binary.LittleEndian.PutUint64(buf[4:12], h.scryptN)
	binary.LittleEndian.PutUint64(buf[12:20], h.scryptR)
	binary.LittleEndian.PutUint64(buf[20:28], h.scryptP)
	copy(buf[28:44], h.salt[:])
	copy(buf[44:56], h.nonce[:])
	return buf
}

func unmarshalHeader(buf []byte) (*header, error) {
	if len(buf) != headerSize {
		return nil, &cmn.ErrInvalid{Reason: "ucc: header must be 56 bytes"}
	}
	h := &header{
		version:  buf[0],
		kdfID:    buf[1],
		aeadID:   buf[2],
		reserved: buf[3],
		scryptN:  binary.LittleEndian.Uint64(buf[4:12]),
		scryptR:  binary.LittleEndian.Uint64(buf[12:20]),
		scryptP:  binary.LittleEndian.Uint64(buf[20:28]),
	}
	copy(h.salt[:], buf[28:44])
	copy(h.nonce[:], buf[44:56])
	if err := h.sanityCheck(); err != nil {
		return nil, err
	}
	return h, nil
}

// sanityCheck enforces the decrypt-contract validations: known
// version/kdf/aead ids, and scrypt parameter sanity (N a power of two
// ≥ 2, r and p positive).
func (h *header) sanityCheck() error {
	if h.version != version {
		return &cmn.ErrInvalid{Reason: "ucc: unsupported header version"}
	}
	if h.kdfID != kdfID {
		return &cmn.ErrInvalid{Reason: "ucc: unsupported kdf id"}
	}
	if h.aeadID != aeadID {
		return &cmn.ErrInvalid{Reason: "ucc: unsupported aead id"}
	}
	if h.scryptN < 2 || h.scryptN&(h.scryptN-1) != 0 {
		return &cmn.ErrInvalid{Reason: "ucc: scrypt N must be a power of two >= 2"}
	}
	if h.scryptR == 0 || h.scryptP == 0 {
		return &cmn.ErrInvalid{Reason: "ucc: scrypt r and p must be > 0"}
	}
	return nil
}
