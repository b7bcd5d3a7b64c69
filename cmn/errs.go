// Package cmn provides common constants, types and utilities shared by
// sob, ucc, nlae and memsys, the way the teacher's cmn package underpins
// the rest of aistore.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import "fmt"

// Error kinds per spec §7. Each wraps an optional offending path so NLAE
// can "attach the offending path" on the way up, without resorting to
// exceptions (Design Notes: "surface these as typed results at every
// public boundary of NLAE").
type (
	ErrNotFound struct {
		What string
		Path string
	}
	ErrAlreadyExists struct {
		What string
		Path string
	}
	ErrPermissionDenied struct {
		Reason string
		Path   string
	}
	ErrImmutable struct {
		Path string
	}
	ErrInvalid struct {
		Reason string
	}
	ErrBusy struct {
		What string
		Path string
	}
	ErrConflict struct {
		Reason string
		Path   string
	}
	ErrGone struct {
		Path string
	}
	ErrOutOfSpace struct {
		Reason string
	}
	ErrTransport struct {
		Reason string
	}
)

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %q", e.What, e.Path)
}
func (e *ErrAlreadyExists) Error() string {
	return fmt.Sprintf("%s already exists: %q", e.What, e.Path)
}
func (e *ErrPermissionDenied) Error() string {
	return fmt.Sprintf("permission denied (%s): %q", e.Reason, e.Path)
}
func (e *ErrImmutable) Error() string {
	return fmt.Sprintf("immutable: %q", e.Path)
}
func (e *ErrInvalid) Error() string { return "invalid: " + e.Reason }
func (e *ErrBusy) Error() string {
	return fmt.Sprintf("%s busy: %q", e.What, e.Path)
}
func (e *ErrConflict) Error() string {
	return fmt.Sprintf("conflict (%s): %q", e.Reason, e.Path)
}
func (e *ErrGone) Error() string { return fmt.Sprintf("gone: %q", e.Path) }
func (e *ErrOutOfSpace) Error() string { return "out of space: " + e.Reason }
func (e *ErrTransport) Error() string  { return "transport: " + e.Reason }

func NewNotFoundError(what, path string) error {
	return &ErrNotFound{What: what, Path: path}
}
func NewAlreadyExistsError(what, path string) error {
	return &ErrAlreadyExists{What: what, Path: path}
}
func NewPermissionDeniedError(reason, path string) error {
	return &ErrPermissionDenied{Reason: reason, Path: path}
}
