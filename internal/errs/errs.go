// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errs holds the error taxonomy shared by the chroot filesystem
// personality and its backing store. Every non-BUG kind maps onto a POSIX
// errno so the personality can return it directly to a guest thread.
package errs

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Kind identifies which branch of the taxonomy an error belongs to.
type Kind int

const (
	// KindPAL wraps an error returned verbatim by the backing store, already
	// expressed as a POSIX errno.
	KindPAL Kind = iota
	InvalidArg
	OutOfMemory
	TooBig
	Overflow
	Permission
)

// Error is a taxonomy-tagged error carrying the POSIX errno a caller should
// surface to the guest.
type Error struct {
	Kind   Kind
	Errno  unix.Errno
	Op     string
	detail string
}

func (e *Error) Error() string {
	if e.detail == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Errno)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Errno, e.detail)
}

func (e *Error) Unwrap() error { return e.Errno }

// Errno extracts the POSIX errno from err, if any.
func Errno(err error) (unix.Errno, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Errno, true
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno, true
	}
	return 0, false
}

func new(kind Kind, errno unix.Errno, op, detail string) *Error {
	return &Error{Kind: kind, Errno: errno, Op: op, detail: detail}
}

// InvalidArgf reports a bad argument: unknown seek origin, a mount URI whose
// scheme is neither file: nor dev:, or MAP_ANONYMOUS on mmap.
func InvalidArgf(op, format string, args ...any) error {
	return new(InvalidArg, unix.EINVAL, op, fmt.Sprintf(format, args...))
}

// OutOfMemoryf reports an allocation failure while building a URI or a
// readdir buffer.
func OutOfMemoryf(op, format string, args ...any) error {
	return new(OutOfMemory, unix.ENOMEM, op, fmt.Sprintf(format, args...))
}

// TooBigf reports a read/write whose count exceeds SSIZE_MAX, or a
// pos+count computation that would overflow on a regular file.
func TooBigf(op, format string, args ...any) error {
	return new(TooBig, unix.EFBIG, op, fmt.Sprintf(format, args...))
}

// Overflowf reports seek arithmetic that overflowed a 64-bit offset.
func Overflowf(op, format string, args ...any) error {
	return new(Overflow, unix.EOVERFLOW, op, fmt.Sprintf(format, args...))
}

// PermissionDeniedf reports a host-level condition the personality refuses
// to expose to the guest, such as a bare FIFO encountered during lookup.
func PermissionDeniedf(op, format string, args ...any) error {
	return new(Permission, unix.EACCES, op, fmt.Sprintf(format, args...))
}

// FromPAL wraps an error returned by the backing store, translating it 1:1
// into a POSIX errno without reinterpreting it.
func FromPAL(op string, err error) error {
	if err == nil {
		return nil
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return new(KindPAL, errno, op, "")
	}
	// The backing store is expected to always fail with an errno; anything
	// else indicates a bug in the backing store itself, not in the guest's
	// request, so it is surfaced as EIO rather than silently swallowed.
	return new(KindPAL, unix.EIO, op, err.Error())
}

// Bug panics; it is used for conditions the spec marks unrecoverable, such
// as an unreachable backing-store handle type or an empty readdir name.
func Bug(op, format string, args ...any) {
	panic(fmt.Sprintf("BUG[%s]: %s", op, fmt.Sprintf(format, args...)))
}

// Is reports whether err carries the given POSIX errno, unwrapping through
// Error and plain unix.Errno values alike.
func Is(err error, errno unix.Errno) bool {
	got, ok := Errno(err)
	return ok && got == errno
}
