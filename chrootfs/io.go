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

package chrootfs

import (
	"math"

	"github.com/jacobsa/libos/chrootfs/inode"
	"github.com/jacobsa/libos/chrootfs/pal"
	"github.com/jacobsa/libos/internal/errs"
)

const ssizeMax = math.MaxInt64

// Read reads into buf at the handle's current position, advancing it by
// the actual count for REG handles (§4.5).
//
// LOCKS_REQUIRED(h.Mu)
func Read(h *Handle, buf []byte) (int, error) {
	if int64(len(buf)) > ssizeMax {
		return 0, errs.TooBigf("read", "count %d exceeds SSIZE_MAX", len(buf))
	}

	pos := h.pos
	if h.in.Type() == inode.REG {
		if _, ok := addOverflowChecked(pos, int64(len(buf))); !ok {
			return 0, errs.TooBigf("read", "pos=%d + count=%d overflows", pos, len(buf))
		}
	}

	n, err := h.pal.Read(pos, buf)
	if err != nil {
		return 0, errs.FromPAL("read", err)
	}
	if h.in.Type() == inode.REG {
		h.pos = pos + int64(n)
	}
	return n, nil
}

// Write writes buf at the handle's current position. Callers must acquire
// h.in.Mu before h.Mu, the one fixed lock-ordering rule in this package
// (§4.5, §5).
//
// LOCKS_REQUIRED(h.in.Mu)
// LOCKS_REQUIRED(h.Mu)
func Write(h *Handle, buf []byte) (int, error) {
	if int64(len(buf)) > ssizeMax {
		return 0, errs.TooBigf("write", "count %d exceeds SSIZE_MAX", len(buf))
	}

	pos := h.pos
	isReg := h.in.Type() == inode.REG
	if isReg {
		if _, ok := addOverflowChecked(pos, int64(len(buf))); !ok {
			return 0, errs.TooBigf("write", "pos=%d + count=%d overflows", pos, len(buf))
		}
	}

	n, err := h.pal.Write(pos, buf)
	if err != nil {
		return 0, errs.FromPAL("write", err)
	}

	if isReg {
		h.pos = pos + int64(n)
		if h.pos > h.in.Size() {
			h.in.SetSize(h.pos)
		}
	}
	return n, nil
}

// addOverflowChecked is shared with package inode's seek arithmetic; it is
// duplicated here in miniature to avoid exporting an internal helper
// purely for this one call site's overflow check.
func addOverflowChecked(a, b int64) (int64, bool) {
	sum := a + b
	if b > 0 && sum < a {
		return 0, false
	}
	if b < 0 && sum > a {
		return 0, false
	}
	return sum, true
}

// Mmap memory-maps h's contents. MAP_ANONYMOUS is rejected as meaningless
// for a file-backed map (§4.5).
func Mmap(h *Handle, prot, flags int, off int64, size int, anonymous bool) ([]byte, error) {
	if anonymous {
		return nil, errs.InvalidArgf("mmap", "MAP_ANONYMOUS is not meaningful for a file-backed map")
	}
	b, err := h.pal.Map(prot, flags, off, size)
	if err != nil {
		return nil, errs.FromPAL("mmap", err)
	}
	return b, nil
}

// Unmap tears down a mapping previously returned by Mmap (SUPPLEMENTED
// FEATURE #4: the mmap lifecycle needs a matching teardown even though
// §4.5 only names the mapping call).
func Unmap(region []byte) error {
	if err := pal.Munmap(region); err != nil {
		return errs.FromPAL("munmap", err)
	}
	return nil
}

// Msync flushes a mapping's dirty pages back to the backing stream
// (SUPPLEMENTED FEATURE #4).
func Msync(region []byte, sync bool) error {
	if err := pal.Msync(region, sync); err != nil {
		return errs.FromPAL("msync", err)
	}
	return nil
}

// Truncate sets h's inode size via the PAL, under the inode lock (§4.5).
//
// LOCKS_REQUIRED(h.in.Mu)
func Truncate(h *Handle, n int64) error {
	if err := h.pal.SetLength(n); err != nil {
		return errs.FromPAL("truncate", err)
	}
	h.in.SetSize(n)
	return nil
}

// Flush is a thin pass-through to the PAL (§4.5).
func Flush(h *Handle) error {
	if err := h.pal.Flush(); err != nil {
		return errs.FromPAL("flush", err)
	}
	return nil
}
