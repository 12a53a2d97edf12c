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

// Package inode holds the cached metadata object materialized for every
// looked-up dentry, the mount it belongs to, and the generic arithmetic
// (seek, stat fill, poll readiness) that operates on that metadata alone,
// without needing the surrounding directory tree.
package inode

import (
	"hash/fnv"
	"math"

	"github.com/google/uuid"
	"github.com/jacobsa/syncutil"
	"golang.org/x/sys/unix"

	"github.com/jacobsa/libos/internal/errs"
)

// Type classifies what an inode represents. It never changes after an
// inode is created.
type Type int

const (
	REG Type = iota
	DIR
	CHR
)

func (t Type) String() string {
	switch t {
	case REG:
		return "REG"
	case DIR:
		return "DIR"
	case CHR:
		return "CHR"
	default:
		return "UNKNOWN"
	}
}

// StatMode returns the S_IF* bits corresponding to t.
func (t Type) StatMode() uint32 {
	switch t {
	case DIR:
		return unix.S_IFDIR
	case CHR:
		return unix.S_IFCHR
	default:
		return unix.S_IFREG
	}
}

// Mount binds a guest-visible path prefix to a PAL URI prefix. Mount
// identity is stable for the lifetime of the mount.
type Mount struct {
	// UriPrefix is either "file:<root>" or "dev:<root>". Validated at
	// construction by NewMount.
	UriPrefix string

	// id folds into the synthesized stat "dev" field below, giving mounts
	// with colliding root paths (e.g. two dev: mounts) distinct device
	// numbers.
	id uuid.UUID
}

// NewMount validates uriPrefix and returns a Mount. The scheme must be
// file: or dev:; any other scheme is rejected here rather than lazily at
// first use.
func NewMount(uriPrefix string) (*Mount, error) {
	scheme, _, ok := cutScheme(uriPrefix)
	if !ok || (scheme != "file:" && scheme != "dev:") {
		return nil, errs.InvalidArgf("NewMount", "uri prefix %q has unsupported scheme", uriPrefix)
	}
	return &Mount{UriPrefix: uriPrefix, id: uuid.New()}, nil
}

func cutScheme(uri string) (scheme, rest string, ok bool) {
	for i := 0; i < len(uri); i++ {
		if uri[i] == ':' {
			return uri[:i+1], uri[i+1:], true
		}
	}
	return "", "", false
}

// Root strips the scheme from the mount's URI prefix, substituting "." for
// an empty root per the URI grammar.
func (m *Mount) Root() string {
	_, root, _ := cutScheme(m.UriPrefix)
	if root == "" {
		return "."
	}
	return root
}

// StatDev synthesizes a stable stat "dev" value for this mount: a hash of
// the URI prefix folded with the mount's own identifier, so that two
// mounts whose URIs happen to collide still report distinct devices.
func (m *Mount) StatDev() uint64 {
	h := fnv.New64a()
	h.Write([]byte(m.UriPrefix))
	h.Write(m.id[:])
	return h.Sum64()
}

// Inode is the cached metadata object materialized for a dentry: its type,
// guest-visible permission bits, and size. size and perm are protected by
// Mu; type is fixed at construction and never changes.
type Inode struct {
	Mu syncutil.InvariantMutex

	typ   Type
	mount *Mount

	// perm is the guest-visible 9-bit mode. The host-visible mode is always
	// perm|0o400 (§4.4); that forcing happens at the call sites that talk to
	// the PAL, not here.
	perm uint32
	// size is meaningful only for REG; DIR/CHR always report 0.
	size int64
}

// New constructs an inode of the given type, permission bits, and size.
// size is ignored (forced to 0) unless typ is REG, per the invariant that
// only regular files report a nonzero size.
func New(typ Type, mount *Mount, perm uint32, size int64) *Inode {
	in := &Inode{typ: typ, mount: mount, perm: perm & 0o777}
	if typ == REG {
		in.size = size
	}
	in.Mu = syncutil.NewInvariantMutex(in.checkInvariants)
	return in
}

// LOCKS_REQUIRED(in.Mu)
func (in *Inode) checkInvariants() {
	if in.typ != REG && in.size != 0 {
		panic("inode: non-REG inode has nonzero size")
	}
}

func (in *Inode) Type() Type   { return in.typ }
func (in *Inode) Mount() *Mount { return in.mount }

// Size returns the cached size. Callers must hold Mu.
//
// LOCKS_REQUIRED(in.Mu)
func (in *Inode) Size() int64 { return in.size }

// SetSize overwrites the cached size. Callers must hold Mu.
//
// LOCKS_REQUIRED(in.Mu)
func (in *Inode) SetSize(n int64) { in.size = n }

// Perm returns the cached guest-visible permission bits. Callers must hold
// Mu.
//
// LOCKS_REQUIRED(in.Mu)
func (in *Inode) Perm() uint32 { return in.perm }

// SetPerm overwrites the cached guest-visible permission bits. Callers must
// hold Mu.
//
// LOCKS_REQUIRED(in.Mu)
func (in *Inode) SetPerm(p uint32) { in.perm = p & 0o777 }

// HostPerm is the mode always presented to the PAL: read is forced on
// regardless of the guest-requested perm (§4.4).
//
// LOCKS_REQUIRED(in.Mu)
func (in *Inode) HostPerm() uint32 { return in.perm | 0o400 }

// Stat is the generic stat/hstat fill helper (§4.2): mode = type | perm,
// size from the inode, nlink synthesized (2 for DIR, 1 otherwise; exact
// link counts are not maintained), dev = hash(mount.uri).
//
// LOCKS_REQUIRED(in.Mu)
type Stat struct {
	Mode  uint32
	Size  int64
	Nlink uint32
	Dev   uint64
}

// LOCKS_REQUIRED(in.Mu)
func (in *Inode) FillStat() Stat {
	nlink := uint32(1)
	if in.typ == DIR {
		nlink = 2
	}
	return Stat{
		Mode:  in.typ.StatMode() | in.perm,
		Size:  in.size,
		Nlink: nlink,
		Dev:   in.mount.StatDev(),
	}
}

// PollReadable reports whether a REG handle at position pos is readable.
// Writable is always true for REG files. This deliberately reports
// not-readable at EOF (pos == size), a known inaccuracy carried forward
// from the original design rather than fixed.
//
// LOCKS_REQUIRED(in.Mu)
func (in *Inode) PollReadable(pos int64) bool {
	return pos < in.size
}

// SeekOrigin mirrors POSIX SEEK_SET/SEEK_CUR/SEEK_END.
type SeekOrigin int

const (
	SeekSet SeekOrigin = iota
	SeekCur
	SeekEnd
)

// Seek computes the new position for a seek(2) call against pos/size,
// applying the generic arithmetic of §4.2. It does not mutate any state;
// callers holding handle.lock apply the result themselves.
func Seek(pos, size, offset int64, origin SeekOrigin) (int64, error) {
	var base int64
	switch origin {
	case SeekSet:
		base = 0
	case SeekCur:
		base = pos
	case SeekEnd:
		base = size
	default:
		return 0, errs.InvalidArgf("seek", "unknown origin %d", origin)
	}

	newPos, ok := addOverflowChecked(base, offset)
	if !ok {
		return 0, errs.Overflowf("seek", "base=%d offset=%d overflows int64", base, offset)
	}
	if newPos < 0 {
		return 0, errs.InvalidArgf("seek", "resulting position %d is negative", newPos)
	}
	return newPos, nil
}

// addOverflowChecked adds a and b, reporting whether the sum overflowed a
// signed 64-bit integer.
func addOverflowChecked(a, b int64) (int64, bool) {
	sum := a + b
	// Overflow happened iff the operands had the same sign and the result's
	// sign differs from theirs.
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	if a == math.MinInt64 && b == math.MinInt64 {
		return 0, false
	}
	return sum, true
}
