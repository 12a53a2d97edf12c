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
	"github.com/jacobsa/syncutil"

	"github.com/jacobsa/libos/chrootfs/inode"
	"github.com/jacobsa/libos/chrootfs/pal"
	"github.com/jacobsa/libos/internal/errs"
)

// Checkpoint is the serializable snapshot of a Handle produced by Checkout
// and consumed by Checkin (§4.8). pal is nil when the PAL handle was
// dropped opportunistically and must be reopened by the receiver.
type Checkpoint struct {
	dentry *Dentry
	in     *inode.Inode
	uri    string
	pos    int64
	flags  int
	pal    *pal.Handle
}

// Checkout snapshots h for checkpointing. If h's dentry still points at
// the same inode h was opened against (it was not renamed or replaced
// under us) and a fresh attribute query against h.uri still succeeds, the
// PAL handle is dropped from the snapshot; the receiver reopens it by URI.
// Otherwise the live PAL handle is carried across verbatim.
//
// This is sender-side and runs with the dcache lock held, per §5's list of
// dcache-lock-requiring operations.
//
// LOCKS_REQUIRED(h.dentry.mount.DcacheLock)
// LOCKS_REQUIRED(h.Mu)
func Checkout(h *Handle) *Checkpoint {
	cp := &Checkpoint{
		dentry: h.dentry,
		in:     h.in,
		uri:    h.uri,
		pos:    h.pos,
		flags:  h.flags,
		pal:    h.pal,
	}

	if h.dentry.Inode() != h.in {
		return cp
	}
	if _, err := pal.StreamAttributesQuery(h.uri); err != nil {
		return cp
	}

	cp.pal = nil
	return cp
}

// Checkin reconstructs a live Handle from cp, reopening the PAL handle by
// its stored URI (flags preserved, create=NEVER) if Checkout dropped it.
// A reopen failure propagates to the caller; the checkpoint restore fails
// for that handle.
func Checkin(cp *Checkpoint) (*Handle, error) {
	palHdl := cp.pal
	if palHdl == nil {
		access, _, opts := translateFlags(cp.flags)
		var err error
		palHdl, err = pal.StreamOpen(cp.uri, access, cp.in.HostPerm(), pal.CreateNever, opts)
		if err != nil {
			return nil, errs.FromPAL("checkin", err)
		}
	}

	hdl := &Handle{dentry: cp.dentry, in: cp.in, uri: cp.uri, pos: cp.pos, flags: cp.flags, pal: palHdl}
	hdl.Mu = syncutil.NewInvariantMutex(hdl.checkInvariants)
	cp.dentry.IncRef()
	return hdl, nil
}
