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
	"golang.org/x/sys/unix"

	"github.com/jacobsa/syncutil"

	"github.com/jacobsa/libos/chrootfs/inode"
	"github.com/jacobsa/libos/chrootfs/pal"
	"github.com/jacobsa/libos/internal/errs"
)

// Handle is an open-file object: a dentry/inode pair, the exact URI it was
// opened with, a position, and (usually) a live PAL capability. pos is
// meaningful only for REG; for DIR/CHR it is never read (§3).
type Handle struct {
	Mu syncutil.InvariantMutex

	dentry *Dentry
	in     *inode.Inode
	uri    string
	pos    int64
	flags  int

	// pal is set by doOpen or Checkin and cleared to nil by Close.
	pal *pal.Handle
}

// LOCKS_REQUIRED(h.Mu)
func (h *Handle) checkInvariants() {
	if h.pos < 0 {
		panic("chrootfs: handle position went negative")
	}
}

func (h *Handle) Dentry() *Dentry { return h.dentry }
func (h *Handle) Inode() *inode.Inode { return h.in }
func (h *Handle) URI() string { return h.uri }

// Pos returns the handle's current position. Callers must hold h.Mu.
//
// LOCKS_REQUIRED(h.Mu)
func (h *Handle) Pos() int64 { return h.pos }

// translateFlags maps POSIX open(2) flags onto the PAL's
// (access, create_mode, options) triple (SUPPLEMENTED FEATURE #3),
// grounded on gvisor's host.go flag masking against O_ACCMODE.
func translateFlags(flags int) (pal.AccessMode, pal.CreateMode, pal.OpenOptions) {
	var access pal.AccessMode
	switch flags & unix.O_ACCMODE {
	case unix.O_WRONLY:
		access = pal.AccessWRONLY
	case unix.O_RDWR:
		access = pal.AccessRDWR
	default:
		access = pal.AccessRDONLY
	}

	create := pal.CreateNever
	switch {
	case flags&unix.O_CREAT != 0 && flags&unix.O_EXCL != 0:
		create = pal.CreateAlwaysFail
	case flags&unix.O_CREAT != 0:
		create = pal.CreateOrOpen
	}

	opts := pal.OpenOptions{
		Truncate: flags&unix.O_TRUNC != 0,
		Append:   flags&unix.O_APPEND != 0,
	}
	return access, create, opts
}

// doOpen is the single internal routine behind open/creat/mkdir (§4.4). It
// builds the concrete URI, translates flags, forces the host-visible read
// bit, and invokes the PAL. If hdl is non-nil the new PAL handle is
// transferred into it (pos reset to 0); otherwise it is closed immediately
// after the call, as creat/mkdir callers that don't bind a guest handle
// do.
//
// LOCKS_REQUIRED(dent.mount.DcacheLock)
func doOpen(hdl *Handle, dent *Dentry, typ inode.Type, flags int, perm uint32) error {
	uri := uriFor(dent, fromInodeType(typ))
	access, create, opts := translateFlags(flags)
	hostPerm := perm | 0o400

	palHdl, err := pal.StreamOpen(uri, access, hostPerm, create, opts)
	if err != nil {
		return errs.FromPAL("open", err)
	}

	if hdl == nil {
		return errs.FromPAL("open", pal.ObjectClose(palHdl))
	}

	hdl.dentry = dent
	hdl.in = dent.Inode()
	hdl.uri = uri
	hdl.pos = 0
	hdl.flags = flags
	hdl.pal = palHdl
	hdl.Mu = syncutil.NewInvariantMutex(hdl.checkInvariants)
	dent.IncRef()
	return nil
}

// Open opens an already-materialized dentry using its existing inode's
// type, binding a new handle.
//
// LOCKS_REQUIRED(dent.mount.DcacheLock)
func Open(dent *Dentry, flags int) (*Handle, error) {
	if dent.Inode() == nil {
		return nil, errs.InvalidArgf("open", "dentry has no materialized inode")
	}
	hdl := &Handle{}
	if err := doOpen(hdl, dent, dent.Inode().Type(), flags, dent.Inode().Perm()); err != nil {
		return nil, err
	}
	return hdl, nil
}

// Creat creates a new regular file named name under parent with O_CREAT|
// O_EXCL, binding a new handle and materializing parent's child inode.
//
// LOCKS_REQUIRED(parent.mount.DcacheLock)
func Creat(parent *Dentry, name string, perm uint32, flags int) (*Handle, error) {
	child := parent.lookupOrCreateChildLocked(name)
	child.SetInode(inode.New(inode.REG, parent.mount.inodeHandle(), perm, 0))

	hdl := &Handle{}
	openFlags := flags | unix.O_CREAT | unix.O_EXCL
	if err := doOpen(hdl, child, inode.REG, openFlags, perm); err != nil {
		child.ClearInode()
		child.evictIfUnreferencedLocked()
		return nil, err
	}
	return hdl, nil
}

// Mkdir creates a new directory named name under parent. No handle is
// bound, matching §4.4's "mkdir is identical but type=DIR, with no handle
// bound".
//
// LOCKS_REQUIRED(parent.mount.DcacheLock)
func Mkdir(parent *Dentry, name string, perm uint32) error {
	child := parent.lookupOrCreateChildLocked(name)
	child.SetInode(inode.New(inode.DIR, parent.mount.inodeHandle(), perm, 0))

	openFlags := unix.O_CREAT | unix.O_EXCL
	if err := doOpen(nil, child, inode.DIR, openFlags, perm); err != nil {
		child.ClearInode()
		child.evictIfUnreferencedLocked()
		return err
	}
	return nil
}

// Close releases h's PAL handle (if any) and drops its dentry reference.
// Must be called exactly once per successfully opened handle.
//
// LOCKS_REQUIRED(h.dentry.mount.DcacheLock)
// LOCKS_REQUIRED(h.Mu)
func Close(h *Handle) error {
	var err error
	if h.pal != nil {
		err = errs.FromPAL("close", pal.ObjectClose(h.pal))
		h.pal = nil
	}
	h.dentry.DecRef()
	return err
}
