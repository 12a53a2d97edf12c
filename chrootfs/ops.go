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
	"github.com/jacobsa/libos/chrootfs/inode"
	"github.com/jacobsa/libos/internal/errs"
)

// FileSystem is the filesystem descriptor exposed to the guest syscall
// dispatcher (§6): {name="chroot", fs_ops, d_ops}. Its methods are the two
// operation tables; attaching them to an actual dispatcher is the job of
// the surrounding library OS, outside this package's scope.
type FileSystem struct {
	Name  string
	mount *Mount
}

// NewFileSystem wraps mount as a guest-visible chroot filesystem.
func NewFileSystem(mount *Mount) *FileSystem {
	return &FileSystem{Name: "chroot", mount: mount}
}

func (fs *FileSystem) Mount() *Mount { return fs.mount }

// -- dentry-ops ---------------------------------------------------------

// Lookup resolves name under parent, materializing its inode on first
// access. Acquires the dcache lock for the duration of the call.
func (fs *FileSystem) Lookup(parent *Dentry, name string) (*Dentry, error) {
	fs.mount.DcacheLock.Lock()
	defer fs.mount.DcacheLock.Unlock()
	return lookupChild(parent, name)
}

// DOpen opens an already-materialized dentry, binding a new handle.
func (fs *FileSystem) DOpen(dent *Dentry, flags int) (*Handle, error) {
	fs.mount.DcacheLock.Lock()
	defer fs.mount.DcacheLock.Unlock()
	return Open(dent, flags)
}

// Creat creates and opens a new regular file under parent.
func (fs *FileSystem) Creat(parent *Dentry, name string, perm uint32, flags int) (*Handle, error) {
	fs.mount.DcacheLock.Lock()
	defer fs.mount.DcacheLock.Unlock()
	return Creat(parent, name, perm, flags)
}

// Mkdir creates a new directory under parent.
func (fs *FileSystem) Mkdir(parent *Dentry, name string, perm uint32) error {
	fs.mount.DcacheLock.Lock()
	defer fs.mount.DcacheLock.Unlock()
	return Mkdir(parent, name, perm)
}

// Stat is the generic stat helper (§4.2), applied to an already
// materialized dentry.
func (fs *FileSystem) Stat(dent *Dentry) (inode.Stat, error) {
	fs.mount.DcacheLock.Lock()
	defer fs.mount.DcacheLock.Unlock()

	in := dent.Inode()
	if in == nil {
		return inode.Stat{}, errs.InvalidArgf("stat", "dentry has no materialized inode")
	}
	return in.FillStat(), nil
}

// Readdir invokes fn once for each cached child dentry that carries a
// materialized inode (§4.2's cached iteration, not the host-backed scan).
func (fs *FileSystem) Readdir(dent *Dentry, fn func(name string, typ DirentType)) {
	fs.mount.DcacheLock.Lock()
	defer fs.mount.DcacheLock.Unlock()
	ReaddirCached(dent, fn)
}

// Unlink removes name's on-disk object under parent.
func (fs *FileSystem) Unlink(parent *Dentry, name string) error {
	fs.mount.DcacheLock.Lock()
	defer fs.mount.DcacheLock.Unlock()

	child := parent.childLocked(name)
	if child == nil || child.Inode() == nil {
		return errs.InvalidArgf("unlink", "%s has no materialized inode", name)
	}
	return Unlink(child)
}

// RenameByName resolves srcName under srcParent (materializing it if it is
// not cached), then renames it to dstName under dstParent.
func (fs *FileSystem) RenameByName(srcParent *Dentry, srcName string, dstParent *Dentry, dstName string) error {
	fs.mount.DcacheLock.Lock()
	defer fs.mount.DcacheLock.Unlock()

	src, err := lookupChild(srcParent, srcName)
	if err != nil {
		return err
	}
	return Rename(src, dstParent, dstName)
}

// DChmod sets the permission bits of an already-materialized dentry.
func (fs *FileSystem) DChmod(dent *Dentry, perm uint32) error {
	fs.mount.DcacheLock.Lock()
	defer fs.mount.DcacheLock.Unlock()

	in := dent.Inode()
	if in == nil {
		return errs.InvalidArgf("chmod", "dentry has no materialized inode")
	}
	in.Mu.Lock()
	defer in.Mu.Unlock()
	return Chmod(dent, perm)
}

// -- file-ops -------------------------------------------------------------

// HRead reads into buf at h's current position.
func (fs *FileSystem) HRead(h *Handle, buf []byte) (int, error) {
	h.Mu.Lock()
	defer h.Mu.Unlock()
	return Read(h, buf)
}

// HWrite writes buf at h's current position, observing the inode-before-
// handle lock order (§4.5, §5).
func (fs *FileSystem) HWrite(h *Handle, buf []byte) (int, error) {
	h.in.Mu.Lock()
	defer h.in.Mu.Unlock()
	h.Mu.Lock()
	defer h.Mu.Unlock()
	return Write(h, buf)
}

// HSeek applies the generic seek arithmetic (§4.2) to h. The inode lock is
// acquired before the handle lock, preserving the dcache → inode → handle
// order (§5) even though seek itself only needs a consistent read of size.
func (fs *FileSystem) HSeek(h *Handle, offset int64, origin inode.SeekOrigin) (int64, error) {
	isReg := h.in.Type() == inode.REG
	if isReg {
		h.in.Mu.Lock()
	}
	h.Mu.Lock()

	var size int64
	if isReg {
		size = h.in.Size()
	}
	newPos, err := inode.Seek(h.pos, size, offset, origin)
	if err == nil {
		h.pos = newPos
	}

	h.Mu.Unlock()
	if isReg {
		h.in.Mu.Unlock()
	}

	if err != nil {
		return 0, err
	}
	return newPos, nil
}

// HStat is the generic stat/hstat helper (§4.2) applied to an open handle.
func (fs *FileSystem) HStat(h *Handle) inode.Stat {
	h.in.Mu.Lock()
	defer h.in.Mu.Unlock()
	return h.in.FillStat()
}

// HTruncate sets h's inode size via the PAL, under the inode lock.
func (fs *FileSystem) HTruncate(h *Handle, n int64) error {
	h.in.Mu.Lock()
	defer h.in.Mu.Unlock()
	return Truncate(h, n)
}

// HFlush is a thin pass-through to the PAL.
func (fs *FileSystem) HFlush(h *Handle) error {
	return Flush(h)
}

// HPoll derives readiness for h (§4.2): REG handles are always writable;
// readable iff pos < size. This deliberately reports not-readable at EOF,
// a known inaccuracy carried forward rather than fixed.
func (fs *FileSystem) HPoll(h *Handle) (readable, writable bool) {
	if h.in.Type() != inode.REG {
		return true, true
	}
	h.in.Mu.Lock()
	defer h.in.Mu.Unlock()
	h.Mu.Lock()
	defer h.Mu.Unlock()
	return h.in.PollReadable(h.pos), true
}

// HCheckout snapshots h for checkpointing.
func (fs *FileSystem) HCheckout(h *Handle) *Checkpoint {
	fs.mount.DcacheLock.Lock()
	defer fs.mount.DcacheLock.Unlock()
	h.Mu.Lock()
	defer h.Mu.Unlock()
	return Checkout(h)
}

// HCheckin restores a handle from a checkpoint snapshot.
func (fs *FileSystem) HCheckin(cp *Checkpoint) (*Handle, error) {
	fs.mount.DcacheLock.Lock()
	defer fs.mount.DcacheLock.Unlock()
	return Checkin(cp)
}

// HClose releases h.
func (fs *FileSystem) HClose(h *Handle) error {
	fs.mount.DcacheLock.Lock()
	defer fs.mount.DcacheLock.Unlock()
	h.Mu.Lock()
	defer h.Mu.Unlock()
	return Close(h)
}
