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
	"github.com/jacobsa/libos/chrootfs/pal"
	"github.com/jacobsa/libos/internal/errs"
)

// openTemp opens a short-lived read-only PAL handle on dent, used by the
// namespace mutations below. Every caller closes it before returning,
// never transferring it into a guest-visible Handle (§5 "Resource
// discipline").
func openTemp(dent *Dentry) (*pal.Handle, error) {
	uri := uriFor(dent, fromInodeType(dent.Inode().Type()))
	h, err := pal.StreamOpen(uri, pal.AccessRDONLY, dent.Inode().HostPerm(), pal.CreateNever, pal.OpenOptions{})
	if err != nil {
		return nil, errs.FromPAL("namespace", err)
	}
	return h, nil
}

// Unlink removes dent's on-disk object. The dentry's inode is cleared, but
// any handle already open on it retains its own inode reference and stays
// usable (§3 Lifecycle, §4.7).
//
// LOCKS_REQUIRED(dent.mount.DcacheLock)
func Unlink(dent *Dentry) error {
	temp, err := openTemp(dent)
	if err != nil {
		return err
	}
	defer pal.ObjectClose(temp)

	if err := temp.Delete(pal.ALL); err != nil {
		return errs.FromPAL("unlink", err)
	}

	dent.ClearInode()
	dent.evictIfUnreferencedLocked()
	return nil
}

// Rename moves src to be named dstName under dstParent, preserving src's
// inode (§4.7, §3 "Rename preserves inode and mutates path").
//
// LOCKS_REQUIRED(src.mount.DcacheLock)
// LOCKS_REQUIRED(dstParent.mount.DcacheLock)
func Rename(src *Dentry, dstParent *Dentry, dstName string) error {
	temp, err := openTemp(src)
	if err != nil {
		return err
	}
	defer pal.ObjectClose(temp)

	// A transient dentry, not inserted into dstParent's children, exists
	// only so uriFor can compute the destination path from the tree
	// structure.
	dst := &Dentry{parent: dstParent, name: dstName, mount: dstParent.mount}
	dstURI := uriFor(dst, fromInodeType(src.Inode().Type()))

	if err := temp.ChangeName(dstURI); err != nil {
		return errs.FromPAL("rename", err)
	}

	srcParent := src.parent
	srcParent.removeChildLocked(src.name)
	if existing, ok := dstParent.children[dstName]; ok {
		existing.ClearInode()
	}
	src.parent = dstParent
	src.name = dstName
	dstParent.children[dstName] = src
	srcParent.evictIfUnreferencedLocked()
	return nil
}

// Chmod sets dent's inode permission bits and the corresponding host share
// flags (§4.7).
//
// LOCKS_REQUIRED(dent.Inode().Mu)
// LOCKS_REQUIRED(dent.mount.DcacheLock)
func Chmod(dent *Dentry, perm uint32) error {
	temp, err := openTemp(dent)
	if err != nil {
		return err
	}
	defer pal.ObjectClose(temp)

	if err := temp.AttributesSetByHandle(perm | 0o400); err != nil {
		return errs.FromPAL("chmod", err)
	}

	dent.Inode().SetPerm(perm)
	return nil
}
