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
	"github.com/jacobsa/libos/chrootfs/pal"
	"github.com/jacobsa/libos/internal/errs"
	"github.com/jacobsa/libos/internal/logger"
)

// materialize probes the host for dent's attributes and attaches a new
// inode, per §4.3. Callers must hold dent.mount.DcacheLock.
//
// LOCKS_REQUIRED(dent.mount.DcacheLock)
func materialize(dent *Dentry) error {
	uri := uriFor(dent, Keep)

	attrs, err := pal.StreamAttributesQuery(uri)
	if err != nil {
		return errs.FromPAL("lookup", err)
	}

	var typ inode.Type
	switch attrs.Type {
	case pal.TypeFile:
		typ = inode.REG
	case pal.TypeDir:
		typ = inode.DIR
	case pal.TypeDev:
		typ = inode.CHR
	case pal.TypePipe:
		logger.Warnf("lookup: %s is a host FIFO, not supported", uri)
		return errs.PermissionDeniedf("lookup", "%s is a host FIFO", uri)
	default:
		errs.Bug("lookup", "PAL returned unclassifiable handle type for %s", uri)
		return nil // unreachable: errs.Bug panics
	}

	size := int64(0)
	if typ == inode.REG {
		size = attrs.PendingSize
	}

	in := inode.New(typ, dent.mount.inodeHandle(), attrs.ShareFlags, size)
	dent.SetInode(in)
	return nil
}

// lookupChild resolves name under parent, materializing the child dentry's
// inode if this is its first lookup. The returned dentry carries no extra
// reference; callers that bind a handle to it must IncRef it themselves.
// Holds no lock itself; callers must hold parent.mount.DcacheLock across
// the call.
//
// LOCKS_REQUIRED(parent.mount.DcacheLock)
func lookupChild(parent *Dentry, name string) (*Dentry, error) {
	child := parent.lookupOrCreateChildLocked(name)
	if child.Inode() == nil {
		if err := materialize(child); err != nil {
			child.evictIfUnreferencedLocked()
			return nil, err
		}
	}
	return child, nil
}
