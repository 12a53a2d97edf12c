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
)

// Dentry is a node in the in-memory directory cache tree. parent is a
// non-owning back-reference (nil only at the mount root); children is an
// owning map keyed by name. inode is absent until lookup materializes it.
//
// All fields are protected by the owning Mount's dcache lock (g_dcache_lock
// in the spec's terminology), never by a per-dentry lock: the dcache lock
// is global across the whole mount, matching the teacher's fs.mu coverage
// of its entire inode/handle bookkeeping.
type Dentry struct {
	parent *Dentry
	name   string
	mount  *Mount

	in *inode.Inode

	children map[string]*Dentry

	// refs counts live references to this dentry: one for each handle bound
	// to it. Children are not counted here; they keep the dentry alive
	// through the children map. A dentry with refs == 0 and no children is
	// dropped from its parent's children map (SUPPLEMENTED
	// FEATURE #2), generalizing the teacher's per-inode lookupCount
	// (fs/inode/lookup_count.go) to "dentry is still referenced."
	refs uint64
}

// newRootDentry constructs the dentry at the root of mount m. Its parent is
// nil: rename/lookup code must treat that as "this is the mount root"
// rather than walking further up (SUPPLEMENTED FEATURE #6).
func newRootDentry(m *Mount) *Dentry {
	return &Dentry{name: "", mount: m, children: make(map[string]*Dentry)}
}

// IsRoot reports whether d has no parent, i.e. is the mount root.
func (d *Dentry) IsRoot() bool { return d.parent == nil }

// Name returns the dentry's own path component. The root dentry's name is
// the empty string.
func (d *Dentry) Name() string { return d.name }

// Parent returns d's parent, or nil at the mount root.
func (d *Dentry) Parent() *Dentry { return d.parent }

// Mount returns the mount d belongs to.
func (d *Dentry) Mount() *Mount { return d.mount }

// Inode returns the materialized inode for d, or nil if lookup has not yet
// run.
//
// LOCKS_REQUIRED(d.mount.DcacheLock)
func (d *Dentry) Inode() *inode.Inode { return d.in }

// SetInode attaches in as d's materialized inode.
//
// LOCKS_REQUIRED(d.mount.DcacheLock)
func (d *Dentry) SetInode(in *inode.Inode) { d.in = in }

// ClearInode detaches d's inode without touching the dentry tree itself,
// the unlink step of "unlink detaches inode from dentry; handles retain
// their own reference and remain usable" (§3 Lifecycle).
//
// LOCKS_REQUIRED(d.mount.DcacheLock)
func (d *Dentry) ClearInode() { d.in = nil }

// childLocked returns d's child named name, or nil.
//
// LOCKS_REQUIRED(d.mount.DcacheLock)
func (d *Dentry) childLocked(name string) *Dentry {
	return d.children[name]
}

// lookupOrCreateChildLocked returns d's child named name, creating an
// unmaterialized one (no inode yet) if it does not already exist.
//
// LOCKS_REQUIRED(d.mount.DcacheLock)
func (d *Dentry) lookupOrCreateChildLocked(name string) *Dentry {
	if c, ok := d.children[name]; ok {
		return c
	}
	c := &Dentry{parent: d, name: name, mount: d.mount, children: make(map[string]*Dentry)}
	d.children[name] = c
	return c
}

// removeChildLocked detaches the child named name from d, if present. A
// child's own departure may now leave d itself unreferenced and childless,
// so the callers (evictIfUnreferencedLocked, Rename) re-check d's own
// eviction after this returns.
//
// LOCKS_REQUIRED(d.mount.DcacheLock)
func (d *Dentry) removeChildLocked(name string) {
	delete(d.children, name)
}

// Children returns a snapshot slice of d's children, for readdir iteration
// (§4.2 "Readdir (cached)"). Callers must hold the dcache lock for the
// duration of iteration.
//
// LOCKS_REQUIRED(d.mount.DcacheLock)
func (d *Dentry) Children() []*Dentry {
	out := make([]*Dentry, 0, len(d.children))
	for _, c := range d.children {
		out = append(out, c)
	}
	return out
}

// IncRef records a new reference to d (a handle binding, or a lookup that
// keeps d alive across a call). Must be paired with DecRef.
//
// LOCKS_REQUIRED(d.mount.DcacheLock)
func (d *Dentry) IncRef() { d.refs++ }

// DecRef drops a reference to d and, if d is now unreferenced and childless
// and not the root, removes it from its parent's children map.
//
// LOCKS_REQUIRED(d.mount.DcacheLock)
func (d *Dentry) DecRef() {
	if d.refs > 0 {
		d.refs--
	}
	d.evictIfUnreferencedLocked()
}

// evictIfUnreferencedLocked removes d from its parent's children map if it
// is unreferenced and childless, then checks whether that departure leaves
// the parent itself evictable in turn.
//
// LOCKS_REQUIRED(d.mount.DcacheLock)
func (d *Dentry) evictIfUnreferencedLocked() {
	if d.IsRoot() || d.refs > 0 || len(d.children) > 0 {
		return
	}
	parent := d.parent
	parent.removeChildLocked(d.name)
	parent.evictIfUnreferencedLocked()
}

// path returns the dentry's path components from the mount root down to d,
// exclusive of the root's own empty name.
//
// LOCKS_REQUIRED(d.mount.DcacheLock)
func (d *Dentry) path() []string {
	if d.IsRoot() {
		return nil
	}
	return append(d.parent.path(), d.name)
}
