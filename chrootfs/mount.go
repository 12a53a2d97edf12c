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
	"github.com/jacobsa/timeutil"

	"github.com/jacobsa/libos/chrootfs/inode"
	"github.com/jacobsa/libos/internal/cfg"
)

// Mount binds a guest-visible namespace to a PAL URI prefix. It owns the
// dentry cache tree (g_dcache_lock in the spec's terminology) and a clock,
// which it stores and returns from Clock but does not read itself.
//
// DcacheLock is the single global mutex guarding the whole tree: every
// dentry-tree-mutating or dentry-lookup operation (lookup, open, creat,
// mkdir, unlink, rename, chmod, checkout) must hold it, mirroring the
// teacher's fs.mu covering its entire inode table (fs/fs.go).
type Mount struct {
	DcacheLock syncutil.InvariantMutex

	inodeMount *inode.Mount
	root       *Dentry
	clock      timeutil.Clock

	defaultFilePerm uint32
	defaultDirPerm  uint32
}

// NewMount validates uriPrefix (must be file: or dev:, per §3) and
// constructs a Mount with a fresh root dentry. clock is stored and returned
// by Clock; nothing in this package reads it.
func NewMount(uriPrefix string, clock timeutil.Clock) (*Mount, error) {
	im, err := inode.NewMount(uriPrefix)
	if err != nil {
		return nil, err
	}

	m := &Mount{inodeMount: im, clock: clock, defaultFilePerm: 0o644, defaultDirPerm: 0o755}
	m.DcacheLock = syncutil.NewInvariantMutex(m.checkInvariants)
	m.root = newRootDentry(m)
	return m, nil
}

// NewMountFromConfig constructs a Mount from a loaded configuration,
// using timeutil.RealClock and recording the config's default permission
// bits on the Mount. Creat and Mkdir do not consult those defaults; they
// always use the perm they are given.
func NewMountFromConfig(c cfg.MountConfig) (*Mount, error) {
	m, err := NewMount(c.UriPrefix, timeutil.RealClock())
	if err != nil {
		return nil, err
	}
	m.defaultFilePerm = c.DefaultFilePerm & 0o777
	m.defaultDirPerm = c.DefaultDirPerm & 0o777
	return m, nil
}

// LOCKS_REQUIRED(m.DcacheLock)
func (m *Mount) checkInvariants() {
	if m.root != nil && !m.root.IsRoot() {
		panic("chrootfs: mount root dentry has a parent")
	}
}

// UriPrefix returns the mount's PAL URI prefix.
func (m *Mount) UriPrefix() string { return m.inodeMount.UriPrefix }

// Root returns the mount's root dentry.
func (m *Mount) Root() *Dentry { return m.root }

// Clock returns the mount's clock.
func (m *Mount) Clock() timeutil.Clock { return m.clock }

func (m *Mount) inodeHandle() *inode.Mount { return m.inodeMount }
