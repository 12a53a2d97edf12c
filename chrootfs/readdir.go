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
	"context"
	"strings"

	"golang.org/x/time/rate"

	"github.com/jacobsa/libos/chrootfs/inode"
	"github.com/jacobsa/libos/chrootfs/pal"
	"github.com/jacobsa/libos/internal/errs"
)

// readdirLimiter bounds how often ReaddirHost hits the PAL, so a
// pathological host directory (or a guest spinning on readdir) can't turn
// into a tight syscall loop. Burst allows normal single-shot listings
// through without waiting.
var readdirLimiter = rate.NewLimiter(rate.Limit(64), 64)

// DirentType tags a readdir callback invocation with the child's known
// inode type, or DirentUnknown if the child hasn't been materialized yet
// (SUPPLEMENTED FEATURE #5: the dentry-ops readdir callback needs a
// (name, type) pair, not just a name).
type DirentType int

const (
	DirentUnknown DirentType = iota
	DirentReg
	DirentDir
	DirentChr
)

func direntTypeOf(in *inode.Inode) DirentType {
	if in == nil {
		return DirentUnknown
	}
	switch in.Type() {
	case inode.DIR:
		return DirentDir
	case inode.CHR:
		return DirentChr
	default:
		return DirentReg
	}
}

// ReaddirCached is the generic cached iteration helper of §4.2: it walks
// dent's in-memory children and invokes fn for each one that already has a
// materialized inode, skipping the rest (on-disk listing is ReaddirHost's
// job, not this helper's).
//
// LOCKS_REQUIRED(dent.mount.DcacheLock)
func ReaddirCached(dent *Dentry, fn func(name string, typ DirentType)) {
	for _, c := range dent.Children() {
		if c.Inode() == nil {
			continue
		}
		fn(c.Name(), direntTypeOf(c.Inode()))
	}
}

// readdirChunkSize is how many names the host-backed listing (§4.6) hands
// to the callback per rate-limiter token; the names themselves are read
// from the PAL in one call. An implementation constant, not spec-mandated.
const readdirChunkSize = 4096

// ReaddirHost lists dent's on-disk entries directly from the PAL,
// independent of what is currently cached in the dentry tree (§4.6). It
// opens a temporary read-only handle, closing it before returning on every
// path.
//
// LOCKS_REQUIRED(dent.mount.DcacheLock)
func ReaddirHost(dent *Dentry, fn func(name string, typ DirentType)) error {
	uri := uriFor(dent, Dir)

	h, err := pal.StreamOpen(uri, pal.AccessRDONLY, 0, pal.CreateNever, pal.OpenOptions{})
	if err != nil {
		return errs.FromPAL("readdir", err)
	}
	defer pal.ObjectClose(h)

	names, err := h.ReadDirNames()
	if err != nil {
		return errs.FromPAL("readdir", err)
	}

	for i := 0; i < len(names); i += readdirChunkSize {
		if err := readdirLimiter.Wait(context.Background()); err != nil {
			return errs.FromPAL("readdir", err)
		}

		end := i + readdirChunkSize
		if end > len(names) {
			end = len(names)
		}

		for _, name := range names[i:end] {
			if name == "" {
				errs.Bug("readdir", "PAL returned an empty directory entry name for %s", uri)
			}

			typ := DirentReg
			trimmed := strings.TrimSuffix(name, "/")
			if trimmed != name {
				typ = DirentDir
			}
			fn(trimmed, typ)
		}
	}
	return nil
}
