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
	"strings"

	"github.com/jacobsa/libos/chrootfs/inode"
)

// UriType is the file-type flag passed to uriFor. It differs from
// inode.Type by adding Keep, used for the initial probe lookup where the
// concrete type is not yet known.
type UriType int

const (
	Reg UriType = iota
	Dir
	Chr
	// Keep preserves the mount's own scheme. The PAL distinguishes dev:tty
	// from file:tty, so the first probe of a dentry must use the mount's
	// scheme rather than guessing; callers rewrite to the concrete type once
	// the PAL's classification is known (§4.1).
	Keep
)

func fromInodeType(t inode.Type) UriType {
	switch t {
	case inode.DIR:
		return Dir
	case inode.CHR:
		return Chr
	default:
		return Reg
	}
}

// uriFor computes the PAL URI for dent under the given type flag. It never
// fails in this implementation: the only documented failure mode
// (OUT_OF_MEMORY on allocation) cannot occur against Go's garbage-collected
// string builder, so it is not modeled as a returned error, consistent with
// the rest of this package's memory-safe idioms.
func uriFor(dent *Dentry, t UriType) string {
	root := dent.mount.inodeHandle().Root()

	var prefix string
	switch t {
	case Reg:
		prefix = "file:"
	case Dir:
		prefix = "dir:"
	case Chr:
		prefix = "dev:"
	case Keep:
		scheme, _, _ := cutScheme(dent.mount.UriPrefix())
		prefix = scheme
	}

	rel := strings.Join(dent.path(), "/")

	var b strings.Builder
	b.Grow(len(prefix) + len(root) + 1 + len(rel))
	b.WriteString(prefix)
	b.WriteString(root)
	if rel != "" {
		b.WriteByte('/')
		b.WriteString(rel)
	}
	return b.String()
}

func cutScheme(uri string) (scheme, rest string, ok bool) {
	i := strings.IndexByte(uri, ':')
	if i < 0 {
		return "", "", false
	}
	return uri[:i+1], uri[i+1:], true
}
