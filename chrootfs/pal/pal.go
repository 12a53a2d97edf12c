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

// Package pal is the platform abstraction layer the chroot personality sits
// on top of: a typed-URI stream namespace backed by the host filesystem.
// Everything in this package is the personality's one trusted collaborator;
// the personality itself never touches the host filesystem except through
// here.
package pal

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// HandleType classifies what a URI resolves to on the host.
type HandleType int

const (
	// TypeUnknown is never returned from a successful query; it exists so
	// zero-valued Attrs are visibly invalid.
	TypeUnknown HandleType = iota
	TypeFile
	TypeDir
	TypeDev
	// TypePipe is returned only from StreamAttributesQuery, to let callers
	// reject host FIFOs explicitly rather than mishandle them as files.
	TypePipe
)

func (t HandleType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDir:
		return "dir"
	case TypeDev:
		return "dev"
	case TypePipe:
		return "pipe"
	default:
		return "unknown"
	}
}

// Scheme returns the URI scheme prefix (including the trailing colon) used
// to address a stream of this type.
func (t HandleType) Scheme() (string, bool) {
	switch t {
	case TypeFile:
		return "file:", true
	case TypeDir:
		return "dir:", true
	case TypeDev:
		return "dev:", true
	default:
		return "", false
	}
}

// Attrs is the result of a stream attribute query.
type Attrs struct {
	Type        HandleType
	ShareFlags  uint32 // host-visible mode bits
	PendingSize int64  // meaningful only when Type == TypeFile
}

// AccessMode mirrors POSIX O_RDONLY/O_WRONLY/O_RDWR.
type AccessMode int

const (
	AccessRDONLY AccessMode = iota
	AccessWRONLY
	AccessRDWR
)

// CreateMode tells StreamOpen whether and how to create the target.
type CreateMode int

const (
	CreateNever CreateMode = iota
	CreateOrOpen
	CreateAlwaysFail // O_CREAT|O_EXCL
)

// OpenOptions are the remaining POSIX open(2) flags the personality cares
// about.
type OpenOptions struct {
	Truncate bool
	Append   bool
}

// DeleteMode selects what StreamDelete removes; ALL is the only mode the
// personality uses, kept as a named constant so call sites read like the
// spec's "DkStreamDelete(ALL)".
type DeleteMode int

const ALL DeleteMode = 0

// splitURI strips the scheme from a "scheme:path" URI.
func splitURI(uri string) (scheme, path string, err error) {
	i := strings.IndexByte(uri, ':')
	if i < 0 {
		return "", "", fmt.Errorf("pal: malformed uri %q", uri)
	}
	return uri[:i+1], uri[i+1:], nil
}

func typeFromScheme(scheme string) HandleType {
	switch scheme {
	case "file:":
		return TypeFile
	case "dir:":
		return TypeDir
	case "dev:":
		return TypeDev
	default:
		return TypeUnknown
	}
}

// StreamAttributesQuery stats the host object the URI names without opening
// it for I/O. A FIFO is reported as TypePipe so that callers can reject it
// explicitly (see chrootfs's dentry materializer).
func StreamAttributesQuery(uri string) (Attrs, error) {
	scheme, path, err := splitURI(uri)
	if err != nil {
		return Attrs{}, unix.EINVAL
	}

	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return Attrs{}, err.(unix.Errno)
	}

	a := Attrs{ShareFlags: uint32(st.Mode &^ unix.S_IFMT)}
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFDIR:
		a.Type = TypeDir
	case unix.S_IFCHR, unix.S_IFBLK:
		a.Type = TypeDev
	case unix.S_IFIFO:
		a.Type = TypePipe
	case unix.S_IFREG:
		a.Type = TypeFile
		a.PendingSize = st.Size
	default:
		// Anything else (socket, symlink left un-followed, etc.) is not a
		// type this PAL exposes; report it as the scheme's nominal type and
		// let the caller's own classification logic decide what to do. Real
		// PAL implementations narrow this further; this stand-in keeps the
		// scheme as the source of truth when lstat's type is ambiguous.
		a.Type = typeFromScheme(scheme)
	}

	return a, nil
}

// Handle is a live host capability, the PAL's analog of a kernel file
// descriptor. The zero value is not usable; construct with StreamOpen.
type Handle struct {
	mu   sync.Mutex
	file *os.File
	typ  HandleType
	uri  string
}

// URI returns the exact string the handle was opened with.
func (h *Handle) URI() string { return h.uri }

// Type returns the handle type fixed at open time.
func (h *Handle) Type() HandleType { return h.typ }

// StreamOpen opens uri with the given access, host share flags (mode bits),
// create behavior, and options, returning a live handle on success.
func StreamOpen(uri string, access AccessMode, shareFlags uint32, create CreateMode, opts OpenOptions) (*Handle, error) {
	scheme, path, err := splitURI(uri)
	if err != nil {
		return nil, unix.EINVAL
	}
	typ := typeFromScheme(scheme)

	var flags int
	switch access {
	case AccessRDONLY:
		flags = os.O_RDONLY
	case AccessWRONLY:
		flags = os.O_WRONLY
	case AccessRDWR:
		flags = os.O_RDWR
	}

	switch create {
	case CreateOrOpen:
		flags |= os.O_CREATE
	case CreateAlwaysFail:
		flags |= os.O_CREATE | os.O_EXCL
	}
	if opts.Truncate {
		flags |= os.O_TRUNC
	}
	if opts.Append {
		flags |= os.O_APPEND
	}
	if typ == TypeDir {
		if create == CreateOrOpen || create == CreateAlwaysFail {
			if err := os.Mkdir(path, os.FileMode(shareFlags&0o777)); err != nil {
				if !(create == CreateOrOpen && os.IsExist(err)) {
					if perr, ok := err.(*os.PathError); ok {
						return nil, perr.Err
					}
					return nil, err
				}
			}
		}
		// Directories are never opened for write; listing goes through
		// readdir below, which only needs O_RDONLY.
		flags = os.O_RDONLY
	}

	f, err := os.OpenFile(path, flags, os.FileMode(shareFlags&0o777))
	if err != nil {
		if perr, ok := err.(*os.PathError); ok {
			return nil, perr.Err
		}
		return nil, err
	}

	return &Handle{file: f, typ: typ, uri: uri}, nil
}

// Read reads at most len(buf) bytes at the given offset. Directory and
// character-device handles ignore off per the personality's own position
// discipline (§3 Handle invariants); this PAL simply forwards to pread(2)
// semantics via os.File.ReadAt, which is meaningless but harmless for
// streams that never call Read with a position that matters.
func (h *Handle) Read(off int64, buf []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, err := h.file.ReadAt(buf, off)
	if err != nil && err.Error() != "EOF" && n == 0 {
		if perr, ok := err.(*os.PathError); ok {
			return 0, perr.Err
		}
	}
	// io.EOF is not an error condition for this PAL: a short/zero read at
	// end of file is reported as a successful read of fewer bytes.
	return n, nil
}

// Write writes len(buf) bytes at the given offset.
func (h *Handle) Write(off int64, buf []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, err := h.file.WriteAt(buf, off)
	if err != nil {
		if perr, ok := err.(*os.PathError); ok {
			return n, perr.Err
		}
		return n, err
	}
	return n, nil
}

// SetLength truncates (or extends) the file to exactly n bytes.
func (h *Handle) SetLength(n int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.file.Truncate(n); err != nil {
		if perr, ok := err.(*os.PathError); ok {
			return perr.Err
		}
		return err
	}
	return nil
}

// Flush syncs the handle's buffered data to the host.
func (h *Handle) Flush() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.file.Sync(); err != nil {
		if perr, ok := err.(*os.PathError); ok {
			return perr.Err
		}
		return err
	}
	return nil
}

// Map memory-maps the handle's contents at the given offset and size,
// returning the mapped slice.
func (h *Handle) Map(prot int, flags int, off int64, size int) ([]byte, error) {
	b, err := unix.Mmap(int(h.file.Fd()), off, size, prot, flags)
	if err != nil {
		return nil, err.(unix.Errno)
	}
	return b, nil
}

// Munmap tears down a region previously returned by (*Handle).Map.
func Munmap(region []byte) error {
	if err := unix.Munmap(region); err != nil {
		return err.(unix.Errno)
	}
	return nil
}

// Msync flushes a mapped region's dirty pages back to its backing stream.
// sync selects MS_SYNC over the default MS_ASYNC.
func Msync(region []byte, sync bool) error {
	flags := unix.MS_ASYNC
	if sync {
		flags = unix.MS_SYNC
	}
	if err := unix.Msync(region, flags); err != nil {
		return err.(unix.Errno)
	}
	return nil
}

// Delete removes the object the handle refers to. mode is always ALL for
// this personality; the parameter exists for symmetry with the spec's
// DkStreamDelete(ALL) call.
func (h *Handle) Delete(mode DeleteMode) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, path, err := splitURI(h.uri)
	if err != nil {
		return unix.EINVAL
	}

	var rmErr error
	if h.typ == TypeDir {
		rmErr = os.Remove(path)
	} else {
		rmErr = os.Remove(path)
	}
	if rmErr != nil {
		if perr, ok := rmErr.(*os.PathError); ok {
			return perr.Err
		}
		return rmErr
	}
	return nil
}

// ChangeName renames the handle's underlying object to the path embedded in
// newURI, which must use the same scheme as the handle.
func (h *Handle) ChangeName(newURI string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, oldPath, err := splitURI(h.uri)
	if err != nil {
		return unix.EINVAL
	}
	_, newPath, err := splitURI(newURI)
	if err != nil {
		return unix.EINVAL
	}

	if err := os.Rename(oldPath, newPath); err != nil {
		if perr, ok := err.(*os.LinkError); ok {
			return perr.Err
		}
		return err
	}
	h.uri = newURI
	return nil
}

// AttributesSetByHandle updates the host share flags (mode bits) of the
// handle's underlying object.
func (h *Handle) AttributesSetByHandle(shareFlags uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.file.Chmod(os.FileMode(shareFlags & 0o777)); err != nil {
		if perr, ok := err.(*os.PathError); ok {
			return perr.Err
		}
		return err
	}
	return nil
}

// ReadDirNames lists the immediate children of a directory handle, in the
// PAL convention: subdirectory names carry a trailing '/'.
func (h *Handle) ReadDirNames() ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries, err := h.file.ReadDir(-1)
	if err != nil {
		if perr, ok := err.(*os.PathError); ok {
			return nil, perr.Err
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return names, nil
}

// ObjectClose releases the handle. Every successful StreamOpen must be
// paired with exactly one ObjectClose unless the handle is transferred into
// a guest-visible handle.
func ObjectClose(h *Handle) error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.file.Close(); err != nil {
		if perr, ok := err.(*os.PathError); ok {
			return perr.Err
		}
		return err
	}
	return nil
}
