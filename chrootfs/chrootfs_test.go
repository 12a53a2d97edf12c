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
	"fmt"
	"testing"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/jacobsa/timeutil"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/jacobsa/libos/chrootfs/inode"
)

type ChrootFSTest struct {
	suite.Suite
	dir string
	fs  *FileSystem
}

func TestChrootFSSuite(t *testing.T) {
	suite.Run(t, new(ChrootFSTest))
}

func (t *ChrootFSTest) SetupTest() {
	t.dir = t.T().TempDir()
	m, err := NewMount(fmt.Sprintf("file:%s", t.dir), timeutil.RealClock())
	require.NoError(t.T(), err)
	t.fs = NewFileSystem(m)
}

// -- End-to-end scenarios (literal) --------------------------------------

func (t *ChrootFSTest) TestCreateWriteStat() {
	root := t.fs.Mount().Root()
	h, err := t.fs.Creat(root, "a", 0o644, unix.O_WRONLY)
	require.NoError(t.T(), err)

	n, err := t.fs.HWrite(h, []byte("hello"))
	require.NoError(t.T(), err)
	t.Equal(5, n)

	st := t.fs.HStat(h)
	t.EqualValues(5, st.Size)

	require.NoError(t.T(), t.fs.HClose(h))
}

func (t *ChrootFSTest) TestSeekPastEndThenWrite() {
	root := t.fs.Mount().Root()
	h, err := t.fs.Creat(root, "b", 0o644, unix.O_RDWR)
	require.NoError(t.T(), err)
	defer t.fs.HClose(h)

	pos, err := t.fs.HSeek(h, 10, inode.SeekSet)
	require.NoError(t.T(), err)
	t.EqualValues(10, pos)

	n, err := t.fs.HWrite(h, []byte("x"))
	require.NoError(t.T(), err)
	t.Equal(1, n)

	st := t.fs.HStat(h)
	t.EqualValues(11, st.Size)
}

func (t *ChrootFSTest) TestRenameThenStatOld() {
	root := t.fs.Mount().Root()
	h, err := t.fs.Creat(root, "old", 0o644, unix.O_WRONLY)
	require.NoError(t.T(), err)
	require.NoError(t.T(), t.fs.HClose(h))

	require.NoError(t.T(), t.fs.RenameByName(root, "old", root, "new"))

	_, err = t.fs.Lookup(root, "old")
	t.Error(err, "renamed-away name must no longer resolve")

	dst, err := t.fs.Lookup(root, "new")
	require.NoError(t.T(), err)
	_, err = t.fs.Stat(dst)
	t.NoError(err)
}

func (t *ChrootFSTest) TestUnlinkWithOpenHandleStaysUsable() {
	root := t.fs.Mount().Root()
	h, err := t.fs.Creat(root, "c", 0o644, unix.O_RDWR)
	require.NoError(t.T(), err)

	require.NoError(t.T(), t.fs.Unlink(root, "c"))

	// The already-open handle keeps its own inode reference and stays
	// readable/writable even though the name is gone.
	n, err := t.fs.HWrite(h, []byte("still here"))
	require.NoError(t.T(), err)
	t.Equal(len("still here"), n)

	require.NoError(t.T(), t.fs.HClose(h))

	_, err = t.fs.Lookup(root, "c")
	t.Error(err, "unlinked name must not resolve for a fresh lookup")
}

func (t *ChrootFSTest) TestChmod() {
	root := t.fs.Mount().Root()
	h, err := t.fs.Creat(root, "d", 0o600, unix.O_WRONLY)
	require.NoError(t.T(), err)
	require.NoError(t.T(), t.fs.HClose(h))

	dent, err := t.fs.Lookup(root, "d")
	require.NoError(t.T(), err)
	require.NoError(t.T(), t.fs.DChmod(dent, 0o640))

	st, err := t.fs.Stat(dent)
	require.NoError(t.T(), err)
	t.EqualValues(0o640, st.Mode&0o777)
}

func (t *ChrootFSTest) TestCheckpointRoundTrip() {
	root := t.fs.Mount().Root()
	h, err := t.fs.Creat(root, "e", 0o644, unix.O_RDWR)
	require.NoError(t.T(), err)
	_, err = t.fs.HWrite(h, []byte("persisted"))
	require.NoError(t.T(), err)

	// Rewind so the position saved in the checkpoint is the start of the
	// written bytes; Checkin restores that position on the reopened handle.
	_, err = t.fs.HSeek(h, 0, inode.SeekSet)
	require.NoError(t.T(), err)

	cp := t.fs.HCheckout(h)
	h2, err := t.fs.HCheckin(cp)
	require.NoError(t.T(), err)

	buf := make([]byte, 32)
	n, err := t.fs.HRead(h2, buf)
	require.NoError(t.T(), err)
	t.Equal("persisted", string(buf[:n]))

	require.NoError(t.T(), t.fs.HClose(h2))
}

func (t *ChrootFSTest) TestMkdirAndReaddirCached() {
	root := t.fs.Mount().Root()
	require.NoError(t.T(), t.fs.Mkdir(root, "sub", 0o755))

	dent, err := t.fs.Lookup(root, "sub")
	require.NoError(t.T(), err)
	t.Equal(inode.DIR, dent.Inode().Type())

	seen := make(map[string]DirentType)
	t.fs.Readdir(root, func(name string, typ DirentType) {
		seen[name] = typ
	})
	t.Equal(DirentDir, seen["sub"])
}

func (t *ChrootFSTest) TestReaddirHostSeesUnmaterializedEntries() {
	root := t.fs.Mount().Root()
	h, err := t.fs.Creat(root, "onDisk", 0o644, unix.O_WRONLY)
	require.NoError(t.T(), err)
	require.NoError(t.T(), t.fs.HClose(h))

	seen := make(map[string]DirentType)
	require.NoError(t.T(), ReaddirHost(root, func(name string, typ DirentType) {
		seen[name] = typ
	}))
	t.Equal(DirentReg, seen["onDisk"])
}

// -- Concurrency ----------------------------------------------------------

// TestConcurrentCreatesAndWrites drives many goroutines through creat/write/
// close on distinct files within one mount, using errgroup to fan out the
// work and propagate the first failure. It exercises the dcache lock and the
// inode-before-handle lock ordering under real contention.
func (t *ChrootFSTest) TestConcurrentCreatesAndWrites() {
	root := t.fs.Mount().Root()

	var g errgroup.Group
	for i := 0; i < 32; i++ {
		i := i
		g.Go(func() error {
			name := fmt.Sprintf("file-%d", i)
			h, err := t.fs.Creat(root, name, 0o644, unix.O_RDWR)
			if err != nil {
				return err
			}
			if _, err := t.fs.HWrite(h, []byte(name)); err != nil {
				return err
			}
			return t.fs.HClose(h)
		})
	}
	require.NoError(t.T(), g.Wait())

	// Closing each handle drops its dentry from the cache, so count the
	// on-disk entries rather than the cached ones.
	count := 0
	require.NoError(t.T(), ReaddirHost(root, func(name string, typ DirentType) { count++ }))
	t.Equal(32, count)
}

// TestConcurrentLookupOfSameName drives many goroutines through Lookup of a
// single pre-existing name, which must never race materialize() twice into
// inconsistent state; every goroutine must observe the same inode.
func (t *ChrootFSTest) TestConcurrentLookupOfSameName() {
	root := t.fs.Mount().Root()
	h, err := t.fs.Creat(root, "shared", 0o644, unix.O_WRONLY)
	require.NoError(t.T(), err)
	require.NoError(t.T(), t.fs.HClose(h))

	var g errgroup.Group
	results := make(chan *inode.Inode, 16)
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			dent, err := t.fs.Lookup(root, "shared")
			if err != nil {
				return err
			}
			results <- dent.Inode()
			return nil
		})
	}
	require.NoError(t.T(), g.Wait())
	close(results)

	var first *inode.Inode
	for in := range results {
		if first == nil {
			first = in
			continue
		}
		t.Same(first, in, "concurrent lookups of one name must materialize the same inode")
	}
}
