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

package inode

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type InodeTest struct {
	suite.Suite
}

func TestInodeSuite(t *testing.T) {
	suite.Run(t, new(InodeTest))
}

func (t *InodeTest) TestNewMount_RejectsUnsupportedScheme() {
	_, err := NewMount("gcs:bucket/object")
	t.Error(err)
}

func (t *InodeTest) TestNewMount_AcceptsFileAndDev() {
	_, err := NewMount("file:/tmp")
	t.NoError(err)

	_, err = NewMount("dev:tty")
	t.NoError(err)
}

func (t *InodeTest) TestRoot_EmptyBecomesDot() {
	m, err := NewMount("file:")
	require.NoError(t.T(), err)
	assert.Equal(t.T(), ".", m.Root())
}

func (t *InodeTest) TestNew_NonRegForcesZeroSize() {
	in := New(DIR, nil, 0o755, 1234)
	assert.EqualValues(t.T(), 0, in.Size())
}

func (t *InodeTest) TestFillStat_Dir() {
	in := New(DIR, &Mount{UriPrefix: "file:/tmp"}, 0o755, 0)
	st := in.FillStat()
	assert.EqualValues(t.T(), 2, st.Nlink)
	assert.EqualValues(t.T(), DIR.StatMode()|0o755, st.Mode)
}

func (t *InodeTest) TestFillStat_Reg() {
	in := New(REG, &Mount{UriPrefix: "file:/tmp"}, 0o644, 42)
	st := in.FillStat()
	assert.EqualValues(t.T(), 1, st.Nlink)
	assert.EqualValues(t.T(), 42, st.Size)
}

func (t *InodeTest) TestPollReadable() {
	in := New(REG, &Mount{UriPrefix: "file:/tmp"}, 0o644, 10)
	assert.True(t.T(), in.PollReadable(0))
	assert.True(t.T(), in.PollReadable(9))
	assert.False(t.T(), in.PollReadable(10), "EOF position must report not-readable")
	assert.False(t.T(), in.PollReadable(11))
}

func (t *InodeTest) TestHostPerm_ForcesReadBit() {
	in := New(REG, &Mount{UriPrefix: "file:/tmp"}, 0o200, 0)
	assert.EqualValues(t.T(), 0o600, in.HostPerm())
}

// -- Seek -------------------------------------------------------------

func (t *InodeTest) TestSeek_Set() {
	pos, err := Seek(5, 100, 20, SeekSet)
	require.NoError(t.T(), err)
	assert.EqualValues(t.T(), 20, pos)
}

func (t *InodeTest) TestSeek_Cur() {
	pos, err := Seek(5, 100, 20, SeekCur)
	require.NoError(t.T(), err)
	assert.EqualValues(t.T(), 25, pos)
}

func (t *InodeTest) TestSeek_End() {
	pos, err := Seek(5, 100, -10, SeekEnd)
	require.NoError(t.T(), err)
	assert.EqualValues(t.T(), 90, pos)
}

func (t *InodeTest) TestSeek_NegativeResultRejected() {
	_, err := Seek(5, 100, -200, SeekEnd)
	t.Error(err)
}

func (t *InodeTest) TestSeek_UnknownOriginRejected() {
	_, err := Seek(0, 0, 0, SeekOrigin(99))
	t.Error(err)
}

func (t *InodeTest) TestSeek_OverflowAtMaxInt64() {
	_, err := Seek(0, math.MaxInt64, 1, SeekEnd)
	t.Error(err)
}

func (t *InodeTest) TestSeek_PastSsizeMaxIsStillAllowed() {
	// Seek arithmetic itself has no SSIZE_MAX ceiling; that check belongs to
	// the read/write path, not to seek positioning.
	pos, err := Seek(0, 0, math.MaxInt64, SeekSet)
	require.NoError(t.T(), err)
	assert.EqualValues(t.T(), math.MaxInt64, pos)
}

func (t *InodeTest) TestAddOverflowChecked() {
	_, ok := addOverflowChecked(math.MaxInt64, 1)
	assert.False(t.T(), ok)

	_, ok = addOverflowChecked(math.MinInt64, -1)
	assert.False(t.T(), ok)

	sum, ok := addOverflowChecked(10, -3)
	assert.True(t.T(), ok)
	assert.EqualValues(t.T(), 7, sum)
}

// -- Concurrency --------------------------------------------------------

// TestConcurrentSizeMutation exercises Mu as the sole guard around size
// bookkeeping: many goroutines race SetSize against Size, and the invariant
// checker (non-REG inodes never see a nonzero size) must never panic.
func (t *InodeTest) TestConcurrentSizeMutation() {
	in := New(REG, &Mount{UriPrefix: "file:/tmp"}, 0o644, 0)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			in.Mu.Lock()
			in.SetSize(n)
			_ = in.Size()
			in.Mu.Unlock()
		}(int64(i))
	}
	wg.Wait()
}
