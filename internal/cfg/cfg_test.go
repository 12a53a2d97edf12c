// Copyright 2024 Google Inc. All Rights Reserved.
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

package cfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.EqualValues(t, 0o644, c.DefaultFilePerm)
	assert.EqualValues(t, 0o755, c.DefaultDirPerm)
	assert.Equal(t, INFO, c.Logging.Severity)
	assert.Equal(t, "text", c.Logging.Format)
}

func TestDefaultLogRotateConfig(t *testing.T) {
	c := DefaultLogRotateConfig()
	assert.Equal(t, 512, c.MaxFileSizeMB)
	assert.Equal(t, 10, c.BackupFileCount)
	assert.True(t, c.Compress)
}

func TestLoadYAMLFile_OverridesOnlyNamedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "guest-root: /guest\nuri-prefix: file:/host\nlogging:\n  severity: DEBUG\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	c, err := LoadYAMLFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/guest", c.GuestRoot)
	assert.Equal(t, "file:/host", c.UriPrefix)
	assert.Equal(t, DEBUG, c.Logging.Severity)
	// Unnamed fields still carry Default()'s values.
	assert.EqualValues(t, 0o644, c.DefaultFilePerm)
	assert.Equal(t, "text", c.Logging.Format)
}

func TestLoadYAMLFile_MissingFile(t *testing.T) {
	_, err := LoadYAMLFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
