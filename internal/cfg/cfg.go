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

// Package cfg describes the configuration of a chroot personality mount:
// the guest-visible root, the PAL URI prefix it is bound to, default
// permission bits, and logging. Values are bound from a YAML file with
// viper, then overridden by command-line flags, mirroring the teacher's
// cfg/cmd split.
package cfg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Logging-level constants, shared with package logger.
const (
	TRACE   string = "TRACE"
	DEBUG   string = "DEBUG"
	INFO    string = "INFO"
	WARNING string = "WARNING"
	ERROR   string = "ERROR"
	OFF     string = "OFF"
)

// ResolvedPath is a filesystem path kept as a distinct type from plain
// strings. It is used as given: no ~ or environment-variable expansion is
// applied to it anywhere in this module.
type ResolvedPath string

// LogRotateConfig controls lumberjack's rotation of the log file sink.
type LogRotateConfig struct {
	MaxFileSizeMB   int  `yaml:"max-file-size-mb"`
	BackupFileCount int  `yaml:"backup-file-count"`
	Compress        bool `yaml:"compress"`
}

// DefaultLogRotateConfig matches the teacher's defaults: 512MB per file,
// 10 backups retained, compressed.
func DefaultLogRotateConfig() LogRotateConfig {
	return LogRotateConfig{MaxFileSizeMB: 512, BackupFileCount: 10, Compress: true}
}

// LoggingConfig describes where and how the mount process logs.
type LoggingConfig struct {
	FilePath        ResolvedPath    `yaml:"file-path"`
	Format          string          `yaml:"format"`
	Severity        string          `yaml:"severity"`
	LogRotateConfig LogRotateConfig `yaml:"log-rotate"`
}

// MountConfig is the full configuration of a single chroot mount.
type MountConfig struct {
	// GuestRoot is the path the guest sees as "/".
	GuestRoot string `yaml:"guest-root"`
	// UriPrefix is the PAL URI prefix this mount is bound to: file:<root>
	// or dev:<root>.
	UriPrefix string `yaml:"uri-prefix"`
	// DefaultFilePerm and DefaultDirPerm are recorded on the Mount built
	// from this config; creat and mkdir do not fall back to them, even for
	// a perm of 0.
	DefaultFilePerm uint32 `yaml:"default-file-perm"`
	DefaultDirPerm  uint32 `yaml:"default-dir-perm"`

	Logging LoggingConfig `yaml:"logging"`
}

// Default returns a MountConfig with sane defaults: owner read/write files
// at 0644, directories at 0755, INFO-level text logging to stderr.
func Default() MountConfig {
	return MountConfig{
		DefaultFilePerm: 0o644,
		DefaultDirPerm:  0o755,
		Logging: LoggingConfig{
			Format:          "text",
			Severity:        INFO,
			LogRotateConfig: DefaultLogRotateConfig(),
		},
	}
}

// LoadYAMLFile reads a MountConfig from a YAML file, starting from
// Default() so a partial file only overrides the fields it names.
func LoadYAMLFile(path string) (MountConfig, error) {
	c := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("cfg: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("cfg: parsing %s: %w", path, err)
	}
	return c, nil
}
