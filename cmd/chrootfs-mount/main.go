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

// Command chrootfs-mount wires a mount configuration into a chroot
// filesystem personality and registers its operation tables. Attaching
// those tables to an actual guest syscall dispatcher is the job of the
// surrounding library OS, out of scope here (spec.md §1); this binary
// exists to exercise configuration loading, mount construction, and
// logging end to end.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jacobsa/libos/chrootfs"
	"github.com/jacobsa/libos/internal/cfg"
	"github.com/jacobsa/libos/internal/logger"
)

var (
	cfgFile      string
	mountConfig  = cfg.Default()
	bindErr      error
	rootCmd      = &cobra.Command{
		Use:   "chrootfs-mount <guest-root> <uri-prefix>",
		Short: "Bind a chroot filesystem personality between a guest root and a PAL URI prefix",
		Args:  cobra.ExactArgs(2),
		RunE:  run,
	}
)

func bindFlags(fs *pflag.FlagSet) error {
	fs.StringVar(&mountConfig.Logging.Format, "log-format", mountConfig.Logging.Format, "log format: text or json")
	fs.StringVar(&mountConfig.Logging.Severity, "log-severity", mountConfig.Logging.Severity, "TRACE, DEBUG, INFO, WARNING, ERROR, or OFF")
	fs.StringVar((*string)(&mountConfig.Logging.FilePath), "log-file", "", "rotate logs to this file instead of stderr")
	fs.Uint32Var(&mountConfig.DefaultFilePerm, "default-file-perm", mountConfig.DefaultFilePerm, "default file permission bits recorded on the mount (creat does not apply them)")
	fs.Uint32Var(&mountConfig.DefaultDirPerm, "default-dir-perm", mountConfig.DefaultDirPerm, "default directory permission bits recorded on the mount (mkdir does not apply them)")
	return viper.BindPFlags(fs)
}

func initConfig() error {
	if cfgFile == "" {
		return viper.Unmarshal(&mountConfig)
	}
	viper.SetConfigFile(cfgFile)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	return viper.Unmarshal(&mountConfig)
}

func run(cmd *cobra.Command, args []string) error {
	if bindErr != nil {
		return bindErr
	}
	if err := initConfig(); err != nil {
		return err
	}

	mountConfig.GuestRoot = args[0]
	mountConfig.UriPrefix = args[1]

	if mountConfig.Logging.FilePath != "" {
		if err := logger.InitLogFile(mountConfig.Logging); err != nil {
			return err
		}
	} else {
		logger.SetLogFormat(mountConfig.Logging.Format)
	}

	m, err := chrootfs.NewMountFromConfig(mountConfig)
	if err != nil {
		return fmt.Errorf("constructing mount: %w", err)
	}
	chrootfs.NewFileSystem(m)

	logger.Infof("chroot personality ready: guest_root=%s uri_prefix=%s", mountConfig.GuestRoot, m.UriPrefix())
	return nil
}

func init() {
	cobra.OnInitialize(func() {})
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "path to a YAML config file")
	bindErr = bindFlags(rootCmd.PersistentFlags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
