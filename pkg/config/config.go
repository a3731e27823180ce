// Copyright 2022 Praetorian Security, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config resolves launcher settings from defaults, a YAML or JSON
// file, and the environment. Command-line flags are applied on top by the
// runner.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/praetorian-inc/fanout/pkg/fanout"
)

const (
	EnvShell          = "FANOUT_SHELL"
	EnvLogLevel       = "FANOUT_LOG_LEVEL"
	EnvClientBinary   = "FANOUT_CLIENT_BINARY"
	EnvClientInterval = "FANOUT_CLIENT_INTERVAL"
	EnvServerBinary   = "FANOUT_SERVER_BINARY"
	EnvServerInterval = "FANOUT_SERVER_INTERVAL"

	DefaultClientBinary = "./1kw-cli"
	DefaultServerBinary = "./1kw-svr"
)

type Config struct {
	Shell    string
	LogLevel string
	Client   Launcher
	Server   Launcher
}

type Launcher struct {
	// Worker binary placed at the head of every spawned command
	Binary string

	// Pause between consecutive spawn calls
	Interval time.Duration
}

func Default() Config {
	return Config{
		Shell:    fanout.DefaultShell,
		LogLevel: "info",
		Client: Launcher{
			Binary:   DefaultClientBinary,
			Interval: fanout.DefaultClientInterval,
		},
		Server: Launcher{
			Binary:   DefaultServerBinary,
			Interval: fanout.DefaultServerInterval,
		},
	}
}

// FileConfig is the on-disk layout. Empty fields leave the current value alone.
type FileConfig struct {
	Shell    string       `yaml:"shell" json:"shell"`
	LogLevel string       `yaml:"log_level" json:"log_level"`
	Client   FileLauncher `yaml:"client" json:"client"`
	Server   FileLauncher `yaml:"server" json:"server"`
}

type FileLauncher struct {
	Binary   string `yaml:"binary" json:"binary"`
	Interval string `yaml:"interval" json:"interval"`
}

func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config FileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return &config, nil
}

func (f *FileConfig) Apply(cfg *Config) error {
	if f.Shell != "" {
		cfg.Shell = f.Shell
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if err := f.Client.apply(&cfg.Client, "client"); err != nil {
		return err
	}
	return f.Server.apply(&cfg.Server, "server")
}

func (f FileLauncher) apply(l *Launcher, name string) error {
	if f.Binary != "" {
		l.Binary = f.Binary
	}
	if f.Interval != "" {
		d, err := time.ParseDuration(f.Interval)
		if err != nil {
			return fmt.Errorf("invalid %s interval: %w", name, err)
		}
		l.Interval = d
	}
	return nil
}

// LoadEnv reads a dotenv file into the process environment without
// overriding variables that are already set. An empty path tries ".env" and
// ignores its absence.
func LoadEnv(path string) error {
	if path == "" {
		err := godotenv.Load()
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg with the FANOUT_* variables found by lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(EnvShell); ok && v != "" {
		cfg.Shell = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.LogLevel = v
	}
	if v, ok := lookup(EnvClientBinary); ok && v != "" {
		cfg.Client.Binary = v
	}
	if v, ok := lookup(EnvServerBinary); ok && v != "" {
		cfg.Server.Binary = v
	}
	for key, target := range map[string]*time.Duration{
		EnvClientInterval: &cfg.Client.Interval,
		EnvServerInterval: &cfg.Server.Interval,
	} {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*target = d
	}
	return nil
}

func (c Config) Validate() error {
	if c.Client.Interval < 0 {
		return errors.New("client interval must be non-negative")
	}
	if c.Server.Interval < 0 {
		return errors.New("server interval must be non-negative")
	}
	if c.Client.Binary == "" || c.Server.Binary == "" {
		return errors.New("worker binary must not be empty")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}
