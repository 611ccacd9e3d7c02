// Copyright 2026 The OFFS Authors.
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

// Package cfg holds the server and client configuration structs. cmd/ fills
// them from command-line flags (pflag), whose defaults come from
// defaults.go. The binaries also bind those flags into a viper instance,
// but nothing is decoded back from viper: no environment variable or config
// file is read into these structs.
package cfg

import "time"

// LogConfig controls logger.InitLogging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Path   string `mapstructure:"path"`
	Format string `mapstructure:"format"`
}

// ChunkerConfig mirrors chunker.Params, with mapstructure tags naming its
// keys; cmd/ fills it from the --chunk-* flags.
type ChunkerConfig struct {
	Min int `mapstructure:"min"`
	Avg int `mapstructure:"avg"`
	Max int `mapstructure:"max"`
}

// BackoffConfig controls the reconciler's retry schedule (§5).
type BackoffConfig struct {
	Initial    time.Duration `mapstructure:"initial"`
	Max        time.Duration `mapstructure:"max"`
	MaxElapsed time.Duration `mapstructure:"max-elapsed"`
}

// ServerConfig is the offs-server process's configuration.
type ServerConfig struct {
	StorePath  string        `mapstructure:"store-path"`
	ListenAddr string        `mapstructure:"listen-addr"`
	MetricAddr string        `mapstructure:"metric-addr"`
	Chunker    ChunkerConfig `mapstructure:"chunker"`
	Log        LogConfig     `mapstructure:"log"`
}

// ClientConfig is the offs-client process's configuration.
type ClientConfig struct {
	CachePath  string        `mapstructure:"cache-path"`
	ServerAddr string        `mapstructure:"server-addr"`
	MountPoint string        `mapstructure:"mount-point"`
	AdminSock  string        `mapstructure:"admin-sock"`
	Offline    bool          `mapstructure:"offline"`
	Chunker    ChunkerConfig `mapstructure:"chunker"`
	Backoff    BackoffConfig `mapstructure:"backoff"`
	Log        LogConfig     `mapstructure:"log"`
}
