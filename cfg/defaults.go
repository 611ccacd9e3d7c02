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

package cfg

import "time"

// Default chunker parameters, "typical 4 KiB / 64 KiB / 1 MiB" per §4.3.
const (
	DefaultChunkMin = 4 * 1024
	DefaultChunkAvg = 64 * 1024
	DefaultChunkMax = 1024 * 1024
)

// Default backoff schedule: "base 1 s, cap 60 s, full jitter" per §5.
// MaxElapsed is 0 (unbounded): the reconciler is expected to retry
// indefinitely until the journal drains or offline mode is toggled.
const (
	DefaultBackoffInitial    = time.Second
	DefaultBackoffMax        = 60 * time.Second
	DefaultBackoffMaxElapsed = 0
)

const DefaultLogLevel = "info"

// DefaultChunker returns the chunker defaults as a ChunkerConfig, for use
// as a pflag default value.
func DefaultChunker() ChunkerConfig {
	return ChunkerConfig{Min: DefaultChunkMin, Avg: DefaultChunkAvg, Max: DefaultChunkMax}
}

// DefaultBackoff returns the backoff defaults as a BackoffConfig.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{Initial: DefaultBackoffInitial, Max: DefaultBackoffMax, MaxElapsed: DefaultBackoffMaxElapsed}
}
