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

import "github.com/m4tx/offs/internal/chunker"

// Params converts a ChunkerConfig into the chunker.Params the core engine
// consumes; cfg and chunker stay decoupled so chunker never needs to know
// about mapstructure tags.
func (c ChunkerConfig) Params() chunker.Params {
	return chunker.Params{Min: c.Min, Avg: c.Avg, Max: c.Max}
}
