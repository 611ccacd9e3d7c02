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

// Package chunker implements the content-defined chunking policy of §4.3:
// rolling-hash boundary detection with configurable min/avg/max chunk sizes,
// deterministic for a given input. It wraps github.com/restic/chunker, the
// same Rabin-fingerprint chunker restic uses to deduplicate backup content.
package chunker

import (
	"bytes"
	"fmt"
	"io"
	"math/bits"
	"sync"

	resticchunker "github.com/restic/chunker"
)

// DefaultPolynomial is the irreducible polynomial restic itself ships as its
// default chunking polynomial. Using a fixed, well-known polynomial (rather
// than deriving a fresh random one per process) is what makes chunking
// reproducible across independent clients, which cross-client
// deduplication depends on (§9, open question (a)).
const DefaultPolynomial resticchunker.Pol = 0x3DA3358B4DC173

// Params configures the chunk boundary policy. Sizes are in bytes.
type Params struct {
	Min int
	Avg int
	Max int
}

// DefaultParams matches the "typical" sizes named in §4.3.
var DefaultParams = Params{
	Min: 4 * 1024,
	Avg: 64 * 1024,
	Max: 1024 * 1024,
}

// Chunk is one content-defined region of a byte stream.
type Chunk struct {
	// Offset within the stream at which this chunk starts.
	Offset int64
	// Content is this chunk's bytes, copied out of the chunker's internal
	// scratch buffer so it's safe to retain.
	Content []byte
}

// resticMu serializes access to restic/chunker's package-level MinSize/
// MaxSize variables, which are process-global rather than per-Chunker. Split
// holds it for the duration of one full stream split so concurrent splits
// with different Params can't stomp on each other's boundary sizes.
var resticMu sync.Mutex

// Split deterministically splits the content of r into chunks according to
// p: the same bytes under the same Params always produce the same chunk
// boundaries (the determinism property tested in §8).
func Split(r io.Reader, p Params) ([]Chunk, error) {
	resticMu.Lock()
	defer resticMu.Unlock()

	prevMin, prevMax := resticchunker.MinSize, resticchunker.MaxSize
	resticchunker.MinSize, resticchunker.MaxSize = p.Min, p.Max
	defer func() { resticchunker.MinSize, resticchunker.MaxSize = prevMin, prevMax }()

	ch := resticchunker.New(r, DefaultPolynomial)
	ch.SetAverageBits(averageBits(p.Avg))

	var (
		chunks []Chunk
		offset int64
		buf    = make([]byte, p.Max)
	)

	for {
		c, err := ch.Next(buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("chunker.Split: %w", err)
		}

		content := make([]byte, len(c.Data))
		copy(content, c.Data)

		chunks = append(chunks, Chunk{Offset: offset, Content: content})
		offset += int64(len(content))
	}

	return chunks, nil
}

// SplitBytes is a convenience wrapper around Split for in-memory content.
func SplitBytes(content []byte, p Params) ([]Chunk, error) {
	return Split(bytes.NewReader(content), p)
}

// averageBits converts a target average chunk size to the nearest power of
// two exponent, as required by (*resticchunker.Chunker).SetAverageBits.
func averageBits(avg int) int {
	if avg < 64 {
		avg = 64
	}
	return bits.Len(uint(avg)) - 1
}
