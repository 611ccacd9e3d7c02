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

// Package blobstore implements the content-addressed blob store (C2). Blob
// IDs are blake3 content hashes rendered as hex, matching the "blake-style
// content hash hex string" of model.Blob.ID (spec §3.1).
package blobstore

import (
	"context"
	"fmt"

	"lukechampine.com/blake3"
)

// HashSize is the digest width, in bytes, used to derive blob IDs.
const HashSize = 32

// Hash returns the hex-encoded blake3 digest of content; this is the value
// used as a Blob's ID.
func Hash(content []byte) string {
	sum := blake3.Sum256(content)
	return fmt.Sprintf("%x", sum[:])
}

// Store is the content-addressed blob store (C2). Implementations must
// satisfy: Put(b); Get(Hash(b)) returns b byte-for-byte, and concurrent Put
// calls for identical content are safe and return the same ID.
type Store interface {
	// Put stores content if not already present and returns its ID.
	// Idempotent.
	Put(ctx context.Context, content []byte) (id string, err error)

	// Get returns the content for id, or *offserr.NotFoundError if absent.
	Get(ctx context.Context, id string) (content []byte, err error)

	// Has reports whether id is present.
	Has(ctx context.Context, id string) (bool, error)

	// Missing returns the subset of ids not present in the store. Idempotent.
	Missing(ctx context.Context, ids []string) ([]string, error)
}

// zeroBlobContent is the content backing the well-known "zero blob": an
// empty blob. Growing a file through SetAttributes does not use it; the
// operation engine pads with a zero-filled blob of the added length instead
// (see growChunks in package ops).
var zeroBlobContent = []byte{}

// ZeroBlobID is the ID of the canonical empty blob, pre-computed so padding
// logic doesn't need a Store round-trip just to know the ID it will get.
var ZeroBlobID = Hash(zeroBlobContent)

// PutAll is a convenience used by the operation engine to persist every blob
// referenced by a chunk map rewrite in one call, ignoring blobs already
// present courtesy of Put's idempotence.
func PutAll(ctx context.Context, s Store, contents [][]byte) ([]string, error) {
	ids := make([]string, len(contents))
	for i, c := range contents {
		id, err := s.Put(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("blobstore.PutAll: %w", err)
		}
		ids[i] = id
	}
	return ids, nil
}
