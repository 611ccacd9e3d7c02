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

package ops

import (
	"context"
	"fmt"

	"github.com/m4tx/offs/internal/blobstore"
	"github.com/m4tx/offs/internal/chunker"
	"github.com/m4tx/offs/internal/model"
)

// loadChunks fetches every blob in entries, in chunk-map order, returning
// each chunk's bytes alongside its cumulative start offset and the file's
// total size. The schema (§6) keeps no per-chunk length column, so locating
// chunk boundaries at all requires reading the chunks themselves; this is
// the one place that cost is paid.
func loadChunks(ctx context.Context, blobs blobstore.Store, entries []model.ChunkEntry) (contents [][]byte, starts []int64, total int64, err error) {
	contents = make([][]byte, len(entries))
	starts = make([]int64, len(entries))

	var offset int64
	for i, e := range entries {
		c, err := blobs.Get(ctx, e.BlobID)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("ops.loadChunks: %w", err)
		}
		contents[i] = c
		starts[i] = offset
		offset += int64(len(c))
	}
	return contents, starts, offset, nil
}

// reindex assigns sequential chunk indices 0..len(entries)-1 in place.
func reindex(entries []model.ChunkEntry) []model.ChunkEntry {
	for i := range entries {
		entries[i].Index = int32(i)
	}
	return entries
}

// rewriteWindow implements the Write effect of §4.5 using the rechunk rule
// of §4.3: it locates the affected window via chunker.AffectedWindow,
// splices the write into that window's material content, re-splits only
// that window, and reassembles the full chunk map out of the untouched
// prefix/suffix chunk entries plus the freshly split ones. It returns the
// new chunk map and the file's resulting size.
func rewriteWindow(ctx context.Context, blobs blobstore.Store, params chunker.Params, entries []model.ChunkEntry, offset int64, data []byte) ([]model.ChunkEntry, int64, error) {
	contents, starts, total, err := loadChunks(ctx, blobs, entries)
	if err != nil {
		return nil, 0, err
	}

	window := chunker.AffectedWindow(starts, total, offset, int64(len(data)))

	var windowOld []byte
	for i := window.PrefixChunks; i < len(entries)-window.SuffixChunks; i++ {
		windowOld = append(windowOld, contents[i]...)
	}

	writeEnd := offset + int64(len(data))
	relOffset := offset - window.Start
	relEnd := writeEnd - window.Start

	newWindow := make([]byte, 0, relEnd)
	if relOffset >= int64(len(windowOld)) {
		newWindow = append(newWindow, windowOld...)
		newWindow = append(newWindow, make([]byte, relOffset-int64(len(windowOld)))...)
	} else {
		newWindow = append(newWindow, windowOld[:relOffset]...)
	}
	newWindow = append(newWindow, data...)
	if relEnd < int64(len(windowOld)) {
		newWindow = append(newWindow, windowOld[relEnd:]...)
	}

	rechunked, err := chunker.SplitBytes(newWindow, params)
	if err != nil {
		return nil, 0, fmt.Errorf("ops.rewriteWindow: split: %w", err)
	}

	newEntries := append([]model.ChunkEntry{}, entries[:window.PrefixChunks]...)
	for _, c := range rechunked {
		id, err := blobs.Put(ctx, c.Content)
		if err != nil {
			return nil, 0, fmt.Errorf("ops.rewriteWindow: put: %w", err)
		}
		newEntries = append(newEntries, model.ChunkEntry{BlobID: id})
	}
	newEntries = append(newEntries, entries[len(entries)-window.SuffixChunks:]...)
	newEntries = reindex(newEntries)

	suffixRemaining := total - window.End
	if suffixRemaining < 0 {
		suffixRemaining = 0
	}
	newSize := window.Start + int64(len(newWindow)) + suffixRemaining

	return newEntries, newSize, nil
}

// truncateChunks implements SetAttributes' "when size shrinks, truncate
// chunk map" effect: chunks entirely past newSize are dropped, and the one
// chunk straddling the new boundary (if any) is re-stored with its tail cut
// off. Chunks wholly before newSize are reused untouched.
func truncateChunks(ctx context.Context, blobs blobstore.Store, entries []model.ChunkEntry, newSize int64) ([]model.ChunkEntry, error) {
	var out []model.ChunkEntry
	var offset int64

	for _, ce := range entries {
		if offset >= newSize {
			break
		}

		content, err := blobs.Get(ctx, ce.BlobID)
		if err != nil {
			return nil, fmt.Errorf("ops.truncateChunks: %w", err)
		}
		clen := int64(len(content))

		if offset+clen <= newSize {
			out = append(out, ce)
			offset += clen
			continue
		}

		keep := content[:newSize-offset]
		id, err := blobs.Put(ctx, keep)
		if err != nil {
			return nil, fmt.Errorf("ops.truncateChunks: %w", err)
		}
		out = append(out, model.ChunkEntry{BlobID: id})
		break
	}

	return reindex(out), nil
}

// growChunks implements SetAttributes' "when size grows, pad with zero-blob
// chunks" effect: since oldSize is already a stable chunk boundary by
// construction, growth never disturbs any existing chunk - it just appends
// one new chunk of zero bytes covering the new region.
func growChunks(ctx context.Context, blobs blobstore.Store, entries []model.ChunkEntry, oldSize, newSize int64) ([]model.ChunkEntry, error) {
	pad := make([]byte, newSize-oldSize)
	id, err := blobs.Put(ctx, pad)
	if err != nil {
		return nil, fmt.Errorf("ops.growChunks: %w", err)
	}

	out := append(append([]model.ChunkEntry{}, entries...), model.ChunkEntry{BlobID: id})
	return reindex(out), nil
}
