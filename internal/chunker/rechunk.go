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

package chunker

// Window describes the half-open byte range [Start, End) of an existing
// chunk map that a write touches, expressed in chunk-index terms too so the
// caller can splice the unaffected prefix/suffix chunks back in unchanged.
type Window struct {
	// PrefixChunks is the count of existing chunks, from the start, that lie
	// entirely before Start and so are reused untouched.
	PrefixChunks int
	// SuffixChunks is the count of existing chunks, from the end, that lie
	// entirely at or after End and so are reused untouched.
	SuffixChunks int
	// Start is the byte offset of the boundary preceding the write.
	Start int64
	// End is the byte offset of the boundary following the write.
	End int64
}

// AffectedWindow implements the rechunk rule of §4.3: given the cumulative
// start offsets of an existing, ordered chunk sequence (chunkStarts[i] is
// where chunk i begins; the implicit chunkStarts[len] is fileSize), find the
// nearest stable boundary at or before writeOffset and the nearest stable
// boundary at or after writeOffset+writeLen. Chunks entirely outside that
// window are left untouched; the window is re-chunked from scratch.
func AffectedWindow(chunkStarts []int64, fileSize int64, writeOffset, writeLen int64) Window {
	writeEnd := writeOffset + writeLen

	prefix := 0
	for prefix < len(chunkStarts) && chunkStarts[prefix] <= writeOffset {
		prefix++
	}
	// chunkStarts[prefix-1] is the last boundary at or before writeOffset;
	// back off by one so that boundary itself starts the rewritten window.
	if prefix > 0 {
		prefix--
	}

	suffixStart := len(chunkStarts)
	for suffixStart > prefix && chunkStarts[suffixStart-1] >= writeEnd {
		suffixStart--
	}

	w := Window{
		PrefixChunks: prefix,
		SuffixChunks: len(chunkStarts) - suffixStart,
	}
	if prefix < len(chunkStarts) {
		w.Start = chunkStarts[prefix]
	} else {
		w.Start = fileSize
	}
	if suffixStart < len(chunkStarts) {
		w.End = chunkStarts[suffixStart]
	} else {
		w.End = fileSize
	}
	if w.End < writeEnd {
		w.End = writeEnd
	}
	if w.Start > writeOffset {
		w.Start = writeOffset
	}
	return w
}

// chunkStartEnd returns the end offset (exclusive) of chunk i: the start of
// chunk i+1, or fileSize if i is the last chunk.
func chunkStartEnd(chunkStarts []int64, i int, fileSize int64) int64 {
	if i+1 < len(chunkStarts) {
		return chunkStarts[i+1]
	}
	return fileSize
}
