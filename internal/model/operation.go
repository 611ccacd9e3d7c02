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

package model

// OpKind tags the closed set of mutations the engine understands (§4.5).
// Dispatch on Kind is a match over these eight cases; each case is a pure
// function from (state, op) to (state', error) in package ops.
type OpKind int32

const (
	OpCreateFile OpKind = iota
	OpCreateSymlink
	OpCreateDirectory
	OpRemoveFile
	OpRemoveDirectory
	OpRename
	OpSetAttributes
	OpWrite
)

// IsCreate reports whether k is one of the three dirent-creating kinds,
// the ones that consult Operation.ProvisionalID and mint a fresh FileID.
func (k OpKind) IsCreate() bool {
	return k == OpCreateFile || k == OpCreateSymlink || k == OpCreateDirectory
}

func (k OpKind) String() string {
	switch k {
	case OpCreateFile:
		return "CreateFile"
	case OpCreateSymlink:
		return "CreateSymlink"
	case OpCreateDirectory:
		return "CreateDirectory"
	case OpRemoveFile:
		return "RemoveFile"
	case OpRemoveDirectory:
		return "RemoveDirectory"
	case OpRename:
		return "Rename"
	case OpSetAttributes:
		return "SetAttributes"
	case OpWrite:
		return "Write"
	default:
		return "Unknown"
	}
}

// OptionalUint32 / OptionalUint64 / OptionalTimespec let SetAttributes carry
// only the fields the caller actually wants to change.
type OptionalUint32 struct {
	Valid bool
	Value uint32
}

type OptionalUint64 struct {
	Valid bool
	Value uint64
}

type OptionalTimespec struct {
	Valid bool
	Value Timespec
}

// Operation is a single entry in the mutation vocabulary. Every operation
// carries the caller's view of the target's version pair; the engine's
// compare-and-apply fails with *offserr.VersionConflictError when it has drifted, unless
// Bypass is set (server-originated bootstrap/cascade operations).
type Operation struct {
	Kind   OpKind
	Target FileID

	// The caller's view of the target's version pair at the time the
	// operation was produced. Ignored by CreateFile/CreateSymlink/
	// CreateDirectory, whose Target names the *parent*.
	DirentVersion  int64
	ContentVersion int64

	// TimestampSec/TimestampNsec is the advisory creation time used for
	// ordering within a journal; it never overrides ctim/mtim/atim logic.
	TimestampSec  int64
	TimestampNsec int32

	// Bypass skips the optimistic version check. Only the server itself sets
	// this, for bootstrap and cascade-delete operations it originates.
	Bypass bool

	// CreateFile / CreateSymlink / CreateDirectory
	Name        string
	NewFileType FileType // CreateFile only
	Mode        uint32
	Dev         uint64
	// Link is the symlink target (CreateSymlink only). A transport may leave
	// it empty and populate LinkBlobID/LinkSize instead, once it has
	// confirmed via GetMissingBlobs that the server already holds the blob
	// for this content (§1, "transfers only blobs the server is missing");
	// the engine then resolves the blob by ID instead of re-submitting it.
	Link          string
	LinkBlobID    string
	LinkSize      uint64
	ProvisionalID FileID // client-minted ID embedded by the client, §4.5

	// Rename
	NewParent FileID
	NewName   string

	// SetAttributes
	AttrMode OptionalUint32
	AttrUid  OptionalUint32
	AttrGid  OptionalUint32
	AttrSize OptionalUint64
	AttrAtim OptionalTimespec
	AttrMtim OptionalTimespec

	// Write
	Offset int64
	Data   []byte
}
