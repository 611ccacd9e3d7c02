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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m4tx/offs/internal/chunker"
	"github.com/m4tx/offs/internal/clock"
	"github.com/m4tx/offs/internal/dirtree"
	"github.com/m4tx/offs/internal/model"
	"github.com/m4tx/offs/internal/offserr"
)

func newTestEngine(t *testing.T) (*Engine, model.FileID) {
	t.Helper()

	idx, err := dirtree.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, dirtree.EnsureRoot(idx))

	eng := NewServerEngine(idx, chunker.Params{Min: 16, Avg: 64, Max: 4096}, clock.RealClock{})
	return eng, model.RootSentinel
}

func createFile(t *testing.T, eng *Engine, parent model.FileID, name string) model.DirEntity {
	t.Helper()
	parentEntity, err := eng.Index.Get(context.Background(), parent)
	require.NoError(t, err)

	entity, err := eng.Apply(context.Background(), model.Operation{
		Kind:           model.OpCreateFile,
		Target:         parent,
		DirentVersion:  parentEntity.DirentVersion,
		ContentVersion: parentEntity.ContentVersion,
		Name:           name,
		NewFileType:    model.RegularFile,
		Mode:           0o644,
	})
	require.NoError(t, err)
	return entity
}

func TestApply_CreateFile(t *testing.T) {
	eng, root := newTestEngine(t)

	entity := createFile(t, eng, root, "a.txt")

	assert.Equal(t, "a.txt", entity.Name)
	assert.Equal(t, int64(1), entity.DirentVersion)
	assert.Equal(t, int64(1), entity.ContentVersion)
	assert.Equal(t, model.RegularFile, entity.Stat.FileType)

	rootEntity, err := eng.Index.Get(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rootEntity.DirentVersion)

	children, err := eng.Index.List(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, entity.ID, children[0].ID)
}

func TestApply_CreateFile_AlreadyExists(t *testing.T) {
	eng, root := newTestEngine(t)
	createFile(t, eng, root, "dup.txt")

	rootEntity, err := eng.Index.Get(context.Background(), root)
	require.NoError(t, err)

	_, err = eng.Apply(context.Background(), model.Operation{
		Kind:           model.OpCreateFile,
		Target:         root,
		DirentVersion:  rootEntity.DirentVersion,
		ContentVersion: rootEntity.ContentVersion,
		Name:           "dup.txt",
		NewFileType:    model.RegularFile,
	})

	var alreadyExists *offserr.AlreadyExistsError
	assert.ErrorAs(t, err, &alreadyExists)
}

func TestApply_CreateFile_VersionConflict(t *testing.T) {
	eng, root := newTestEngine(t)

	_, err := eng.Apply(context.Background(), model.Operation{
		Kind:           model.OpCreateFile,
		Target:         root,
		DirentVersion:  999,
		ContentVersion: 999,
		Name:           "x.txt",
		NewFileType:    model.RegularFile,
	})

	var conflict *offserr.VersionConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestApply_WriteThenRead(t *testing.T) {
	eng, root := newTestEngine(t)
	f := createFile(t, eng, root, "hello.txt")

	written, err := eng.Apply(context.Background(), model.Operation{
		Kind:           model.OpWrite,
		Target:         f.ID,
		DirentVersion:  f.DirentVersion,
		ContentVersion: f.ContentVersion,
		Offset:         0,
		Data:           []byte("hello"),
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(5), written.Stat.Size)
	assert.Equal(t, int64(2), written.ContentVersion)

	chunks, err := eng.Index.ChunksOf(context.Background(), f.ID)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
}

func TestApply_Write_OverwriteInPlace(t *testing.T) {
	eng, root := newTestEngine(t)
	f := createFile(t, eng, root, "overwrite.txt")

	f, err := eng.Apply(context.Background(), model.Operation{
		Kind: model.OpWrite, Target: f.ID,
		DirentVersion: f.DirentVersion, ContentVersion: f.ContentVersion,
		Offset: 0, Data: []byte("aaaaaaaaaa"),
	})
	require.NoError(t, err)

	f, err = eng.Apply(context.Background(), model.Operation{
		Kind: model.OpWrite, Target: f.ID,
		DirentVersion: f.DirentVersion, ContentVersion: f.ContentVersion,
		Offset: 2, Data: []byte("XX"),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(10), f.Stat.Size)
}

func TestApply_SetAttributes_GrowThenShrink(t *testing.T) {
	eng, root := newTestEngine(t)
	f := createFile(t, eng, root, "resize.txt")

	f, err := eng.Apply(context.Background(), model.Operation{
		Kind: model.OpWrite, Target: f.ID,
		DirentVersion: f.DirentVersion, ContentVersion: f.ContentVersion,
		Offset: 0, Data: []byte("abc"),
	})
	require.NoError(t, err)

	f, err = eng.Apply(context.Background(), model.Operation{
		Kind: model.OpSetAttributes, Target: f.ID,
		DirentVersion: f.DirentVersion, ContentVersion: f.ContentVersion,
		AttrSize: model.OptionalUint64{Valid: true, Value: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(10), f.Stat.Size)
	assert.Equal(t, int64(3), f.ContentVersion)

	f, err = eng.Apply(context.Background(), model.Operation{
		Kind: model.OpSetAttributes, Target: f.ID,
		DirentVersion: f.DirentVersion, ContentVersion: f.ContentVersion,
		AttrSize: model.OptionalUint64{Valid: true, Value: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.Stat.Size)
	assert.Equal(t, int64(4), f.ContentVersion)
}

func TestApply_RemoveFile(t *testing.T) {
	eng, root := newTestEngine(t)
	f := createFile(t, eng, root, "gone.txt")

	_, err := eng.Apply(context.Background(), model.Operation{
		Kind:           model.OpRemoveFile,
		Target:         f.ID,
		DirentVersion:  f.DirentVersion,
		ContentVersion: f.ContentVersion,
	})
	require.NoError(t, err)

	_, err = eng.Index.Get(context.Background(), f.ID)
	var nf *offserr.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestApply_RemoveDirectory_NotEmpty(t *testing.T) {
	eng, root := newTestEngine(t)

	rootEntity, err := eng.Index.Get(context.Background(), root)
	require.NoError(t, err)
	dir, err := eng.Apply(context.Background(), model.Operation{
		Kind: model.OpCreateDirectory, Target: root,
		DirentVersion: rootEntity.DirentVersion, ContentVersion: rootEntity.ContentVersion,
		Name: "d", Mode: 0o755,
	})
	require.NoError(t, err)
	createFile(t, eng, dir.ID, "child.txt")

	dir, err = eng.Index.Get(context.Background(), dir.ID)
	require.NoError(t, err)
	_, err = eng.Apply(context.Background(), model.Operation{
		Kind: model.OpRemoveDirectory, Target: dir.ID,
		DirentVersion: dir.DirentVersion, ContentVersion: dir.ContentVersion,
	})

	var notEmpty *offserr.NotEmptyError
	assert.ErrorAs(t, err, &notEmpty)
}

func TestApply_Rename_CycleRejected(t *testing.T) {
	eng, root := newTestEngine(t)

	rootEntity, err := eng.Index.Get(context.Background(), root)
	require.NoError(t, err)
	d, err := eng.Apply(context.Background(), model.Operation{
		Kind: model.OpCreateDirectory, Target: root,
		DirentVersion: rootEntity.DirentVersion, ContentVersion: rootEntity.ContentVersion,
		Name: "d", Mode: 0o755,
	})
	require.NoError(t, err)
	e, err := eng.Apply(context.Background(), model.Operation{
		Kind: model.OpCreateDirectory, Target: d.ID,
		DirentVersion: d.DirentVersion, ContentVersion: d.ContentVersion,
		Name: "e", Mode: 0o755,
	})
	require.NoError(t, err)

	d, err = eng.Index.Get(context.Background(), d.ID)
	require.NoError(t, err)
	_, err = eng.Apply(context.Background(), model.Operation{
		Kind: model.OpRename, Target: d.ID,
		DirentVersion: d.DirentVersion, ContentVersion: d.ContentVersion,
		NewParent: e.ID, NewName: "d",
	})

	var invalid *offserr.InvalidOperationError
	assert.ErrorAs(t, err, &invalid)
}

func TestApply_Rename_Success(t *testing.T) {
	eng, root := newTestEngine(t)
	a := createFile(t, eng, root, "a.txt")

	rootEntity, err := eng.Index.Get(context.Background(), root)
	require.NoError(t, err)
	dir, err := eng.Apply(context.Background(), model.Operation{
		Kind: model.OpCreateDirectory, Target: root,
		DirentVersion: rootEntity.DirentVersion, ContentVersion: rootEntity.ContentVersion,
		Name: "sub", Mode: 0o755,
	})
	require.NoError(t, err)

	renamed, err := eng.Apply(context.Background(), model.Operation{
		Kind: model.OpRename, Target: a.ID,
		DirentVersion: a.DirentVersion, ContentVersion: a.ContentVersion,
		NewParent: dir.ID, NewName: "b.txt",
	})
	require.NoError(t, err)
	assert.Equal(t, "b.txt", renamed.Name)
	assert.Equal(t, dir.ID, renamed.Parent)

	_, err = eng.Index.Lookup(context.Background(), root, "a.txt")
	var nf *offserr.NotFoundError
	assert.ErrorAs(t, err, &nf)

	found, err := eng.Index.Lookup(context.Background(), dir.ID, "b.txt")
	require.NoError(t, err)
	assert.Equal(t, a.ID, found.ID)
}

func TestApply_CreateSymlink(t *testing.T) {
	eng, root := newTestEngine(t)
	rootEntity, err := eng.Index.Get(context.Background(), root)
	require.NoError(t, err)

	link, err := eng.Apply(context.Background(), model.Operation{
		Kind: model.OpCreateSymlink, Target: root,
		DirentVersion: rootEntity.DirentVersion, ContentVersion: rootEntity.ContentVersion,
		Name: "link", Link: "/a.txt",
	})
	require.NoError(t, err)
	assert.Equal(t, model.Symlink, link.Stat.FileType)
	assert.Equal(t, uint64(len("/a.txt")), link.Stat.Size)
}

func TestApply_Deduplication(t *testing.T) {
	eng, root := newTestEngine(t)
	x := createFile(t, eng, root, "x")
	y := createFile(t, eng, root, "y")

	payload := make([]byte, 10000)
	for i := range payload {
		payload[i] = 'A'
	}

	x, err := eng.Apply(context.Background(), model.Operation{
		Kind: model.OpWrite, Target: x.ID,
		DirentVersion: x.DirentVersion, ContentVersion: x.ContentVersion,
		Offset: 0, Data: payload,
	})
	require.NoError(t, err)
	y, err = eng.Apply(context.Background(), model.Operation{
		Kind: model.OpWrite, Target: y.ID,
		DirentVersion: y.DirentVersion, ContentVersion: y.ContentVersion,
		Offset: 0, Data: payload,
	})
	require.NoError(t, err)

	xChunks, err := eng.Index.ChunksOf(context.Background(), x.ID)
	require.NoError(t, err)
	yChunks, err := eng.Index.ChunksOf(context.Background(), y.ID)
	require.NoError(t, err)

	require.Equal(t, len(xChunks), len(yChunks))
	for i := range xChunks {
		assert.Equal(t, xChunks[i].BlobID, yChunks[i].BlobID)
	}
}
