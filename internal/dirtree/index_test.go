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

package dirtree

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/m4tx/offs/internal/model"
	"github.com/m4tx/offs/internal/offserr"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, EnsureRoot(idx))
	return idx
}

func insertChild(t *testing.T, idx *Index, parent model.FileID, name string, fileType model.FileType) model.DirEntity {
	t.Helper()
	entity := model.DirEntity{
		ID:             model.FileID(name + "-id"),
		Parent:         parent,
		Name:           name,
		DirentVersion:  1,
		ContentVersion: 1,
		Stat:           model.Stat{FileType: fileType, Nlink: 1},
	}
	require.NoError(t, idx.Tx(context.Background(), func(tx *gorm.DB) error {
		return InsertEntity(tx, entity)
	}))
	return entity
}

func TestEnsureRoot_Idempotent(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, EnsureRoot(idx)) // calling again must not error or duplicate

	root, err := idx.Get(context.Background(), model.RootSentinel)
	require.NoError(t, err)
	assert.True(t, root.IsRoot())
}

func TestGet_NotFound(t *testing.T) {
	idx := newTestIndex(t)
	_, err := idx.Get(context.Background(), "missing")
	var nf *offserr.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestLookup_And_List(t *testing.T) {
	idx := newTestIndex(t)
	a := insertChild(t, idx, model.RootSentinel, "a", model.RegularFile)
	insertChild(t, idx, model.RootSentinel, "b", model.RegularFile)

	found, err := idx.Lookup(context.Background(), model.RootSentinel, "a")
	require.NoError(t, err)
	assert.Equal(t, a.ID, found.ID)

	children, err := idx.List(context.Background(), model.RootSentinel)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "a", children[0].Name)
	assert.Equal(t, "b", children[1].Name)
}

func TestNameTaken_And_Excluding(t *testing.T) {
	idx := newTestIndex(t)
	a := insertChild(t, idx, model.RootSentinel, "dup", model.RegularFile)

	err := idx.Tx(context.Background(), func(tx *gorm.DB) error {
		taken, err := NameTaken(tx, model.RootSentinel, "dup")
		require.NoError(t, err)
		assert.True(t, taken)

		takenExcl, err := NameTakenExcluding(tx, model.RootSentinel, "dup", a.ID)
		require.NoError(t, err)
		assert.False(t, takenExcl)
		return nil
	})
	require.NoError(t, err)
}

func TestDeleteSubtree_Cascades(t *testing.T) {
	idx := newTestIndex(t)
	dir := insertChild(t, idx, model.RootSentinel, "dir", model.Directory)
	child := insertChild(t, idx, dir.ID, "child", model.RegularFile)
	grandchild := insertChild(t, idx, child.ID, "grandchild", model.RegularFile)

	require.NoError(t, idx.Tx(context.Background(), func(tx *gorm.DB) error {
		return ReplaceChunks(tx, grandchild.ID, []model.ChunkEntry{{Index: 0, BlobID: "b1"}})
	}))

	require.NoError(t, idx.Tx(context.Background(), func(tx *gorm.DB) error {
		return DeleteSubtree(tx, dir.ID)
	}))

	for _, id := range []model.FileID{dir.ID, child.ID, grandchild.ID} {
		_, err := idx.Get(context.Background(), id)
		var nf *offserr.NotFoundError
		assert.ErrorAs(t, err, &nf)
	}

	chunks, err := idx.ChunksOf(context.Background(), grandchild.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestReplaceChunks(t *testing.T) {
	idx := newTestIndex(t)
	f := insertChild(t, idx, model.RootSentinel, "f", model.RegularFile)

	require.NoError(t, idx.Tx(context.Background(), func(tx *gorm.DB) error {
		return ReplaceChunks(tx, f.ID, []model.ChunkEntry{
			{Index: 0, BlobID: "b0"},
			{Index: 1, BlobID: "b1"},
		})
	}))
	chunks, err := idx.ChunksOf(context.Background(), f.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "b0", chunks[0].BlobID)
	assert.Equal(t, "b1", chunks[1].BlobID)

	require.NoError(t, idx.Tx(context.Background(), func(tx *gorm.DB) error {
		return ReplaceChunks(tx, f.ID, []model.ChunkEntry{{Index: 0, BlobID: "b2"}})
	}))
	chunks, err = idx.ChunksOf(context.Background(), f.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "b2", chunks[0].BlobID)
}

func TestRewriteID_CascadesToChildrenAndChunks(t *testing.T) {
	idx := newTestIndex(t)
	dir := insertChild(t, idx, model.RootSentinel, "dir", model.Directory)
	child := insertChild(t, idx, dir.ID, "child", model.RegularFile)
	require.NoError(t, idx.Tx(context.Background(), func(tx *gorm.DB) error {
		return ReplaceChunks(tx, child.ID, []model.ChunkEntry{{Index: 0, BlobID: "b0"}})
	}))

	const newDirID model.FileID = "real-dir-id"
	require.NoError(t, idx.Tx(context.Background(), func(tx *gorm.DB) error {
		return RewriteID(tx, dir.ID, newDirID)
	}))

	_, err := idx.Get(context.Background(), dir.ID)
	var nf *offserr.NotFoundError
	assert.ErrorAs(t, err, &nf)

	rewritten, err := idx.Get(context.Background(), newDirID)
	require.NoError(t, err)
	assert.Equal(t, "dir", rewritten.Name)

	movedChild, err := idx.Lookup(context.Background(), newDirID, "child")
	require.NoError(t, err)
	assert.Equal(t, child.ID, movedChild.ID)
}

func TestIsDescendant(t *testing.T) {
	idx := newTestIndex(t)
	dir := insertChild(t, idx, model.RootSentinel, "dir", model.Directory)
	child := insertChild(t, idx, dir.ID, "child", model.Directory)
	grandchild := insertChild(t, idx, child.ID, "grandchild", model.RegularFile)
	other := insertChild(t, idx, model.RootSentinel, "other", model.RegularFile)

	ok, err := idx.IsDescendant(context.Background(), dir.ID, grandchild.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = idx.IsDescendant(context.Background(), dir.ID, other.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = idx.IsDescendant(context.Background(), dir.ID, dir.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpdateEntity(t *testing.T) {
	idx := newTestIndex(t)
	f := insertChild(t, idx, model.RootSentinel, "f", model.RegularFile)

	f.Stat.Size = 42
	f.ContentVersion = 2
	require.NoError(t, idx.Tx(context.Background(), func(tx *gorm.DB) error {
		return UpdateEntity(tx, f)
	}))

	updated, err := idx.Get(context.Background(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), updated.Stat.Size)
	assert.Equal(t, int64(2), updated.ContentVersion)
}
