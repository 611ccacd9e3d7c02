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

package journal

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/m4tx/offs/internal/model"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	j, err := Open(db)
	require.NoError(t, err)
	return j
}

func TestJournal_AppendAndList(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	seq1, err := j.Append(ctx, model.Operation{Kind: model.OpCreateFile, Name: "a.txt"})
	require.NoError(t, err)
	seq2, err := j.Append(ctx, model.Operation{Kind: model.OpCreateFile, Name: "b.txt"})
	require.NoError(t, err)
	assert.Less(t, seq1, seq2)

	entries, err := j.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.txt", entries[0].Op.Name)
	assert.Equal(t, "b.txt", entries[1].Op.Name)

	n, err := j.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestJournal_DeleteThrough(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	_, err := j.Append(ctx, model.Operation{Kind: model.OpCreateFile, Name: "a"})
	require.NoError(t, err)
	seq2, err := j.Append(ctx, model.Operation{Kind: model.OpCreateFile, Name: "b"})
	require.NoError(t, err)
	_, err = j.Append(ctx, model.Operation{Kind: model.OpCreateFile, Name: "c"})
	require.NoError(t, err)

	require.NoError(t, j.DeleteThrough(ctx, seq2))

	entries, err := j.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "c", entries[0].Op.Name)
}

func TestJournal_Delete_SingleEntry(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	seq1, err := j.Append(ctx, model.Operation{Kind: model.OpCreateFile, Name: "a"})
	require.NoError(t, err)
	_, err = j.Append(ctx, model.Operation{Kind: model.OpCreateFile, Name: "b"})
	require.NoError(t, err)

	require.NoError(t, j.Delete(ctx, seq1))

	entries, err := j.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].Op.Name)
}

func TestJournal_RewriteTarget(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	const provisional model.FileID = "prov-1"
	const real model.FileID = "real-1"

	_, err := j.Append(ctx, model.Operation{Kind: model.OpWrite, Target: provisional, Data: []byte("x")})
	require.NoError(t, err)
	_, err = j.Append(ctx, model.Operation{Kind: model.OpRename, Target: "other", NewParent: provisional, NewName: "y"})
	require.NoError(t, err)

	require.NoError(t, j.RewriteTarget(ctx, provisional, real))

	entries, err := j.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, real, entries[0].Op.Target)
	assert.Equal(t, real, entries[1].Op.NewParent)
}

func TestJournal_RewriteName(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	const target model.FileID = "f1"
	_, err := j.Append(ctx, model.Operation{Kind: model.OpCreateFile, Target: "parent", ProvisionalID: target, Name: "old.txt"})
	require.NoError(t, err)

	// RewriteName matches on Target, so journal a follow-up mutation against
	// the same target to exercise the create-vs-rename branch split.
	_, err = j.Append(ctx, model.Operation{Kind: model.OpRename, Target: target, NewName: "ignored"})
	require.NoError(t, err)

	require.NoError(t, j.RewriteName(ctx, target, "new.txt"))

	entries, err := j.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "old.txt", entries[0].Op.Name) // create's Target is "parent", not target; unaffected
	assert.Equal(t, "new.txt", entries[1].Op.NewName)
}

func TestJournal_DropTarget(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	const target model.FileID = "f1"
	_, err := j.Append(ctx, model.Operation{Kind: model.OpWrite, Target: target})
	require.NoError(t, err)
	_, err = j.Append(ctx, model.Operation{Kind: model.OpRename, Target: "other", NewParent: target})
	require.NoError(t, err)
	_, err = j.Append(ctx, model.Operation{Kind: model.OpWrite, Target: "unrelated"})
	require.NoError(t, err)

	require.NoError(t, j.DropTarget(ctx, target))

	entries, err := j.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.FileID("unrelated"), entries[0].Op.Target)
}

func TestJournal_Clear(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	_, err := j.Append(ctx, model.Operation{Kind: model.OpCreateFile, Name: "a"})
	require.NoError(t, err)
	require.NoError(t, j.Clear(ctx))

	n, err := j.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestJournal_OfflineFlag(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	offline, err := j.Offline(ctx)
	require.NoError(t, err)
	assert.False(t, offline)

	require.NoError(t, j.SetOffline(ctx, true))
	offline, err = j.Offline(ctx)
	require.NoError(t, err)
	assert.True(t, offline)

	require.NoError(t, j.SetOffline(ctx, false))
	offline, err = j.Offline(ctx)
	require.NoError(t, err)
	assert.False(t, offline)
}

func TestJournal_SubmissionToken(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	tok, err := j.SubmissionToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), tok)

	next, err := j.NextSubmissionToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)

	next, err = j.NextSubmissionToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next)

	tok, err = j.SubmissionToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), tok)
}
