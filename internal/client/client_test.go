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

package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m4tx/offs/internal/chunker"
	"github.com/m4tx/offs/internal/clock"
	"github.com/m4tx/offs/internal/dirtree"
	"github.com/m4tx/offs/internal/journal"
	"github.com/m4tx/offs/internal/model"
	"github.com/m4tx/offs/internal/server"
)

// serverRemote adapts an in-process *server.Server to the client.Remote
// interface, standing in for the RPC stub a real deployment would use
// (wire framing is out of this spec's scope, §1).
type serverRemote struct {
	s *server.Server
}

func (r serverRemote) Get(ctx context.Context, id model.FileID) (model.DirEntity, error) {
	return r.s.Get(ctx, id)
}

func (r serverRemote) List(ctx context.Context, parent model.FileID) ([]model.DirEntity, error) {
	return r.s.List(ctx, parent)
}

func (r serverRemote) ListChunks(ctx context.Context, id model.FileID) ([]model.ChunkEntry, error) {
	return r.s.ListChunks(ctx, id)
}

func (r serverRemote) GetBlobs(ctx context.Context, ids []string) ([]model.Blob, error) {
	return r.s.GetBlobs(ctx, ids)
}

func (r serverRemote) GetMissingBlobs(ctx context.Context, ids []string) ([]string, error) {
	return r.s.GetMissingBlobs(ctx, ids)
}

func (r serverRemote) ApplyOperation(ctx context.Context, op model.Operation) (model.DirEntity, error) {
	return r.s.ApplyOperation(ctx, op)
}

func (r serverRemote) ApplyJournal(ctx context.Context, ops []model.Operation, rawBlobs [][]byte) (JournalResult, error) {
	res, err := r.s.ApplyJournal(ctx, ops, rawBlobs)
	if err != nil {
		return JournalResult{}, err
	}
	return JournalResult{
		Outcome:        int(res.Outcome),
		AssignedIDs:    res.AssignedIDs,
		Entities:       res.Entities,
		MissingBlobIDs: res.MissingBlobIDs,
		ConflictingIDs: res.ConflictingIDs,
		InvalidReason:  res.InvalidReason,
	}, nil
}

func newTestPair(t *testing.T) (*Client, *server.Server) {
	t.Helper()
	params := chunker.Params{Min: 16, Avg: 64, Max: 4096}

	srvIdx, err := dirtree.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, dirtree.EnsureRoot(srvIdx))
	srv := server.New(srvIdx, params, clock.RealClock{})

	c, err := Open(":memory:", params, clock.RealClock{}, serverRemote{s: srv}, journal.ServerWins{})
	require.NoError(t, err)

	return c, srv
}

func TestClient_CreateOnline_DispatchesImmediately(t *testing.T) {
	c, srv := newTestPair(t)
	ctx := context.Background()

	entity, err := c.CreateFile(ctx, model.RootSentinel, "a.txt", model.RegularFile, 0o644, 0)
	require.NoError(t, err)
	provisional := entity.ID
	assert.Equal(t, byte('p'), provisional[0])

	// The journal should have drained immediately (the client is online),
	// and the provisional ID the caller was handed should now resolve to
	// the server-assigned real ID in the local index.
	n, err := c.Journal.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = c.Index.Get(ctx, provisional)
	assert.Error(t, err, "provisional id should have been rewritten away locally")

	remoteChildren, err := srv.List(ctx, model.RootSentinel)
	require.NoError(t, err)
	require.Len(t, remoteChildren, 1)
	assert.Equal(t, "a.txt", remoteChildren[0].Name)
}

func TestClient_OfflineWrite_QueuesInJournal(t *testing.T) {
	c, srv := newTestPair(t)
	ctx := context.Background()

	require.NoError(t, c.SetOffline(ctx, true))

	entity, err := c.CreateFile(ctx, model.RootSentinel, "b.txt", model.RegularFile, 0o644, 0)
	require.NoError(t, err)
	assert.Equal(t, byte('p'), entity.ID[0])

	n, err := c.Journal.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	remoteChildren, err := srv.List(ctx, model.RootSentinel)
	require.NoError(t, err)
	assert.Empty(t, remoteChildren)

	require.NoError(t, c.SetOffline(ctx, false))
	require.NoError(t, c.Replay(ctx))

	n, err = c.Journal.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	remoteChildren, err = srv.List(ctx, model.RootSentinel)
	require.NoError(t, err)
	require.Len(t, remoteChildren, 1)
	assert.Equal(t, "b.txt", remoteChildren[0].Name)
}

func TestClient_OfflineWriteThenRead_ReturnsEagerlyAppliedContent(t *testing.T) {
	c, _ := newTestPair(t)
	ctx := context.Background()

	require.NoError(t, c.SetOffline(ctx, true))

	entity, err := c.CreateFile(ctx, model.RootSentinel, "c.txt", model.RegularFile, 0o644, 0)
	require.NoError(t, err)

	_, err = c.WriteAt(ctx, entity.ID, 0, []byte("hello offline"))
	require.NoError(t, err)

	data, err := c.ReadAt(ctx, entity.ID, 0, len("hello offline"))
	require.NoError(t, err)
	assert.Equal(t, "hello offline", string(data))
}

func TestClient_Lookup_CachesOnMiss(t *testing.T) {
	c, srv := newTestPair(t)
	ctx := context.Background()

	created, err := srv.ApplyOperation(ctx, model.Operation{
		Kind: model.OpCreateDirectory, Target: model.RootSentinel,
		DirentVersion: 1, ContentVersion: 1, Name: "dir",
	})
	require.NoError(t, err)

	found, err := c.Lookup(ctx, model.RootSentinel, "dir")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	// Now cached locally, even offline.
	require.NoError(t, c.SetOffline(ctx, true))
	found2, err := c.Index.Lookup(ctx, model.RootSentinel, "dir")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found2.ID)
}
