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

// Package client implements the client cache (C7): a local mirror of the
// directory index and blob store that serves reads from cache (fetching and
// populating on a miss, while online), applies writes eagerly against its
// own Engine before the network is ever consulted (§4.7), and journals every
// write so the reconciler (package journal) can replay it later.
package client

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/m4tx/offs/internal/blobstore"
	"github.com/m4tx/offs/internal/chunker"
	"github.com/m4tx/offs/internal/clock"
	"github.com/m4tx/offs/internal/dirtree"
	"github.com/m4tx/offs/internal/journal"
	"github.com/m4tx/offs/internal/model"
	"github.com/m4tx/offs/internal/offserr"
	"github.com/m4tx/offs/internal/ops"
)

// Remote is the server surface the client talks to. *server.Server satisfies
// it directly for in-process tests; a real deployment wires an RPC stub with
// the same method set in front of whatever transport carries requests to the
// server (wire framing is out of this spec's scope, §1).
type Remote interface {
	Get(ctx context.Context, id model.FileID) (model.DirEntity, error)
	List(ctx context.Context, parent model.FileID) ([]model.DirEntity, error)
	ListChunks(ctx context.Context, id model.FileID) ([]model.ChunkEntry, error)
	GetBlobs(ctx context.Context, ids []string) ([]model.Blob, error)
	GetMissingBlobs(ctx context.Context, ids []string) ([]string, error)
	ApplyOperation(ctx context.Context, op model.Operation) (model.DirEntity, error)
	ApplyJournal(ctx context.Context, ops []model.Operation, rawBlobs [][]byte) (JournalResult, error)
}

// JournalResult mirrors server.JournalResult structurally; client depends on
// this shape rather than importing package server directly, so that Remote
// can be satisfied by either an in-process *server.Server (via a thin
// wrapper) or a future RPC stub without either side importing the other's
// internals.
type JournalResult struct {
	Outcome        int
	AssignedIDs    []model.FileID
	Entities       []model.DirEntity
	MissingBlobIDs []string
	ConflictingIDs []string
	InvalidReason  string
}

// Journal outcome constants, matching server.JournalOutcome's ordinals.
const (
	JournalSuccess = iota
	JournalMissingBlobs
	JournalConflictingFiles
	JournalInvalid
)

// Client is the client-side cache and write path.
type Client struct {
	Index      *dirtree.Index
	Blobs      blobstore.Store
	Engine     *ops.Engine
	Journal    *journal.Journal
	Remote     Remote
	Reconciler *journal.Reconciler
}

// Open opens (or creates) the client's local database at path, wires up the
// client engine, journal and reconciler, and returns a ready Client. policy
// resolves conflicts the reconciler surfaces during replay (§4.8.1); nil
// disables replay's ability to recover from ConflictingFiles (Replay then
// fails instead of resolving).
func Open(path string, chunkParams chunker.Params, clk clock.Clock, remote Remote, policy journal.ConflictPolicy) (*Client, error) {
	idx, err := dirtree.Open(path)
	if err != nil {
		return nil, fmt.Errorf("client.Open: %w", err)
	}
	if err := dirtree.EnsureRoot(idx); err != nil {
		return nil, fmt.Errorf("client.Open: ensure root: %w", err)
	}
	j, err := journal.Open(idx.DB)
	if err != nil {
		return nil, fmt.Errorf("client.Open: %w", err)
	}

	c := &Client{
		Index:   idx,
		Blobs:   blobstore.NewSQLStore(idx.DB),
		Engine:  ops.NewClientEngine(idx, chunkParams, clk),
		Journal: j,
		Remote:  remote,
	}
	c.Reconciler = &journal.Reconciler{
		Journal: j,
		Cache:   c,
		Remote:  remoteAdapter{remote: remote},
		Policy:  policy,
		Backoff: journal.DefaultBackoffParams(),
	}
	return c, nil
}

// SetOffline is the administrative toggle of §4.7: while offline, writes are
// journaled but never dispatched, and reads never attempt a network fetch on
// a cache miss.
func (c *Client) SetOffline(ctx context.Context, offline bool) error {
	return c.Journal.SetOffline(ctx, offline)
}

// Offline reports the current value of the offline flag.
func (c *Client) Offline(ctx context.Context) (bool, error) {
	return c.Journal.Offline(ctx)
}

// GC sweeps blobs no longer referenced by any chunk map entry (SPEC_FULL.md
// §C), returning the number of blobs removed. Triggered only via the
// administrative channel, never automatically.
func (c *Client) GC(ctx context.Context) (int, error) {
	return blobstore.Sweep(ctx, c.Index.DB)
}

// Replay drains the client's journal against Remote; see
// journal.Reconciler.Replay. Typically called after SetOffline(false), or
// periodically while online to keep the journal from growing unbounded.
func (c *Client) Replay(ctx context.Context) error {
	return c.Reconciler.Replay(ctx)
}

// --- Read path -------------------------------------------------------------

// Stat returns id's entity, serving from the local cache and falling back to
// a remote fetch (caching the result) on a miss while online.
func (c *Client) Stat(ctx context.Context, id model.FileID) (model.DirEntity, error) {
	entity, err := c.Index.Get(ctx, id)
	if err == nil {
		return entity, nil
	}
	if !isNotFound(err) {
		return model.DirEntity{}, err
	}
	return c.fetchEntity(ctx, id)
}

// Lookup resolves (parent, name) to its child entity, falling back to a
// remote directory listing on a local miss.
func (c *Client) Lookup(ctx context.Context, parent model.FileID, name string) (model.DirEntity, error) {
	entity, err := c.Index.Lookup(ctx, parent, name)
	if err == nil {
		return entity, nil
	}
	if !isNotFound(err) {
		return model.DirEntity{}, err
	}

	offline, err := c.Journal.Offline(ctx)
	if err != nil {
		return model.DirEntity{}, err
	}
	if offline {
		return model.DirEntity{}, &offserr.OfflineUnavailableError{ID: fmt.Sprintf("%s/%s", parent, name)}
	}

	children, err := c.Remote.List(ctx, parent)
	if err != nil {
		return model.DirEntity{}, fmt.Errorf("client.Lookup: %w", err)
	}
	for _, child := range children {
		if err := c.cacheEntity(ctx, child); err != nil {
			return model.DirEntity{}, err
		}
		if child.Name == name {
			return child, nil
		}
	}
	return model.DirEntity{}, &offserr.NotFoundError{ID: fmt.Sprintf("%s/%s", parent, name)}
}

// List returns parent's children, refreshing from Remote while online and
// serving the local cache as-is while offline.
func (c *Client) List(ctx context.Context, parent model.FileID) ([]model.DirEntity, error) {
	offline, err := c.Journal.Offline(ctx)
	if err != nil {
		return nil, err
	}
	if offline {
		return c.Index.List(ctx, parent)
	}

	children, err := c.Remote.List(ctx, parent)
	if err != nil {
		return nil, fmt.Errorf("client.List: %w", err)
	}
	for _, child := range children {
		if err := c.cacheEntity(ctx, child); err != nil {
			return nil, err
		}
	}
	return children, nil
}

// ReadAt assembles length bytes of id's content starting at offset from the
// local chunk map, fetching (and caching) any blob missing locally while
// online.
func (c *Client) ReadAt(ctx context.Context, id model.FileID, offset int64, length int) ([]byte, error) {
	entries, err := c.Index.ChunksOf(ctx, id)
	if err != nil {
		return nil, err
	}

	var out []byte
	var pos int64
	for _, entry := range entries {
		if int64(len(out)) >= int64(length) {
			break
		}
		content, err := c.resolveBlob(ctx, entry.BlobID)
		if err != nil {
			return nil, err
		}
		chunkStart := pos
		chunkEnd := pos + int64(len(content))
		pos = chunkEnd

		if chunkEnd <= offset {
			continue
		}
		from := int64(0)
		if offset > chunkStart {
			from = offset - chunkStart
		}
		to := int64(len(content))
		if want := offset + int64(length) - chunkStart; want < to {
			to = want
		}
		if from < to {
			out = append(out, content[from:to]...)
		}
	}
	return out, nil
}

// resolveBlob returns blobID's content, fetching from Remote and caching
// locally on a miss (while online); offline misses are fatal to the read.
func (c *Client) resolveBlob(ctx context.Context, blobID string) ([]byte, error) {
	content, err := c.Blobs.Get(ctx, blobID)
	if err == nil {
		return content, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	offline, oerr := c.Journal.Offline(ctx)
	if oerr != nil {
		return nil, oerr
	}
	if offline {
		return nil, &offserr.OfflineUnavailableError{ID: blobID}
	}

	blobs, err := c.Remote.GetBlobs(ctx, []string{blobID})
	if err != nil {
		return nil, fmt.Errorf("client.resolveBlob: %w", err)
	}
	if len(blobs) == 0 {
		return nil, &offserr.NotFoundError{ID: blobID}
	}
	if _, err := c.Blobs.Put(ctx, blobs[0].Content); err != nil {
		return nil, fmt.Errorf("client.resolveBlob: cache: %w", err)
	}
	return blobs[0].Content, nil
}

func (c *Client) fetchEntity(ctx context.Context, id model.FileID) (model.DirEntity, error) {
	offline, err := c.Journal.Offline(ctx)
	if err != nil {
		return model.DirEntity{}, err
	}
	if offline {
		return model.DirEntity{}, &offserr.OfflineUnavailableError{ID: string(id)}
	}

	entity, err := c.Remote.Get(ctx, id)
	if err != nil {
		return model.DirEntity{}, fmt.Errorf("client.fetchEntity: %w", err)
	}
	if err := c.cacheEntity(ctx, entity); err != nil {
		return model.DirEntity{}, err
	}
	return entity, nil
}

// cacheEntity upserts entity into the local index, bypassing any version
// check: a remote-fetched entity is by definition authoritative.
func (c *Client) cacheEntity(ctx context.Context, entity model.DirEntity) error {
	exists, err := c.Index.Exists(ctx, entity.ID)
	if err != nil {
		return err
	}
	return c.Index.Tx(ctx, func(tx *gorm.DB) error {
		if exists {
			return dirtree.UpdateEntity(tx, entity)
		}
		return dirtree.InsertEntity(tx, entity)
	})
}

func isNotFound(err error) bool {
	var nf *offserr.NotFoundError
	return errors.As(err, &nf)
}
