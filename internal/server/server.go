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

// Package server implements the server core (C6): the authoritative
// directory index and blob store, exposed through the read, single-op and
// journal endpoints of §4.6. The wire framing that carries these calls
// between processes is explicitly out of scope (§1); this package exposes
// plain Go methods for whatever transport a caller wires in front of it.
package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/m4tx/offs/internal/blobstore"
	"github.com/m4tx/offs/internal/chunker"
	"github.com/m4tx/offs/internal/clock"
	"github.com/m4tx/offs/internal/dirtree"
	"github.com/m4tx/offs/internal/metrics"
	"github.com/m4tx/offs/internal/model"
	"github.com/m4tx/offs/internal/offserr"
	"github.com/m4tx/offs/internal/ops"
)

// Server hosts the authoritative index and blob store for a single OFFS
// deployment. It is safe for concurrent use by multiple request-handling
// goroutines; all cross-table writes are serialized through the shared
// *gorm.DB's transactions (§5).
type Server struct {
	Index  *dirtree.Index
	Blobs  blobstore.Store
	Engine *ops.Engine
}

// New wraps an already-open index with a server core. chunkParams governs
// how Write operations re-split their affected window (§4.3); clk supplies
// timestamps for version bumps.
func New(idx *dirtree.Index, chunkParams chunker.Params, clk clock.Clock) *Server {
	return &Server{
		Index:  idx,
		Blobs:  blobstore.NewSQLStore(idx.DB),
		Engine: ops.NewServerEngine(idx, chunkParams, clk),
	}
}

// List returns the children of parent, ordered by name (§4.6).
func (s *Server) List(ctx context.Context, parent model.FileID) ([]model.DirEntity, error) {
	if _, err := s.Index.Get(ctx, parent); err != nil {
		return nil, err
	}
	return s.Index.List(ctx, parent)
}

// Get returns the authoritative entity for id, used by the reconciler's
// ServerWins conflict policy to overwrite a client's stale local copy.
func (s *Server) Get(ctx context.Context, id model.FileID) (model.DirEntity, error) {
	return s.Index.Get(ctx, id)
}

// ListChunks returns id's chunk map, in index order.
func (s *Server) ListChunks(ctx context.Context, id model.FileID) ([]model.ChunkEntry, error) {
	if _, err := s.Index.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.Index.ChunksOf(ctx, id)
}

// GetBlobs returns the blobs present among ids, silently omitting any that
// are missing; callers needing to know which are missing call
// GetMissingBlobs first.
func (s *Server) GetBlobs(ctx context.Context, ids []string) ([]model.Blob, error) {
	out := make([]model.Blob, 0, len(ids))
	for _, id := range ids {
		content, err := s.Blobs.Get(ctx, id)
		if err != nil {
			var nf *offserr.NotFoundError
			if errors.As(err, &nf) {
				continue
			}
			return nil, err
		}
		out = append(out, model.Blob{ID: id, Content: content})
	}
	return out, nil
}

// GetMissingBlobs returns the subset of ids not present in the blob store.
func (s *Server) GetMissingBlobs(ctx context.Context, ids []string) ([]string, error) {
	return s.Blobs.Missing(ctx, ids)
}

// ApplyOperation is the single-operation path used when a client is online
// (§4.6): it returns the updated (or newly created) entity, or
// VersionConflict/NotFound/InvalidOperation.
func (s *Server) ApplyOperation(ctx context.Context, op model.Operation) (model.DirEntity, error) {
	entity, err := s.Engine.Apply(ctx, op)
	if err == nil {
		metrics.OperationsApplied.WithLabelValues(op.Kind.String()).Inc()
	}
	return entity, err
}

// JournalOutcome tags the four shapes an ApplyJournal call can resolve to
// (§4.6).
type JournalOutcome int

const (
	JournalSuccess JournalOutcome = iota
	JournalMissingBlobs
	JournalConflictingFiles
	JournalInvalid
)

func (o JournalOutcome) String() string {
	switch o {
	case JournalSuccess:
		return "Success"
	case JournalMissingBlobs:
		return "MissingBlobs"
	case JournalConflictingFiles:
		return "ConflictingFiles"
	case JournalInvalid:
		return "InvalidJournal"
	default:
		return "Unknown"
	}
}

// JournalResult is ApplyJournal's return value: exactly the fields relevant
// to Outcome are populated.
type JournalResult struct {
	Outcome JournalOutcome

	// Success
	AssignedIDs []model.FileID    // one per create op, in op order
	Entities    []model.DirEntity // one per op, in op order

	// MissingBlobs
	MissingBlobIDs []string

	// ConflictingFiles
	ConflictingIDs []string

	// InvalidJournal
	InvalidReason string
}

// ApplyJournal is the batch path (§4.6): it ingests rawBlobs into the blob
// store (harmless and idempotent even if some turn out unneeded, per the
// "keep them" policy the spec accepts), then applies ops in order inside a
// single transaction, resolving provisional IDs created earlier in the same
// batch. The transaction commits only on JournalSuccess; any other outcome
// rolls everything back.
func (s *Server) ApplyJournal(ctx context.Context, journalOps []model.Operation, rawBlobs [][]byte) (JournalResult, error) {
	timer := prometheus.NewTimer(metrics.ApplyJournalDuration)
	defer timer.ObserveDuration()

	// Raw blobs are independent content-addressed writes (no two reference
	// each other and none has been applied to the index yet), so ingesting
	// them is the one place in this method safe to fan out concurrently;
	// the ops loop below must stay strictly sequential in one transaction
	// (§4.6, "tries to apply ops in order").
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, b := range rawBlobs {
		b := b
		g.Go(func() error {
			if _, err := s.Blobs.Put(gctx, b); err != nil {
				return fmt.Errorf("server.ApplyJournal: ingest raw blob: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return JournalResult{}, err
	}

	provisionalToReal := map[model.FileID]model.FileID{}
	deletedInBatch := map[model.FileID]bool{}
	seenProvisional := map[model.FileID]bool{}
	resolve := func(id model.FileID) model.FileID {
		if real, ok := provisionalToReal[id]; ok {
			return real
		}
		return id
	}

	var assignedIDs []model.FileID
	var entities []model.DirEntity
	var conflictTarget string
	var invalidReason string
	var missingIDs []string

	txErr := s.Index.Tx(ctx, func(tx *gorm.DB) error {
		for i := range journalOps {
			op := journalOps[i]
			op.Target = resolve(op.Target)
			if op.Kind == model.OpRename {
				op.NewParent = resolve(op.NewParent)
			}

			if deletedInBatch[op.Target] {
				invalidReason = fmt.Sprintf("operation %d targets %s, already deleted earlier in this journal", i, op.Target)
				return &offserr.InvalidJournalError{Reason: invalidReason}
			}

			isCreate := op.Kind.IsCreate()
			if isCreate && op.ProvisionalID != "" {
				if seenProvisional[op.ProvisionalID] {
					invalidReason = fmt.Sprintf("duplicate provisional id %s", op.ProvisionalID)
					return &offserr.InvalidJournalError{Reason: invalidReason}
				}
				seenProvisional[op.ProvisionalID] = true
			}

			entity, err := s.Engine.ApplyTx(ctx, tx, op)
			if err != nil {
				var conflict *offserr.VersionConflictError
				if errors.As(err, &conflict) {
					conflictTarget = conflict.Target
					return conflict
				}
				var missing *offserr.MissingBlobError
				if errors.As(err, &missing) {
					missingIDs = missing.IDs
					return missing
				}
				invalidReason = err.Error()
				return &offserr.InvalidJournalError{Reason: invalidReason}
			}

			if isCreate {
				assignedIDs = append(assignedIDs, entity.ID)
				if op.ProvisionalID != "" {
					provisionalToReal[op.ProvisionalID] = entity.ID
				}
			}
			if op.Kind == model.OpRemoveFile || op.Kind == model.OpRemoveDirectory {
				deletedInBatch[op.Target] = true
			}
			entities = append(entities, entity)
		}
		return nil
	})

	if txErr == nil {
		for _, op := range journalOps {
			metrics.OperationsApplied.WithLabelValues(op.Kind.String()).Inc()
		}
		return JournalResult{Outcome: JournalSuccess, AssignedIDs: assignedIDs, Entities: entities}, nil
	}

	var conflict *offserr.VersionConflictError
	if errors.As(txErr, &conflict) {
		return JournalResult{Outcome: JournalConflictingFiles, ConflictingIDs: []string{conflictTarget}}, nil
	}
	var missing *offserr.MissingBlobError
	if errors.As(txErr, &missing) {
		return JournalResult{Outcome: JournalMissingBlobs, MissingBlobIDs: missingIDs}, nil
	}
	var invalid *offserr.InvalidJournalError
	if errors.As(txErr, &invalid) {
		return JournalResult{Outcome: JournalInvalid, InvalidReason: invalidReason}, nil
	}

	return JournalResult{}, fmt.Errorf("server.ApplyJournal: %w", txErr)
}
