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
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/m4tx/offs/internal/blobstore"
	"github.com/m4tx/offs/internal/metrics"
	"github.com/m4tx/offs/internal/model"
	"github.com/m4tx/offs/internal/offserr"
)

// Cache is the narrow slice of the client cache (C7) the reconciler needs.
// It is an interface, not a dependency on package client, so that client can
// import journal without a cycle.
type Cache interface {
	// LocalBlob returns the raw bytes for a blob id already materialised in
	// the client's local blob store (e.g. because the write that produced it
	// was applied eagerly, per §4.7).
	LocalBlob(ctx context.Context, id string) ([]byte, error)

	// RewriteProvisionalID replaces every occurrence of old with real across
	// the local index: the dirent itself, and any not-yet-submitted journal
	// entries still referencing old as a target or parent (§4.5, "Create ID
	// assignment").
	RewriteProvisionalID(ctx context.Context, old, real model.FileID) error

	// AdoptAuthoritative overwrites the local copy of entity with the
	// server's authoritative version pair and stat, used once a ServerWins
	// conflict resolution has discarded the local edit.
	AdoptAuthoritative(ctx context.Context, entity model.DirEntity) error

	// RenameAway is invoked for a RenameLocal resolution (§4.8.1): the local
	// file at id is renamed in the cache to a conflict-suffixed name so the
	// replay can retry its originating operation against a free slot.
	RenameAway(ctx context.Context, id model.FileID) (newName string, err error)
}

// Remote mirrors the subset of server.Server's surface the reconciler calls
// against. A real deployment satisfies it with an RPC stub; tests satisfy it
// directly with an in-process *server.Server, since the wire framing between
// the two is out of this spec's scope (§1).
type Remote interface {
	GetMissingBlobs(ctx context.Context, ids []string) ([]string, error)
	ApplyJournal(ctx context.Context, ops []model.Operation, rawBlobs [][]byte) (JournalOutcome, JournalOutcomeData, error)

	// Get returns the server's authoritative entity for id, used by
	// ServerWins to overwrite the local copy after a conflict.
	Get(ctx context.Context, id model.FileID) (model.DirEntity, error)
}

// JournalOutcome mirrors server.JournalOutcome without importing package
// server, keeping journal's dependency graph one-directional (server does
// not need to know about journal, and journal does not need to know about
// server's own type beyond this shape).
type JournalOutcome int

const (
	OutcomeSuccess JournalOutcome = iota
	OutcomeMissingBlobs
	OutcomeConflictingFiles
	OutcomeInvalid
)

// JournalOutcomeData carries whichever fields are relevant to the Outcome
// that produced it; see server.JournalResult for the authoritative shape
// this mirrors.
type JournalOutcomeData struct {
	AssignedIDs    []model.FileID
	Entities       []model.DirEntity
	MissingBlobIDs []string
	ConflictingIDs []string
	InvalidReason  string
}

// ConflictPolicy resolves a ConflictingFiles outcome for one target (§4.8.1).
type ConflictPolicy interface {
	// Resolve is called once per conflicting target. It must mutate the
	// client's local state (via cache and j's pending entries) so that
	// re-running Replay makes forward progress, or return an error if it
	// cannot.
	Resolve(ctx context.Context, j *Journal, cache Cache, remote Remote, target model.FileID) error
}

// ServerWins discards the local edit: the authoritative server entity
// overwrites the local cache entry outright, and the conflicting journal
// entries touching it are dropped so replay doesn't retry them forever.
type ServerWins struct{}

func (ServerWins) Resolve(ctx context.Context, j *Journal, cache Cache, remote Remote, target model.FileID) error {
	entity, err := remote.Get(ctx, target)
	if err != nil {
		return fmt.Errorf("journal.ServerWins: fetch authoritative entity: %w", err)
	}
	if err := cache.AdoptAuthoritative(ctx, entity); err != nil {
		return fmt.Errorf("journal.ServerWins: adopt: %w", err)
	}
	if err := j.DropTarget(ctx, target); err != nil {
		return fmt.Errorf("journal.ServerWins: drop superseded entries: %w", err)
	}
	return nil
}

// RenameLocal keeps the local edit, renaming the local file to a
// conflict-suffixed name so it can be recreated under a free slot instead of
// clobbering the path the server now owns (§4.8.1).
type RenameLocal struct{}

func (RenameLocal) Resolve(ctx context.Context, j *Journal, cache Cache, remote Remote, target model.FileID) error {
	if _, err := cache.RenameAway(ctx, target); err != nil {
		return fmt.Errorf("journal.RenameLocal: %w", err)
	}
	return nil
}

// Reconciler drains a Journal against a Remote, following §4.8's seven-step
// replay protocol, retrying only on transient network failure.
type Reconciler struct {
	Journal *Journal
	Cache   Cache
	Remote  Remote
	Policy  ConflictPolicy
	Backoff BackoffParams
}

// BackoffParams configures the exponential-backoff retry of §5 (base 1s,
// cap 60s by default), applied only to NetworkUnavailableError. Each delay
// is the current interval randomized by ±50%; it is not full jitter (delays
// never fall below half the current interval).
type BackoffParams struct {
	Initial time.Duration
	Max     time.Duration
	// MaxElapsed bounds total retry time; 0 means retry indefinitely (the
	// caller's ctx is the only way out).
	MaxElapsed time.Duration
}

// DefaultBackoffParams matches §5's stated constants.
func DefaultBackoffParams() BackoffParams {
	return BackoffParams{Initial: time.Second, Max: 60 * time.Second, MaxElapsed: 0}
}

func (p BackoffParams) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	b.MaxInterval = p.Max
	b.MaxElapsedTime = p.MaxElapsed
	// RandomizationFactor keeps the library default of 0.5, so each delay
	// lies within ±50% of the current interval rather than anywhere from
	// zero up to it.
	return b
}

// Replay drains the journal in order, batching every pending entry into a
// single ApplyJournal call per attempt (§4.8 step 1-2). On MissingBlobs it
// supplies the requested blobs from the local cache and retries once (step
// 3-4); on ConflictingFiles it runs Policy per conflicting target and
// retries (step 5); on success it rewrites provisional IDs, advances the
// submission token, and truncates the journal (step 6-7). NetworkUnavailable
// errors from Remote are retried with exponential backoff; every other
// outcome is terminal for this call.
func (r *Reconciler) Replay(ctx context.Context) error {
	for {
		entries, err := r.Journal.List(ctx)
		if err != nil {
			return fmt.Errorf("journal.Replay: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}

		ops := make([]model.Operation, len(entries))
		for i, e := range entries {
			ops[i] = e.Op
		}

		planned, err := r.planTransfer(ctx, ops)
		if err != nil {
			return fmt.Errorf("journal.Replay: %w", err)
		}

		outcome, data, err := r.applyWithRetry(ctx, planned, nil)
		if err != nil {
			return fmt.Errorf("journal.Replay: %w", err)
		}

		metrics.ReplayOutcomes.WithLabelValues(outcomeLabel(outcome)).Inc()

		switch outcome {
		case OutcomeSuccess:
			if err := r.onSuccess(ctx, ops, data, entries[len(entries)-1].Seq); err != nil {
				return fmt.Errorf("journal.Replay: %w", err)
			}
			continue

		case OutcomeMissingBlobs:
			raw, err := r.collectMissing(ctx, data.MissingBlobIDs)
			if err != nil {
				return fmt.Errorf("journal.Replay: resolve missing blobs: %w", err)
			}
			outcome, data, err = r.applyWithRetry(ctx, planned, raw)
			if err != nil {
				return fmt.Errorf("journal.Replay: retry after missing blobs: %w", err)
			}
			if outcome != OutcomeSuccess {
				return fmt.Errorf("journal.Replay: retry after missing blobs still did not succeed: outcome=%d", outcome)
			}
			if err := r.onSuccess(ctx, ops, data, entries[len(entries)-1].Seq); err != nil {
				return fmt.Errorf("journal.Replay: %w", err)
			}
			continue

		case OutcomeConflictingFiles:
			if r.Policy == nil {
				return fmt.Errorf("journal.Replay: conflicting files %v and no ConflictPolicy configured", data.ConflictingIDs)
			}
			for _, target := range data.ConflictingIDs {
				if err := r.Policy.Resolve(ctx, r.Journal, r.Cache, r.Remote, model.FileID(target)); err != nil {
					return fmt.Errorf("journal.Replay: resolve conflict on %s: %w", target, err)
				}
			}
			continue // re-list and retry with the policy's adjustments applied

		case OutcomeInvalid:
			return &offserr.JournalCorruptionError{Reason: data.InvalidReason}

		default:
			return fmt.Errorf("journal.Replay: unknown outcome %d", outcome)
		}
	}
}

// planTransfer implements the blob-transfer-avoidance half of §4.8 step 1-2
// for the one op kind where it is safe to skip inline content outright: a
// CreateSymlink whose target blob the server is confirmed to already hold.
// Write's payload is always sent inline regardless, since the server must
// see the literal new bytes to recompute the chunk split against its own,
// possibly-diverged, neighboring chunks (§4.3) — there is no single blob ID
// to check for a write until that recomputation happens server-side.
func (r *Reconciler) planTransfer(ctx context.Context, ops []model.Operation) ([]model.Operation, error) {
	candidateIDs := make(map[string]bool)
	for _, op := range ops {
		if op.Kind == model.OpCreateSymlink && op.Link != "" {
			candidateIDs[blobstore.Hash([]byte(op.Link))] = true
		}
	}
	if len(candidateIDs) == 0 {
		return ops, nil
	}

	ids := make([]string, 0, len(candidateIDs))
	for id := range candidateIDs {
		ids = append(ids, id)
	}
	missing, err := r.Remote.GetMissingBlobs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("journal.planTransfer: %w", err)
	}
	stillMissing := make(map[string]bool, len(missing))
	for _, id := range missing {
		stillMissing[id] = true
	}

	planned := make([]model.Operation, len(ops))
	copy(planned, ops)
	for i, op := range planned {
		if op.Kind != model.OpCreateSymlink || op.Link == "" {
			continue
		}
		id := blobstore.Hash([]byte(op.Link))
		if stillMissing[id] {
			continue // server doesn't have it yet; leave it inline
		}
		planned[i].LinkBlobID = id
		planned[i].LinkSize = uint64(len(op.Link))
		planned[i].Link = ""
	}
	return planned, nil
}

func outcomeLabel(o JournalOutcome) string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeMissingBlobs:
		return "missing_blobs"
	case OutcomeConflictingFiles:
		return "conflicting_files"
	case OutcomeInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// applyWithRetry calls Remote.ApplyJournal, retrying only
// NetworkUnavailableError with exponential backoff; any other error or
// outcome is returned immediately.
func (r *Reconciler) applyWithRetry(ctx context.Context, ops []model.Operation, rawBlobs [][]byte) (JournalOutcome, JournalOutcomeData, error) {
	var outcome JournalOutcome
	var data JournalOutcomeData

	params := r.Backoff
	if params == (BackoffParams{}) {
		params = DefaultBackoffParams()
	}
	bo := backoff.WithContext(params.newBackOff(), ctx)

	operation := func() error {
		var err error
		outcome, data, err = r.Remote.ApplyJournal(ctx, ops, rawBlobs)
		if err == nil {
			return nil
		}
		var netErr *offserr.NetworkUnavailableError
		if errors.As(err, &netErr) {
			return err // retryable
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(operation, bo); err != nil {
		return 0, JournalOutcomeData{}, err
	}
	return outcome, data, nil
}

// collectMissing reads each requested blob id from the local cache. Every
// write the client journals was applied eagerly against its own blob store
// first (§4.7), so a blob the server reports missing is always present
// locally unless the local store itself is corrupt.
func (r *Reconciler) collectMissing(ctx context.Context, ids []string) ([][]byte, error) {
	raw := make([][]byte, len(ids))
	for i, id := range ids {
		content, err := r.Cache.LocalBlob(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("journal.collectMissing(%s): %w", id, err)
		}
		raw[i] = content
	}
	return raw, nil
}

// onSuccess folds a successful ApplyJournal batch back into the client's
// local state: every provisional ID minted by a create op in this batch is
// rewritten to its server-assigned real ID, the submission token advances,
// and the replayed prefix of the journal is dropped.
func (r *Reconciler) onSuccess(ctx context.Context, ops []model.Operation, data JournalOutcomeData, throughSeq int64) error {
	assignedIdx := 0
	for _, op := range ops {
		if !op.Kind.IsCreate() {
			continue
		}
		if assignedIdx >= len(data.AssignedIDs) {
			return fmt.Errorf("journal.onSuccess: fewer assigned IDs than create ops")
		}
		real := data.AssignedIDs[assignedIdx]
		assignedIdx++
		if op.ProvisionalID == "" {
			continue
		}
		if err := r.Cache.RewriteProvisionalID(ctx, op.ProvisionalID, real); err != nil {
			return fmt.Errorf("journal.onSuccess: rewrite provisional id %s: %w", op.ProvisionalID, err)
		}
	}

	if _, err := r.Journal.NextSubmissionToken(ctx); err != nil {
		return fmt.Errorf("journal.onSuccess: advance submission token: %w", err)
	}
	if err := r.Journal.DeleteThrough(ctx, throughSeq); err != nil {
		return fmt.Errorf("journal.onSuccess: truncate journal: %w", err)
	}
	return nil
}
