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

	"github.com/m4tx/offs/internal/journal"
	"github.com/m4tx/offs/internal/model"
)

// remoteAdapter satisfies journal.Remote by delegating to a client.Remote
// and translating its JournalResult into journal's own mirrored outcome
// type, so package journal never needs to import package client or server.
type remoteAdapter struct {
	remote Remote
}

func (a remoteAdapter) GetMissingBlobs(ctx context.Context, ids []string) ([]string, error) {
	return a.remote.GetMissingBlobs(ctx, ids)
}

func (a remoteAdapter) Get(ctx context.Context, id model.FileID) (model.DirEntity, error) {
	return a.remote.Get(ctx, id)
}

func (a remoteAdapter) ApplyJournal(ctx context.Context, ops []model.Operation, rawBlobs [][]byte) (journal.JournalOutcome, journal.JournalOutcomeData, error) {
	result, err := a.remote.ApplyJournal(ctx, ops, rawBlobs)
	if err != nil {
		return 0, journal.JournalOutcomeData{}, err
	}

	var outcome journal.JournalOutcome
	switch result.Outcome {
	case JournalSuccess:
		outcome = journal.OutcomeSuccess
	case JournalMissingBlobs:
		outcome = journal.OutcomeMissingBlobs
	case JournalConflictingFiles:
		outcome = journal.OutcomeConflictingFiles
	case JournalInvalid:
		outcome = journal.OutcomeInvalid
	}

	data := journal.JournalOutcomeData{
		AssignedIDs:    result.AssignedIDs,
		Entities:       result.Entities,
		MissingBlobIDs: result.MissingBlobIDs,
		ConflictingIDs: result.ConflictingIDs,
		InvalidReason:  result.InvalidReason,
	}
	return outcome, data, nil
}
