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

// Package offserr defines the error kinds surfaced by the core (§7). Each
// kind is its own type carrying the context needed by the caller (a target
// ID, a list of conflicting or missing IDs, ...), following the same
// tagged-error-type convention the GCS bucket abstraction uses for
// *gcs.NotFoundError / *gcs.PreconditionError: callers type-assert rather
// than compare sentinel values.
package offserr

import "fmt"

// NotFoundError indicates the named entity does not exist in the index.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.ID)
}

// AlreadyExistsError indicates (parent, name) is already occupied (I-Path).
type AlreadyExistsError struct {
	Parent string
	Name   string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("already exists: %s/%s", e.Parent, e.Name)
}

// NotEmptyError indicates a directory removal was attempted on a non-empty
// directory.
type NotEmptyError struct {
	ID string
}

func (e *NotEmptyError) Error() string {
	return fmt.Sprintf("directory not empty: %s", e.ID)
}

// NotADirectoryError indicates an operation required a directory target.
type NotADirectoryError struct {
	ID string
}

func (e *NotADirectoryError) Error() string {
	return fmt.Sprintf("not a directory: %s", e.ID)
}

// IsADirectoryError indicates an operation illegal on a directory was
// attempted (e.g. RemoveFile, Write).
type IsADirectoryError struct {
	ID string
}

func (e *IsADirectoryError) Error() string {
	return fmt.Sprintf("is a directory: %s", e.ID)
}

// InvalidNameError indicates a dirent name violates the constraints in
// model.ValidName.
type InvalidNameError struct {
	Name string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid name: %q", e.Name)
}

// VersionConflictError is the structural outcome of the operation engine's
// optimistic compare-and-apply (§4.5): the caller's carried version pair no
// longer matches the stored one. Handled by the reconciler, not logged as an
// error.
type VersionConflictError struct {
	Target string
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict: %s", e.Target)
}

// MissingBlobError indicates a chunk references a blob absent from both the
// supplied raw blobs and the store.
type MissingBlobError struct {
	IDs []string
}

func (e *MissingBlobError) Error() string {
	return fmt.Sprintf("missing %d blob(s)", len(e.IDs))
}

// ConflictingFilesError is the ApplyJournal outcome when one or more
// operations' carried version pairs no longer match the server (§4.6). The
// whole journal transaction is rolled back; IDs lists the conflicting
// targets for the reconciler's conflict-resolution pass (§4.8.1).
type ConflictingFilesError struct {
	IDs []string
}

func (e *ConflictingFilesError) Error() string {
	return fmt.Sprintf("conflicting files: %d target(s)", len(e.IDs))
}

// InvalidJournalError indicates a journal is malformed: it references
// unknown IDs (other than provisional IDs resolvable within the batch),
// contains a cyclic rename, reuses a provisional ID, or operates on a target
// deleted earlier in the same batch.
type InvalidJournalError struct {
	Reason string
}

func (e *InvalidJournalError) Error() string {
	return fmt.Sprintf("invalid journal: %s", e.Reason)
}

// InvalidOperationError indicates an operation that fails a structural
// precondition unrelated to versioning: illegal rename cycle, wrong target
// type for the op, malformed journal, etc.
type InvalidOperationError struct {
	Reason string
}

func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("invalid operation: %s", e.Reason)
}

// OfflineUnavailableError indicates a read that requires data the client does
// not have cached, while offline.
type OfflineUnavailableError struct {
	ID string
}

func (e *OfflineUnavailableError) Error() string {
	return fmt.Sprintf("unavailable while offline: %s", e.ID)
}

// NetworkUnavailableError is the synthetic error produced when the offline
// flag is set or an RPC times out. Recovered locally by the journal pump;
// never reaches the adapter once a write has been journaled.
type NetworkUnavailableError struct {
	Err error
}

func (e *NetworkUnavailableError) Error() string {
	if e.Err == nil {
		return "network unavailable"
	}
	return fmt.Sprintf("network unavailable: %v", e.Err)
}

func (e *NetworkUnavailableError) Unwrap() error {
	return e.Err
}

// StorageCorruptionError is fatal: the affected process should halt rather
// than continue with undefined state.
type StorageCorruptionError struct {
	Reason string
}

func (e *StorageCorruptionError) Error() string {
	return fmt.Sprintf("storage corruption: %s", e.Reason)
}

// JournalCorruptionError is fatal, mirroring StorageCorruptionError for the
// client-side journal.
type JournalCorruptionError struct {
	Reason string
}

func (e *JournalCorruptionError) Error() string {
	return fmt.Sprintf("journal corruption: %s", e.Reason)
}
