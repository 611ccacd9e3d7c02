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

// Package ops implements the operation engine (C5): the mutation vocabulary
// of §4.5, dispatched as a match over model.OpKind. Every Apply call runs
// inside a single dirtree.Index transaction spanning the directory index,
// chunk map and blob store, per §4.4/§5, and performs the optimistic
// compare-and-apply described there before touching anything.
package ops

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/m4tx/offs/internal/blobstore"
	"github.com/m4tx/offs/internal/chunker"
	"github.com/m4tx/offs/internal/clock"
	"github.com/m4tx/offs/internal/dirtree"
	"github.com/m4tx/offs/internal/ids"
	"github.com/m4tx/offs/internal/model"
	"github.com/m4tx/offs/internal/offserr"
)

// Engine applies operations to a dirtree.Index. The server and the client
// each construct their own Engine over their own Index; the two differ only
// in MintID, which governs how a Create operation's new FileID is chosen
// (§4.1, §4.5 "Create ID assignment").
type Engine struct {
	Index       *dirtree.Index
	ChunkParams chunker.Params
	Clock       clock.Clock

	// MintID produces the FileID for a Create* operation's new entity.
	MintID func(op model.Operation) (model.FileID, error)
}

// NewServerEngine builds the Engine the server uses: every create mints a
// fresh, server-assigned ID, regardless of any provisional ID the client
// embedded in the operation it journaled.
func NewServerEngine(idx *dirtree.Index, chunkParams chunker.Params, clk clock.Clock) *Engine {
	return &Engine{
		Index:       idx,
		ChunkParams: chunkParams,
		Clock:       clk,
		MintID: func(model.Operation) (model.FileID, error) {
			return ids.NewServerID()
		},
	}
}

// NewClientEngine builds the Engine the client uses to eagerly apply its own
// mutations (§4.7 "Write path"): a create keeps the provisional ID the
// caller already embedded in the operation, minting a fresh one only if none
// was supplied.
func NewClientEngine(idx *dirtree.Index, chunkParams chunker.Params, clk clock.Clock) *Engine {
	return &Engine{
		Index:       idx,
		ChunkParams: chunkParams,
		Clock:       clk,
		MintID: func(op model.Operation) (model.FileID, error) {
			if op.ProvisionalID != "" {
				return op.ProvisionalID, nil
			}
			return ids.NewProvisionalID()
		},
	}
}

// Apply runs op to completion inside its own transaction and returns the
// resulting entity: the new entity for a create, the target for
// rename/setattrs/write, or the updated parent for a remove (the removed
// entity itself no longer exists to report versions for). This is the
// single-operation path C6 uses for ApplyOperation (§4.6).
func (e *Engine) Apply(ctx context.Context, op model.Operation) (model.DirEntity, error) {
	var result model.DirEntity
	err := e.Index.Tx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = e.ApplyTx(ctx, tx, op)
		return err
	})
	if err != nil {
		return model.DirEntity{}, err
	}
	return result, nil
}

// ApplyTx is Apply's transaction-scoped core: it performs no transaction
// management of its own, so ApplyJournal can drive many operations through
// it inside a single shared transaction (§4.6 "Journal semantics (atomic)").
func (e *Engine) ApplyTx(ctx context.Context, tx *gorm.DB, op model.Operation) (model.DirEntity, error) {
	blobs := blobstore.NewSQLStore(tx)
	now := e.now()

	switch op.Kind {
	case model.OpCreateFile, model.OpCreateSymlink, model.OpCreateDirectory:
		return e.applyCreate(ctx, tx, blobs, now, op)
	case model.OpRemoveFile:
		return e.applyRemoveFile(ctx, tx, now, op)
	case model.OpRemoveDirectory:
		return e.applyRemoveDirectory(ctx, tx, now, op)
	case model.OpRename:
		return e.applyRename(ctx, tx, now, op)
	case model.OpSetAttributes:
		return e.applySetAttributes(ctx, tx, blobs, now, op)
	case model.OpWrite:
		return e.applyWrite(ctx, tx, blobs, now, op)
	default:
		return model.DirEntity{}, &offserr.InvalidOperationError{Reason: fmt.Sprintf("unknown operation kind %v", op.Kind)}
	}
}

func (e *Engine) now() model.Timespec {
	t := e.Clock.Now()
	return model.Timespec{Sec: t.Unix(), Nsec: int32(t.Nanosecond())}
}

// checkVersion implements the compare half of compare-and-apply: op's
// carried version pair must match target's stored one, unless the operation
// is server-originated (Bypass).
func checkVersion(target model.DirEntity, op model.Operation) error {
	if op.Bypass {
		return nil
	}
	if target.DirentVersion != op.DirentVersion || target.ContentVersion != op.ContentVersion {
		return &offserr.VersionConflictError{Target: string(op.Target)}
	}
	return nil
}

func (e *Engine) applyCreate(ctx context.Context, tx *gorm.DB, blobs blobstore.Store, now model.Timespec, op model.Operation) (model.DirEntity, error) {
	if !model.ValidName(op.Name) {
		return model.DirEntity{}, &offserr.InvalidNameError{Name: op.Name}
	}

	parent, err := dirtree.GetTx(ctx, tx, op.Target)
	if err != nil {
		return model.DirEntity{}, err
	}
	if parent.Stat.FileType != model.Directory {
		return model.DirEntity{}, &offserr.NotADirectoryError{ID: string(parent.ID)}
	}
	if err := checkVersion(parent, op); err != nil {
		return model.DirEntity{}, err
	}

	taken, err := dirtree.NameTaken(tx, parent.ID, op.Name)
	if err != nil {
		return model.DirEntity{}, err
	}
	if taken {
		return model.DirEntity{}, &offserr.AlreadyExistsError{Parent: string(parent.ID), Name: op.Name}
	}

	newID, err := e.MintID(op)
	if err != nil {
		return model.DirEntity{}, fmt.Errorf("ops.applyCreate: mint id: %w", err)
	}

	entity := model.DirEntity{
		ID:             newID,
		Parent:         parent.ID,
		Name:           op.Name,
		DirentVersion:  1,
		ContentVersion: 1,
		Stat: model.Stat{
			Nlink: 1,
			Atim:  now,
			Mtim:  now,
			Ctim:  now,
		},
	}

	switch op.Kind {
	case model.OpCreateFile:
		entity.Stat.FileType = op.NewFileType
		entity.Stat.Mode = op.Mode
		entity.Stat.Dev = op.Dev
	case model.OpCreateDirectory:
		entity.Stat.FileType = model.Directory
		entity.Stat.Mode = op.Mode
	case model.OpCreateSymlink:
		entity.Stat.FileType = model.Symlink
		entity.Stat.Mode = 0o777
	}

	if err := dirtree.InsertEntity(tx, entity); err != nil {
		return model.DirEntity{}, err
	}

	if op.Kind == model.OpCreateSymlink {
		var blobID string
		var linkSize uint64
		switch {
		case op.Link != "":
			var err error
			blobID, err = blobs.Put(ctx, []byte(op.Link))
			if err != nil {
				return model.DirEntity{}, fmt.Errorf("ops.applyCreate: symlink blob: %w", err)
			}
			linkSize = uint64(len(op.Link))
		case op.LinkBlobID != "":
			// The client omitted the content, having already confirmed the
			// server holds this blob. Re-check rather than trust: a GC sweep
			// (internal/blobstore.Sweep) could have raced the check.
			if _, err := blobs.Get(ctx, op.LinkBlobID); err != nil {
				var nf *offserr.NotFoundError
				if errors.As(err, &nf) {
					return model.DirEntity{}, &offserr.MissingBlobError{IDs: []string{op.LinkBlobID}}
				}
				return model.DirEntity{}, fmt.Errorf("ops.applyCreate: symlink blob lookup: %w", err)
			}
			blobID = op.LinkBlobID
			linkSize = op.LinkSize
		default:
			return model.DirEntity{}, &offserr.InvalidOperationError{Reason: "symlink create carries neither Link nor LinkBlobID"}
		}

		if err := dirtree.ReplaceChunks(tx, entity.ID, []model.ChunkEntry{{Index: 0, BlobID: blobID}}); err != nil {
			return model.DirEntity{}, err
		}
		entity.Stat.Size = linkSize
		if err := dirtree.UpdateEntity(tx, entity); err != nil {
			return model.DirEntity{}, err
		}
	}

	parent.DirentVersion++
	parent.Stat.Mtim = now
	parent.Stat.Ctim = now
	if err := dirtree.UpdateEntity(tx, parent); err != nil {
		return model.DirEntity{}, err
	}

	return entity, nil
}

func (e *Engine) applyRemoveFile(ctx context.Context, tx *gorm.DB, now model.Timespec, op model.Operation) (model.DirEntity, error) {
	target, err := dirtree.GetTx(ctx, tx, op.Target)
	if err != nil {
		return model.DirEntity{}, err
	}
	if target.Stat.FileType == model.Directory {
		return model.DirEntity{}, &offserr.IsADirectoryError{ID: string(target.ID)}
	}
	if err := checkVersion(target, op); err != nil {
		return model.DirEntity{}, err
	}

	parent, err := dirtree.GetTx(ctx, tx, target.Parent)
	if err != nil {
		return model.DirEntity{}, err
	}

	if err := dirtree.DeleteSubtree(tx, target.ID); err != nil {
		return model.DirEntity{}, err
	}

	parent.DirentVersion++
	parent.Stat.Mtim = now
	parent.Stat.Ctim = now
	if err := dirtree.UpdateEntity(tx, parent); err != nil {
		return model.DirEntity{}, err
	}

	return parent, nil
}

func (e *Engine) applyRemoveDirectory(ctx context.Context, tx *gorm.DB, now model.Timespec, op model.Operation) (model.DirEntity, error) {
	target, err := dirtree.GetTx(ctx, tx, op.Target)
	if err != nil {
		return model.DirEntity{}, err
	}
	if target.Stat.FileType != model.Directory {
		return model.DirEntity{}, &offserr.NotADirectoryError{ID: string(target.ID)}
	}
	if target.IsRoot() {
		return model.DirEntity{}, &offserr.InvalidOperationError{Reason: "cannot remove root"}
	}
	if err := checkVersion(target, op); err != nil {
		return model.DirEntity{}, err
	}

	children, err := dirtree.ListTx(ctx, tx, target.ID)
	if err != nil {
		return model.DirEntity{}, err
	}
	if len(children) > 0 {
		return model.DirEntity{}, &offserr.NotEmptyError{ID: string(target.ID)}
	}

	parent, err := dirtree.GetTx(ctx, tx, target.Parent)
	if err != nil {
		return model.DirEntity{}, err
	}

	if err := dirtree.DeleteSubtree(tx, target.ID); err != nil {
		return model.DirEntity{}, err
	}

	parent.DirentVersion++
	parent.Stat.Mtim = now
	parent.Stat.Ctim = now
	if err := dirtree.UpdateEntity(tx, parent); err != nil {
		return model.DirEntity{}, err
	}

	return parent, nil
}

func (e *Engine) applyRename(ctx context.Context, tx *gorm.DB, now model.Timespec, op model.Operation) (model.DirEntity, error) {
	target, err := dirtree.GetTx(ctx, tx, op.Target)
	if err != nil {
		return model.DirEntity{}, err
	}
	if target.IsRoot() {
		return model.DirEntity{}, &offserr.InvalidOperationError{Reason: "cannot rename root"}
	}
	if err := checkVersion(target, op); err != nil {
		return model.DirEntity{}, err
	}
	if !model.ValidName(op.NewName) {
		return model.DirEntity{}, &offserr.InvalidNameError{Name: op.NewName}
	}

	newParent, err := dirtree.GetTx(ctx, tx, op.NewParent)
	if err != nil {
		return model.DirEntity{}, err
	}
	if newParent.Stat.FileType != model.Directory {
		return model.DirEntity{}, &offserr.NotADirectoryError{ID: string(newParent.ID)}
	}

	if newParent.ID == target.Parent && op.NewName == target.Name {
		return target, nil // already at the requested location
	}

	taken, err := dirtree.NameTakenExcluding(tx, newParent.ID, op.NewName, target.ID)
	if err != nil {
		return model.DirEntity{}, err
	}
	if taken {
		return model.DirEntity{}, &offserr.AlreadyExistsError{Parent: string(newParent.ID), Name: op.NewName}
	}

	descendant, err := dirtree.IsDescendantTx(ctx, tx, target.ID, newParent.ID)
	if err != nil {
		return model.DirEntity{}, err
	}
	if descendant {
		return model.DirEntity{}, &offserr.InvalidOperationError{Reason: "rename destination is a descendant of the source"}
	}

	oldParent, err := dirtree.GetTx(ctx, tx, target.Parent)
	if err != nil {
		return model.DirEntity{}, err
	}

	target.Parent = newParent.ID
	target.Name = op.NewName
	target.DirentVersion++
	target.Stat.Ctim = now
	if err := dirtree.UpdateEntity(tx, target); err != nil {
		return model.DirEntity{}, err
	}

	oldParent.DirentVersion++
	oldParent.Stat.Mtim = now
	oldParent.Stat.Ctim = now
	if err := dirtree.UpdateEntity(tx, oldParent); err != nil {
		return model.DirEntity{}, err
	}

	if newParent.ID != oldParent.ID {
		newParent.DirentVersion++
		newParent.Stat.Mtim = now
		newParent.Stat.Ctim = now
		if err := dirtree.UpdateEntity(tx, newParent); err != nil {
			return model.DirEntity{}, err
		}
	}

	return target, nil
}

func (e *Engine) applySetAttributes(ctx context.Context, tx *gorm.DB, blobs blobstore.Store, now model.Timespec, op model.Operation) (model.DirEntity, error) {
	target, err := dirtree.GetTx(ctx, tx, op.Target)
	if err != nil {
		return model.DirEntity{}, err
	}
	if err := checkVersion(target, op); err != nil {
		return model.DirEntity{}, err
	}

	if op.AttrMode.Valid {
		target.Stat.Mode = op.AttrMode.Value
	}
	if op.AttrUid.Valid {
		target.Stat.Uid = op.AttrUid.Value
	}
	if op.AttrGid.Valid {
		target.Stat.Gid = op.AttrGid.Value
	}
	if op.AttrAtim.Valid {
		target.Stat.Atim = op.AttrAtim.Value
	}
	if op.AttrMtim.Valid {
		target.Stat.Mtim = op.AttrMtim.Value
	}

	contentAffecting := false
	if op.AttrSize.Valid && op.AttrSize.Value != target.Stat.Size {
		if target.Stat.FileType != model.RegularFile {
			return model.DirEntity{}, &offserr.InvalidOperationError{Reason: "size applies only to regular files"}
		}

		entries, err := dirtree.ChunksOfTx(ctx, tx, target.ID)
		if err != nil {
			return model.DirEntity{}, err
		}

		var newEntries []model.ChunkEntry
		if op.AttrSize.Value < target.Stat.Size {
			newEntries, err = truncateChunks(ctx, blobs, entries, int64(op.AttrSize.Value))
		} else {
			newEntries, err = growChunks(ctx, blobs, entries, int64(target.Stat.Size), int64(op.AttrSize.Value))
		}
		if err != nil {
			return model.DirEntity{}, err
		}
		if err := dirtree.ReplaceChunks(tx, target.ID, newEntries); err != nil {
			return model.DirEntity{}, err
		}

		target.Stat.Size = op.AttrSize.Value
		contentAffecting = true
	}

	target.DirentVersion++
	target.Stat.Ctim = now
	if contentAffecting {
		target.ContentVersion++
		target.Stat.Mtim = now
	}
	if err := dirtree.UpdateEntity(tx, target); err != nil {
		return model.DirEntity{}, err
	}

	return target, nil
}

func (e *Engine) applyWrite(ctx context.Context, tx *gorm.DB, blobs blobstore.Store, now model.Timespec, op model.Operation) (model.DirEntity, error) {
	target, err := dirtree.GetTx(ctx, tx, op.Target)
	if err != nil {
		return model.DirEntity{}, err
	}
	if target.Stat.FileType != model.RegularFile {
		return model.DirEntity{}, &offserr.InvalidOperationError{Reason: "write target is not a regular file"}
	}
	if err := checkVersion(target, op); err != nil {
		return model.DirEntity{}, err
	}

	entries, err := dirtree.ChunksOfTx(ctx, tx, target.ID)
	if err != nil {
		return model.DirEntity{}, err
	}

	newEntries, newSize, err := rewriteWindow(ctx, blobs, e.ChunkParams, entries, op.Offset, op.Data)
	if err != nil {
		return model.DirEntity{}, err
	}

	if err := dirtree.ReplaceChunks(tx, target.ID, newEntries); err != nil {
		return model.DirEntity{}, err
	}

	target.Stat.Size = uint64(newSize)
	target.ContentVersion++
	target.Stat.Mtim = now
	target.Stat.Ctim = now
	if err := dirtree.UpdateEntity(tx, target); err != nil {
		return model.DirEntity{}, err
	}

	return target, nil
}
