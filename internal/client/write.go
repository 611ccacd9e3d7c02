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
	"fmt"

	"github.com/m4tx/offs/internal/ids"
	"github.com/m4tx/offs/internal/model"
)

// CreateFile creates a regular file (or special file of fileType) named name
// under parent.
func (c *Client) CreateFile(ctx context.Context, parent model.FileID, name string, fileType model.FileType, mode uint32, dev uint64) (model.DirEntity, error) {
	parentEntity, err := c.Index.Get(ctx, parent)
	if err != nil {
		return model.DirEntity{}, err
	}
	prov, err := ids.NewProvisionalID()
	if err != nil {
		return model.DirEntity{}, fmt.Errorf("client.CreateFile: %w", err)
	}
	op := model.Operation{
		Kind: model.OpCreateFile, Target: parent,
		DirentVersion: parentEntity.DirentVersion, ContentVersion: parentEntity.ContentVersion,
		Name: name, NewFileType: fileType, Mode: mode, Dev: dev, ProvisionalID: prov,
	}
	return c.applyAndJournal(ctx, op)
}

// CreateDirectory creates a directory named name under parent.
func (c *Client) CreateDirectory(ctx context.Context, parent model.FileID, name string, mode uint32) (model.DirEntity, error) {
	parentEntity, err := c.Index.Get(ctx, parent)
	if err != nil {
		return model.DirEntity{}, err
	}
	prov, err := ids.NewProvisionalID()
	if err != nil {
		return model.DirEntity{}, fmt.Errorf("client.CreateDirectory: %w", err)
	}
	op := model.Operation{
		Kind: model.OpCreateDirectory, Target: parent,
		DirentVersion: parentEntity.DirentVersion, ContentVersion: parentEntity.ContentVersion,
		Name: name, Mode: mode, ProvisionalID: prov,
	}
	return c.applyAndJournal(ctx, op)
}

// CreateSymlink creates a symlink named name under parent, pointing at
// target.
func (c *Client) CreateSymlink(ctx context.Context, parent model.FileID, name, target string) (model.DirEntity, error) {
	parentEntity, err := c.Index.Get(ctx, parent)
	if err != nil {
		return model.DirEntity{}, err
	}
	prov, err := ids.NewProvisionalID()
	if err != nil {
		return model.DirEntity{}, fmt.Errorf("client.CreateSymlink: %w", err)
	}
	op := model.Operation{
		Kind: model.OpCreateSymlink, Target: parent,
		DirentVersion: parentEntity.DirentVersion, ContentVersion: parentEntity.ContentVersion,
		Name: name, Link: target, ProvisionalID: prov,
	}
	return c.applyAndJournal(ctx, op)
}

// RemoveFile unlinks the file id. The returned entity is the updated parent.
func (c *Client) RemoveFile(ctx context.Context, id model.FileID) (model.DirEntity, error) {
	target, err := c.Index.Get(ctx, id)
	if err != nil {
		return model.DirEntity{}, err
	}
	op := model.Operation{
		Kind: model.OpRemoveFile, Target: id,
		DirentVersion: target.DirentVersion, ContentVersion: target.ContentVersion,
	}
	return c.applyAndJournal(ctx, op)
}

// RemoveDirectory removes the empty directory id. The returned entity is the
// updated parent.
func (c *Client) RemoveDirectory(ctx context.Context, id model.FileID) (model.DirEntity, error) {
	target, err := c.Index.Get(ctx, id)
	if err != nil {
		return model.DirEntity{}, err
	}
	op := model.Operation{
		Kind: model.OpRemoveDirectory, Target: id,
		DirentVersion: target.DirentVersion, ContentVersion: target.ContentVersion,
	}
	return c.applyAndJournal(ctx, op)
}

// Rename moves id to (newParent, newName).
func (c *Client) Rename(ctx context.Context, id, newParent model.FileID, newName string) (model.DirEntity, error) {
	target, err := c.Index.Get(ctx, id)
	if err != nil {
		return model.DirEntity{}, err
	}
	op := model.Operation{
		Kind: model.OpRename, Target: id,
		DirentVersion: target.DirentVersion, ContentVersion: target.ContentVersion,
		NewParent: newParent, NewName: newName,
	}
	return c.applyAndJournal(ctx, op)
}

// SetAttributes applies the optional attribute changes in op to id. Fields
// left at their zero OptionalXxx value are left untouched.
func (c *Client) SetAttributes(ctx context.Context, id model.FileID, mode, uid, gid model.OptionalUint32, size model.OptionalUint64, atim, mtim model.OptionalTimespec) (model.DirEntity, error) {
	target, err := c.Index.Get(ctx, id)
	if err != nil {
		return model.DirEntity{}, err
	}
	op := model.Operation{
		Kind: model.OpSetAttributes, Target: id,
		DirentVersion: target.DirentVersion, ContentVersion: target.ContentVersion,
		AttrMode: mode, AttrUid: uid, AttrGid: gid, AttrSize: size, AttrAtim: atim, AttrMtim: mtim,
	}
	return c.applyAndJournal(ctx, op)
}

// WriteAt writes data at offset into file id.
func (c *Client) WriteAt(ctx context.Context, id model.FileID, offset int64, data []byte) (model.DirEntity, error) {
	target, err := c.Index.Get(ctx, id)
	if err != nil {
		return model.DirEntity{}, err
	}
	op := model.Operation{
		Kind: model.OpWrite, Target: id,
		DirentVersion: target.DirentVersion, ContentVersion: target.ContentVersion,
		Offset: offset, Data: data,
	}
	return c.applyAndJournal(ctx, op)
}

// applyAndJournal is the common write path (§4.7): apply op against the
// local engine first, journal exactly what was applied (a create's
// provisional ID is fixed to the ID the engine actually assigned, which for
// NewClientEngine is always the one already embedded in op), then try to
// dispatch it to the server immediately if online. A dispatch failure simply
// leaves the entry queued; Replay picks it up later.
func (c *Client) applyAndJournal(ctx context.Context, op model.Operation) (model.DirEntity, error) {
	entity, err := c.Engine.Apply(ctx, op)
	if err != nil {
		return model.DirEntity{}, err
	}

	journaled := op
	if op.Kind.IsCreate() {
		journaled.ProvisionalID = entity.ID
	}

	seq, err := c.Journal.Append(ctx, journaled)
	if err != nil {
		return model.DirEntity{}, fmt.Errorf("client.applyAndJournal: journal: %w", err)
	}

	c.dispatch(ctx, journaled, seq)
	return entity, nil
}

// dispatch makes a best-effort attempt to push op to the server immediately.
// It is purely an optimization: whether this succeeds or not, the journal
// entry is the source of truth the reconciler will eventually drain.
func (c *Client) dispatch(ctx context.Context, op model.Operation, seq int64) {
	offline, err := c.Journal.Offline(ctx)
	if err != nil || offline {
		return
	}

	remoteEntity, err := c.Remote.ApplyOperation(ctx, op)
	if err != nil {
		return
	}

	if op.Kind.IsCreate() && op.ProvisionalID != "" && remoteEntity.ID != op.ProvisionalID {
		if err := c.RewriteProvisionalID(ctx, op.ProvisionalID, remoteEntity.ID); err != nil {
			return
		}
	}

	_ = c.Journal.Delete(ctx, seq)
}
