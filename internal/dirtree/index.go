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
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"github.com/m4tx/offs/internal/blobstore"
	"github.com/m4tx/offs/internal/model"
	"github.com/m4tx/offs/internal/offserr"
)

// Index is the directory index (C4): a persistent, crash-consistent mapping
// from FileID to DirEntity, enforcing I-Path (unique (parent,name)) and
// I-Tree (acyclic parent relation via IsDescendant / IsDescendantTx).
type Index struct {
	DB *gorm.DB
}

// Open opens (creating if absent) the sqlite database at path and migrates
// the file/chunk schema, plus the blob table shared with package blobstore.
func Open(path string) (*Index, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&fileRow{}, &chunkRow{}); err != nil {
		return nil, fmt.Errorf("dirtree.Open: migrate: %w", err)
	}
	if err := blobstore.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("dirtree.Open: migrate blob table: %w", err)
	}

	return &Index{DB: db}, nil
}

// Get returns the entity for id, or *offserr.NotFoundError.
func (idx *Index) Get(ctx context.Context, id model.FileID) (model.DirEntity, error) {
	return getTx(ctx, idx.DB, id)
}

func getTx(ctx context.Context, tx *gorm.DB, id model.FileID) (model.DirEntity, error) {
	var row fileRow
	err := tx.WithContext(ctx).First(&row, "id = ?", string(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.DirEntity{}, &offserr.NotFoundError{ID: string(id)}
	}
	if err != nil {
		return model.DirEntity{}, fmt.Errorf("dirtree.Get: %w", err)
	}
	return toEntity(row), nil
}

// Exists reports whether id is present in the index.
func (idx *Index) Exists(ctx context.Context, id model.FileID) (bool, error) {
	var count int64
	err := idx.DB.WithContext(ctx).Model(&fileRow{}).Where("id = ?", string(id)).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("dirtree.Exists: %w", err)
	}
	return count > 0, nil
}

// Lookup resolves (parent, name) to the child entity.
func (idx *Index) Lookup(ctx context.Context, parent model.FileID, name string) (model.DirEntity, error) {
	var row fileRow
	err := idx.DB.WithContext(ctx).
		First(&row, "parent = ? AND name = ?", string(parent), name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.DirEntity{}, &offserr.NotFoundError{ID: fmt.Sprintf("%s/%s", parent, name)}
	}
	if err != nil {
		return model.DirEntity{}, fmt.Errorf("dirtree.Lookup: %w", err)
	}
	return toEntity(row), nil
}

// List returns the children of parent, ordered by name. A root listing
// (parent == model.RootSentinel) excludes the root itself: the root's own
// parent is RootSentinel too, so the query filters its id out explicitly.
func (idx *Index) List(ctx context.Context, parent model.FileID) ([]model.DirEntity, error) {
	var rows []fileRow
	err := idx.DB.WithContext(ctx).
		Where("parent = ? AND id != ?", string(parent), string(model.RootSentinel)).
		Order("name").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("dirtree.List: %w", err)
	}

	out := make([]model.DirEntity, len(rows))
	for i, r := range rows {
		out[i] = toEntity(r)
	}
	return out, nil
}

// ChunksOf returns the chunk map for id, in index order.
func (idx *Index) ChunksOf(ctx context.Context, id model.FileID) ([]model.ChunkEntry, error) {
	return chunksOfTx(ctx, idx.DB, id)
}

func chunksOfTx(ctx context.Context, tx *gorm.DB, id model.FileID) ([]model.ChunkEntry, error) {
	var rows []chunkRow
	err := tx.WithContext(ctx).
		Where("file = ?", string(id)).
		Order("idx").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("dirtree.ChunksOf: %w", err)
	}

	out := make([]model.ChunkEntry, len(rows))
	for i, r := range rows {
		out[i] = model.ChunkEntry{Index: r.Index, BlobID: r.Blob}
	}
	return out, nil
}

// IsDescendant reports whether candidate is in the subtree rooted at
// ancestor (or equals it), walking the parent chain. Used by Rename to
// reject cycles (I-Tree).
func (idx *Index) IsDescendant(ctx context.Context, ancestor, candidate model.FileID) (bool, error) {
	return isDescendantTx(ctx, idx.DB, ancestor, candidate)
}

// GetTx, LookupTx, ListTx, ChunksOfTx and IsDescendantTx are the tx-scoped
// equivalents of the methods above, for use by package ops while inside a
// callback passed to Tx: reading through idx.DB there would open a second
// connection outside the transaction instead of seeing its uncommitted
// writes.
func GetTx(ctx context.Context, tx *gorm.DB, id model.FileID) (model.DirEntity, error) {
	return getTx(ctx, tx, id)
}

func LookupTx(ctx context.Context, tx *gorm.DB, parent model.FileID, name string) (model.DirEntity, error) {
	var row fileRow
	err := tx.WithContext(ctx).
		First(&row, "parent = ? AND name = ?", string(parent), name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.DirEntity{}, &offserr.NotFoundError{ID: fmt.Sprintf("%s/%s", parent, name)}
	}
	if err != nil {
		return model.DirEntity{}, fmt.Errorf("dirtree.LookupTx: %w", err)
	}
	return toEntity(row), nil
}

func ListTx(ctx context.Context, tx *gorm.DB, parent model.FileID) ([]model.DirEntity, error) {
	var rows []fileRow
	err := tx.WithContext(ctx).
		Where("parent = ? AND id != ?", string(parent), string(model.RootSentinel)).
		Order("name").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("dirtree.ListTx: %w", err)
	}

	out := make([]model.DirEntity, len(rows))
	for i, r := range rows {
		out[i] = toEntity(r)
	}
	return out, nil
}

func ChunksOfTx(ctx context.Context, tx *gorm.DB, id model.FileID) ([]model.ChunkEntry, error) {
	return chunksOfTx(ctx, tx, id)
}

func IsDescendantTx(ctx context.Context, tx *gorm.DB, ancestor, candidate model.FileID) (bool, error) {
	return isDescendantTx(ctx, tx, ancestor, candidate)
}

func isDescendantTx(ctx context.Context, tx *gorm.DB, ancestor, candidate model.FileID) (bool, error) {
	cur := candidate
	for {
		if cur == ancestor {
			return true, nil
		}
		if cur == model.RootSentinel {
			return false, nil
		}
		e, err := getTx(ctx, tx, cur)
		if err != nil {
			var nf *offserr.NotFoundError
			if errors.As(err, &nf) {
				return false, nil
			}
			return false, err
		}
		cur = e.Parent
	}
}

// Tx runs fn inside a single serialisable transaction, per §4.4 ("All
// multi-row writes run inside a single transaction") and §5. The *gorm.DB
// passed to fn must be used for every read/write fn performs.
func (idx *Index) Tx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return idx.DB.WithContext(ctx).Transaction(fn)
}

// InsertEntity inserts a brand-new row for e within tx.
func InsertEntity(tx *gorm.DB, e model.DirEntity) error {
	row := fromEntity(e)
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("dirtree.InsertEntity: %w", err)
	}
	return nil
}

// UpdateEntity overwrites the row for e.ID within tx.
func UpdateEntity(tx *gorm.DB, e model.DirEntity) error {
	row := fromEntity(e)
	err := tx.Model(&fileRow{}).Where("id = ?", row.ID).Updates(&row).Error
	if err != nil {
		return fmt.Errorf("dirtree.UpdateEntity: %w", err)
	}
	return nil
}

// DeleteSubtree deletes id and, transitively, every descendant (I-Cascade),
// along with their chunk map rows. The schema declares no foreign keys, so
// nothing cascades in the database: the subtree is walked explicitly and
// its chunk and file rows are deleted by explicit statements.
func DeleteSubtree(tx *gorm.DB, id model.FileID) error {
	var ids []string
	frontier := []string{string(id)}
	for len(frontier) > 0 {
		ids = append(ids, frontier...)

		var children []string
		if err := tx.Model(&fileRow{}).
			Where("parent IN ?", frontier).
			Pluck("id", &children).Error; err != nil {
			return fmt.Errorf("dirtree.DeleteSubtree: list children: %w", err)
		}
		frontier = children
	}

	sort.Strings(ids) // stable order for deterministic test assertions

	if err := tx.Where("file IN ?", ids).Delete(&chunkRow{}).Error; err != nil {
		return fmt.Errorf("dirtree.DeleteSubtree: delete chunks: %w", err)
	}
	if err := tx.Where("id IN ?", ids).Delete(&fileRow{}).Error; err != nil {
		return fmt.Errorf("dirtree.DeleteSubtree: delete files: %w", err)
	}
	return nil
}

// ReplaceChunks atomically replaces the chunk map for id with entries.
func ReplaceChunks(tx *gorm.DB, id model.FileID, entries []model.ChunkEntry) error {
	if err := tx.Where("file = ?", string(id)).Delete(&chunkRow{}).Error; err != nil {
		return fmt.Errorf("dirtree.ReplaceChunks: clear: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	rows := make([]chunkRow, len(entries))
	for i, e := range entries {
		rows[i] = chunkRow{File: string(id), Index: e.Index, Blob: e.BlobID}
	}
	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("dirtree.ReplaceChunks: insert: %w", err)
	}
	return nil
}

// RewriteID changes id's primary key from old to new across the file and
// chunk tables, cascading to every child's Parent pointer. Used when a
// client-provisional ID is superseded by the server-assigned real ID for the
// same entity (§4.5, "Create ID assignment"); the caller is responsible for
// also rewriting any pending journal entries still referencing old (see
// journal.Journal.RewriteTarget).
func RewriteID(tx *gorm.DB, old, new model.FileID) error {
	if err := tx.Model(&fileRow{}).Where("id = ?", string(old)).Update("id", string(new)).Error; err != nil {
		return fmt.Errorf("dirtree.RewriteID: rename row: %w", err)
	}
	if err := tx.Model(&fileRow{}).Where("parent = ?", string(old)).Update("parent", string(new)).Error; err != nil {
		return fmt.Errorf("dirtree.RewriteID: rewrite children: %w", err)
	}
	if err := tx.Model(&chunkRow{}).Where("file = ?", string(old)).Update("file", string(new)).Error; err != nil {
		return fmt.Errorf("dirtree.RewriteID: rewrite chunks: %w", err)
	}
	return nil
}

// NameTaken reports whether (parent, name) is already occupied, per I-Path.
func NameTaken(tx *gorm.DB, parent model.FileID, name string) (bool, error) {
	var count int64
	err := tx.Model(&fileRow{}).
		Where("parent = ? AND name = ?", string(parent), name).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("dirtree.NameTaken: %w", err)
	}
	return count > 0, nil
}

// NameTakenExcluding is NameTaken, ignoring the row identified by exclude.
// Rename uses this so renaming a file onto its own current (parent, name) -
// or onto a slot that is itself, mid-move - doesn't look like a conflict.
func NameTakenExcluding(tx *gorm.DB, parent model.FileID, name string, exclude model.FileID) (bool, error) {
	var count int64
	err := tx.Model(&fileRow{}).
		Where("parent = ? AND name = ? AND id != ?", string(parent), name, string(exclude)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("dirtree.NameTakenExcluding: %w", err)
	}
	return count > 0, nil
}
