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

package blobstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/m4tx/offs/internal/offserr"
)

// blobRow is the gorm model for the `blob` table of §6: `blob(id PK, content
// BLOB)`.
type blobRow struct {
	ID      string `gorm:"primaryKey"`
	Content []byte
}

func (blobRow) TableName() string { return "blob" }

// SQLStore is the Store implementation backing both the server's and the
// client's on-disk state. It shares a *gorm.DB with the directory index
// (package dirtree) so that operations touching both the tree and blob
// content commit in a single transaction, per §4.4 and §5.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore wraps db. Migrate must have been called (or AutoMigrate run)
// against db before use; callers typically share the *gorm.DB opened by
// dirtree.Open, which does this once for the whole schema.
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

// AutoMigrate creates the blob table if absent.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&blobRow{})
}

func (s *SQLStore) Put(ctx context.Context, content []byte) (string, error) {
	id := Hash(content)

	row := blobRow{ID: id, Content: content}
	// A concurrent identical Put may insert the same primary key first;
	// since content is immutable once stored (I-Blob) and keyed by its own
	// hash, the conflicting insert is skipped, so "already exists" on the
	// same id is success, not a conflict.
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return "", fmt.Errorf("blobstore.SQLStore.Put: %w", err)
	}
	return id, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) ([]byte, error) {
	var row blobRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &offserr.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("blobstore.SQLStore.Get: %w", err)
	}
	return row.Content, nil
}

func (s *SQLStore) Has(ctx context.Context, id string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&blobRow{}).Where("id = ?", id).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("blobstore.SQLStore.Has: %w", err)
	}
	return count > 0, nil
}

func (s *SQLStore) Missing(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var present []string
	err := s.db.WithContext(ctx).Model(&blobRow{}).
		Where("id IN ?", ids).
		Pluck("id", &present).Error
	if err != nil {
		return nil, fmt.Errorf("blobstore.SQLStore.Missing: %w", err)
	}

	have := make(map[string]struct{}, len(present))
	for _, id := range present {
		have[id] = struct{}{}
	}

	missing := make([]string, 0, len(ids)-len(present))
	for _, id := range ids {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}
