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

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/m4tx/offs/internal/model"
	"github.com/m4tx/offs/internal/offserr"
)

// openDB opens the sqlite file at path using the pure-Go glebarez/sqlite
// driver (no cgo, unlike mattn/go-sqlite3), which keeps the server and
// client binaries trivially cross-compilable.
func openDB(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("dirtree.openDB: %w", err)
	}
	return db, nil
}

// EnsureRoot inserts the tree root entity if it is not already present.
// Idempotent: safe to call every time a server or client starts up.
func EnsureRoot(idx *Index) error {
	ctx := context.Background()

	_, err := idx.Get(ctx, model.RootSentinel)
	if err == nil {
		return nil
	}

	var nf *offserr.NotFoundError
	if !errors.As(err, &nf) {
		return fmt.Errorf("dirtree.EnsureRoot: %w", err)
	}

	root := model.DirEntity{
		ID:             model.RootSentinel,
		Parent:         model.RootSentinel,
		Name:           "",
		DirentVersion:  1,
		ContentVersion: 1,
		Stat: model.Stat{
			FileType: model.Directory,
			Mode:     0o755,
			Nlink:    1,
		},
	}
	return idx.Tx(ctx, func(tx *gorm.DB) error {
		return InsertEntity(tx, root)
	})
}
