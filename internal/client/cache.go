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

	"gorm.io/gorm"

	"github.com/m4tx/offs/internal/dirtree"
	"github.com/m4tx/offs/internal/model"
)

// This file implements journal.Cache against *Client, the narrow surface the
// reconciler needs without importing package client itself (avoiding a
// client <-> journal import cycle).

// LocalBlob returns a blob's content from the client's own store: every
// write journaled here was applied eagerly first (§4.7), so anything the
// server reports missing during replay is always present locally.
func (c *Client) LocalBlob(ctx context.Context, id string) ([]byte, error) {
	return c.Blobs.Get(ctx, id)
}

// RewriteProvisionalID replaces a client-provisional ID with the
// server-assigned real one across the local index and every still-pending
// journal entry (§4.5, "Create ID assignment").
func (c *Client) RewriteProvisionalID(ctx context.Context, old, real model.FileID) error {
	err := c.Index.Tx(ctx, func(tx *gorm.DB) error {
		return dirtree.RewriteID(tx, old, real)
	})
	if err != nil {
		return fmt.Errorf("client.RewriteProvisionalID: index: %w", err)
	}
	if err := c.Journal.RewriteTarget(ctx, old, real); err != nil {
		return fmt.Errorf("client.RewriteProvisionalID: journal: %w", err)
	}
	return nil
}

// AdoptAuthoritative overwrites the local cache entry for entity.ID with the
// server's authoritative copy, used by ServerWins after a conflict discards
// the local edit.
func (c *Client) AdoptAuthoritative(ctx context.Context, entity model.DirEntity) error {
	return c.cacheEntity(ctx, entity)
}

// RenameAway renames the local file id to a conflict-suffixed name still
// free under its parent, and rewrites the still-pending journal entries that
// produced it so replay resubmits the new name instead of the one that just
// lost the conflict (§4.8.1, RenameLocal).
func (c *Client) RenameAway(ctx context.Context, id model.FileID) (string, error) {
	entity, err := c.Index.Get(ctx, id)
	if err != nil {
		return "", err
	}

	var newName string
	err = c.Index.Tx(ctx, func(tx *gorm.DB) error {
		base := entity.Name
		for attempt := 1; ; attempt++ {
			candidate := fmt.Sprintf("%s.conflict-%d", base, attempt)
			taken, err := dirtree.NameTakenExcluding(tx, entity.Parent, candidate, entity.ID)
			if err != nil {
				return err
			}
			if !taken {
				newName = candidate
				break
			}
		}
		entity.Name = newName
		return dirtree.UpdateEntity(tx, entity)
	})
	if err != nil {
		return "", fmt.Errorf("client.RenameAway: %w", err)
	}

	if err := c.Journal.RewriteName(ctx, id, newName); err != nil {
		return "", fmt.Errorf("client.RenameAway: %w", err)
	}
	return newName, nil
}
