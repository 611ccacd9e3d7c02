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

// Package journal implements the client-side journal and reconciler (C8):
// an ordered, persistent log of pending mutations, plus the replay protocol
// that drains it against the server on reconnect (§4.8).
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/m4tx/offs/internal/model"
)

// entryRow is the gorm model for the client's `journal(seq PK, op_blob,
// created_at)` table (§6). op_blob is a JSON encoding of model.Operation:
// the journal never crosses a process boundary on its own, so there is no
// wire-compatibility reason to reach for a schema-based codec here.
type entryRow struct {
	Seq       int64  `gorm:"primaryKey;autoIncrement;column:seq"`
	OpBlob    []byte `gorm:"column:op_blob"`
	CreatedAt int64  `gorm:"column:created_at"`
}

func (entryRow) TableName() string { return "journal" }

// kvRow backs the client's `kv` table: the offline flag and the
// journal-submission token (§6, §5).
type kvRow struct {
	Key   string `gorm:"primaryKey;column:key"`
	Value string `gorm:"column:value"`
}

func (kvRow) TableName() string { return "kv" }

const (
	kvKeyOffline         = "offline"
	kvKeySubmissionToken = "submission_token"
	kvValueTrue          = "1"
	kvValueFalse         = "0"
)

// Entry is one journaled mutation awaiting replay.
type Entry struct {
	Seq       int64
	Op        model.Operation
	CreatedAt time.Time
}

// Journal is the persistent, append-only log of operations the client has
// applied locally but not yet had accepted by the server, plus the small
// key-value side table the reconciler and the administrative channel share.
type Journal struct {
	DB *gorm.DB
}

// Open migrates and wraps the journal/kv tables on an already-open client
// database (typically the same *gorm.DB as the client's dirtree.Index).
// Append runs as its own statement: it is not part of the transaction in
// which the cache mutation it accompanies was applied.
func Open(db *gorm.DB) (*Journal, error) {
	if err := db.AutoMigrate(&entryRow{}, &kvRow{}); err != nil {
		return nil, fmt.Errorf("journal.Open: migrate: %w", err)
	}
	return &Journal{DB: db}, nil
}

// Append adds op to the tail of the journal and returns its sequence
// number.
func (j *Journal) Append(ctx context.Context, op model.Operation) (int64, error) {
	blob, err := json.Marshal(op)
	if err != nil {
		return 0, fmt.Errorf("journal.Append: encode: %w", err)
	}
	row := entryRow{OpBlob: blob, CreatedAt: time.Now().Unix()}
	if err := j.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, fmt.Errorf("journal.Append: %w", err)
	}
	return row.Seq, nil
}

// List returns every pending entry, oldest first.
func (j *Journal) List(ctx context.Context) ([]Entry, error) {
	var rows []entryRow
	if err := j.DB.WithContext(ctx).Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("journal.List: %w", err)
	}

	out := make([]Entry, len(rows))
	for i, r := range rows {
		var op model.Operation
		if err := json.Unmarshal(r.OpBlob, &op); err != nil {
			return nil, fmt.Errorf("journal.List: decode seq %d: %w", r.Seq, err)
		}
		out[i] = Entry{Seq: r.Seq, Op: op, CreatedAt: time.Unix(r.CreatedAt, 0)}
	}
	return out, nil
}

// Len reports how many entries are pending.
func (j *Journal) Len(ctx context.Context) (int, error) {
	var count int64
	if err := j.DB.WithContext(ctx).Model(&entryRow{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("journal.Len: %w", err)
	}
	return int(count), nil
}

// DeleteThrough removes every entry with seq <= upTo, used once a prefix of
// the journal has been durably accepted by the server.
func (j *Journal) DeleteThrough(ctx context.Context, upTo int64) error {
	err := j.DB.WithContext(ctx).Where("seq <= ?", upTo).Delete(&entryRow{}).Error
	if err != nil {
		return fmt.Errorf("journal.DeleteThrough: %w", err)
	}
	return nil
}

// Delete removes a single entry by sequence number, used after an online
// single-operation dispatch succeeds immediately and never needs replay.
// Unlike DeleteThrough, it does not assume seq is the current tail: earlier
// entries may still be queued from a prior offline spell.
func (j *Journal) Delete(ctx context.Context, seq int64) error {
	if err := j.DB.WithContext(ctx).Delete(&entryRow{}, "seq = ?", seq).Error; err != nil {
		return fmt.Errorf("journal.Delete: %w", err)
	}
	return nil
}

// RewriteTarget rewrites every pending entry's Target/NewParent from old to
// new in place, used when a client-provisional ID is superseded by a
// server-assigned real ID (§4.5, "Create ID assignment") so entries already
// queued before the rewrite still resolve correctly on replay.
func (j *Journal) RewriteTarget(ctx context.Context, old, new model.FileID) error {
	entries, err := j.List(ctx)
	if err != nil {
		return fmt.Errorf("journal.RewriteTarget: %w", err)
	}

	for _, e := range entries {
		changed := false
		if e.Op.Target == old {
			e.Op.Target = new
			changed = true
		}
		if e.Op.Kind == model.OpRename && e.Op.NewParent == old {
			e.Op.NewParent = new
			changed = true
		}
		if !changed {
			continue
		}
		blob, err := json.Marshal(e.Op)
		if err != nil {
			return fmt.Errorf("journal.RewriteTarget: encode seq %d: %w", e.Seq, err)
		}
		if err := j.DB.WithContext(ctx).Model(&entryRow{}).Where("seq = ?", e.Seq).Update("op_blob", blob).Error; err != nil {
			return fmt.Errorf("journal.RewriteTarget: update seq %d: %w", e.Seq, err)
		}
	}
	return nil
}

// RewriteName rewrites the Name (for a create) or NewName (for a rename) of
// every pending entry targeting id, used by a RenameLocal conflict
// resolution that renames the local copy out of the way (§4.8.1): the
// already-queued operation that produced it must carry the new name too, or
// replay would keep resubmitting the name that just lost the conflict.
func (j *Journal) RewriteName(ctx context.Context, target model.FileID, newName string) error {
	entries, err := j.List(ctx)
	if err != nil {
		return fmt.Errorf("journal.RewriteName: %w", err)
	}

	for _, e := range entries {
		if e.Op.Target != target {
			continue
		}
		changed := false
		if e.Op.Kind.IsCreate() {
			e.Op.Name = newName
			changed = true
		} else if e.Op.Kind == model.OpRename {
			e.Op.NewName = newName
			changed = true
		}
		if !changed {
			continue
		}
		blob, err := json.Marshal(e.Op)
		if err != nil {
			return fmt.Errorf("journal.RewriteName: encode seq %d: %w", e.Seq, err)
		}
		if err := j.DB.WithContext(ctx).Model(&entryRow{}).Where("seq = ?", e.Seq).Update("op_blob", blob).Error; err != nil {
			return fmt.Errorf("journal.RewriteName: update seq %d: %w", e.Seq, err)
		}
	}
	return nil
}

// DropTarget removes every pending entry whose operation targets id,
// directly or as a rename's destination parent. Used by ServerWins once the
// local edits to id have been superseded by the server's authoritative copy
// (§4.8.1): retrying them would just reconflict.
func (j *Journal) DropTarget(ctx context.Context, id model.FileID) error {
	entries, err := j.List(ctx)
	if err != nil {
		return fmt.Errorf("journal.DropTarget: %w", err)
	}

	var drop []int64
	for _, e := range entries {
		if e.Op.Target == id || e.Op.NewParent == id {
			drop = append(drop, e.Seq)
		}
	}
	if len(drop) == 0 {
		return nil
	}
	if err := j.DB.WithContext(ctx).Where("seq IN ?", drop).Delete(&entryRow{}).Error; err != nil {
		return fmt.Errorf("journal.DropTarget: %w", err)
	}
	return nil
}

// Clear empties the journal entirely, after a fully successful replay.
func (j *Journal) Clear(ctx context.Context) error {
	if err := j.DB.WithContext(ctx).Where("1 = 1").Delete(&entryRow{}).Error; err != nil {
		return fmt.Errorf("journal.Clear: %w", err)
	}
	return nil
}

// Offline reports the current value of the offline-mode flag (§4.7): false
// until the administrative channel sets it.
func (j *Journal) Offline(ctx context.Context) (bool, error) {
	v, err := j.getKV(ctx, kvKeyOffline)
	if err != nil {
		return false, err
	}
	return v == kvValueTrue, nil
}

// SetOffline is the administrative channel's entry point for toggling
// offline mode.
func (j *Journal) SetOffline(ctx context.Context, offline bool) error {
	v := kvValueFalse
	if offline {
		v = kvValueTrue
	}
	return j.setKV(ctx, kvKeyOffline, v)
}

// SubmissionToken returns the client's current monotonically increasing
// journal-submission token (§5), or 0 if none has been stored yet (nothing
// is persisted in that case).
func (j *Journal) SubmissionToken(ctx context.Context) (int64, error) {
	v, err := j.getKV(ctx, kvKeySubmissionToken)
	if err != nil {
		return 0, err
	}
	if v == "" {
		return 0, nil
	}
	var token int64
	if _, err := fmt.Sscanf(v, "%d", &token); err != nil {
		return 0, fmt.Errorf("journal.SubmissionToken: corrupt token %q: %w", v, err)
	}
	return token, nil
}

// NextSubmissionToken advances and persists the submission token, returning
// the new value to attach to the next ApplyJournal call.
func (j *Journal) NextSubmissionToken(ctx context.Context) (int64, error) {
	cur, err := j.SubmissionToken(ctx)
	if err != nil {
		return 0, err
	}
	next := cur + 1
	if err := j.setKV(ctx, kvKeySubmissionToken, fmt.Sprintf("%d", next)); err != nil {
		return 0, err
	}
	return next, nil
}

func (j *Journal) getKV(ctx context.Context, key string) (string, error) {
	var row kvRow
	err := j.DB.WithContext(ctx).First(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("journal.getKV(%s): %w", key, err)
	}
	return row.Value, nil
}

func (j *Journal) setKV(ctx context.Context, key, value string) error {
	row := kvRow{Key: key, Value: value}
	err := j.DB.WithContext(ctx).Save(&row).Error
	if err != nil {
		return fmt.Errorf("journal.setKV(%s): %w", key, err)
	}
	return nil
}
