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
	"fmt"

	"gorm.io/gorm"

	"github.com/m4tx/offs/internal/metrics"
)

// Sweep deletes every blob with no referencing row in the chunk table
// (I-Blob: "reference-tracked only by the chunk map ... garbage collection
// of unreferenced blobs is permitted but not required", §3.2). It is never
// invoked automatically; the administrative channel triggers it explicitly
// (SPEC_FULL.md §C) so a sweep never races a journal replay that is about
// to reference a blob it just ingested but hasn't chunked-in yet.
func Sweep(ctx context.Context, db *gorm.DB) (removed int, err error) {
	var result *gorm.DB
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result = tx.Exec(`DELETE FROM blob WHERE id NOT IN (SELECT DISTINCT blob FROM chunk)`)
		return result.Error
	})
	if err != nil {
		return 0, fmt.Errorf("blobstore.Sweep: %w", err)
	}

	var totalBytes int64
	if err := db.WithContext(ctx).Raw(`SELECT COALESCE(SUM(LENGTH(content)), 0) FROM blob`).Scan(&totalBytes).Error; err != nil {
		return int(result.RowsAffected), fmt.Errorf("blobstore.Sweep: measure: %w", err)
	}
	metrics.BlobStoreBytes.Set(float64(totalBytes))

	return int(result.RowsAffected), nil
}
