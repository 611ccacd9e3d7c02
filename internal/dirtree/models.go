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

// Package dirtree implements the directory index (C4): a persistent,
// crash-consistent mapping from FileID to DirEntity, the (parent, name)
// unique index, and the chunk map, backed by sqlite through gorm (the same
// combination marmos91/dittofs uses for its metadata store).
package dirtree

import (
	"github.com/m4tx/offs/internal/model"
)

// fileRow is the gorm model for the `file` table of §6.
type fileRow struct {
	ID              string `gorm:"primaryKey;column:id"`
	Parent          string `gorm:"column:parent;index:idx_parent_name,unique"`
	Name            string `gorm:"column:name;index:idx_parent_name,unique"`
	DirentVersion   int64  `gorm:"column:dirent_version"`
	ContentVersion  int64  `gorm:"column:content_version"`
	RetrievedVersion int64 `gorm:"column:retrieved_version"`
	FileType        int32  `gorm:"column:file_type"`
	Mode            uint32 `gorm:"column:mode"`
	Dev             uint64 `gorm:"column:dev"`
	Uid             uint32 `gorm:"column:uid"`
	Gid             uint32 `gorm:"column:gid"`
	Size            uint64 `gorm:"column:size"`
	AtimSec         int64  `gorm:"column:atim_sec"`
	AtimNsec        int32  `gorm:"column:atim_nsec"`
	MtimSec         int64  `gorm:"column:mtim_sec"`
	MtimNsec        int32  `gorm:"column:mtim_nsec"`
	CtimSec         int64  `gorm:"column:ctim_sec"`
	CtimNsec        int32  `gorm:"column:ctim_nsec"`
}

func (fileRow) TableName() string { return "file" }

// chunkRow is the gorm model for the `chunk` table of §6:
// chunk(file, blob, index, PK(file,index)). No foreign key to file(id) is
// declared; DeleteSubtree removes a file's chunk rows explicitly.
type chunkRow struct {
	File  string `gorm:"primaryKey;column:file"`
	Index int32  `gorm:"primaryKey;column:idx"`
	Blob  string `gorm:"column:blob"`
}

func (chunkRow) TableName() string { return "chunk" }

func toEntity(r fileRow) model.DirEntity {
	return model.DirEntity{
		ID:             model.FileID(r.ID),
		Parent:         model.FileID(r.Parent),
		Name:           r.Name,
		DirentVersion:  r.DirentVersion,
		ContentVersion: r.ContentVersion,
		Stat: model.Stat{
			Ino:      fnvIno(r.ID),
			FileType: model.FileType(r.FileType),
			Mode:     r.Mode,
			Dev:      r.Dev,
			Nlink:    1,
			Uid:      r.Uid,
			Gid:      r.Gid,
			Size:     r.Size,
			Atim:     model.Timespec{Sec: r.AtimSec, Nsec: r.AtimNsec},
			Mtim:     model.Timespec{Sec: r.MtimSec, Nsec: r.MtimNsec},
			Ctim:     model.Timespec{Sec: r.CtimSec, Nsec: r.CtimNsec},
		},
	}
}

func fromEntity(e model.DirEntity) fileRow {
	return fileRow{
		ID:              string(e.ID),
		Parent:          string(e.Parent),
		Name:            e.Name,
		DirentVersion:   e.DirentVersion,
		ContentVersion:  e.ContentVersion,
		RetrievedVersion: e.ContentVersion,
		FileType:        int32(e.Stat.FileType),
		Mode:            e.Stat.Mode,
		Dev:             e.Stat.Dev,
		Uid:             e.Stat.Uid,
		Gid:             e.Stat.Gid,
		Size:            e.Stat.Size,
		AtimSec:         e.Stat.Atim.Sec,
		AtimNsec:        e.Stat.Atim.Nsec,
		MtimSec:         e.Stat.Mtim.Sec,
		MtimNsec:        e.Stat.Mtim.Nsec,
		CtimSec:         e.Stat.Ctim.Sec,
		CtimNsec:        e.Stat.Ctim.Nsec,
	}
}

// fnvIno derives a stable 64-bit inode number from a FileID so that Stat.Ino
// is consistent across retrievals without needing its own counter/table.
func fnvIno(id string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for i := 0; i < len(id); i++ {
		h ^= uint64(id[i])
		h *= prime64
	}
	return h
}
