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

// Package ids mints FileIDs and keeps the server-assigned and
// client-provisional namespaces statically distinguishable, per §4.1 and the
// "Identifier namespaces" design note in §9: a prefix byte plus a
// constructor API that refuses to mint an ID of the wrong kind in the wrong
// context, so a bug can't accidentally look up a provisional ID against the
// server's table or vice versa.
package ids

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/m4tx/offs/internal/model"
)

// provisionalPrefix marks client-minted IDs. It occupies the first character
// of the 64-character ID, leaving 63 random hex characters; server IDs never
// start with it because NewServerID only ever emits hex digits '0'-'9' and
// 'a'-'f', none of which collide with this sentinel.
const provisionalPrefix = 'p'

// idBodyHexChars is how many hex characters of the random body follow the
// prefix in a provisional ID: the 64-character encoding of idByteLen random
// bytes with its last character (nibble) dropped, keeping the total width at
// exactly 64.
const idBodyHexChars = 63

// idByteLen is how many random bytes back a full 64-character server ID.
const idByteLen = 32

// NewServerID mints a fresh, server-assigned FileID: 32 cryptographically
// random bytes rendered as 64 lowercase hex characters.
func NewServerID() (model.FileID, error) {
	buf := make([]byte, idByteLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("ids.NewServerID: %w", err)
	}
	return model.FileID(hex.EncodeToString(buf)), nil
}

// NewProvisionalID mints a client-provisional FileID. It is rewritten to a
// server-assigned ID once the server accepts the journal entry that created
// it (§4.5, "Create ID assignment").
func NewProvisionalID() (model.FileID, error) {
	buf := make([]byte, idByteLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("ids.NewProvisionalID: %w", err)
	}
	hexBody := hex.EncodeToString(buf)[:idBodyHexChars]
	return model.FileID(string(provisionalPrefix) + hexBody), nil
}

// IsProvisional is the pure predicate from §4.1: true iff id was minted by
// NewProvisionalID rather than NewServerID.
func IsProvisional(id model.FileID) bool {
	return len(id) > 0 && id[0] == provisionalPrefix
}

// Valid reports whether id has the expected width for either namespace. It
// does not distinguish the namespaces further than IsProvisional does.
func Valid(id model.FileID) bool {
	return len(id) == idByteLen*2
}
