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

package admin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCache struct {
	offline bool
	replays int
}

func (f *fakeCache) SetOffline(ctx context.Context, offline bool) error {
	f.offline = offline
	return nil
}

func (f *fakeCache) Offline(ctx context.Context) (bool, error) {
	return f.offline, nil
}

func (f *fakeCache) Replay(ctx context.Context) error {
	f.replays++
	return nil
}

func (f *fakeCache) GC(ctx context.Context) (int, error) {
	return 0, nil
}

func TestDispatch_OfflineModeOnOffStatus(t *testing.T) {
	ctx := context.Background()
	cache := &fakeCache{}
	s := &Server{Cache: cache}

	assert.Equal(t, "OK", s.dispatch(ctx, "offline-mode on"))
	assert.True(t, cache.offline)
	assert.Equal(t, "offline", s.dispatch(ctx, "offline-mode status"))

	assert.Equal(t, "OK", s.dispatch(ctx, "offline-mode off"))
	assert.False(t, cache.offline)
	require.Equal(t, 1, cache.replays)
	assert.Equal(t, "online", s.dispatch(ctx, "offline-mode status"))
}

func TestDispatch_UnknownCommand(t *testing.T) {
	s := &Server{Cache: &fakeCache{}}
	assert.Contains(t, s.dispatch(context.Background(), "frobnicate"), "ERR")
}
