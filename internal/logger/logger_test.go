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

package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityNames_ReplaceLevelKey(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	h := newHandler(&buf, lvl, "text")
	l := slog.New(h)

	l.Log(context.Background(), LevelWarn, "disk nearly full")

	out := buf.String()
	assert.Contains(t, out, "severity=WARNING")
	assert.Contains(t, out, "disk nearly full")
}

func TestSetLevel_FiltersBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	defaultLogger = slog.New(newHandler(&buf, programLevel, "text"))
	SetLevel("error")

	Info(context.Background(), "should be filtered")
	assert.Empty(t, buf.String())

	Error(context.Background(), "should appear")
	assert.Contains(t, buf.String(), "should appear")

	SetLevel("info")
}
