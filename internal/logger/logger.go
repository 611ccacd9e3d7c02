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

// Package logger is the process-wide logging facade used by every other
// package: a single package-level *slog.Logger, configurable to a text or
// JSON handler with a runtime-adjustable level, matching the severity
// vocabulary of the five-level scheme (TRACE/DEBUG/INFO/WARNING/ERROR)
// rather than slog's default four.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity levels, spaced like slog's built-ins but with an extra TRACE
// rung below DEBUG for the protocol-level tracing the reconciler and
// server emit on every operation.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARNING",
	LevelError: "ERROR",
}

// Config controls InitLogging. Format is "text" or "json"; an empty Path
// logs to stderr instead of a rotated file.
type Config struct {
	Level  string
	Path   string
	Format string

	// MaxSizeMB, MaxBackups and MaxAgeDays parameterize the lumberjack
	// rotation policy when Path is set. Zero selects lumberjack's own
	// defaults (100 MB, unlimited backups, unlimited age).
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	programLevel  = new(slog.LevelVar)
	defaultLogger = slog.New(newHandler(os.Stderr, programLevel, "text"))
)

// InitLogging (re)configures the package-level logger. Call it once during
// process startup, before any other goroutine logs.
func InitLogging(cfg Config) error {
	var out io.Writer = os.Stderr
	if cfg.Path != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
	}
	setLevel(cfg.Level)
	defaultLogger = slog.New(newHandler(out, programLevel, cfg.Format))
	return nil
}

// SetLevel raises or lowers the runtime log level without reopening the
// output (Config.Level passed to InitLogging is the startup value; this is
// the live override).
func SetLevel(level string) {
	setLevel(level)
}

func setLevel(level string) {
	switch level {
	case "trace", "TRACE":
		programLevel.Set(LevelTrace)
	case "debug", "DEBUG":
		programLevel.Set(LevelDebug)
	case "warn", "warning", "WARNING":
		programLevel.Set(LevelWarn)
	case "error", "ERROR":
		programLevel.Set(LevelError)
	default:
		programLevel.Set(LevelInfo)
	}
}

func newHandler(w io.Writer, level *slog.LevelVar, format string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				lvl := a.Value.Any().(slog.Level)
				a.Key = "severity"
				if name, ok := levelNames[lvl]; ok {
					a.Value = slog.StringValue(name)
				}
			}
			return a
		},
	}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func Trace(ctx context.Context, msg string, args ...any) { defaultLogger.Log(ctx, LevelTrace, msg, args...) }
func Debug(ctx context.Context, msg string, args ...any) { defaultLogger.Log(ctx, LevelDebug, msg, args...) }
func Info(ctx context.Context, msg string, args ...any)  { defaultLogger.Log(ctx, LevelInfo, msg, args...) }
func Warn(ctx context.Context, msg string, args ...any)  { defaultLogger.Log(ctx, LevelWarn, msg, args...) }
func Error(ctx context.Context, msg string, args ...any) { defaultLogger.Log(ctx, LevelError, msg, args...) }
