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

// Command offs-client runs the client cache (C7) and its administrative
// channel (§6, "Process invocation": a server address, a cache path, and
// a mount point). The kernel file-system adapter that would translate
// mount-point syscalls into calls against internal/client is an external
// collaborator out of this specification's scope (§1); this binary starts
// the cache, the journal reconciler's background pump, and the local
// admin socket, and leaves the kernel-facing half to be grown separately.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/m4tx/offs/cfg"
	"github.com/m4tx/offs/internal/admin"
	"github.com/m4tx/offs/internal/client"
	"github.com/m4tx/offs/internal/clock"
	"github.com/m4tx/offs/internal/journal"
	"github.com/m4tx/offs/internal/logger"
	"github.com/m4tx/offs/internal/rpc/grpcclient"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	c := cfg.ClientConfig{
		Chunker: cfg.DefaultChunker(),
		Backoff: cfg.DefaultBackoff(),
		Log:     cfg.LogConfig{Level: cfg.DefaultLogLevel, Format: "text"},
	}

	cmd := &cobra.Command{
		Use:   "offs-client",
		Short: "Run the OFFS client cache and administrative channel.",
		RunE: func(cmd *cobra.Command, args []string) error {
			v.SetEnvPrefix("OFFS_CLIENT")
			v.AutomaticEnv()
			_ = v.BindPFlags(cmd.Flags())
			return run(cmd.Context(), c)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&c.CachePath, "cache-path", "", "path to the client's local sqlite cache (required)")
	flags.StringVar(&c.ServerAddr, "server-addr", "", "address of the offs-server to mirror (required)")
	flags.StringVar(&c.MountPoint, "mount-point", "", "mount point a kernel adapter will serve from this cache")
	flags.StringVar(&c.AdminSock, "admin-sock", "/tmp/offs-client.sock", "path to the administrative Unix socket")
	flags.BoolVar(&c.Offline, "offline", false, "start in offline mode")
	flags.IntVar(&c.Chunker.Min, "chunk-min", cfg.DefaultChunkMin, "minimum chunk size in bytes")
	flags.IntVar(&c.Chunker.Avg, "chunk-avg", cfg.DefaultChunkAvg, "average chunk size in bytes")
	flags.IntVar(&c.Chunker.Max, "chunk-max", cfg.DefaultChunkMax, "maximum chunk size in bytes")
	flags.DurationVar(&c.Backoff.Initial, "backoff-initial", cfg.DefaultBackoffInitial, "initial reconciler retry backoff")
	flags.DurationVar(&c.Backoff.Max, "backoff-max", cfg.DefaultBackoffMax, "reconciler retry backoff cap")
	flags.StringVar(&c.Log.Level, "log-level", cfg.DefaultLogLevel, "trace|debug|info|warning|error")
	flags.StringVar(&c.Log.Path, "log-path", "", "log file path (rotated via lumberjack); empty logs to stderr")
	flags.StringVar(&c.Log.Format, "log-format", "text", "text|json")
	_ = cmd.MarkFlagRequired("cache-path")
	_ = cmd.MarkFlagRequired("server-addr")

	return cmd
}

func run(ctx context.Context, c cfg.ClientConfig) error {
	if err := logger.InitLogging(logger.Config{Level: c.Log.Level, Path: c.Log.Path, Format: c.Log.Format}); err != nil {
		return fmt.Errorf("offs-client: init logging: %w", err)
	}

	remote, err := grpcclient.Dial(c.ServerAddr)
	if err != nil {
		return fmt.Errorf("offs-client: dial %s: %w", c.ServerAddr, err)
	}
	defer remote.Close()

	cl, err := client.Open(c.CachePath, c.Chunker.Params(), clock.RealClock{}, remote, journal.ServerWins{})
	if err != nil {
		return fmt.Errorf("offs-client: open cache: %w", err)
	}
	cl.Reconciler.Backoff = journal.BackoffParams{Initial: c.Backoff.Initial, Max: c.Backoff.Max, MaxElapsed: c.Backoff.MaxElapsed}
	if err := cl.SetOffline(ctx, c.Offline); err != nil {
		return fmt.Errorf("offs-client: set initial offline state: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	adminSrv := &admin.Server{SockPath: c.AdminSock, Cache: cl}
	go func() {
		if err := adminSrv.ListenAndServe(ctx); err != nil {
			logger.Error(ctx, "admin channel stopped", "error", err)
		}
	}()

	logger.Info(ctx, "offs-client ready", "cache_path", c.CachePath, "server_addr", c.ServerAddr, "admin_sock", c.AdminSock)
	pumpReconciler(ctx, cl)
	return nil
}

// pumpReconciler periodically drains the journal while online, so pending
// writes do not sit unsubmitted indefinitely even without an explicit
// offline-mode toggle round trip (§4.8).
func pumpReconciler(ctx context.Context, cl *client.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			offline, err := cl.Offline(ctx)
			if err != nil || offline {
				continue
			}
			if err := cl.Replay(ctx); err != nil {
				logger.Warn(ctx, "journal replay failed", "error", err)
			}
		}
	}
}
