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

// Package admin implements the client's local administrative channel
// (§6): a Unix domain socket accepting newline-delimited text commands.
// This is the "local admin channel" §1 lists as an external collaborator
// of the core, not the client-server wire protocol; it exists only to
// give the offline toggle (§4.7) and blob GC (SPEC_FULL.md §C) a caller.
package admin

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/m4tx/offs/internal/logger"
)

// Cache is the subset of *client.Client the admin channel drives.
type Cache interface {
	SetOffline(ctx context.Context, offline bool) error
	Offline(ctx context.Context) (bool, error)
	Replay(ctx context.Context) error
	GC(ctx context.Context) (int, error)
}

// Server listens on a Unix socket and serves admin commands against a
// Cache until its context is cancelled.
type Server struct {
	SockPath string
	Cache    Cache
}

// ListenAndServe binds the socket (removing any stale file left from a
// prior run) and serves connections until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	_ = os.Remove(s.SockPath)
	ln, err := net.Listen("unix", s.SockPath)
	if err != nil {
		return fmt.Errorf("admin.ListenAndServe: %w", err)
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("admin.ListenAndServe: accept: %w", err)
			}
		}
		go s.handle(ctx, conn)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		reply := s.dispatch(ctx, line)
		if _, err := fmt.Fprintln(conn, reply); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "ERR empty command"
	}

	switch fields[0] {
	case "offline-mode":
		if len(fields) != 2 {
			return "ERR usage: offline-mode on|off|status"
		}
		switch fields[1] {
		case "on":
			if err := s.Cache.SetOffline(ctx, true); err != nil {
				return "ERR " + err.Error()
			}
			return "OK"
		case "off":
			if err := s.Cache.SetOffline(ctx, false); err != nil {
				return "ERR " + err.Error()
			}
			logger.Info(ctx, "offline mode disabled via admin channel, replaying journal")
			if err := s.Cache.Replay(ctx); err != nil {
				return "ERR replay: " + err.Error()
			}
			return "OK"
		case "status":
			offline, err := s.Cache.Offline(ctx)
			if err != nil {
				return "ERR " + err.Error()
			}
			if offline {
				return "offline"
			}
			return "online"
		default:
			return "ERR usage: offline-mode on|off|status"
		}
	case "gc":
		removed, err := s.Cache.GC(ctx)
		if err != nil {
			return "ERR " + err.Error()
		}
		return fmt.Sprintf("OK removed %d", removed)

	default:
		return "ERR unknown command " + fields[0]
	}
}
