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

// Package grpcclient is where a real deployment's wire adapter belongs:
// the gRPC counterpart to the in-process serverRemote helper used by
// internal/client's own tests, translating between api/offs.proto's
// generated types and client.Remote. The service methods of §4.6 are
// declared in api/offs.proto (SPEC_FULL.md §B.1), but the generated
// *.pb.go stubs that would carry real requests over the wire are not
// produced as part of this repository (no protoc invocation is run here,
// per the exercise's own constraints), so Stub below satisfies
// client.Remote with a connection placeholder: every call fails with
// NetworkUnavailableError, the same synthetic error an offline client
// produces, until a generated client is wired in behind Dial.
package grpcclient

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/m4tx/offs/internal/client"
	"github.com/m4tx/offs/internal/model"
	"github.com/m4tx/offs/internal/offserr"
)

// Stub dials addr for liveness (via the standard gRPC health service, see
// cmd/offs-server) but implements every data-plane method of client.Remote
// as "not yet available", so offs-client can start up and exercise its
// local cache and journal against a real network address without a
// generated application stub existing yet.
type Stub struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

// Dial connects to addr. The connection is used only for health checks
// until a generated OffsService client replaces this stub.
func Dial(addr string) (*Stub, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpcclient.Dial: %w", err)
	}
	return &Stub{conn: conn, health: healthpb.NewHealthClient(conn)}, nil
}

// Healthy reports whether the server's health endpoint reports SERVING.
func (s *Stub) Healthy(ctx context.Context) (bool, error) {
	resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return false, fmt.Errorf("grpcclient.Healthy: %w", err)
	}
	return resp.Status == healthpb.HealthCheckResponse_SERVING, nil
}

func (s *Stub) Close() error {
	return s.conn.Close()
}

var errNotWired = &offserr.NetworkUnavailableError{Err: fmt.Errorf("grpcclient: application RPC stubs not generated in this build")}

func (s *Stub) Get(ctx context.Context, id model.FileID) (model.DirEntity, error) {
	return model.DirEntity{}, errNotWired
}

func (s *Stub) List(ctx context.Context, parent model.FileID) ([]model.DirEntity, error) {
	return nil, errNotWired
}

func (s *Stub) ListChunks(ctx context.Context, id model.FileID) ([]model.ChunkEntry, error) {
	return nil, errNotWired
}

func (s *Stub) GetBlobs(ctx context.Context, ids []string) ([]model.Blob, error) {
	return nil, errNotWired
}

func (s *Stub) GetMissingBlobs(ctx context.Context, ids []string) ([]string, error) {
	return nil, errNotWired
}

func (s *Stub) ApplyOperation(ctx context.Context, op model.Operation) (model.DirEntity, error) {
	return model.DirEntity{}, errNotWired
}

func (s *Stub) ApplyJournal(ctx context.Context, ops []model.Operation, rawBlobs [][]byte) (client.JournalResult, error) {
	return client.JournalResult{}, errNotWired
}

var _ client.Remote = (*Stub)(nil)
