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

// Command offs-server hosts the authoritative directory index and blob
// store (C6) for one OFFS deployment: it takes a store path and a listen
// address (§6, "Process invocation") and serves until killed.
//
// The framed RPC protocol of §6 is out of this specification's scope
// (§1); what this binary actually exposes on ListenAddr is a gRPC health
// endpoint and reflection service, so a real transport can be grown behind
// the same *grpc.Server without disturbing this entry point, and so
// operators already have something to probe at the listen address.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/m4tx/offs/cfg"
	"github.com/m4tx/offs/internal/clock"
	"github.com/m4tx/offs/internal/dirtree"
	"github.com/m4tx/offs/internal/logger"
	"github.com/m4tx/offs/internal/metrics"
	"github.com/m4tx/offs/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	c := cfg.ServerConfig{Chunker: cfg.DefaultChunker(), Log: cfg.LogConfig{Level: cfg.DefaultLogLevel, Format: "text"}}

	cmd := &cobra.Command{
		Use:   "offs-server",
		Short: "Serve the authoritative OFFS directory index and blob store.",
		RunE: func(cmd *cobra.Command, args []string) error {
			bindFlags(cmd, v, &c)
			return run(cmd.Context(), c)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&c.StorePath, "store-path", "", "path to the server's sqlite store (required)")
	flags.StringVar(&c.ListenAddr, "listen-addr", ":9090", "address the gRPC health/reflection endpoint listens on")
	flags.StringVar(&c.MetricAddr, "metric-addr", ":9091", "address the Prometheus /metrics endpoint listens on")
	flags.IntVar(&c.Chunker.Min, "chunk-min", cfg.DefaultChunkMin, "minimum chunk size in bytes")
	flags.IntVar(&c.Chunker.Avg, "chunk-avg", cfg.DefaultChunkAvg, "average chunk size in bytes")
	flags.IntVar(&c.Chunker.Max, "chunk-max", cfg.DefaultChunkMax, "maximum chunk size in bytes")
	flags.StringVar(&c.Log.Level, "log-level", cfg.DefaultLogLevel, "trace|debug|info|warning|error")
	flags.StringVar(&c.Log.Path, "log-path", "", "log file path (rotated via lumberjack); empty logs to stderr")
	flags.StringVar(&c.Log.Format, "log-format", "text", "text|json")
	_ = cmd.MarkFlagRequired("store-path")

	return cmd
}

func bindFlags(cmd *cobra.Command, v *viper.Viper, c *cfg.ServerConfig) {
	v.SetEnvPrefix("OFFS_SERVER")
	v.AutomaticEnv()
	_ = v.BindPFlags(cmd.Flags())
}

func run(ctx context.Context, c cfg.ServerConfig) error {
	if err := logger.InitLogging(logger.Config{Level: c.Log.Level, Path: c.Log.Path, Format: c.Log.Format}); err != nil {
		return fmt.Errorf("offs-server: init logging: %w", err)
	}

	idx, err := dirtree.Open(c.StorePath)
	if err != nil {
		return fmt.Errorf("offs-server: open store: %w", err)
	}
	if err := dirtree.EnsureRoot(idx); err != nil {
		return fmt.Errorf("offs-server: ensure root: %w", err)
	}
	srv := server.New(idx, c.Chunker.Params(), clock.RealClock{})
	_ = srv // wired into a real RPC service once a transport lands behind the health/reflection endpoint below.

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go serveMetrics(c.MetricAddr)

	lis, err := net.Listen("tcp", c.ListenAddr)
	if err != nil {
		return fmt.Errorf("offs-server: listen: %w", err)
	}
	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	logger.Info(ctx, "offs-server listening", "listen_addr", c.ListenAddr, "store_path", c.StorePath)
	go func() {
		<-ctx.Done()
		grpcServer.GracefulStop()
	}()
	return grpcServer.Serve(lis)
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	_ = http.ListenAndServe(addr, mux)
}
