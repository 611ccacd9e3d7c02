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

// Package metrics exposes the Prometheus collectors the server and
// reconciler update. It is purely additive observability (SPEC_FULL.md
// §B.2): nothing in the core (C1-C8) reads these values back.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// OperationsApplied counts operations the engine has successfully
	// applied, labeled by kind (e.g. "create_file", "write").
	OperationsApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offs_operations_applied_total",
		Help: "Number of operations successfully applied by the engine.",
	}, []string{"kind"})

	// ReplayOutcomes counts each terminal outcome the reconciler's
	// Replay loop observes from ApplyJournal.
	ReplayOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offs_journal_replay_outcome_total",
		Help: "Number of journal replay attempts by outcome.",
	}, []string{"outcome"})

	// BlobStoreBytes tracks the total size of content stored in the blob
	// table, updated by blobstore.Sweep (Put does not update it).
	BlobStoreBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "offs_blob_store_bytes",
		Help: "Total bytes of blob content currently stored.",
	})

	// ApplyJournalDuration observes how long each ApplyJournal call takes
	// end to end, including blob ingestion.
	ApplyJournalDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "offs_apply_journal_duration_seconds",
		Help:    "Latency of ApplyJournal calls.",
		Buckets: prometheus.DefBuckets,
	})
)

// Registry bundles the collectors above into their own registry so
// cmd/offs-server can serve them without pulling in Go runtime metrics it
// doesn't want to promise API stability on.
func Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(OperationsApplied, ReplayOutcomes, BlobStoreBytes, ApplyJournalDuration)
	return reg
}
