// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

// Package metrics defines the bridge's Prometheus collectors. The
// control API exposes them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsParsed counts events decoded from the device stream.
	EventsParsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_events_parsed_total",
		Help: "Total events decoded from device streams",
	}, []string{"device"})

	// PartsDropped counts stream parts dropped as undecodable.
	PartsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_stream_parts_dropped_total",
		Help: "Total multipart stream parts dropped (non-JSON or undecodable)",
	}, []string{"device"})

	// StreamReconnects counts stream reconnect attempts.
	StreamReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_stream_reconnects_total",
		Help: "Total device stream reconnect attempts",
	}, []string{"device"})

	// QueueDepth is the current number of pending queue files.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bridge_queue_depth",
		Help: "Current number of pending event files in the durable queue",
	}, []string{"device"})

	// QueueWrites counts durable queue writes.
	QueueWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_queue_writes_total",
		Help: "Total events persisted to the durable queue",
	}, []string{"device"})

	// FlushOutcomes counts delivery outcomes per flush item:
	// accepted, duplicate, skipped, corrupt, error.
	FlushOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_flush_outcomes_total",
		Help: "Delivery outcomes of queue items during flush passes",
	}, []string{"device", "outcome"})

	// HeartbeatFailures counts failed heartbeat submissions.
	HeartbeatFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_heartbeat_failures_total",
		Help: "Total failed heartbeat submissions",
	}, []string{"device"})

	// JobsCompleted counts executed jobs by action and status.
	JobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_jobs_completed_total",
		Help: "Total jobs executed, by action and terminal status",
	}, []string{"device", "action", "status"})

	// EngineRestarts counts supervisor restarts after engine crashes.
	EngineRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_engine_restarts_total",
		Help: "Total engine restarts scheduled after unexpected exits",
	}, []string{"device"})
)
