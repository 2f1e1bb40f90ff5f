// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

// Package heartbeat reports device liveness to the service.
package heartbeat

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/zenterhq/zenter-bridge/internal/cloud"
	"github.com/zenterhq/zenter-bridge/internal/logging"
	"github.com/zenterhq/zenter-bridge/internal/metrics"
)

// StateSource exposes the engine facts a heartbeat carries.
type StateSource interface {
	StreamConnected() bool
	LastEventTime() *string
}

// DepthSource reports the pending queue size.
type DepthSource interface {
	List() ([]string, error)
}

// Submitter sends one heartbeat.
type Submitter interface {
	SubmitHeartbeat(ctx context.Context, hb cloud.Heartbeat) error
}

// Reporter sends heartbeats on a fixed interval, plus one immediately
// on start. Failures are logged and dropped; a heartbeat must never
// take the engine down.
type Reporter struct {
	deviceID string
	address  string
	version  string
	interval time.Duration
	state    StateSource
	depth    DepthSource
	submit   Submitter
	log      zerolog.Logger
}

func New(deviceID, address, version string, interval time.Duration, state StateSource, depth DepthSource, submit Submitter) *Reporter {
	return &Reporter{
		deviceID: deviceID,
		address:  address,
		version:  version,
		interval: interval,
		state:    state,
		depth:    depth,
		submit:   submit,
		log:      logging.With().Str("component", "heartbeat").Str("device_id", deviceID).Logger(),
	}
}

func (r *Reporter) String() string {
	return "heartbeat-" + r.deviceID
}

// Serve implements suture.Service.
func (r *Reporter) Serve(ctx context.Context) error {
	r.SendOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.SendOnce(ctx)
		}
	}
}

// SendOnce builds and submits one heartbeat. A queue listing failure
// reports depth 0 rather than suppressing the beat.
func (r *Reporter) SendOnce(ctx context.Context) {
	depth := 0
	if files, err := r.depth.List(); err != nil {
		r.log.Warn().Err(err).Msg("queue depth unavailable for heartbeat")
	} else {
		depth = len(files)
	}

	host, _ := os.Hostname()
	hb := cloud.Heartbeat{
		LastSeen:        time.Now().UTC().Format(time.RFC3339Nano),
		StreamConnected: r.state.StreamConnected(),
		LastEventTime:   r.state.LastEventTime(),
		QueueDepth:      depth,
		IP:              r.address,
		Host:            host,
		Version:         r.version,
	}
	if err := r.submit.SubmitHeartbeat(ctx, hb); err != nil {
		metrics.HeartbeatFailures.WithLabelValues(r.deviceID).Inc()
		r.log.Warn().Err(err).Msg("heartbeat submit failed")
	}
}
