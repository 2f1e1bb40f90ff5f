// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

// Package engine composes the per-device services: stream ingestor,
// durable queue, flusher, heartbeat reporter, and job poller, all
// under one suture supervisor so a panic in any of them restarts that
// service without touching sibling devices.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/zenterhq/zenter-bridge/internal/cloud"
	"github.com/zenterhq/zenter-bridge/internal/config"
	"github.com/zenterhq/zenter-bridge/internal/flusher"
	"github.com/zenterhq/zenter-bridge/internal/heartbeat"
	"github.com/zenterhq/zenter-bridge/internal/isapi"
	"github.com/zenterhq/zenter-bridge/internal/jobs"
	"github.com/zenterhq/zenter-bridge/internal/logging"
	"github.com/zenterhq/zenter-bridge/internal/queue"
	"github.com/zenterhq/zenter-bridge/internal/stream"
)

// Engine runs everything one enrolled device needs.
type Engine struct {
	deviceID string
	state    *State
	queue    *queue.Queue
	flusher  *flusher.Flusher
	sup      *suture.Supervisor
	log      zerolog.Logger
}

// New wires an engine from a config snapshot. The device must be
// ready (id, key, address).
func New(bridge config.BridgeConfig, svc config.ServiceConfig, dev config.DeviceConfig) (*Engine, error) {
	if !dev.Ready() {
		return nil, fmt.Errorf("device %s is not enrolled", dev.Label())
	}

	q, err := queue.Open(filepath.Join(bridge.DataDir, "queue", dev.ID), dev.ID, queue.Options{
		Archive: bridge.ArchiveDelivered,
	})
	if err != nil {
		return nil, fmt.Errorf("open queue for %s: %w", dev.Label(), err)
	}

	cloudClient := cloud.New(cloud.Config{
		BaseURL:   svc.URL,
		APIKey:    svc.APIKey,
		BridgeID:  bridge.ID,
		DeviceID:  dev.ID,
		DeviceKey: dev.Key,
	})
	device := isapi.New(dev.Address, dev.Username, dev.Password)

	var cutoff time.Time
	if bridge.StartMode == "now" {
		cutoff = time.Now()
	}

	e := &Engine{
		deviceID: dev.ID,
		state:    &State{},
		queue:    q,
		log:      logging.With().Str("component", "engine").Str("device_id", dev.ID).Logger(),
	}
	e.flusher = flusher.New(dev.ID, q, cloudClient, bridge.UploadConcurrency, cutoff)

	ingestor := stream.NewIngestor(dev.ID, dev.Address, dev.Username, dev.Password,
		bridge.ReconnectDelay, e.state, e.handleEvent)
	beat := heartbeat.New(dev.ID, dev.Address, config.Version, bridge.HeartbeatInterval,
		e.state, q, cloudClient)
	poller := jobs.NewPoller(jobs.NewExecutor(dev.ID, device, cloudClient),
		bridge.JobPollInterval, bridge.JobBatchLimit)

	handler := &sutureslog.Handler{Logger: logging.NewSlogLogger()}
	e.sup = suture.New("engine-"+dev.ID, suture.Spec{
		EventHook: handler.MustHook(),
	})
	e.sup.Add(ingestor)
	e.sup.Add(flusher.NewService(e.flusher, bridge.FlushInterval))
	e.sup.Add(beat)
	e.sup.Add(poller)

	return e, nil
}

func (e *Engine) DeviceID() string { return e.deviceID }

// State exposes the live status for the heartbeat and control surface.
func (e *Engine) State() *State { return e.state }

// QueueDepth reports the current number of queued events.
func (e *Engine) QueueDepth() int { return e.queue.Depth() }

// Run serves the engine's supervision tree until ctx is canceled.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info().Msg("engine starting")
	defer e.log.Info().Msg("engine stopped")
	return e.sup.Serve(ctx)
}

// handleEvent is the live event path: record the event time, persist
// first, then attempt immediate delivery so the queue only grows while
// the service is unreachable.
func (e *Engine) handleEvent(ctx context.Context, raw []byte) {
	var ev struct {
		DateTime string `json:"dateTime"`
	}
	if err := json.Unmarshal(raw, &ev); err == nil && ev.DateTime != "" {
		if t, err := flusher.ParseEventTime(ev.DateTime); err == nil {
			e.state.SetLastEventTime(t)
		}
	}

	savedAt := time.Now()
	tz := tzOffsetMinutes(savedAt)
	path, err := e.queue.Enqueue(raw, savedAt, tz)
	if err != nil {
		e.log.Error().Err(err).Msg("enqueue failed, event lost")
		return
	}

	e.flusher.DeliverLive(ctx, path, &queue.Item{
		SavedAt:         savedAt.UTC(),
		DeviceID:        e.deviceID,
		TZOffsetMinutes: tz,
		Raw:             raw,
	})
}

// tzOffsetMinutes is the host's UTC offset, east positive.
func tzOffsetMinutes(t time.Time) int {
	_, secs := t.Zone()
	return secs / 60
}
