// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

// Package main is the entry point for the Zenter bridge.
//
// The bridge runs on a host next to one or more access-control
// devices. Per device it keeps a long-lived event stream open, spools
// every event to disk, uploads the spool to the ingestion service,
// reports liveness, and executes employee-management jobs pulled from
// the service. A local control API (loopback by default) serves the
// settings UI.
//
// Startup order:
//
//  1. Configuration: Koanf v2 layered load (defaults, JSONC file,
//     ZB_* environment overrides)
//  2. Logging: zerolog, tee'd into the websocket log feed
//  3. Supervisor: one engine per enrolled device
//  4. Control API: chi router on cfg.api.addr
//
// Shutdown on SIGINT/SIGTERM is coarse: engines are canceled and
// unflushed events stay on disk for the next start.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/zenterhq/zenter-bridge/internal/api"
	"github.com/zenterhq/zenter-bridge/internal/config"
	"github.com/zenterhq/zenter-bridge/internal/logging"
	"github.com/zenterhq/zenter-bridge/internal/supervisor"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "path to the bridge config file")
	showVersion := flag.Bool("version", false, "print the bridge version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(config.Version)
		return
	}

	store, err := config.OpenStore(*configPath)
	if err != nil {
		logging.Fatal().Err(err).Str("path", *configPath).
			Msg("Failed to load configuration; create the config file or point ZENTER_CONFIG at it")
	}
	cfg := store.Get()

	feed := logging.NewBroadcaster()
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: io.MultiWriter(os.Stderr, feed),
	})

	logging.Info().
		Str("version", config.Version).
		Str("bridge_id", cfg.Bridge.ID).
		Str("config", store.Path()).
		Int("devices", len(cfg.Devices)).
		Msg("Starting Zenter bridge")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sup := supervisor.New(store)
	started := sup.StartAll()
	switch {
	case started == 0 && len(cfg.ReadyDevices()) == 0:
		// Keep the control API up so the operator can enroll a device.
		logging.Error().Int("configured", len(cfg.Devices)).
			Msg("No enrolled device found; engines idle until a device is enrolled")
	default:
		logging.Info().Int("started", started).Msg("Device engines started")
	}

	srv := api.New(cfg.API.Addr, store, sup, feed)
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		sup.Shutdown()
		logging.Fatal().Err(err).Str("addr", cfg.API.Addr).Msg("Control API failed")
	}

	logging.Info().Msg("Shutting down")
	sup.Shutdown()
	logging.Info().Msg("Bridge stopped")
}
