// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

// Package config loads and persists the bridge configuration.
//
// Configuration is layered with Koanf v2: built-in defaults, then the
// JSON config file (comments and trailing commas tolerated), then
// environment variables. The file is the single source edited by the
// settings UI; the bridge itself only writes back discovered device
// identity fields and enrollment credentials.
package config

import (
	"os"
	"time"
)

// Version is the bridge version string reported in heartbeats.
// Overridden at build time with -ldflags.
var Version = "zenter-bridge@1.0.0"

// Config is the root configuration for the bridge process.
type Config struct {
	Service ServiceConfig  `koanf:"service" validate:"required"`
	Bridge  BridgeConfig   `koanf:"bridge"`
	Devices []DeviceConfig `koanf:"devices" validate:"dive"`
	Logging LoggingConfig  `koanf:"logging"`
	API     APIConfig      `koanf:"api"`
}

// ServiceConfig identifies the remote ingestion/control service.
type ServiceConfig struct {
	// URL is the base URL of the ingestion service.
	URL string `koanf:"url" validate:"required,url"`

	// APIKey is the anonymous API key sent with every call.
	APIKey string `koanf:"api_key" validate:"required"`
}

// BridgeConfig holds identity and timing knobs shared by all engines.
type BridgeConfig struct {
	// ID identifies this bridge host in heartbeats. Defaults to the hostname.
	ID string `koanf:"id"`

	// DataDir is the root directory holding per-device queue directories.
	DataDir string `koanf:"data_dir" validate:"required"`

	// StartMode selects the delivery cutoff: "now" skips events that
	// predate engine start, "all" delivers everything on the device.
	StartMode string `koanf:"start_mode" validate:"oneof=now all"`

	// ReconnectDelay is the fixed wait before reopening a closed event stream.
	ReconnectDelay time.Duration `koanf:"reconnect_delay" validate:"min=100ms"`

	// FlushInterval is the period between queue flush passes.
	FlushInterval time.Duration `koanf:"flush_interval" validate:"min=1s"`

	// UploadConcurrency is the flush worker pool size.
	UploadConcurrency int `koanf:"upload_concurrency" validate:"min=1,max=32"`

	// HeartbeatInterval is the period between liveness reports.
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval" validate:"min=1s"`

	// JobPollInterval is the period between job pulls.
	JobPollInterval time.Duration `koanf:"job_poll_interval" validate:"min=1500ms"`

	// JobBatchLimit is the maximum number of jobs pulled per poll.
	JobBatchLimit int `koanf:"job_batch_limit" validate:"min=1,max=50"`

	// RestartDelay is the fixed wait before restarting a crashed engine.
	RestartDelay time.Duration `koanf:"restart_delay" validate:"min=100ms"`

	// ArchiveDelivered moves delivered queue files to a done/ directory
	// instead of deleting them.
	ArchiveDelivered bool `koanf:"archive_delivered"`
}

// DeviceConfig describes one access-control device.
//
// ID and Key are issued by the remote service at enrollment. Model,
// Serial, MAC and Timezone are discovered from the device by an
// identity refresh; the settings UI treats them as read-only.
type DeviceConfig struct {
	ID          string `koanf:"id"`
	Key         string `koanf:"key"`
	Name        string `koanf:"name"`
	Address     string `koanf:"address"`
	Username    string `koanf:"username"`
	Password    string `koanf:"password"`
	EnrollToken string `koanf:"enroll_token"`

	Model    string `koanf:"model"`
	Serial   string `koanf:"serial"`
	MAC      string `koanf:"mac"`
	Timezone string `koanf:"timezone"`
}

// Ready reports whether the device has the fields an engine needs.
func (d DeviceConfig) Ready() bool {
	return d.ID != "" && d.Key != "" && d.Address != ""
}

// Label returns a human-readable identifier for logs.
func (d DeviceConfig) Label() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// LoggingConfig mirrors logging.Config for file-based configuration.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
}

// APIConfig configures the local control surface.
type APIConfig struct {
	// Addr is the listen address. Loopback by default: the control API
	// is for the local settings UI, not the network.
	Addr string `koanf:"addr" validate:"required"`
}

// Default returns the built-in defaults, mirroring what a fresh install writes.
func Default() *Config {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "bridge-1"
	}
	return &Config{
		Service: ServiceConfig{},
		Bridge: BridgeConfig{
			ID:                hostname,
			DataDir:           defaultDataDir(),
			StartMode:         "now",
			ReconnectDelay:    1500 * time.Millisecond,
			FlushInterval:     5 * time.Second,
			UploadConcurrency: 3,
			HeartbeatInterval: 15 * time.Second,
			JobPollInterval:   4 * time.Second,
			JobBatchLimit:     5,
			RestartDelay:      2 * time.Second,
		},
		Devices: nil,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		API: APIConfig{
			Addr: "127.0.0.1:8787",
		},
	}
}

// defaultDataDir returns the per-platform data root.
func defaultDataDir() string {
	if pd := os.Getenv("ProgramData"); pd != "" {
		return pd + string(os.PathSeparator) + "ZenterBridge"
	}
	return "/var/lib/zenter-bridge"
}

// Device returns the device with the given id, if present.
func (c *Config) Device(id string) (DeviceConfig, bool) {
	for _, d := range c.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return DeviceConfig{}, false
}

// ReadyDevices returns the devices with complete identity fields.
func (c *Config) ReadyDevices() []DeviceConfig {
	out := make([]DeviceConfig, 0, len(c.Devices))
	for _, d := range c.Devices {
		if d.Ready() {
			out = append(out, d)
		}
	}
	return out
}
