// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/tidwall/jsonc"
)

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "ZENTER_CONFIG"

// envPrefix namespaces the bridge's environment overrides:
// ZB_SERVICE_URL -> service.url, ZB_BRIDGE_FLUSH_INTERVAL -> bridge.flush_interval.
const envPrefix = "ZB_"

// DefaultPath returns the config file path, honoring ZENTER_CONFIG.
func DefaultPath() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	return filepath.Join(defaultDataDir(), "config.json")
}

// jsoncParser is a koanf parser for JSON with comments and trailing
// commas. Hand-edited config files routinely carry both.
type jsoncParser struct{}

// Unmarshal parses JSONC bytes into a nested map.
func (jsoncParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := json.Unmarshal(jsonc.ToJSON(b), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Marshal renders a nested map as indented JSON.
func (jsoncParser) Marshal(m map[string]interface{}) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// Load reads configuration from defaults, the given file (if it exists)
// and the environment, in that precedence order (env wins).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), jsoncParser{}); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse reads a full configuration from JSONC bytes layered over the
// defaults. Environment overrides are not applied; this is the PUT
// config path of the control API, which round-trips file content.
func Parse(data []byte) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if err := k.Load(rawbytes.Provider(data), jsoncParser{}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Render serializes the configuration the same way Save writes it.
func Render(cfg *Config) ([]byte, error) {
	data, err := json.MarshalIndent(cfg.toFileMap(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return append(data, '\n'), nil
}

// envTransform maps ZB_SECTION_FIELD_NAME to section.field_name.
// Only the first underscore separates the section from the field.
func envTransform(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	if i := strings.IndexByte(s, '_'); i > 0 {
		return s[:i] + "." + s[i+1:]
	}
	return s
}

// Save writes the configuration to path atomically (temp file + rename)
// so a concurrent reader never observes a partial file.
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg.toFileMap(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// toFileMap renders the config through koanf tags so the on-disk key
// names match what Load reads back.
func (c *Config) toFileMap() map[string]interface{} {
	k := koanf.New(".")
	// structs.Provider cannot fail on a plain struct
	_ = k.Load(structs.Provider(c, "koanf"), nil)
	return k.Raw()
}
