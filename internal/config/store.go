// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

package config

import (
	"errors"
	"sync"
)

// ErrDeviceNotFound is returned when a device reference matches nothing.
var ErrDeviceNotFound = errors.New("device not found in configuration")

// Store owns the persisted configuration. All mutations go through
// Update, which writes the file atomically and keeps an in-memory
// snapshot for readers. The supervisor and the control API share one
// Store; per-engine configuration is copied out at engine construction
// so running engines never observe concurrent edits.
type Store struct {
	mu   sync.RWMutex
	path string
	cfg  *Config
}

// NewStore creates a store around an already-loaded configuration.
func NewStore(cfg *Config, path string) *Store {
	return &Store{path: path, cfg: cfg}
}

// OpenStore loads the configuration from path and wraps it in a Store.
func OpenStore(path string) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, cfg: cfg}, nil
}

// Path returns the config file location.
func (s *Store) Path() string {
	return s.path
}

// Get returns a deep copy of the current configuration.
func (s *Store) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.clone()
}

// Update applies fn to a copy of the configuration, validates it,
// persists it and installs it as the current snapshot. fn returning an
// error aborts with no change.
func (s *Store) Update(fn func(*Config) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg.clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := Save(next, s.path); err != nil {
		return err
	}
	s.cfg = next
	return nil
}

// Replace swaps in a whole new configuration (settings UI save).
func (s *Store) Replace(cfg *Config) error {
	return s.Update(func(cur *Config) error {
		*cur = *cfg.clone()
		return nil
	})
}

// UpdateDevice applies fn to the device matched by ref (device id, or
// the display name for not-yet-enrolled devices) and persists.
func (s *Store) UpdateDevice(ref string, fn func(*DeviceConfig) error) error {
	return s.Update(func(cfg *Config) error {
		for i := range cfg.Devices {
			if deviceMatches(cfg.Devices[i], ref) {
				return fn(&cfg.Devices[i])
			}
		}
		return ErrDeviceNotFound
	})
}

// LookupDevice resolves ref against the current snapshot.
func (s *Store) LookupDevice(ref string) (DeviceConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.cfg.Devices {
		if deviceMatches(d, ref) {
			return d, true
		}
	}
	return DeviceConfig{}, false
}

// RemoveDevice deletes the matched device from the configuration.
func (s *Store) RemoveDevice(ref string) error {
	return s.Update(func(cfg *Config) error {
		for i := range cfg.Devices {
			if deviceMatches(cfg.Devices[i], ref) {
				cfg.Devices = append(cfg.Devices[:i], cfg.Devices[i+1:]...)
				return nil
			}
		}
		return ErrDeviceNotFound
	})
}

func deviceMatches(d DeviceConfig, ref string) bool {
	if ref == "" {
		return false
	}
	return d.ID == ref || (d.ID == "" && d.Name == ref)
}

// clone deep-copies a Config (the only reference field is Devices).
func (c *Config) clone() *Config {
	out := *c
	out.Devices = make([]DeviceConfig, len(c.Devices))
	copy(out.Devices, c.Devices)
	return &out
}
