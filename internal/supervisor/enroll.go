// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

package supervisor

import (
	"context"
	"errors"
	"fmt"

	"github.com/zenterhq/zenter-bridge/internal/cloud"
	"github.com/zenterhq/zenter-bridge/internal/config"
	"github.com/zenterhq/zenter-bridge/internal/isapi"
)

var ErrMissingEnrollToken = errors.New("device has no activation token")

// Enroll exchanges the device's activation token for service
// credentials, persists them, and (re)starts the engine. It works
// whether or not an engine is currently active for the device.
func (s *Supervisor) Enroll(ctx context.Context, ref string) (config.DeviceConfig, error) {
	mu := s.opLock(ref)
	mu.Lock()
	defer mu.Unlock()

	dev, err := s.lookup(ref)
	if err != nil {
		return config.DeviceConfig{}, err
	}
	if dev.EnrollToken == "" {
		return config.DeviceConfig{}, fmt.Errorf("%w: %s", ErrMissingEnrollToken, dev.Label())
	}

	cfg := s.store.Get()
	client := cloud.New(cloud.Config{
		BaseURL:  cfg.Service.URL,
		APIKey:   cfg.Service.APIKey,
		BridgeID: cfg.Bridge.ID,
	})
	enr, err := client.Enroll(ctx, dev.EnrollToken, dev.Name, dev.Address)
	if err != nil {
		return config.DeviceConfig{}, fmt.Errorf("enroll %s: %w", dev.Label(), err)
	}

	err = s.store.UpdateDevice(ref, func(d *config.DeviceConfig) error {
		d.ID = enr.DeviceID
		d.Key = enr.DeviceKey
		d.EnrollToken = ""
		return nil
	})
	if err != nil {
		return config.DeviceConfig{}, fmt.Errorf("persist enrollment for %s: %w", dev.Label(), err)
	}
	s.log.Info().Str("device", dev.Label()).Str("device_id", enr.DeviceID).Msg("device enrolled")

	enrolled, _ := s.store.LookupDevice(enr.DeviceID)
	if err := s.restartUnlocked(enrolled.ID); err != nil {
		s.log.Error().Err(err).Str("device_id", enrolled.ID).Msg("engine start after enrollment failed")
	}
	return enrolled, nil
}

// RefreshIdentity reads the device's self-reported identity, pushes it
// to the service, persists the discovered fields, and restarts the
// engine.
func (s *Supervisor) RefreshIdentity(ctx context.Context, ref string) (config.DeviceConfig, error) {
	mu := s.opLock(ref)
	mu.Lock()
	defer mu.Unlock()

	dev, err := s.lookup(ref)
	if err != nil {
		return config.DeviceConfig{}, err
	}
	if !dev.Ready() {
		return config.DeviceConfig{}, fmt.Errorf("%w: %s", ErrDeviceNotReady, dev.Label())
	}

	id, err := isapi.New(dev.Address, dev.Username, dev.Password).Identity(ctx)
	if err != nil {
		return config.DeviceConfig{}, fmt.Errorf("read identity of %s: %w", dev.Label(), err)
	}

	cfg := s.store.Get()
	client := cloud.New(cloud.Config{
		BaseURL:   cfg.Service.URL,
		APIKey:    cfg.Service.APIKey,
		BridgeID:  cfg.Bridge.ID,
		DeviceID:  dev.ID,
		DeviceKey: dev.Key,
	})
	push := cloud.DeviceIdentity{Model: id.Model, Serial: id.Serial, MAC: id.MAC, Timezone: id.Timezone}
	if err := client.PushDeviceIdentity(ctx, push); err != nil {
		return config.DeviceConfig{}, fmt.Errorf("push identity of %s: %w", dev.Label(), err)
	}

	err = s.store.UpdateDevice(ref, func(d *config.DeviceConfig) error {
		d.Model = id.Model
		d.Serial = id.Serial
		d.MAC = id.MAC
		d.Timezone = id.Timezone
		return nil
	})
	if err != nil {
		return config.DeviceConfig{}, fmt.Errorf("persist identity of %s: %w", dev.Label(), err)
	}
	s.log.Info().Str("device_id", dev.ID).Str("model", id.Model).Str("serial", id.Serial).Msg("device identity refreshed")

	updated, _ := s.store.LookupDevice(dev.ID)
	if err := s.restartUnlocked(dev.ID); err != nil {
		s.log.Error().Err(err).Str("device_id", dev.ID).Msg("engine restart after identity refresh failed")
	}
	return updated, nil
}

// RemoveDevice deletes a device completely: service registration if
// enrolled, the running engine, and the config entry.
func (s *Supervisor) RemoveDevice(ctx context.Context, ref string) error {
	mu := s.opLock(ref)
	mu.Lock()
	defer mu.Unlock()

	dev, err := s.lookup(ref)
	if err != nil {
		return err
	}
	if dev.Ready() {
		if err := s.deleteRegistrationLocked(ctx, dev); err != nil {
			return err
		}
	}
	if err := s.stopLocked(ref); err != nil {
		return err
	}
	if err := s.store.RemoveDevice(ref); err != nil {
		return fmt.Errorf("remove %s from configuration: %w", dev.Label(), err)
	}
	s.log.Info().Str("device", dev.Label()).Msg("device removed")
	return nil
}

// DeleteRegistration removes the device from the service, stops its
// engine, and clears its credentials locally.
func (s *Supervisor) DeleteRegistration(ctx context.Context, ref string) error {
	mu := s.opLock(ref)
	mu.Lock()
	defer mu.Unlock()

	dev, err := s.lookup(ref)
	if err != nil {
		return err
	}
	if !dev.Ready() {
		return fmt.Errorf("%w: %s", ErrDeviceNotReady, dev.Label())
	}

	if err := s.deleteRegistrationLocked(ctx, dev); err != nil {
		return err
	}

	if err := s.stopLocked(ref); err != nil {
		return err
	}
	err = s.store.UpdateDevice(ref, func(d *config.DeviceConfig) error {
		d.ID = ""
		d.Key = ""
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear credentials of %s: %w", dev.Label(), err)
	}
	s.log.Info().Str("device", dev.Label()).Msg("device registration deleted")
	return nil
}

func (s *Supervisor) deleteRegistrationLocked(ctx context.Context, dev config.DeviceConfig) error {
	cfg := s.store.Get()
	client := cloud.New(cloud.Config{
		BaseURL:   cfg.Service.URL,
		APIKey:    cfg.Service.APIKey,
		BridgeID:  cfg.Bridge.ID,
		DeviceID:  dev.ID,
		DeviceKey: dev.Key,
	})
	if err := client.DeleteRegistration(ctx); err != nil {
		return fmt.Errorf("delete registration of %s: %w", dev.Label(), err)
	}
	return nil
}
