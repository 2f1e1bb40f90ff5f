// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

// Package supervisor owns the lifecycle of every device engine: start,
// stop, restart, crash recovery, enrollment, and identity refresh.
//
// Crash handling is deliberately simple: a fixed delay and another
// attempt, forever, with no crash-loop detection. A device that is
// offline for a weekend should reconnect on Monday without operator
// help.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zenterhq/zenter-bridge/internal/config"
	"github.com/zenterhq/zenter-bridge/internal/engine"
	"github.com/zenterhq/zenter-bridge/internal/logging"
	"github.com/zenterhq/zenter-bridge/internal/metrics"
)

var (
	ErrShuttingDown   = errors.New("supervisor is shutting down")
	ErrDeviceNotReady = errors.New("device is not enrolled")
)

// Runner is the engine surface the supervisor drives. Implemented by
// *engine.Engine; a test can substitute its own.
type Runner interface {
	Run(ctx context.Context) error
	State() *engine.State
	QueueDepth() int
}

// Factory builds a runner from a config snapshot.
type Factory func(bridge config.BridgeConfig, svc config.ServiceConfig, dev config.DeviceConfig) (Runner, error)

func defaultFactory(bridge config.BridgeConfig, svc config.ServiceConfig, dev config.DeviceConfig) (Runner, error) {
	return engine.New(bridge, svc, dev)
}

// process is one device's lifecycle loop.
type process struct {
	deviceID string
	runner   Runner
	running  bool
	pending  bool
	cancel   context.CancelFunc
	stop     chan struct{}
	kick     chan struct{}
	done     chan struct{}
}

// Supervisor runs one engine per ready device.
type Supervisor struct {
	store   *config.Store
	factory Factory
	onState func()

	mu       sync.Mutex
	procs    map[string]*process
	ops      map[string]*sync.Mutex
	shutdown bool

	log zerolog.Logger
}

func New(store *config.Store) *Supervisor {
	return &Supervisor{
		store:   store,
		factory: defaultFactory,
		procs:   make(map[string]*process),
		ops:     make(map[string]*sync.Mutex),
		log:     logging.With().Str("component", "supervisor").Logger(),
	}
}

// SetOnStateChange registers a callback fired on engine state
// transitions, used by the control surface's live feed.
func (s *Supervisor) SetOnStateChange(fn func()) {
	s.mu.Lock()
	s.onState = fn
	s.mu.Unlock()
}

func (s *Supervisor) notifyState() {
	s.mu.Lock()
	fn := s.onState
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// opLock serializes control operations per device reference.
func (s *Supervisor) opLock(ref string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mu, ok := s.ops[ref]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	s.ops[ref] = mu
	return mu
}

// StartAll starts an engine for every ready device and returns how
// many started. Devices missing id, key, or address are skipped with a
// warning.
func (s *Supervisor) StartAll() int {
	cfg := s.store.Get()
	started := 0
	for _, dev := range cfg.Devices {
		if !dev.Ready() {
			s.log.Warn().Str("device", dev.Label()).Msg("device not enrolled, skipping")
			continue
		}
		if err := s.Start(dev.ID); err != nil {
			s.log.Error().Err(err).Str("device", dev.Label()).Msg("engine start failed")
			continue
		}
		started++
	}
	return started
}

// Start launches the engine for one device. Starting a running engine
// is a no-op; starting one that is waiting out a crash delay restarts
// it immediately.
func (s *Supervisor) Start(ref string) error {
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

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return ErrShuttingDown
	}
	if p, ok := s.procs[dev.ID]; ok {
		if p.pending {
			// skip the remaining crash delay
			select {
			case p.kick <- struct{}{}:
			default:
			}
		}
		s.mu.Unlock()
		return nil
	}
	p := &process{
		deviceID: dev.ID,
		stop:     make(chan struct{}),
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	s.procs[dev.ID] = p
	s.mu.Unlock()

	go s.loop(p)
	return nil
}

// loop builds and runs the engine, restarting after the fixed delay
// until the device is stopped or the supervisor shuts down.
func (s *Supervisor) loop(p *process) {
	defer close(p.done)
	defer func() {
		s.mu.Lock()
		delete(s.procs, p.deviceID)
		s.mu.Unlock()
		s.notifyState()
	}()

	first := true
	for {
		if s.stopping(p) {
			return
		}
		if !first {
			cfg := s.store.Get()
			s.mu.Lock()
			p.pending = true
			s.mu.Unlock()
			s.notifyState()
			metrics.EngineRestarts.WithLabelValues(p.deviceID).Inc()
			select {
			case <-p.stop:
				return
			case <-p.kick:
			case <-time.After(cfg.Bridge.RestartDelay):
			}
		}
		first = false

		err := s.runEngine(p)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error().Err(err).Str("device_id", p.deviceID).Msg("engine exited, restart scheduled")
		}
	}
}

// runEngine builds a fresh engine from the current config and runs it,
// converting a panic anywhere under it into an error exit.
func (s *Supervisor) runEngine(p *process) (err error) {
	cfg := s.store.Get()
	dev, ok := cfg.Device(p.deviceID)
	if !ok || !dev.Ready() {
		return fmt.Errorf("%w: %s", ErrDeviceNotReady, p.deviceID)
	}

	runner, err := s.factory(cfg.Bridge, cfg.Service, dev)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	p.runner = runner
	p.running = true
	p.pending = false
	p.cancel = cancel
	s.mu.Unlock()
	runner.State().SetOnChange(s.notifyState)
	s.notifyState()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
		cancel()
		s.mu.Lock()
		p.running = false
		s.mu.Unlock()
		s.notifyState()
	}()

	go func() {
		select {
		case <-p.stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	return runner.Run(ctx)
}

func (s *Supervisor) stopping(p *process) bool {
	select {
	case <-p.stop:
		return true
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

// Stop shuts one engine down, canceling any pending crash restart.
// Stopping a stopped device is a no-op.
func (s *Supervisor) Stop(ref string) error {
	mu := s.opLock(ref)
	mu.Lock()
	defer mu.Unlock()
	return s.stopLocked(ref)
}

func (s *Supervisor) stopLocked(ref string) error {
	dev, err := s.lookup(ref)
	if err != nil {
		return err
	}

	s.mu.Lock()
	p, ok := s.procs[dev.ID]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-p.stop:
	default:
		close(p.stop)
	}
	<-p.done
	return nil
}

// Restart stops then starts one engine.
func (s *Supervisor) Restart(ref string) error {
	mu := s.opLock(ref)
	mu.Lock()
	defer mu.Unlock()
	return s.restartUnlocked(ref)
}

func (s *Supervisor) restartUnlocked(ref string) error {
	if err := s.stopLocked(ref); err != nil {
		return err
	}
	dev, err := s.lookup(ref)
	if err != nil {
		return err
	}
	if !dev.Ready() {
		return fmt.Errorf("%w: %s", ErrDeviceNotReady, dev.Label())
	}

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return ErrShuttingDown
	}
	p := &process{
		deviceID: dev.ID,
		stop:     make(chan struct{}),
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	s.procs[dev.ID] = p
	s.mu.Unlock()
	go s.loop(p)
	return nil
}

// StopAll stops every engine. The supervisor stays usable: the control
// surface pairs this with a later StartAll.
func (s *Supervisor) StopAll() {
	s.stopProcs()
}

// Shutdown stops every engine and refuses further starts. Process
// exit only; there is no way back.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()
	s.stopProcs()
}

func (s *Supervisor) stopProcs() {
	s.mu.Lock()
	procs := make([]*process, 0, len(s.procs))
	for _, p := range s.procs {
		procs = append(procs, p)
	}
	s.mu.Unlock()

	for _, p := range procs {
		select {
		case <-p.stop:
		default:
			close(p.stop)
		}
	}
	for _, p := range procs {
		<-p.done
	}
}

// RestartAll restarts every currently ready device's engine.
func (s *Supervisor) RestartAll() {
	cfg := s.store.Get()
	for _, dev := range cfg.Devices {
		if !dev.Ready() {
			continue
		}
		if err := s.Restart(dev.ID); err != nil {
			s.log.Error().Err(err).Str("device", dev.Label()).Msg("engine restart failed")
		}
	}
}

func (s *Supervisor) lookup(ref string) (config.DeviceConfig, error) {
	dev, ok := s.store.LookupDevice(ref)
	if !ok {
		return config.DeviceConfig{}, fmt.Errorf("%w: %s", config.ErrDeviceNotFound, ref)
	}
	return dev, nil
}
