// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

package engine

import (
	"sync/atomic"
	"time"
)

// State is the live per-device status shared by the ingestor,
// heartbeat reporter, and control surface. Never persisted.
type State struct {
	connected atomic.Bool
	lastEvent atomic.Pointer[string]
	onChange  atomic.Pointer[func()]
}

// SetOnChange registers a callback fired after every state mutation.
// Used by the control surface to push live status over its feed.
func (s *State) SetOnChange(fn func()) {
	s.onChange.Store(&fn)
}

func (s *State) notify() {
	if fn := s.onChange.Load(); fn != nil {
		(*fn)()
	}
}

// SetStreamConnected records a stream connectivity transition.
func (s *State) SetStreamConnected(v bool) {
	if s.connected.Swap(v) != v {
		s.notify()
	}
}

func (s *State) StreamConnected() bool {
	return s.connected.Load()
}

// SetLastEventTime records the newest event timestamp.
func (s *State) SetLastEventTime(t time.Time) {
	iso := t.UTC().Format(time.RFC3339Nano)
	s.lastEvent.Store(&iso)
	s.notify()
}

// LastEventTime returns the newest event timestamp in RFC3339 form, or
// nil when no event has been seen since start.
func (s *State) LastEventTime() *string {
	return s.lastEvent.Load()
}
