// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

package supervisor

import "sort"

// DeviceStatus is one device's live status for the control surface.
type DeviceStatus struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Address         string  `json:"address"`
	Ready           bool    `json:"ready"`
	Running         bool    `json:"running"`
	PendingRestart  bool    `json:"pending_restart"`
	StreamConnected bool    `json:"stream_connected"`
	LastEventTime   *string `json:"last_event_time"`
	QueueDepth      int     `json:"queue_depth"`
	Model           string  `json:"model,omitempty"`
	Serial          string  `json:"serial,omitempty"`
	MAC             string  `json:"mac,omitempty"`
	Timezone        string  `json:"timezone,omitempty"`
}

// Status is the aggregate over all configured devices.
type Status struct {
	Total      int            `json:"total"`
	Running    int            `json:"running"`
	RunningIDs []string       `json:"running_ids"`
	Devices    []DeviceStatus `json:"devices"`
}

// Status reports per-device and aggregate state.
func (s *Supervisor) Status() Status {
	cfg := s.store.Get()

	s.mu.Lock()
	procs := make(map[string]*process, len(s.procs))
	for id, p := range s.procs {
		procs[id] = p
	}
	out := Status{Total: len(cfg.Devices)}
	for _, dev := range cfg.Devices {
		ds := DeviceStatus{
			ID:       dev.ID,
			Name:     dev.Name,
			Address:  dev.Address,
			Ready:    dev.Ready(),
			Model:    dev.Model,
			Serial:   dev.Serial,
			MAC:      dev.MAC,
			Timezone: dev.Timezone,
		}
		if p, ok := procs[dev.ID]; ok && dev.ID != "" {
			ds.Running = p.running
			ds.PendingRestart = p.pending
			if p.running && p.runner != nil {
				st := p.runner.State()
				ds.StreamConnected = st.StreamConnected()
				ds.LastEventTime = st.LastEventTime()
				ds.QueueDepth = p.runner.QueueDepth()
			}
		}
		if ds.Running {
			out.Running++
			out.RunningIDs = append(out.RunningIDs, dev.ID)
		}
		out.Devices = append(out.Devices, ds)
	}
	s.mu.Unlock()

	sort.Strings(out.RunningIDs)
	return out
}
