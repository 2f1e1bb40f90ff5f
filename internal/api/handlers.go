// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zenterhq/zenter-bridge/internal/config"
)

// maxConfigBody bounds PUT /config payloads.
const maxConfigBody = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"version": config.Version})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, s.ctl.Status())
}

// handleGetConfig returns the configuration in its on-disk form, the
// document the settings UI edits and PUTs back.
func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	data, err := config.Render(s.store.Get())
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handlePutConfig replaces the whole configuration. The body is the
// config file content; comments and trailing commas are tolerated.
// Running engines keep their construction-time snapshot until
// restarted.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxConfigBody))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "unreadable_body", err)
		return
	}
	cfg, err := config.Parse(body)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid_config", err)
		return
	}
	if err := s.store.Replace(cfg); err != nil {
		s.fail(w, err)
		return
	}
	s.log.Info().Msg("configuration replaced")
	s.respond(w, http.StatusOK, nil)
}

func (s *Server) handleStartAll(w http.ResponseWriter, _ *http.Request) {
	started := s.ctl.StartAll()
	s.respond(w, http.StatusOK, map[string]int{"started": started})
}

func (s *Server) handleStopAll(w http.ResponseWriter, _ *http.Request) {
	s.ctl.StopAll()
	s.respond(w, http.StatusOK, nil)
}

func (s *Server) handleRestartAll(w http.ResponseWriter, _ *http.Request) {
	s.ctl.RestartAll()
	s.respond(w, http.StatusOK, nil)
}

// deviceOp adapts a per-device supervisor call into a handler.
func (s *Server) deviceOp(op func(ref string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := op(chi.URLParam(r, "ref")); err != nil {
			s.fail(w, err)
			return
		}
		s.respond(w, http.StatusOK, nil)
	}
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	dev, err := s.ctl.Enroll(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, deviceView(dev))
}

func (s *Server) handleRefreshIdentity(w http.ResponseWriter, r *http.Request) {
	dev, err := s.ctl.RefreshIdentity(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, deviceView(dev))
}

func (s *Server) handleDeleteRegistration(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.DeleteRegistration(r.Context(), chi.URLParam(r, "ref")); err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, nil)
}

func (s *Server) handleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.RemoveDevice(r.Context(), chi.URLParam(r, "ref")); err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, nil)
}

// deviceResponse is a DeviceConfig without its secrets.
type deviceResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Enrolled bool   `json:"enrolled"`
	Model    string `json:"model,omitempty"`
	Serial   string `json:"serial,omitempty"`
	MAC      string `json:"mac,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

func deviceView(d config.DeviceConfig) deviceResponse {
	return deviceResponse{
		ID:       d.ID,
		Name:     d.Name,
		Address:  d.Address,
		Enrolled: d.Ready(),
		Model:    d.Model,
		Serial:   d.Serial,
		MAC:      d.MAC,
		Timezone: d.Timezone,
	}
}
