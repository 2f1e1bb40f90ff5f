// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/zenterhq/zenter-bridge/internal/cloud"
	"github.com/zenterhq/zenter-bridge/internal/config"
	"github.com/zenterhq/zenter-bridge/internal/supervisor"
)

// response is the envelope every JSON endpoint answers with.
type response struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response{Success: true, Data: data}); err != nil {
		s.log.Error().Err(err).Msg("write response failed")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, code string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := response{Error: &apiError{Code: code, Message: err.Error()}}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error().Err(err).Msg("write error response failed")
	}
}

// fail maps domain errors onto HTTP statuses and machine codes.
func (s *Server) fail(w http.ResponseWriter, err error) {
	var remote *cloud.RemoteError
	switch {
	case errors.Is(err, config.ErrDeviceNotFound):
		s.respondError(w, http.StatusNotFound, "device_not_found", err)
	case errors.Is(err, supervisor.ErrDeviceNotReady):
		s.respondError(w, http.StatusConflict, "device_not_ready", err)
	case errors.Is(err, supervisor.ErrMissingEnrollToken):
		s.respondError(w, http.StatusConflict, "missing_enroll_token", err)
	case errors.Is(err, supervisor.ErrShuttingDown):
		s.respondError(w, http.StatusServiceUnavailable, "shutting_down", err)
	case errors.As(err, &remote):
		s.respondError(w, http.StatusBadGateway, remote.Code, err)
	default:
		s.respondError(w, http.StatusInternalServerError, "internal", err)
	}
}
