// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

// Package api is the local control surface the settings UI talks to.
// It binds to loopback by default; nothing here is meant to face the
// network.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/zenterhq/zenter-bridge/internal/config"
	"github.com/zenterhq/zenter-bridge/internal/logging"
	"github.com/zenterhq/zenter-bridge/internal/supervisor"
)

// Controller is the supervisor surface the API drives. Implemented by
// *supervisor.Supervisor.
type Controller interface {
	Status() supervisor.Status
	StartAll() int
	StopAll()
	RestartAll()
	Start(ref string) error
	Stop(ref string) error
	Restart(ref string) error
	Enroll(ctx context.Context, ref string) (config.DeviceConfig, error)
	RefreshIdentity(ctx context.Context, ref string) (config.DeviceConfig, error)
	DeleteRegistration(ctx context.Context, ref string) error
	RemoveDevice(ctx context.Context, ref string) error
	SetOnStateChange(fn func())
}

// Server serves the control API and the websocket feed.
type Server struct {
	addr  string
	store *config.Store
	ctl   Controller
	feed  *logging.Broadcaster
	notif *notifier
	log   zerolog.Logger
}

// New wires the server to the config store, the supervisor and the log
// broadcaster. It registers itself for supervisor state-change
// notifications.
func New(addr string, store *config.Store, ctl Controller, feed *logging.Broadcaster) *Server {
	s := &Server{
		addr:  addr,
		store: store,
		ctl:   ctl,
		feed:  feed,
		notif: newNotifier(),
		log:   logging.With().Str("component", "api").Logger(),
	}
	ctl.SetOnStateChange(s.notif.notify)
	return s
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/state", s.handleState)

		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handlePutConfig)

		r.Post("/engines/start", s.handleStartAll)
		r.Post("/engines/stop", s.handleStopAll)
		r.Post("/engines/restart", s.handleRestartAll)

		r.Route("/devices/{ref}", func(r chi.Router) {
			r.Post("/start", s.deviceOp(s.ctl.Start))
			r.Post("/stop", s.deviceOp(s.ctl.Stop))
			r.Post("/restart", s.deviceOp(s.ctl.Restart))
			r.Post("/enroll", s.handleEnroll)
			r.Post("/identity", s.handleRefreshIdentity)
			r.Delete("/registration", s.handleDeleteRegistration)
			r.Delete("/", s.handleRemoveDevice)
		})

		r.Get("/ws", s.handleWS)
	})
	return r
}

// String implements suture's service naming.
func (s *Server) String() string { return "control-api" }

// Serve runs the HTTP server until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("control api listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			srv.Close()
		}
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
