// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

package flusher

import (
	"context"
	"time"
)

// Service runs FlushOnce periodically as a supervised service, with
// one pass right at startup to drain anything left from a previous
// run.
type Service struct {
	flusher  *Flusher
	interval time.Duration
}

func NewService(f *Flusher, interval time.Duration) *Service {
	return &Service{flusher: f, interval: interval}
}

func (s *Service) String() string {
	return "flusher-" + s.flusher.deviceID
}

// Serve implements suture.Service.
func (s *Service) Serve(ctx context.Context) error {
	if err := s.flusher.FlushOnce(ctx); err != nil {
		s.flusher.log.Error().Err(err).Msg("startup flush pass failed")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.flusher.FlushOnce(ctx); err != nil {
				s.flusher.log.Error().Err(err).Msg("flush pass failed")
			}
		}
	}
}
