// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/icholy/digest"
	"github.com/rs/zerolog"

	"github.com/zenterhq/zenter-bridge/internal/logging"
	"github.com/zenterhq/zenter-bridge/internal/metrics"
)

// alertStreamPath is the device's live event notification endpoint.
const alertStreamPath = "/ISAPI/Event/notification/alertStream"

// readChunkSize is the read buffer for the streamed response body.
const readChunkSize = 16 * 1024

// ConnState receives stream connectivity transitions.
type ConnState interface {
	SetStreamConnected(bool)
}

// Ingestor maintains one device's alert stream connection as a
// supervised service: connect, feed the parser, hand decoded events to
// the handler, and reconnect after a fixed delay when the connection
// drops for any reason.
type Ingestor struct {
	deviceID       string
	address        string
	reconnectDelay time.Duration
	handler        func(ctx context.Context, raw []byte)
	state          ConnState
	http           *http.Client
	log            zerolog.Logger
}

// NewIngestor builds the ingestor for one device. handler is called
// synchronously for each decoded event, in stream order.
func NewIngestor(deviceID, address, username, password string, reconnectDelay time.Duration, state ConnState, handler func(ctx context.Context, raw []byte)) *Ingestor {
	return &Ingestor{
		deviceID:       deviceID,
		address:        address,
		reconnectDelay: reconnectDelay,
		handler:        handler,
		state:          state,
		http: &http.Client{
			Transport: &digest.Transport{
				Username: username,
				Password: password,
			},
		},
		log: logging.With().Str("component", "stream").Str("device_id", deviceID).Logger(),
	}
}

func (s *Ingestor) String() string {
	return "stream-ingestor-" + s.deviceID
}

// Serve implements suture.Service. It runs the connect/read/reconnect
// loop until the context is canceled.
func (s *Ingestor) Serve(ctx context.Context) error {
	for {
		err := s.consumeOnce(ctx)
		s.state.SetStreamConnected(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		metrics.StreamReconnects.WithLabelValues(s.deviceID).Inc()
		s.log.Warn().Err(err).Dur("reconnect_in", s.reconnectDelay).Msg("stream closed, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.reconnectDelay):
		}
	}
}

// consumeOnce runs a single connection: one GET, a fresh parser, and a
// read loop until the stream ends or errors.
func (s *Ingestor) consumeOnce(ctx context.Context) error {
	url := "http://" + s.address + alertStreamPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build stream request: %w", err)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("connect %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("stream status %s", resp.Status)
	}

	s.log.Info().Str("url", url).Msg("stream connected")

	parser := NewParser()
	buf := make([]byte, readChunkSize)
	announced := false
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			for _, raw := range parser.Feed(buf[:n]) {
				s.dispatch(ctx, raw)
			}
			if !announced && parser.BoundaryKnown() {
				// first boundary means the device accepted us
				s.state.SetStreamConnected(true)
				announced = true
			}
		}
		if err != nil {
			if err == io.EOF {
				return fmt.Errorf("stream ended")
			}
			return fmt.Errorf("read stream: %w", err)
		}
	}
}

// dispatch validates one part body as JSON and hands it to the engine.
// Parts that do not decode are dropped; a malformed part must never
// take the stream down.
func (s *Ingestor) dispatch(ctx context.Context, raw []byte) {
	if !json.Valid(raw) {
		metrics.PartsDropped.WithLabelValues(s.deviceID).Inc()
		s.log.Debug().Int("bytes", len(raw)).Msg("dropped undecodable stream part")
		return
	}
	metrics.EventsParsed.WithLabelValues(s.deviceID).Inc()
	s.handler(ctx, raw)
}
