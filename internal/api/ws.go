// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/zenterhq/zenter-bridge/internal/supervisor"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingPeriod   = 30 * time.Second
	wsLogBuffer    = 256
)

// upgrader accepts any origin: the API binds to loopback and the
// settings UI loads from file://, which sends no usable Origin header.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsFrame is one message on the feed: a log line or a status snapshot.
type wsFrame struct {
	Type   string             `json:"type"`
	Line   string             `json:"line,omitempty"`
	Status *supervisor.Status `json:"status,omitempty"`
}

// notifier fans state-change ticks out to websocket sessions. Ticks
// are collapsed: a session that has one pending does not need another.
type notifier struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[chan struct{}]struct{})}
}

func (n *notifier) subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	n.subs[ch] = struct{}{}
	n.mu.Unlock()
	cancel := func() {
		n.mu.Lock()
		delete(n.subs, ch)
		n.mu.Unlock()
	}
	return ch, cancel
}

func (n *notifier) notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// handleWS upgrades the connection and streams log lines and status
// snapshots until the client disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	lines, cancelLines := s.feed.Subscribe(wsLogBuffer)
	defer cancelLines()
	stateTicks, cancelTicks := s.notif.subscribe()
	defer cancelTicks()

	// reader only watches for close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(frame wsFrame) error {
		payload, err := json.Marshal(frame)
		if err != nil {
			return err
		}
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteMessage(websocket.TextMessage, payload)
	}

	status := s.ctl.Status()
	if err := write(wsFrame{Type: "status", Status: &status}); err != nil {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := write(wsFrame{Type: "log", Line: line}); err != nil {
				return
			}
		case <-stateTicks:
			status := s.ctl.Status()
			if err := write(wsFrame{Type: "status", Status: &status}); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
