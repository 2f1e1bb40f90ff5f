// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

package api

import (
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/zenterhq/zenter-bridge/internal/supervisor"
)

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame wsFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		t.Fatalf("decode frame %q: %v", payload, err)
	}
	return frame
}

func TestWebSocketFeed(t *testing.T) {
	ctl := &fakeController{status: supervisor.Status{Total: 1, Running: 1}}
	_, ts, feed := newTestServer(t, ctl)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// first frame is the current status
	frame := readFrame(t, conn)
	if frame.Type != "status" || frame.Status == nil || frame.Status.Running != 1 {
		t.Fatalf("initial frame = %+v", frame)
	}

	// log lines written to the broadcaster reach the client
	deadline := time.Now().Add(2 * time.Second)
	for feed.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("session never subscribed to the log feed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	feed.Write([]byte(`{"level":"info","message":"flush pass complete"}` + "\n"))
	frame = readFrame(t, conn)
	if frame.Type != "log" || !strings.Contains(frame.Line, "flush pass complete") {
		t.Fatalf("log frame = %+v", frame)
	}

	// a state-change notification produces a fresh status frame
	ctl.mu.Lock()
	ctl.status.Running = 0
	ctl.mu.Unlock()
	if ctl.onState == nil {
		t.Fatal("server never registered a state-change callback")
	}
	ctl.onState()
	frame = readFrame(t, conn)
	if frame.Type != "status" || frame.Status.Running != 0 {
		t.Fatalf("status frame after change = %+v", frame)
	}
}
