// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

package heartbeat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zenterhq/zenter-bridge/internal/cloud"
)

type fakeState struct {
	connected bool
	lastEvent *string
}

func (f *fakeState) StreamConnected() bool  { return f.connected }
func (f *fakeState) LastEventTime() *string { return f.lastEvent }

type fakeDepth struct {
	files []string
	err   error
}

func (f *fakeDepth) List() ([]string, error) { return f.files, f.err }

type fakeSubmit struct {
	mu    sync.Mutex
	beats []cloud.Heartbeat
	err   error
}

func (f *fakeSubmit) SubmitHeartbeat(ctx context.Context, hb cloud.Heartbeat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beats = append(f.beats, hb)
	return f.err
}

func (f *fakeSubmit) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.beats)
}

func TestSendOnce(t *testing.T) {
	t.Run("carries engine state", func(t *testing.T) {
		at := "2026-08-29T10:00:00Z"
		state := &fakeState{connected: true, lastEvent: &at}
		depth := &fakeDepth{files: []string{"a.json", "b.json"}}
		submit := &fakeSubmit{}
		r := New("dev-1", "10.0.0.5", "zenter-bridge@1.0.0", time.Minute, state, depth, submit)

		r.SendOnce(context.Background())
		if submit.count() != 1 {
			t.Fatalf("beats = %d, want 1", submit.count())
		}
		hb := submit.beats[0]
		if !hb.StreamConnected || hb.QueueDepth != 2 || hb.IP != "10.0.0.5" {
			t.Fatalf("heartbeat = %+v", hb)
		}
		if hb.LastEventTime == nil || *hb.LastEventTime != at {
			t.Fatalf("last event = %v", hb.LastEventTime)
		}
		if hb.Version != "zenter-bridge@1.0.0" || hb.Host == "" {
			t.Fatalf("heartbeat = %+v", hb)
		}
		if _, err := time.Parse(time.RFC3339Nano, hb.LastSeen); err != nil {
			t.Fatalf("last_seen = %q: %v", hb.LastSeen, err)
		}
	})

	t.Run("list failure reports zero depth", func(t *testing.T) {
		depth := &fakeDepth{err: errors.New("disk gone")}
		submit := &fakeSubmit{}
		r := New("dev-1", "10.0.0.5", "v", time.Minute, &fakeState{}, depth, submit)

		r.SendOnce(context.Background())
		if submit.count() != 1 {
			t.Fatal("list failure suppressed the heartbeat")
		}
		if submit.beats[0].QueueDepth != 0 {
			t.Fatalf("depth = %d, want 0", submit.beats[0].QueueDepth)
		}
	})

	t.Run("submit failure is swallowed", func(t *testing.T) {
		submit := &fakeSubmit{err: errors.New("service down")}
		r := New("dev-1", "10.0.0.5", "v", time.Minute, &fakeState{}, &fakeDepth{}, submit)
		r.SendOnce(context.Background())
	})
}

func TestServeSendsImmediatelyAndOnTicks(t *testing.T) {
	submit := &fakeSubmit{}
	r := New("dev-1", "10.0.0.5", "v", 10*time.Millisecond, &fakeState{}, &fakeDepth{}, submit)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for submit.count() < 3 {
		select {
		case <-deadline:
			t.Fatalf("beats = %d before deadline", submit.count())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("Serve returned %v", err)
	}
}
