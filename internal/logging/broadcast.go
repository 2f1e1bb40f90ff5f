// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

package logging

import (
	"strings"
	"sync"
)

// Broadcaster is an io.Writer that fans complete log lines out to
// subscribers. The control API attaches it as a secondary zerolog output
// so UI clients can tail the bridge log over a websocket.
//
// Slow subscribers are skipped, not waited on: a full channel drops the
// line for that subscriber. Log delivery to the UI is best-effort.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[chan string]struct{}
	pending strings.Builder
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan string]struct{})}
}

// Subscribe registers a new subscriber channel with the given buffer size.
// The returned cancel func must be called to release the subscription.
func (b *Broadcaster) Subscribe(buffer int) (<-chan string, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan string, buffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Write implements io.Writer. Input may contain partial lines; only
// complete newline-terminated lines are broadcast.
func (b *Broadcaster) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending.Write(p)
	for {
		s := b.pending.String()
		idx := strings.IndexByte(s, '\n')
		if idx < 0 {
			break
		}
		line := s[:idx]
		b.pending.Reset()
		b.pending.WriteString(s[idx+1:])

		if line == "" {
			continue
		}
		for ch := range b.subs {
			select {
			case ch <- line:
			default:
				// subscriber is behind, drop the line
			}
		}
	}
	return len(p), nil
}
