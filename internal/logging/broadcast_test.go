// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

package logging

import (
	"testing"
)

func TestBroadcaster(t *testing.T) {
	t.Run("delivers complete lines to subscribers", func(t *testing.T) {
		b := NewBroadcaster()
		ch, cancel := b.Subscribe(8)
		defer cancel()

		if _, err := b.Write([]byte("first line\nsecond")); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := b.Write([]byte(" line\n")); err != nil {
			t.Fatalf("write: %v", err)
		}

		got := <-ch
		if got != "first line" {
			t.Errorf("got %q, want %q", got, "first line")
		}
		got = <-ch
		if got != "second line" {
			t.Errorf("got %q, want %q", got, "second line")
		}
	})

	t.Run("partial line is held until terminated", func(t *testing.T) {
		b := NewBroadcaster()
		ch, cancel := b.Subscribe(8)
		defer cancel()

		_, _ = b.Write([]byte("no newline yet"))
		select {
		case line := <-ch:
			t.Fatalf("unexpected line %q before newline", line)
		default:
		}

		_, _ = b.Write([]byte("\n"))
		if got := <-ch; got != "no newline yet" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("slow subscriber does not block writes", func(t *testing.T) {
		b := NewBroadcaster()
		_, cancel := b.Subscribe(1)
		defer cancel()

		for i := 0; i < 100; i++ {
			if _, err := b.Write([]byte("line\n")); err != nil {
				t.Fatalf("write %d: %v", i, err)
			}
		}
	})

	t.Run("cancel removes subscriber", func(t *testing.T) {
		b := NewBroadcaster()
		_, cancel := b.Subscribe(1)
		if b.SubscriberCount() != 1 {
			t.Fatalf("expected 1 subscriber")
		}
		cancel()
		cancel() // idempotent
		if b.SubscriberCount() != 0 {
			t.Fatalf("expected 0 subscribers")
		}
	})
}
