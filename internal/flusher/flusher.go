// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

// Package flusher drains the durable event queue to the ingestion
// service.
package flusher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/zenterhq/zenter-bridge/internal/cloud"
	"github.com/zenterhq/zenter-bridge/internal/logging"
	"github.com/zenterhq/zenter-bridge/internal/metrics"
	"github.com/zenterhq/zenter-bridge/internal/queue"
)

// trackedEventType is the only event type worth uploading; everything
// else the device emits (heartbeats, video loss) is dropped locally.
const trackedEventType = "AccessControllerEvent"

// errorBackoff is the pause after a failed submission before the
// worker takes the next item.
const errorBackoff = 900 * time.Millisecond

// Store is the queue surface the flusher consumes.
type Store interface {
	List() ([]string, error)
	Read(path string) (*queue.Item, error)
	Remove(path string) error
}

// Submitter uploads one raw event.
type Submitter interface {
	SubmitEvent(ctx context.Context, raw json.RawMessage, receivedAt string, tzOffsetMinutes int) (cloud.Outcome, error)
}

// Flusher uploads queued events with a fixed-size worker pool. A pass
// already in progress makes further FlushOnce calls a no-op.
type Flusher struct {
	deviceID    string
	store       Store
	submit      Submitter
	concurrency int
	cutoff      time.Time
	running     atomic.Bool
	log         zerolog.Logger
}

// New builds a flusher. cutoff is the start-mode cutoff: events that
// predate it are removed without a network call. A zero cutoff keeps
// everything.
func New(deviceID string, store Store, submit Submitter, concurrency int, cutoff time.Time) *Flusher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Flusher{
		deviceID:    deviceID,
		store:       store,
		submit:      submit,
		concurrency: concurrency,
		cutoff:      cutoff,
		log:         logging.With().Str("component", "flusher").Str("device_id", deviceID).Logger(),
	}
}

// FlushOnce runs one pass over the current queue snapshot. Items that
// fail to upload stay queued for the next pass; the pass itself never
// returns an error for per-item failures.
func (f *Flusher) FlushOnce(ctx context.Context) error {
	if !f.running.CompareAndSwap(false, true) {
		return nil
	}
	defer f.running.Store(false)

	files, err := f.store.List()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}
	f.log.Info().Int("pending", len(files)).Msg("flushing queue")

	var next atomic.Int64
	var sent atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < f.concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := next.Add(1) - 1
				if int(i) >= len(files) || ctx.Err() != nil {
					return
				}
				if f.flushFile(ctx, files[i]) {
					sent.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if n := sent.Load(); n > 0 {
		f.log.Info().Int64("uploaded", n).Msg("queue flush pass done")
	}
	return nil
}

// flushFile handles one queued file and reports whether it was
// uploaded.
func (f *Flusher) flushFile(ctx context.Context, path string) bool {
	item, err := f.store.Read(path)
	if err != nil || !json.Valid(item.Raw) {
		// unreadable or corrupt, get it out of the way
		metrics.FlushOutcomes.WithLabelValues(f.deviceID, "corrupt").Inc()
		f.log.Warn().Str("file", path).Msg("removing corrupt queue file")
		f.removeQuiet(path)
		return false
	}

	switch f.Classify(item) {
	case DecisionSkip:
		metrics.FlushOutcomes.WithLabelValues(f.deviceID, "skipped").Inc()
		f.removeQuiet(path)
		return false
	case DecisionSubmit:
	}

	outcome, err := f.submit.SubmitEvent(ctx, item.Raw, receivedAt(item), item.TZOffsetMinutes)
	if err != nil {
		metrics.FlushOutcomes.WithLabelValues(f.deviceID, "error").Inc()
		f.log.Error().Err(err).Str("file", path).Msg("ingest failed, keeping queued")
		select {
		case <-ctx.Done():
		case <-time.After(errorBackoff):
		}
		return false
	}

	if outcome == cloud.OutcomeDuplicate {
		metrics.FlushOutcomes.WithLabelValues(f.deviceID, "duplicate").Inc()
	} else {
		metrics.FlushOutcomes.WithLabelValues(f.deviceID, "accepted").Inc()
	}
	f.removeQuiet(path)
	return true
}

func (f *Flusher) removeQuiet(path string) {
	if err := f.store.Remove(path); err != nil {
		f.log.Error().Err(err).Str("file", path).Msg("queue remove failed")
	}
}

// DeliverLive attempts immediate upload of a just-enqueued item, so
// the queue only accumulates while the service is unreachable. On
// failure the item simply stays queued for the next flush pass.
func (f *Flusher) DeliverLive(ctx context.Context, path string, item *queue.Item) {
	if f.Classify(item) == DecisionSkip {
		metrics.FlushOutcomes.WithLabelValues(f.deviceID, "skipped").Inc()
		f.removeQuiet(path)
		return
	}

	outcome, err := f.submit.SubmitEvent(ctx, item.Raw, receivedAt(item), item.TZOffsetMinutes)
	if err != nil {
		metrics.FlushOutcomes.WithLabelValues(f.deviceID, "error").Inc()
		f.log.Error().Err(err).Str("file", path).Msg("live ingest failed, event stays queued")
		return
	}
	if outcome == cloud.OutcomeDuplicate {
		metrics.FlushOutcomes.WithLabelValues(f.deviceID, "duplicate").Inc()
	} else {
		metrics.FlushOutcomes.WithLabelValues(f.deviceID, "accepted").Inc()
	}
	f.removeQuiet(path)
}

// Decision is the local classification of a queued item.
type Decision int

const (
	DecisionSubmit Decision = iota
	DecisionSkip
)

// Classify applies the local skip rules: only tracked event types with
// a parseable timestamp at or after the cutoff are uploaded.
func (f *Flusher) Classify(item *queue.Item) Decision {
	var ev struct {
		EventType string `json:"eventType"`
		DateTime  string `json:"dateTime"`
	}
	if err := json.Unmarshal(item.Raw, &ev); err != nil || ev.EventType != trackedEventType {
		return DecisionSkip
	}

	t := item.SavedAt
	if t.IsZero() {
		parsed, err := ParseEventTime(ev.DateTime)
		if err != nil {
			return DecisionSkip
		}
		t = parsed
	}
	if !f.cutoff.IsZero() && t.Before(f.cutoff) {
		return DecisionSkip
	}
	return DecisionSubmit
}

// receivedAt renders the stored arrival time for the ingest payload.
func receivedAt(item *queue.Item) string {
	if item.SavedAt.IsZero() {
		return ""
	}
	return item.SavedAt.UTC().Format(time.RFC3339Nano)
}

// ParseEventTime accepts the timestamp shapes seen in queue files and
// device events. Controllers emit offsets on some firmware lines and
// bare local time on others.
func ParseEventTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
