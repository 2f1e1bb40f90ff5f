// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

// Package queue implements the durable on-disk event queue for one
// device. Every event is one JSON file; durability comes from the
// write-before-send ordering and the temp-file + atomic-rename write
// path, which guarantees a reader never observes a partial file. The
// ingestor (producer) and flusher (consumer) share the directory with
// no locking beyond rename/delete atomicity.
package queue

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/zenterhq/zenter-bridge/internal/metrics"
)

// Item is the persisted envelope around one raw device event.
type Item struct {
	// SavedAt is when the bridge received the event.
	SavedAt time.Time `json:"saved_at"`

	// DeviceID is the enrolled device identity.
	DeviceID string `json:"device_id"`

	// TZOffsetMinutes is the bridge host's UTC offset when the event
	// was received, for remote-side local-time reconstruction.
	TZOffsetMinutes int `json:"bridge_tz_offset_minutes"`

	// Raw is the decoded event exactly as the device sent it.
	Raw json.RawMessage `json:"raw"`
}

// eventKey is the subset of the event used to derive a stable filename.
type eventKey struct {
	DateTime              string `json:"dateTime"`
	AccessControllerEvent struct {
		SerialNo *int64 `json:"serialNo"`
	} `json:"AccessControllerEvent"`
}

// Queue is the per-device durable queue rooted at one directory.
type Queue struct {
	dir      string
	doneDir  string
	deviceID string
	archive  bool
}

// Options tunes queue behavior.
type Options struct {
	// Archive moves delivered files to done/ instead of deleting them.
	Archive bool
}

// Open creates (if needed) and returns the queue for one device.
func Open(dir, deviceID string, opts Options) (*Queue, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create queue dir: %w", err)
	}
	q := &Queue{
		dir:      dir,
		doneDir:  filepath.Join(filepath.Dir(dir), "done"),
		deviceID: deviceID,
		archive:  opts.Archive,
	}
	if opts.Archive {
		if err := os.MkdirAll(q.doneDir, 0o755); err != nil {
			return nil, fmt.Errorf("create done dir: %w", err)
		}
	}
	return q, nil
}

// Dir returns the queue directory.
func (q *Queue) Dir() string {
	return q.dir
}

// Enqueue persists one event and returns the file path. The file is
// written to a temp name and renamed into place, so List never returns
// a partially written file.
func (q *Queue) Enqueue(raw json.RawMessage, savedAt time.Time, tzOffsetMinutes int) (string, error) {
	item := Item{
		SavedAt:         savedAt.UTC(),
		DeviceID:        q.deviceID,
		TZOffsetMinutes: tzOffsetMinutes,
		Raw:             raw,
	}
	data, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("marshal queue item: %w", err)
	}

	final := filepath.Join(q.dir, fileNameFor(raw))
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", fmt.Errorf("write queue temp file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return "", fmt.Errorf("commit queue file: %w", err)
	}

	metrics.QueueWrites.WithLabelValues(q.deviceID).Inc()
	return final, nil
}

// List returns the lexicographically sorted snapshot of pending queue
// files. With serial-derived names the order approximates arrival order.
func (q *Queue) List() ([]string, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return nil, fmt.Errorf("read queue dir: %w", err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".json") {
			out = append(out, filepath.Join(q.dir, e.Name()))
		}
	}
	sort.Strings(out)
	metrics.QueueDepth.WithLabelValues(q.deviceID).Set(float64(len(out)))
	return out, nil
}

// Depth returns the pending file count, or 0 when the directory cannot
// be read (callers treat depth as advisory).
func (q *Queue) Depth() int {
	files, err := q.List()
	if err != nil {
		return 0
	}
	return len(files)
}

// Read loads and decodes one queue file.
func (q *Queue) Read(path string) (*Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read queue file: %w", err)
	}
	var item Item
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("decode queue file %s: %w", filepath.Base(path), err)
	}
	return &item, nil
}

// Remove deletes (or archives) a delivered queue file. Missing files
// are not an error: a racing pass may have removed the item already.
func (q *Queue) Remove(path string) error {
	if q.archive {
		dest := filepath.Join(q.doneDir, filepath.Base(path))
		if err := os.Rename(path, dest); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("archive queue file: %w", err)
		}
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove queue file: %w", err)
	}
	return nil
}

// fileNameFor derives a collision-free filename from the event content:
// the device event serial number when present, otherwise the event (or
// wall) time plus a random token.
func fileNameFor(raw json.RawMessage) string {
	var key eventKey
	_ = json.Unmarshal(raw, &key)

	if key.AccessControllerEvent.SerialNo != nil {
		return safeName(fmt.Sprintf("serial_%d", *key.AccessControllerEvent.SerialNo)) + ".json"
	}

	ts := time.Now().UTC()
	if key.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, key.DateTime); err == nil {
			ts = t.UTC()
		}
	}
	stamp := strings.NewReplacer(":", "-", ".", "-").Replace(ts.Format("2006-01-02T15-04-05.000Z"))
	token := uuid.New().String()[:8]
	return safeName(fmt.Sprintf("time_%s_%s", stamp, token)) + ".json"
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// safeName sanitizes a filename fragment.
func safeName(s string) string {
	s = unsafeNameChars.ReplaceAllString(s, "_")
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}
