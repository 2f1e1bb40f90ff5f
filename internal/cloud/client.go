// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

// Package cloud is the client for the ingestion/control service. All
// calls are JSON POSTs to edge functions under /functions/v1, carrying
// the device credentials in the body and the api key in the headers.
package cloud

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/zenterhq/zenter-bridge/internal/logging"
)

const callTimeout = 30 * time.Second

// Config carries the service endpoint and one device's credentials.
// DeviceID and DeviceKey are empty until the device is enrolled; only
// Enroll works without them.
type Config struct {
	BaseURL   string
	APIKey    string
	BridgeID  string
	DeviceID  string
	DeviceKey string
}

// Client calls the service's edge functions for one device.
type Client struct {
	cfg  Config
	http *http.Client
	log  zerolog.Logger
}

func New(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: callTimeout},
		log:  logging.With().Str("component", "cloud").Str("device_id", cfg.DeviceID).Logger(),
	}
}

// RemoteError is a service refusal: a non-2xx status or an ok:false
// body. Code carries the remote error string when the body had one.
type RemoteError struct {
	Fn   string
	Code string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Fn, e.Code)
}

// post calls one edge function and decodes the response into out (out
// may be nil). Bodies that fail to decode are treated as refusals.
func (c *Client) post(ctx context.Context, fn string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", fn, err)
	}

	url := c.cfg.BaseURL + "/functions/v1/" + fn
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", fn, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.cfg.APIKey)
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", fn, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", fn, err)
	}

	var envelope struct {
		OK    *bool  `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		envelope.Error = "invalid_json"
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || (envelope.OK != nil && !*envelope.OK) {
		code := envelope.Error
		if code == "" {
			code = fmt.Sprintf("http_%d", resp.StatusCode)
		}
		return &RemoteError{Fn: fn, Code: code}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s response: %w", fn, err)
		}
	}
	return nil
}

// credentialled merges the device credentials into a payload map.
func (c *Client) credentialled(extra map[string]any) map[string]any {
	m := map[string]any{
		"device_id":  c.cfg.DeviceID,
		"device_key": c.cfg.DeviceKey,
	}
	for k, v := range extra {
		m[k] = v
	}
	return m
}
