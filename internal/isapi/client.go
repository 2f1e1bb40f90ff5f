// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

// Package isapi is the client for the device's management API.
//
// The device speaks HTTP with digest authentication. Depending on
// firmware generation, responses arrive as JSON or as a legacy XML
// format, and several operations accept different request schemas on
// different firmware lines. The classification and variant-probing in
// this package exist to absorb those differences; the ordered attempts
// are deliberate and must not be collapsed.
package isapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/icholy/digest"
	"github.com/rs/zerolog"

	"github.com/zenterhq/zenter-bridge/internal/logging"
)

// commandTimeout bounds ordinary management calls.
const commandTimeout = 15 * time.Second

// captureTimeout bounds a biometric capture, which waits for a person
// to present a finger at the reader.
const captureTimeout = 75 * time.Second

// Client talks to one device's management API.
type Client struct {
	address string
	http    *http.Client
	log     zerolog.Logger
}

// New creates a client for the device at address (host or host:port)
// using digest authentication.
func New(address, username, password string) *Client {
	return &Client{
		address: address,
		http: &http.Client{
			Transport: &digest.Transport{
				Username: username,
				Password: password,
			},
		},
		log: logging.With().Str("component", "isapi").Str("device_addr", address).Logger(),
	}
}

// url builds a device URL for the given path (path includes the leading /).
func (c *Client) url(path string) string {
	return "http://" + c.address + path
}

// do issues a request and returns the response body regardless of
// status code: legacy firmware reports application errors in the body
// with non-2xx codes, and classification happens on the body.
func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	timeout := commandTimeout
	if path == pathCaptureFingerprint {
		timeout = captureTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return nil, fmt.Errorf("build device request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("device %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read device response: %w", err)
	}
	return out, nil
}

// doJSON posts a JSON body.
func (c *Client) doJSON(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	return c.do(ctx, method, path, "application/json", body)
}

// doXML posts an XML body.
func (c *Client) doXML(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	return c.do(ctx, method, path, "application/xml", body)
}

// Device management API paths.
const (
	pathUserRecord         = "/ISAPI/AccessControl/UserInfo/Record?format=json"
	pathUserDelete         = "/ISAPI/AccessControl/UserInfo/Delete?format=json"
	pathUserDetailDelete   = "/ISAPI/AccessControl/UserInfoDetail/Delete?format=json"
	pathCardRecord         = "/ISAPI/AccessControl/CardInfo/Record?format=json"
	pathCardDelete         = "/ISAPI/AccessControl/CardInfo/Delete?format=json"
	pathCardSetUp          = "/ISAPI/AccessControl/CardInfo/SetUp?format=json"
	pathFingerprintSetUp   = "/ISAPI/AccessControl/FingerPrint/SetUp?format=json"
	pathFingerprintDelete  = "/ISAPI/AccessControl/FingerPrint/Delete?format=json"
	pathFingerprintDelXML  = "/ISAPI/AccessControl/FingerPrint/Delete"
	pathCaptureFingerprint = "/ISAPI/AccessControl/CaptureFingerPrint"
	pathDeviceInfo         = "/ISAPI/System/deviceInfo"
	pathDeviceTime         = "/ISAPI/System/time"
)

// OpError is a failed device operation with a stable code for job
// completion reports and a trimmed detail for diagnostics.
type OpError struct {
	Code   string
	Detail string
}

// Error implements error.
func (e *OpError) Error() string {
	if e.Detail == "" {
		return e.Code
	}
	return e.Code + ": " + e.Detail
}

// opError builds an OpError with the detail trimmed to a sane length.
func opError(code string, detail []byte) *OpError {
	return &OpError{Code: code, Detail: trimDetail(string(detail))}
}

// trimDetail bounds free-text device output for error reports.
func trimDetail(s string) string {
	s = string(bytes.TrimSpace([]byte(s)))
	if len(s) > 500 {
		return s[:500] + "..."
	}
	return s
}
