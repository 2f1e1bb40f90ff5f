// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

package isapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
)

// Identity carries self-reported device facts used for enrollment and
// the heartbeat payload. Fields the device does not expose are empty.
type Identity struct {
	Model    string
	Serial   string
	MAC      string
	Timezone string
}

// Identity queries /ISAPI/System/deviceInfo and /ISAPI/System/time.
// Devices answer in XML or JSON depending on firmware, so both shapes
// are read from each response. The time endpoint failing is not an
// error; timezone is best-effort.
func (c *Client) Identity(ctx context.Context) (*Identity, error) {
	out, err := c.doXML(ctx, http.MethodGet, pathDeviceInfo, nil)
	if err != nil {
		return nil, &OpError{Code: "device_info_failed", Detail: trimDetail(err.Error())}
	}

	id := &Identity{
		Model:  deviceInfoField(out, "model"),
		Serial: deviceInfoField(out, "serialNumber"),
		MAC:    deviceInfoField(out, "macAddress"),
	}
	if id.Model == "" && id.Serial == "" && id.MAC == "" {
		return nil, opError("device_info_failed", out)
	}

	if tout, err := c.doXML(ctx, http.MethodGet, pathDeviceTime, nil); err == nil {
		id.Timezone = deviceInfoField(tout, "timeZone")
	}
	return id, nil
}

// deviceInfoField pulls a named field from an XML or JSON device
// response.
func deviceInfoField(body []byte, name string) string {
	if v := xmlTag(body, name); v != "" {
		return strings.TrimSpace(v)
	}

	var root map[string]json.RawMessage
	if err := json.Unmarshal(body, &root); err != nil {
		return ""
	}
	for _, raw := range root {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			continue
		}
		if v, ok := obj[name]; ok {
			var s string
			if err := json.Unmarshal(v, &s); err == nil {
				return strings.TrimSpace(s)
			}
		}
	}
	// flat JSON object
	if v, ok := root[name]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
