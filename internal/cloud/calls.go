// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

package cloud

import (
	"context"

	"github.com/goccy/go-json"
)

// Outcome classifies an accepted event submission.
type Outcome int

const (
	// OutcomeAccepted means the service stored the event.
	OutcomeAccepted Outcome = iota
	// OutcomeDuplicate means the service had already seen it; the
	// local copy can be discarded.
	OutcomeDuplicate
)

// SubmitEvent uploads one raw device event. receivedAt is the RFC3339
// local arrival time, tzOffsetMinutes the bridge's UTC offset when the
// event was saved.
func (c *Client) SubmitEvent(ctx context.Context, raw json.RawMessage, receivedAt string, tzOffsetMinutes int) (Outcome, error) {
	var resp struct {
		Inserted   int `json:"inserted"`
		Duplicates int `json:"duplicates"`
	}
	err := c.post(ctx, "bridgeIngestEvents", c.credentialled(map[string]any{
		"event":                    raw,
		"received_at":              receivedAt,
		"bridge_tz_offset_minutes": tzOffsetMinutes,
	}), &resp)
	if err != nil {
		return 0, err
	}
	if resp.Inserted == 0 && resp.Duplicates > 0 {
		return OutcomeDuplicate, nil
	}
	return OutcomeAccepted, nil
}

// Heartbeat is one liveness report.
type Heartbeat struct {
	LastSeen        string  `json:"last_seen"`
	StreamConnected bool    `json:"stream_connected"`
	LastEventTime   *string `json:"last_event_time"`
	QueueDepth      int     `json:"queue_depth"`
	IP              string  `json:"ip"`
	Host            string  `json:"host"`
	Version         string  `json:"version"`
}

func (c *Client) SubmitHeartbeat(ctx context.Context, hb Heartbeat) error {
	return c.post(ctx, "bridgeHeartbeat", c.credentialled(map[string]any{
		"bridge_id":         c.cfg.BridgeID,
		"last_seen":         hb.LastSeen,
		"stream_connected":  hb.StreamConnected,
		"last_event_time":   hb.LastEventTime,
		"queue_depth":       hb.QueueDepth,
		"ip":                hb.IP,
		"host":              hb.Host,
		"version":           hb.Version,
	}), nil)
}

// Job is one pending credential-management task for this device.
type Job struct {
	ID         string     `json:"id"`
	Action     string     `json:"action"`
	EmployeeNo string     `json:"employee_no"`
	FullName   string     `json:"full_name"`
	CardNo     string     `json:"card_no"`
	Payload    JobPayload `json:"payload"`
}

type JobPayload struct {
	FingerNo int `json:"finger_no"`
}

// PullJobs fetches up to limit pending jobs.
func (c *Client) PullJobs(ctx context.Context, limit int) ([]Job, error) {
	var resp struct {
		Jobs []Job `json:"jobs"`
	}
	err := c.post(ctx, "bridgePullEmployeeJobs", c.credentialled(map[string]any{
		"bridge_id": c.cfg.BridgeID,
		"limit":     limit,
	}), &resp)
	if err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// CompleteJob reports a job's terminal status. errCode is empty on
// success; retryInSec hints when the service may reissue a failed job.
func (c *Client) CompleteJob(ctx context.Context, jobID, status, errCode string, result map[string]any, retryInSec int) error {
	var errField any
	if errCode != "" {
		errField = errCode
	}
	return c.post(ctx, "bridgeCompleteEmployeeJob", c.credentialled(map[string]any{
		"job_id":       jobID,
		"status":       status,
		"error":        errField,
		"result":       result,
		"retry_in_sec": retryInSec,
	}), nil)
}

// StoreTemplate saves a captured fingerprint template so it can later
// be pushed to other devices.
func (c *Client) StoreTemplate(ctx context.Context, employeeNo string, fingerNo int, fingerData string) error {
	return c.post(ctx, "bridgeStoreFingerprintTemplate", c.credentialled(map[string]any{
		"employee_no": employeeNo,
		"finger_no":   fingerNo,
		"finger_data": fingerData,
	}), nil)
}

// ErrTemplateMissing is reported when the service has no stored
// template for the employee and slot.
var ErrTemplateMissing = &RemoteError{Fn: "bridgeGetFingerprintTemplate", Code: "template_missing"}

// FetchTemplate retrieves a stored fingerprint template.
func (c *Client) FetchTemplate(ctx context.Context, employeeNo string, fingerNo int) (string, error) {
	var resp struct {
		FingerData string `json:"finger_data"`
	}
	err := c.post(ctx, "bridgeGetFingerprintTemplate", c.credentialled(map[string]any{
		"employee_no": employeeNo,
		"finger_no":   fingerNo,
	}), &resp)
	if err != nil {
		return "", err
	}
	if resp.FingerData == "" {
		return "", ErrTemplateMissing
	}
	return resp.FingerData, nil
}

// Enrollment is the credential pair issued for a newly registered
// device.
type Enrollment struct {
	DeviceID  string `json:"device_id"`
	DeviceKey string `json:"device_key"`
}

// DeviceIdentity is the self-reported hardware identity pushed to the
// service after enrollment or a manual refresh.
type DeviceIdentity struct {
	Model    string `json:"model"`
	Serial   string `json:"serial"`
	MAC      string `json:"mac"`
	Timezone string `json:"timezone"`
}

// Enroll exchanges an activation token for device credentials. It is
// the one call that works before the device has any.
func (c *Client) Enroll(ctx context.Context, token, name, address string) (*Enrollment, error) {
	var resp Enrollment
	err := c.post(ctx, "bridgeEnrollDevice", map[string]any{
		"enroll_token": token,
		"bridge_id":    c.cfg.BridgeID,
		"name":         name,
		"address":      address,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.DeviceID == "" || resp.DeviceKey == "" {
		return nil, &RemoteError{Fn: "bridgeEnrollDevice", Code: "incomplete_enrollment"}
	}
	return &resp, nil
}

// DeleteRegistration removes this device's registration from the
// service.
func (c *Client) DeleteRegistration(ctx context.Context) error {
	return c.post(ctx, "bridgeDeleteDevice", c.credentialled(map[string]any{
		"bridge_id": c.cfg.BridgeID,
	}), nil)
}

// PushDeviceIdentity uploads the device's self-reported identity.
func (c *Client) PushDeviceIdentity(ctx context.Context, id DeviceIdentity) error {
	return c.post(ctx, "bridgePushDeviceIdentity", c.credentialled(map[string]any{
		"model":    id.Model,
		"serial":   id.Serial,
		"mac":      id.MAC,
		"timezone": id.Timezone,
	}), nil)
}
