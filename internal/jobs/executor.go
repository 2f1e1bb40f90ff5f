// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

// Package jobs pulls credential-management jobs from the service and
// executes them against the device.
package jobs

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/zenterhq/zenter-bridge/internal/cloud"
	"github.com/zenterhq/zenter-bridge/internal/isapi"
	"github.com/zenterhq/zenter-bridge/internal/logging"
	"github.com/zenterhq/zenter-bridge/internal/metrics"
)

// Action is a job's operation name as issued by the service.
type Action string

const (
	ActionUpsert             Action = "upsert"
	ActionFingerprintCapture Action = "fingerprint_capture"
	ActionFingerprintApply   Action = "fingerprint_apply"
	ActionDeleteFingerprint  Action = "delete_fingerprint"
	ActionClearCard          Action = "clear_card"
	ActionDeleteUser         Action = "delete_user"
)

// retryHintSec is the reissue hint reported with every failed job.
const retryHintSec = 5

// DeviceClient is the device command surface the executor drives.
type DeviceClient interface {
	EnsureUser(ctx context.Context, employeeNo, fullName string) error
	EnsureCard(ctx context.Context, employeeNo, cardNo string) error
	DeleteCard(ctx context.Context, employeeNo, cardNo string) error
	DeleteUser(ctx context.Context, employeeNo string) error
	CaptureFingerprint(ctx context.Context, fingerNo int) (*isapi.Capture, error)
	ApplyFingerprint(ctx context.Context, employeeNo string, fingerNo int, data string) error
	DeleteFingerprint(ctx context.Context, employeeNo string, fingerNo int) error
}

// ControlClient is the service surface the executor reports to.
type ControlClient interface {
	PullJobs(ctx context.Context, limit int) ([]cloud.Job, error)
	CompleteJob(ctx context.Context, jobID, status, errCode string, result map[string]any, retryInSec int) error
	StoreTemplate(ctx context.Context, employeeNo string, fingerNo int, fingerData string) error
	FetchTemplate(ctx context.Context, employeeNo string, fingerNo int) (string, error)
}

// Executor runs one job at a time against one device.
type Executor struct {
	deviceID string
	device   DeviceClient
	control  ControlClient
	log      zerolog.Logger
}

func NewExecutor(deviceID string, device DeviceClient, control ControlClient) *Executor {
	return &Executor{
		deviceID: deviceID,
		device:   device,
		control:  control,
		log:      logging.With().Str("component", "jobs").Str("device_id", deviceID).Logger(),
	}
}

// Execute runs one job to completion and reports its terminal status
// exactly once. A failing step aborts the job's remaining steps; the
// error never propagates to the caller, so one bad job cannot stall
// the batch.
func (e *Executor) Execute(ctx context.Context, job cloud.Job) {
	action := Action(job.Action)
	log := e.log.With().Str("job_id", job.ID).Str("action", job.Action).Str("employee_no", job.EmployeeNo).Logger()
	log.Info().Msg("job started")

	var result map[string]any
	var err error
	switch action {
	case ActionUpsert:
		err = e.runUpsert(ctx, job)
		result = map[string]any{"ok": true}
	case ActionFingerprintCapture:
		result, err = e.runFingerprintCapture(ctx, job)
	case ActionFingerprintApply:
		err = e.runFingerprintApply(ctx, job)
		result = map[string]any{"ok": true}
	case ActionDeleteFingerprint:
		err = e.device.DeleteFingerprint(ctx, job.EmployeeNo, fingerNo(job))
		result = map[string]any{"ok": true}
	case ActionClearCard:
		err = e.device.DeleteCard(ctx, job.EmployeeNo, job.CardNo)
		result = map[string]any{"ok": true}
	case ActionDeleteUser:
		err = e.device.DeleteUser(ctx, job.EmployeeNo)
		result = map[string]any{"ok": true}
	default:
		e.complete(ctx, job, "error", "unknown_action", map[string]any{"action": job.Action}, 0)
		log.Warn().Msg("unknown job action")
		return
	}

	if err != nil {
		code, detail := errFields(err)
		e.complete(ctx, job, "error", code, map[string]any{"detail": detail}, retryHintSec)
		log.Error().Str("error_code", code).Str("detail", detail).Msg("job failed")
		return
	}
	e.complete(ctx, job, "success", "", result, 0)
	log.Info().Msg("job done")
}

func (e *Executor) runUpsert(ctx context.Context, job cloud.Job) error {
	if err := e.device.EnsureUser(ctx, job.EmployeeNo, job.FullName); err != nil {
		return err
	}
	return e.device.EnsureCard(ctx, job.EmployeeNo, job.CardNo)
}

func (e *Executor) runFingerprintCapture(ctx context.Context, job cloud.Job) (map[string]any, error) {
	if err := e.runUpsert(ctx, job); err != nil {
		return nil, err
	}
	cap, err := e.device.CaptureFingerprint(ctx, fingerNo(job))
	if err != nil {
		return nil, err
	}
	if err := e.device.ApplyFingerprint(ctx, job.EmployeeNo, fingerNo(job), cap.Data); err != nil {
		return nil, err
	}
	// the stored copy enables fingerprint_apply on other devices, but
	// the enrollment itself already succeeded
	if err := e.control.StoreTemplate(ctx, job.EmployeeNo, fingerNo(job), cap.Data); err != nil {
		e.log.Error().Err(err).Str("job_id", job.ID).Msg("template store failed")
	}
	var quality any
	if cap.Quality != nil {
		quality = *cap.Quality
	}
	return map[string]any{"quality": quality}, nil
}

func (e *Executor) runFingerprintApply(ctx context.Context, job cloud.Job) error {
	if err := e.runUpsert(ctx, job); err != nil {
		return err
	}
	data, err := e.control.FetchTemplate(ctx, job.EmployeeNo, fingerNo(job))
	if err != nil {
		return err
	}
	return e.device.ApplyFingerprint(ctx, job.EmployeeNo, fingerNo(job), data)
}

// complete reports the terminal status, tolerating a reporting failure.
func (e *Executor) complete(ctx context.Context, job cloud.Job, status, errCode string, result map[string]any, retryInSec int) {
	metrics.JobsCompleted.WithLabelValues(e.deviceID, job.Action, status).Inc()
	if err := e.control.CompleteJob(ctx, job.ID, status, errCode, result, retryInSec); err != nil {
		e.log.Error().Err(err).Str("job_id", job.ID).Msg("job completion report failed")
	}
}

// fingerNo resolves the finger slot, defaulting to 1.
func fingerNo(job cloud.Job) int {
	if job.Payload.FingerNo == 0 {
		return 1
	}
	return job.Payload.FingerNo
}

// errFields maps a step error to the completion error code and detail.
func errFields(err error) (code, detail string) {
	var op *isapi.OpError
	if errors.As(err, &op) {
		return op.Code, op.Detail
	}
	var re *cloud.RemoteError
	if errors.As(err, &re) {
		return re.Code, re.Error()
	}
	return "job_failed", err.Error()
}
