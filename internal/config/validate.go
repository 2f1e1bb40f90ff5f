// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate normalizes blank fields back to their defaults and checks the
// result. It mirrors what the original settings flow does on every read:
// a hand-edited file with a blanked field falls back rather than failing.
func (c *Config) Validate() error {
	c.normalize()

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}

// normalize fills defaulted fields that are blank or zero.
func (c *Config) normalize() {
	def := Default()

	if c.Bridge.ID == "" {
		c.Bridge.ID = def.Bridge.ID
	}
	if c.Bridge.DataDir == "" {
		c.Bridge.DataDir = def.Bridge.DataDir
	}
	if sm := strings.ToLower(c.Bridge.StartMode); sm == "all" {
		c.Bridge.StartMode = "all"
	} else {
		c.Bridge.StartMode = "now"
	}
	if c.Bridge.ReconnectDelay <= 0 {
		c.Bridge.ReconnectDelay = def.Bridge.ReconnectDelay
	}
	if c.Bridge.FlushInterval <= 0 {
		c.Bridge.FlushInterval = def.Bridge.FlushInterval
	}
	if c.Bridge.UploadConcurrency < 1 {
		c.Bridge.UploadConcurrency = def.Bridge.UploadConcurrency
	}
	if c.Bridge.HeartbeatInterval <= 0 {
		c.Bridge.HeartbeatInterval = def.Bridge.HeartbeatInterval
	}
	if c.Bridge.JobPollInterval < minJobPollInterval {
		c.Bridge.JobPollInterval = def.Bridge.JobPollInterval
	}
	if c.Bridge.JobBatchLimit < 1 {
		c.Bridge.JobBatchLimit = def.Bridge.JobBatchLimit
	}
	if c.Bridge.RestartDelay <= 0 {
		c.Bridge.RestartDelay = def.Bridge.RestartDelay
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
	if c.API.Addr == "" {
		c.API.Addr = def.API.Addr
	}
}

// minJobPollInterval guards the remote service from aggressive polling.
const minJobPollInterval = 1500 * time.Millisecond
