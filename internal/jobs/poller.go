// Zenter Bridge - Access Control Edge Bridge
// Copyright 2026 Zenter
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/zenterhq/zenter-bridge

package jobs

import (
	"context"
	"sync/atomic"
	"time"
)

// Poller pulls pending jobs on a fixed interval and hands them to the
// executor sequentially, in the order the service returned them.
type Poller struct {
	executor *Executor
	interval time.Duration
	limit    int
	polling  atomic.Bool
}

func NewPoller(e *Executor, interval time.Duration, limit int) *Poller {
	return &Poller{executor: e, interval: interval, limit: limit}
}

func (p *Poller) String() string {
	return "job-poller-" + p.executor.deviceID
}

// Serve implements suture.Service, with an immediate pull on start.
func (p *Poller) Serve(ctx context.Context) error {
	p.PollOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce fetches and executes one batch. A pull already in progress
// makes the call a no-op; a pull failure is logged and waits for the
// next tick.
func (p *Poller) PollOnce(ctx context.Context) {
	if !p.polling.CompareAndSwap(false, true) {
		return
	}
	defer p.polling.Store(false)

	jobs, err := p.executor.control.PullJobs(ctx, p.limit)
	if err != nil {
		p.executor.log.Warn().Err(err).Msg("job pull failed")
		return
	}
	if len(jobs) == 0 {
		return
	}
	p.executor.log.Info().Int("count", len(jobs)).Msg("jobs received")

	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		p.executor.Execute(ctx, job)
	}
}
