// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/retry"
)

// A Scheduler executes units of pipeline work. Submit returns nil if
// the work ultimately succeeded, and the final error otherwise.
type Scheduler interface {
	Submit(ctx context.Context, name string, fn func(context.Context) error) error
}

// RetryScheduler runs work in the calling goroutine, retrying failed
// work after a fixed delay. Errors with Fatal severity or of kind
// errors.Precondition, and cancellations, are never retried. When work
// fails for good, the Notifier (if any) is told.
type RetryScheduler struct {
	// Retries is the number of times failed work is retried.
	Retries int
	// Delay is the time waited before each retry.
	Delay time.Duration
	// Notifier is notified of final failures.
	Notifier Notifier
}

// Submit implements Scheduler.
func (s *RetryScheduler) Submit(ctx context.Context, name string, fn func(context.Context) error) error {
	var policy retry.Policy
	if s.Retries > 0 {
		policy = retry.MaxRetries(retry.Backoff(s.Delay, s.Delay, 1), s.Retries)
	}
	var err error
	for retries := 0; ; retries++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if policy == nil || !retriable(ctx, err) {
			break
		}
		log.Error.Printf("%s: try %d failed: %v; retrying in %s", name, retries+1, err, s.Delay)
		if werr := retry.Wait(ctx, policy, retries); werr != nil {
			if !errors.Is(errors.TooManyTries, werr) {
				err = errors.E(werr, fmt.Sprintf("%s: waiting to retry after: %v", name, err))
			}
			break
		}
	}
	if s.Notifier != nil {
		if nerr := s.Notifier.Notify(ctx, name, err); nerr != nil {
			log.Error.Printf("%s: notify: %v", name, nerr)
		}
	}
	return err
}

// retriable tells whether a failure may succeed when retried.
func retriable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Recover(err).Severity == errors.Fatal {
		return false
	}
	return !errors.Is(errors.Precondition, err) && !errors.Is(errors.Canceled, err)
}
