// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package pipeline orchestrates masking pipeline runs. A run executes
// the extract, mask, load, and encrypt stages in order, each submitted
// to a Scheduler that owns the retry policy. The first stage that fails
// for good fails the run; later stages are never started, and the
// output of the stages that did succeed is kept.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/maskpipe/batchstore"
	"github.com/grailbio/maskpipe/stage"
	"golang.org/x/sync/errgroup"
)

// RunIDLayout is the time layout of default run ids: runs are daily.
const RunIDLayout = "2006-01-02"

// DefaultRunID returns the run id of the run scheduled at time t.
func DefaultRunID(t time.Time) string {
	return t.UTC().Format(RunIDLayout)
}

// CheckRunID returns an error if id cannot identify a run.
func CheckRunID(id string) error {
	if strings.Contains(id, "/") {
		return errors.E(errors.Invalid, fmt.Sprintf("invalid run id %q", id))
	}
	return batchstore.CheckID(id)
}

// Pipeline runs pipeline runs.
type Pipeline struct {
	Runner *stage.Runner
	// Scheduler executes stages. If nil, stages are run once without
	// retries.
	Scheduler Scheduler
}

// Run executes the run with the provided id. It returns the run's
// record, whose final state is Succeeded or Failed, together with the
// error that failed the run, if any.
func (p *Pipeline) Run(ctx context.Context, id string) (*Run, error) {
	run := newRun(id)
	if err := p.run(ctx, run); err != nil {
		if terr := run.transition(Failed); terr != nil {
			log.Error.Printf("run %s: %v", id, terr)
		}
		log.Error.Printf("run %s failed: %v", id, err)
		return run, err
	}
	log.Printf("run %s succeeded", id)
	return run, nil
}

func (p *Pipeline) run(ctx context.Context, run *Run) error {
	if err := CheckRunID(run.ID); err != nil {
		return err
	}
	sched := p.Scheduler
	if sched == nil {
		sched = &RetryScheduler{}
	}
	for _, name := range stage.Names {
		if err := run.transition(stageStates[name]); err != nil {
			return err
		}
		err := sched.Submit(ctx, fmt.Sprintf("run %s stage %s", run.ID, name), func(ctx context.Context) error {
			res := p.Runner.Run(ctx, run.ID, name)
			run.add(res)
			return res.Err
		})
		if err != nil {
			return err
		}
	}
	return run.transition(Succeeded)
}

// RunMany executes the runs with the provided ids, at most limit at a
// time (no limit if limit <= 0). Runs are independent: a failed run
// does not affect the others. RunMany returns the runs in the order of
// ids, and the first error encountered.
func (p *Pipeline) RunMany(ctx context.Context, ids []string, limit int) ([]*Run, error) {
	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("duplicate run id %q", id))
		}
		seen[id] = true
	}
	var (
		g    errgroup.Group
		runs = make([]*Run, len(ids))
	)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			var err error
			runs[i], err = p.Run(ctx, id)
			return err
		})
	}
	return runs, g.Wait()
}
