// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/maskpipe/pipeline"
	"github.com/grailbio/maskpipe/stage"
)

func Pipeline(ctx context.Context, opts Options, out io.Writer, args []string) error {
	var (
		flags   flag.FlagSet
		runFlag = flags.String("run", "", "comma-separated run ids; defaults to today's UTC date")
	)
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 0 {
		return errors.E(errors.Invalid, "run: unexpected arguments", strings.Join(flags.Args(), " "))
	}
	ids := []string{pipeline.DefaultRunID(time.Now())}
	if *runFlag != "" {
		ids = strings.Split(*runFlag, ",")
	}
	config, err := opts.load(ctx)
	if err != nil {
		return err
	}
	p, err := config.Pipeline()
	if err != nil {
		return err
	}
	runs, err := p.RunMany(ctx, ids, config.Parallelism)
	for _, run := range runs {
		if run == nil {
			continue
		}
		fmt.Fprintf(out, "%s\t%s\n", run.ID, run.State())
		for _, res := range run.Results() {
			fmt.Fprintf(out, "\t%s\n", res)
		}
	}
	return err
}

func Stage(ctx context.Context, opts Options, out io.Writer, args []string) error {
	var (
		flags   flag.FlagSet
		runFlag = flags.String("run", "", "run id; defaults to today's UTC date")
	)
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return errors.E(errors.Invalid, "stage: exactly one stage name required")
	}
	name, err := stage.ParseName(flags.Arg(0))
	if err != nil {
		return err
	}
	id := *runFlag
	if id == "" {
		id = pipeline.DefaultRunID(time.Now())
	}
	if err = pipeline.CheckRunID(id); err != nil {
		return err
	}
	config, err := opts.load(ctx)
	if err != nil {
		return err
	}
	runner, err := config.Runner()
	if err != nil {
		return err
	}
	res := runner.Run(ctx, id, name)
	fmt.Fprintln(out, res)
	return res.Err
}
