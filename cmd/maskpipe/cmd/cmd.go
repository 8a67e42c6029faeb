// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package cmd implements the maskpipe subcommands.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/maskpipe/conf"

	// Database drivers used by sqlrecord dialects.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Options holds the flags shared by all subcommands.
type Options struct {
	// Config is the path of the configuration file.
	Config string
}

func (o Options) load(ctx context.Context) (*conf.Config, error) {
	if o.Config == "" {
		return nil, errors.E(errors.Precondition, errors.Fatal, "no configuration file given (-config)")
	}
	return conf.Load(ctx, o.Config)
}

var commands = []struct {
	name     string
	callback func(ctx context.Context, opts Options, out io.Writer, args []string) error
	help     string
}{
	{"run", Pipeline, `Run runs the pipeline: extract, mask, load, and encrypt. It can be invoked as

  run [-run id[,id...]]

The run id defaults to today's UTC date. Several comma-separated ids are
executed concurrently, up to the configured parallelism.`},
	{"stage", Stage, `Stage runs a single stage of a run, without retries:

  stage [-run id] extract|mask|load|encrypt

It is meant to be invoked by an external scheduler.`},
	{"decrypt", Decrypt, `Decrypt prints the masked batch held in a cipher artifact:

  decrypt -key keyfile [-identity file] cipherfile

-identity names the age identity file needed to unseal a sealed key.`},
	{"ls", Ls, `Ls lists the batches in the batch store, optionally filtered by a glob
pattern (https://github.com/gobwas/glob), e.g. "ls '*/masked'".`},
}

// PrintHelp prints the subcommands to stderr.
func PrintHelp() {
	fmt.Fprintln(os.Stderr, "Subcommands:")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "%s: %s\n", c.name, c.help)
	}
}

// Run runs the subcommand named by args[0].
func Run(ctx context.Context, opts Options, args []string) error {
	if len(args) == 0 {
		PrintHelp()
		return errors.E("no subcommand given")
	}
	for _, c := range commands {
		if c.name == args[0] {
			return c.callback(ctx, opts, os.Stdout, args[1:])
		}
	}
	PrintHelp()
	return errors.E("unknown command", args[0])
}
