// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/maskpipe/batchstore"
)

func Ls(ctx context.Context, opts Options, out io.Writer, args []string) error {
	var (
		flags    flag.FlagSet
		longFlag = flags.Bool("l", false, "print the path of each batch")
	)
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() > 1 {
		return errors.E(errors.Invalid, "ls: at most one pattern allowed")
	}
	config, err := opts.load(ctx)
	if err != nil {
		return err
	}
	ids, err := config.BatchStore().List(ctx, flags.Arg(0))
	if err != nil {
		return err
	}
	for _, id := range ids {
		if *longFlag {
			fmt.Fprintf(out, "%s\t%s\n", id, file.Join(config.Store.Root, id+batchstore.Suffix))
		} else {
			fmt.Fprintln(out, id)
		}
	}
	return nil
}
