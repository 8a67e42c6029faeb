// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Command maskpipe extracts shipment records from a database, masks
// their customer fields, loads the masked records into a reporting
// database, and exports them encrypted.
//
//	maskpipe [-config file] [-log level] [-gops] subcommand [args]
//
// Run "maskpipe" without arguments for the list of subcommands.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/google/gops/agent"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/file/s3file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/maskpipe/cmd/maskpipe/cmd"
)

var (
	configFlag = flag.String("config", os.Getenv("MASKPIPE_CONFIG"), "configuration file; defaults to $MASKPIPE_CONFIG")
	gopsFlag   = flag.Bool("gops", false, "enable the gops listener")
)

func main() {
	log.AddFlags()
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] subcommand [args]\n", os.Args[0])
		flag.PrintDefaults()
		cmd.PrintHelp()
	}
	flag.Parse()
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	if *gopsFlag {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Error.Printf("failed to start gops agent: %v", err)
		}
	}
	file.RegisterImplementation("s3", func() file.Implementation {
		return s3file.NewImplementation(s3file.NewDefaultProvider(&aws.Config{
			CredentialsChainVerboseErrors: aws.Bool(true),
		}), s3file.Options{})
	})
	err := cmd.Run(context.Background(), cmd.Options{Config: *configFlag}, flag.Args())
	if err != nil {
		log.Fatal(err)
	}
}
