// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package cmd

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"

	"filippo.io/age"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/maskpipe/table"
	"github.com/grailbio/maskpipe/vault"
)

func Decrypt(ctx context.Context, _ Options, out io.Writer, args []string) error {
	var (
		flags        flag.FlagSet
		keyFlag      = flags.String("key", "", "path of the key artifact")
		identityFlag = flags.String("identity", "", "age identity file, for sealed keys")
	)
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *keyFlag == "" || flags.NArg() != 1 {
		return errors.E(errors.Invalid, "decrypt: usage: decrypt -key keyfile [-identity file] cipherfile")
	}
	var identities []age.Identity
	if *identityFlag != "" {
		var err error
		if identities, err = vault.ReadIdentities(ctx, *identityFlag); err != nil {
			return err
		}
	}
	key, err := vault.ReadKey(ctx, *keyFlag, identities...)
	if err != nil {
		return err
	}
	cipher, err := vault.ReadCipher(ctx, flags.Arg(0))
	if err != nil {
		return err
	}
	b, err := vault.DecryptBatch(key, cipher)
	if err != nil {
		return errors.E(fmt.Sprintf("decrypt %s", flags.Arg(0)), err)
	}
	w := bufio.NewWriter(out)
	if err := table.WriteDelimited(w, b); err != nil {
		return err
	}
	return w.Flush()
}
