// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"strings"

	"filippo.io/age"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// ageHeader is the first line of every age-encrypted file.
const ageHeader = "age-encryption.org/"

// ParseRecipients parses age X25519 recipients ("age1...").
func ParseRecipients(keys []string) ([]age.Recipient, error) {
	recipients := make([]age.Recipient, len(keys))
	for i, key := range keys {
		r, err := age.ParseX25519Recipient(strings.TrimSpace(key))
		if err != nil {
			return nil, errors.E(errors.Precondition, errors.Fatal, fmt.Sprintf("vault: bad recipient %q", key), err)
		}
		recipients[i] = r
	}
	return recipients, nil
}

// ReadIdentities reads age identities from the file at path.
func ReadIdentities(ctx context.Context, path string) ([]age.Identity, error) {
	p, err := file.ReadFile(ctx, path)
	if err != nil {
		return nil, errors.E(fmt.Sprintf("vault: read identities %s", path), err)
	}
	ids, err := age.ParseIdentities(bytes.NewReader(p))
	if err != nil {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("vault: parse identities %s", path), err)
	}
	return ids, nil
}

// WriteKey writes the key artifact to path. If recipients are given,
// the key is sealed to them with age; otherwise the raw key bytes are
// written. The artifact is committed only if the write succeeds.
func WriteKey(ctx context.Context, path string, key []byte, recipients []age.Recipient) error {
	if len(key) != KeySize {
		return errors.E(errors.Invalid, fmt.Sprintf("vault: key is %d bytes, want %d", len(key), KeySize))
	}
	if len(recipients) == 0 {
		return writeFile(ctx, path, key)
	}
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipients...)
	if err != nil {
		return errors.E(errors.Invalid, "vault: seal key", err)
	}
	if _, err = w.Write(key); err == nil {
		err = w.Close()
	}
	if err != nil {
		return errors.E("vault: seal key", err)
	}
	return writeFile(ctx, path, buf.Bytes())
}

// ReadKey reads a key artifact written by WriteKey. A sealed key
// requires at least one matching identity.
func ReadKey(ctx context.Context, path string, identities ...age.Identity) ([]byte, error) {
	p, err := file.ReadFile(ctx, path)
	if err != nil {
		return nil, errors.E(fmt.Sprintf("vault: read key %s", path), err)
	}
	if bytes.HasPrefix(p, []byte(ageHeader)) {
		if len(identities) == 0 {
			return nil, errors.E(errors.Precondition, fmt.Sprintf("vault: key %s is sealed; an identity is required", path))
		}
		r, err := age.Decrypt(bytes.NewReader(p), identities...)
		if err != nil {
			return nil, errors.E(errors.Integrity, fmt.Sprintf("vault: unseal key %s", path), err)
		}
		if p, err = ioutil.ReadAll(io.LimitReader(r, KeySize+1)); err != nil {
			return nil, errors.E(errors.Integrity, fmt.Sprintf("vault: unseal key %s", path), err)
		}
	}
	if len(p) != KeySize {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("vault: key %s is %d bytes, want %d", path, len(p), KeySize))
	}
	return p, nil
}

// WriteCipher writes the cipher artifact to path.
func WriteCipher(ctx context.Context, path string, cipher []byte) error {
	return writeFile(ctx, path, cipher)
}

// ReadCipher reads the cipher artifact at path.
func ReadCipher(ctx context.Context, path string) ([]byte, error) {
	p, err := file.ReadFile(ctx, path)
	if err != nil {
		return nil, errors.E(fmt.Sprintf("vault: read cipher %s", path), err)
	}
	return p, nil
}

func writeFile(ctx context.Context, path string, p []byte) error {
	f, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(errors.Unavailable, fmt.Sprintf("vault: create %s", path), err)
	}
	if _, err = f.Writer(ctx).Write(p); err == nil {
		err = ctx.Err()
	}
	if err != nil {
		f.Discard(ctx) // nolint: errcheck
		return errors.E(fmt.Sprintf("vault: write %s", path), err)
	}
	if err = f.Close(ctx); err != nil {
		return errors.E(errors.Unavailable, fmt.Sprintf("vault: commit %s", path), err)
	}
	return nil
}
