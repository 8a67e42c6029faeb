// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package vault encrypts masked batches for export. Each batch is
// encrypted under a fresh random key with XChaCha20-Poly1305; the key
// and the ciphertext are kept as separate artifacts.
//
// A cipher artifact has the layout
//
//	[version: 1 byte (0x01)] [nonce: 24 bytes] [ciphertext+tag]
//
// where the plaintext is the canonical delimited serialization of the
// batch (see table.WriteDelimited). The version byte is authenticated
// as additional data.
package vault

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/maskpipe/table"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the size in bytes of batch keys.
const KeySize = chacha20poly1305.KeySize

// Version is the format version of cipher artifacts.
const Version byte = 0x01

// Overhead is the size difference between a cipher artifact and its
// plaintext.
const Overhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// NewKey returns a fresh random key.
func NewKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, errors.E(errors.Unavailable, "vault: generating key", err)
	}
	return key, nil
}

// EncryptBatch serializes and encrypts batch b under a freshly
// generated key. It returns the key and the cipher artifact.
func EncryptBatch(b *table.Batch) (key, cipher []byte, err error) {
	var buf bytes.Buffer
	if err = table.WriteDelimited(&buf, b); err != nil {
		return nil, nil, errors.E("vault: serialize", err)
	}
	if key, err = NewKey(); err != nil {
		return nil, nil, err
	}
	if cipher, err = Seal(key, buf.Bytes()); err != nil {
		return nil, nil, err
	}
	return key, cipher, nil
}

// DecryptBatch decrypts and deserializes a cipher artifact produced by
// EncryptBatch. Any authentication failure, including a wrong key or a
// modified artifact, is reported as errors.Integrity.
func DecryptBatch(key, cipher []byte) (*table.Batch, error) {
	plaintext, err := Open(key, cipher)
	if err != nil {
		return nil, err
	}
	b, err := table.ReadDelimited(bytes.NewReader(plaintext))
	if err != nil {
		return nil, errors.E("vault: deserialize", err)
	}
	return b, nil
}

// Seal encrypts plaintext under key with a random nonce.
func Seal(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.E(errors.Invalid, "vault: bad key", err)
	}
	out := make([]byte, 1+aead.NonceSize(), Overhead+len(plaintext))
	out[0] = Version
	if _, err := io.ReadFull(rand.Reader, out[1:]); err != nil {
		return nil, errors.E(errors.Unavailable, "vault: generating nonce", err)
	}
	return aead.Seal(out, out[1:], plaintext, out[:1]), nil
}

// Open authenticates and decrypts a blob produced by Seal.
func Open(key, blob []byte) ([]byte, error) {
	if len(blob) < Overhead {
		return nil, errors.E(errors.Integrity, fmt.Sprintf("vault: cipher is %d bytes, minimum is %d", len(blob), Overhead))
	}
	if blob[0] != Version {
		return nil, errors.E(errors.Integrity, fmt.Sprintf("vault: unsupported cipher version %d", blob[0]))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.E(errors.Integrity, "vault: bad key", err)
	}
	nonce := blob[1 : 1+aead.NonceSize()]
	plaintext, err := aead.Open(nil, nonce, blob[1+aead.NonceSize():], blob[:1])
	if err != nil {
		return nil, errors.E(errors.Integrity, "vault: authentication failed", err)
	}
	return plaintext, nil
}
