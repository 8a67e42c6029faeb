// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package stage runs the individual stages of a masking pipeline run.
// Stages communicate only through the batch store:
//
//	extract: source          -> <run>/raw
//	mask:    <run>/raw       -> <run>/masked
//	load:    <run>/masked    -> sink
//	encrypt: <run>/masked    -> <cipher_dir>/<run>.cipher, <key_dir>/<run>.key
//
// A stage either commits its complete output or leaves no output
// behind.
package stage

import (
	"context"
	"fmt"
	"time"

	"filippo.io/age"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/maskpipe/batchstore"
	"github.com/grailbio/maskpipe/mask"
	"github.com/grailbio/maskpipe/table"
	"github.com/grailbio/maskpipe/vault"
)

// Name names a pipeline stage.
type Name string

const (
	Extract Name = "extract"
	Mask    Name = "mask"
	Load    Name = "load"
	Encrypt Name = "encrypt"
)

// Names lists the stages of a run in execution order.
var Names = []Name{Extract, Mask, Load, Encrypt}

// ParseName returns the stage with the provided name.
func ParseName(s string) (Name, error) {
	for _, name := range Names {
		if string(name) == s {
			return name, nil
		}
	}
	return "", errors.E(errors.Invalid, fmt.Sprintf("unknown stage %q", s))
}

// Batch ids of the intermediate batches of a run.
func RawID(run string) string    { return batchstore.ID(run, "raw") }
func MaskedID(run string) string { return batchstore.ID(run, "masked") }

// Source provides the records of a run.
type Source interface {
	ReadAll(ctx context.Context) (*table.Batch, error)
}

// Sink receives the masked records of a run, replacing any records it
// held before.
type Sink interface {
	WriteAll(ctx context.Context, b *table.Batch) error
}

// Artifacts configures where the encrypt stage places its output. Key
// and cipher artifacts are kept in separate directories.
type Artifacts struct {
	CipherDir string
	KeyDir    string
	// Recipients, if any, are the age recipients to which key
	// artifacts are sealed.
	Recipients []age.Recipient
}

// CipherPath returns the path of the cipher artifact of a run.
func (a Artifacts) CipherPath(run string) string {
	return file.Join(a.CipherDir, run+".cipher")
}

// KeyPath returns the path of the key artifact of a run.
func (a Artifacts) KeyPath(run string) string {
	return file.Join(a.KeyDir, run+".key")
}

// Result is the outcome of a stage invocation.
type Result struct {
	Stage Name
	Run   string
	// Success is true if the stage committed its output.
	Success bool
	// Records is the number of records the stage processed.
	Records  int
	Duration time.Duration
	Err      error
}

func (r Result) String() string {
	if r.Success {
		return fmt.Sprintf("%s %s: %d records in %s", r.Run, r.Stage, r.Records, r.Duration)
	}
	return fmt.Sprintf("%s %s: failed: %v", r.Run, r.Stage, r.Err)
}

// Runner runs stages. Source and Sink are needed only by the extract
// and load stages respectively.
type Runner struct {
	Source    Source
	Sink      Sink
	Store     batchstore.Store
	Masker    *mask.Masker
	Artifacts Artifacts
}

// Run runs the named stage for run. Failures are reported in the
// result's Err, which wraps the cause with the stage and run.
func (r *Runner) Run(ctx context.Context, run string, name Name) Result {
	var (
		res   = Result{Stage: name, Run: run}
		start = time.Now()
		err   error
	)
	switch name {
	case Extract:
		res.Records, err = r.extract(ctx, run)
	case Mask:
		res.Records, err = r.mask(ctx, run)
	case Load:
		res.Records, err = r.load(ctx, run)
	case Encrypt:
		res.Records, err = r.encrypt(ctx, run)
	default:
		err = errors.E(errors.Invalid, fmt.Sprintf("unknown stage %q", name))
	}
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = errors.E(fmt.Sprintf("stage %s run %s", name, run), err)
		log.Error.Printf("stage %s run %s: %v", name, run, err)
		return res
	}
	res.Success = true
	log.Printf("stage %s run %s: %d records in %s", name, run, res.Records, res.Duration)
	return res
}

func (r *Runner) extract(ctx context.Context, run string) (int, error) {
	if r.Source == nil {
		return 0, errors.E(errors.Precondition, errors.Fatal, "no source configured")
	}
	b, err := r.Source.ReadAll(ctx)
	if err != nil {
		return 0, err
	}
	if err := r.Store.Write(ctx, RawID(run), b); err != nil {
		return 0, err
	}
	return b.Len(), nil
}

func (r *Runner) mask(ctx context.Context, run string) (int, error) {
	b, err := r.Store.Read(ctx, RawID(run))
	if err != nil {
		return 0, err
	}
	masker := r.Masker
	if masker == nil {
		if masker, err = mask.New(mask.DefaultConfig()); err != nil {
			return 0, err
		}
	}
	masked, stats := masker.Batch(b)
	log.Debug.Printf("mask run %s: %d rows, %d values masked, %d passed through", run, stats.Rows, stats.Masked, stats.Passed)
	if err := r.Store.Write(ctx, MaskedID(run), masked); err != nil {
		return 0, err
	}
	return masked.Len(), nil
}

func (r *Runner) load(ctx context.Context, run string) (int, error) {
	if r.Sink == nil {
		return 0, errors.E(errors.Precondition, errors.Fatal, "no sink configured")
	}
	b, err := r.Store.Read(ctx, MaskedID(run))
	if err != nil {
		return 0, err
	}
	if err := r.Sink.WriteAll(ctx, b); err != nil {
		return 0, err
	}
	return b.Len(), nil
}

func (r *Runner) encrypt(ctx context.Context, run string) (int, error) {
	if r.Artifacts.CipherDir == "" || r.Artifacts.KeyDir == "" {
		return 0, errors.E(errors.Precondition, errors.Fatal, "no artifact directories configured")
	}
	b, err := r.Store.Read(ctx, MaskedID(run))
	if err != nil {
		return 0, err
	}
	key, cipher, err := vault.EncryptBatch(b)
	if err != nil {
		return 0, err
	}
	cipherPath, keyPath := r.Artifacts.CipherPath(run), r.Artifacts.KeyPath(run)
	// A rerun replaces a committed pair; the previous cipher is held
	// until the new key is committed.
	prev, err := vault.ReadCipher(ctx, cipherPath)
	switch {
	case err == nil:
	case errors.Is(errors.NotExist, err):
		prev = nil
	default:
		return 0, err
	}
	if err := vault.WriteCipher(ctx, cipherPath, cipher); err != nil {
		return 0, err
	}
	if err := vault.WriteKey(ctx, keyPath, key, r.Artifacts.Recipients); err != nil {
		// Cipher and key artifacts are committed together or not at all.
		restoreCipher(run, cipherPath, prev)
		return 0, err
	}
	log.Debug.Printf("encrypt run %s: wrote %s (%d bytes) and %s", run, cipherPath, len(cipher), keyPath)
	return b.Len(), nil
}

// restoreCipher puts back the cipher committed before a failed encrypt,
// or removes the new cipher if there was none.
func restoreCipher(run, path string, prev []byte) {
	ctx := context.Background()
	var err error
	if prev == nil {
		err = file.Remove(ctx, path)
	} else {
		err = vault.WriteCipher(ctx, path, prev)
	}
	if err != nil {
		log.Error.Printf("stage encrypt run %s: restore %s: %v", run, path, err)
	}
}
