// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package batchstore persists the intermediate batches handed off
// between pipeline stages. Batches are written whole and read whole;
// a write replaces any batch previously stored under the same id.
// Writes are atomic: a reader observes either the previous batch or
// the complete new one, never a partial write.
//
// Batch ids are slash-separated paths, conventionally "<run>/<stage>",
// e.g. "2023-12-01/raw".
package batchstore

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/maskpipe/table"
)

// Store is a batch store.
type Store interface {
	// Write stores batch b under id, replacing any existing batch.
	Write(ctx context.Context, id string, b *table.Batch) error
	// Read returns the batch stored under id. Read returns an error
	// of kind errors.NotExist if no such batch has been written.
	Read(ctx context.Context, id string) (*table.Batch, error)
	// List returns the ids of the stored batches matching the glob
	// pattern, in lexicographic order. The empty pattern matches all
	// batches.
	List(ctx context.Context, pattern string) ([]string, error)
	// Remove removes the batch stored under id.
	Remove(ctx context.Context, id string) error
}

// ID returns the conventional batch id for a run's stage output.
func ID(run, name string) string {
	return run + "/" + name
}

// CheckID returns an error if id is not a valid batch id. Valid ids are
// non-empty, relative, slash-separated paths without empty, "." or ".."
// elements, and contain no control characters.
func CheckID(id string) error {
	if id == "" {
		return errors.E(errors.Invalid, "empty batch id")
	}
	if strings.IndexFunc(id, unicode.IsControl) >= 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("batch id %q contains control characters", id))
	}
	for _, elem := range strings.Split(id, "/") {
		switch elem {
		case "", ".", "..":
			return errors.E(errors.Invalid, fmt.Sprintf("invalid batch id %q", id))
		}
	}
	return nil
}

func notFound(id string, err error) error {
	if err == nil {
		return errors.E(errors.NotExist, fmt.Sprintf("batch %s not found", id))
	}
	return errors.E(errors.NotExist, fmt.Sprintf("batch %s not found", id), err)
}
