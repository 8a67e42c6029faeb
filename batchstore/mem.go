// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package batchstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gobwas/glob"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/maskpipe/table"
)

// MemStore is an in-memory Store. Batches are kept in their encoded
// form, so that a MemStore exercises the same encoding as a file store
// and returned batches never alias stored ones. MemStore is safe for
// concurrent use.
type MemStore struct {
	mu      sync.Mutex
	batches map[string][]byte
}

// NewMemStore returns a new, empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{batches: make(map[string][]byte)}
}

// Write implements Store.
func (s *MemStore) Write(ctx context.Context, id string, b *table.Batch) error {
	if err := CheckID(id); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := Encode(&buf, b); err != nil {
		return errors.E(fmt.Sprintf("batchstore: write %s", id), err)
	}
	if err := ctx.Err(); err != nil {
		return errors.E(fmt.Sprintf("batchstore: write %s", id), err)
	}
	s.mu.Lock()
	s.batches[id] = buf.Bytes()
	s.mu.Unlock()
	return nil
}

// Read implements Store.
func (s *MemStore) Read(ctx context.Context, id string) (*table.Batch, error) {
	if err := CheckID(id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	p, ok := s.batches[id]
	s.mu.Unlock()
	if !ok {
		return nil, notFound(id, nil)
	}
	return Decode(bytes.NewReader(p))
}

// Bytes returns the encoded form of the batch stored under id.
func (s *MemStore) Bytes(id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.batches[id]
	return p, ok
}

// List implements Store.
func (s *MemStore) List(ctx context.Context, pattern string) ([]string, error) {
	var g glob.Glob
	if pattern != "" {
		var err error
		if g, err = glob.Compile(pattern, '/'); err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("batchstore: bad pattern %q", pattern), err)
		}
	}
	s.mu.Lock()
	var ids []string
	for id := range s.batches {
		if g == nil || g.Match(id) {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()
	sort.Strings(ids)
	return ids, nil
}

// Remove implements Store.
func (s *MemStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[id]; !ok {
		return notFound(id, nil)
	}
	delete(s.batches, id)
	return nil
}
