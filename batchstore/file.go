// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package batchstore

import (
	"bufio"
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/maskpipe/table"
)

// Suffix is the file name suffix of stored batches.
const Suffix = ".batch"

type fileStore struct {
	root string
}

// NewFileStore returns a Store that keeps each batch in a file under
// root, which may be any path supported by
// github.com/grailbio/base/file, for example a local directory or an
// s3:// prefix.
//
// Batch files are committed on close: a write that fails or is
// canceled is discarded and leaves any previous batch in place.
func NewFileStore(root string) Store {
	if scheme, _, err := file.ParsePath(root); err == nil && scheme == "" {
		// Local listings return cleaned paths.
		root = filepath.Clean(root)
	}
	return &fileStore{root: strings.TrimSuffix(root, "/")}
}

func (s *fileStore) String() string {
	return s.root
}

func (s *fileStore) path(id string) string {
	return file.Join(s.root, id+Suffix)
}

func (s *fileStore) Write(ctx context.Context, id string, b *table.Batch) (err error) {
	if err = CheckID(id); err != nil {
		return err
	}
	path := s.path(id)
	f, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(errors.Unavailable, fmt.Sprintf("batchstore: create %s", path), err)
	}
	w := bufio.NewWriter(f.Writer(ctx))
	if err = Encode(w, b); err == nil {
		err = w.Flush()
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		f.Discard(ctx) // nolint: errcheck
		return errors.E(fmt.Sprintf("batchstore: write %s", path), err)
	}
	if err = f.Close(ctx); err != nil {
		return errors.E(errors.Unavailable, fmt.Sprintf("batchstore: commit %s", path), err)
	}
	log.Debug.Printf("batchstore: wrote %s: %d rows", path, b.Len())
	return nil
}

func (s *fileStore) Read(ctx context.Context, id string) (_ *table.Batch, err error) {
	if err = CheckID(id); err != nil {
		return nil, err
	}
	path := s.path(id)
	f, err := file.Open(ctx, path)
	if err != nil {
		if errors.Is(errors.NotExist, err) {
			return nil, notFound(id, err)
		}
		return nil, errors.E(errors.Unavailable, fmt.Sprintf("batchstore: open %s", path), err)
	}
	defer errors.CleanUpCtx(ctx, f.Close, &err)
	// Some implementations report a missing file on first access
	// rather than on open.
	if _, err = f.Stat(ctx); err != nil {
		if errors.Is(errors.NotExist, err) {
			return nil, notFound(id, err)
		}
		return nil, errors.E(errors.Unavailable, fmt.Sprintf("batchstore: stat %s", path), err)
	}
	b, err := Decode(bufio.NewReader(f.Reader(ctx)))
	if err != nil {
		return nil, errors.E(fmt.Sprintf("batchstore: read %s", path), err)
	}
	return b, nil
}

func (s *fileStore) List(ctx context.Context, pattern string) ([]string, error) {
	var match func(string) bool
	if pattern != "" {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("batchstore: bad pattern %q", pattern), err)
		}
		match = g.Match
	}
	var (
		ids    []string
		prefix = s.root + "/"
		lister = file.List(ctx, s.root, true /*recursive*/)
	)
	for lister.Scan() {
		if lister.IsDir() {
			continue
		}
		path := lister.Path()
		if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, Suffix) {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(path, prefix), Suffix)
		if match == nil || match(id) {
			ids = append(ids, id)
		}
	}
	if err := lister.Err(); err != nil {
		if errors.Is(errors.NotExist, err) {
			return nil, nil
		}
		return nil, errors.E(errors.Unavailable, fmt.Sprintf("batchstore: list %s", s.root), err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *fileStore) Remove(ctx context.Context, id string) error {
	if err := CheckID(id); err != nil {
		return err
	}
	if err := file.Remove(ctx, s.path(id)); err != nil {
		if errors.Is(errors.NotExist, err) {
			return notFound(id, err)
		}
		return errors.E(errors.Unavailable, fmt.Sprintf("batchstore: remove %s", s.path(id)), err)
	}
	return nil
}
