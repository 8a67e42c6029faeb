// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package batchstore_test

import (
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-test/deep"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/maskpipe/batchstore"
	"github.com/grailbio/maskpipe/table"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func testBatch(t *testing.T) *table.Batch {
	t.Helper()
	b := table.New(
		table.Column{Name: "customer_id", Type: table.String},
		table.Column{Name: "customer_name", Type: table.String},
		table.Column{Name: "weight", Type: table.Float},
		table.Column{Name: "pieces", Type: table.Int},
		table.Column{Name: "priority", Type: table.Bool},
		table.Column{Name: "shipped", Type: table.Time},
	)
	day := time.Date(2023, 12, 1, 10, 30, 0, 123456789, time.UTC)
	assert.NoError(t, b.Append("C007", "Budi Santoso", 12.5, 3, true, day))
	assert.NoError(t, b.Append("C008", nil, 12.0, -7, false, nil))
	assert.NoError(t, b.Append("C009", "Ani", nil, nil, nil, day))
	return b
}

func testStore(t *testing.T, store batchstore.Store) {
	ctx := context.Background()
	_, err := store.Read(ctx, "2023-12-01/raw")
	expect.True(t, errors.Is(errors.NotExist, err))

	b := testBatch(t)
	assert.NoError(t, store.Write(ctx, "2023-12-01/raw", b))
	got, err := store.Read(ctx, "2023-12-01/raw")
	assert.NoError(t, err)
	if diff := deep.Equal(got, b); diff != nil {
		t.Error(diff)
	}

	// Writes overwrite.
	small := table.New(table.Column{Name: "x", Type: table.Int})
	assert.NoError(t, small.Append(1))
	assert.NoError(t, store.Write(ctx, "2023-12-01/raw", small))
	got, err = store.Read(ctx, "2023-12-01/raw")
	assert.NoError(t, err)
	if diff := deep.Equal(got, small); diff != nil {
		t.Error(diff)
	}

	assert.NoError(t, store.Write(ctx, "2023-12-01/masked", b))
	assert.NoError(t, store.Write(ctx, "2023-12-02/raw", b))
	ids, err := store.List(ctx, "")
	assert.NoError(t, err)
	expect.EQ(t, ids, []string{"2023-12-01/masked", "2023-12-01/raw", "2023-12-02/raw"})
	ids, err = store.List(ctx, "*/raw")
	assert.NoError(t, err)
	expect.EQ(t, ids, []string{"2023-12-01/raw", "2023-12-02/raw"})
	ids, err = store.List(ctx, "2023-12-01/*")
	assert.NoError(t, err)
	expect.EQ(t, ids, []string{"2023-12-01/masked", "2023-12-01/raw"})
	_, err = store.List(ctx, "[")
	expect.True(t, errors.Is(errors.Invalid, err))

	assert.NoError(t, store.Remove(ctx, "2023-12-02/raw"))
	_, err = store.Read(ctx, "2023-12-02/raw")
	expect.True(t, errors.Is(errors.NotExist, err))
	expect.True(t, errors.Is(errors.NotExist, store.Remove(ctx, "2023-12-02/raw")))

	for _, id := range []string{"", "/abs", "a//b", "../escape", "a/./b"} {
		expect.True(t, errors.Is(errors.Invalid, store.Write(ctx, id, b)))
	}
}

func TestMemStore(t *testing.T) {
	testStore(t, batchstore.NewMemStore())
}

func TestFileStore(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "batchstore")
	defer cleanup()
	testStore(t, batchstore.NewFileStore(dir))
}

func TestFileStoreEmptyRoot(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "batchstore")
	defer cleanup()
	ids, err := batchstore.NewFileStore(filepath.Join(dir, "missing")).List(context.Background(), "")
	assert.NoError(t, err)
	expect.EQ(t, len(ids), 0)
}

func TestFileStoreCanceledWrite(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "batchstore")
	defer cleanup()
	store := batchstore.NewFileStore(dir)
	b := testBatch(t)
	assert.NoError(t, store.Write(context.Background(), "run/raw", b))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	other := table.New(table.Column{Name: "x", Type: table.String})
	if err := store.Write(ctx, "run/raw", other); err == nil {
		t.Fatal("expected canceled write to fail")
	}
	// The previous batch is intact and no temporary files remain.
	got, err := store.Read(context.Background(), "run/raw")
	assert.NoError(t, err)
	if diff := deep.Equal(got, b); diff != nil {
		t.Error(diff)
	}
	entries, err := ioutil.ReadDir(filepath.Join(dir, "run"))
	assert.NoError(t, err)
	expect.EQ(t, len(entries), 1)
	expect.EQ(t, entries[0].Name(), "raw"+batchstore.Suffix)
}

func TestFileStoreCorrupt(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "batchstore")
	defer cleanup()
	assert.NoError(t, os.MkdirAll(filepath.Join(dir, "run"), 0777))
	assert.NoError(t, ioutil.WriteFile(filepath.Join(dir, "run", "raw"+batchstore.Suffix), []byte("garbage"), 0666))
	_, err := batchstore.NewFileStore(dir).Read(context.Background(), "run/raw")
	expect.True(t, errors.Is(errors.Invalid, err))
}

func TestEncodeDeterministic(t *testing.T) {
	var a, b bytes.Buffer
	assert.NoError(t, batchstore.Encode(&a, testBatch(t)))
	assert.NoError(t, batchstore.Encode(&b, testBatch(t)))
	expect.True(t, bytes.Equal(a.Bytes(), b.Bytes()))
	expect.True(t, bytes.HasPrefix(a.Bytes(), []byte("MPB1")))
}

func TestEncodeEmpty(t *testing.T) {
	b := table.New(table.Column{Name: "customer_id", Type: table.String})
	var buf bytes.Buffer
	assert.NoError(t, batchstore.Encode(&buf, b))
	got, err := batchstore.Decode(&buf)
	assert.NoError(t, err)
	if diff := deep.Equal(got, b); diff != nil {
		t.Error(diff)
	}
}

func TestCheckID(t *testing.T) {
	for _, id := range []string{"2023-12-01/raw", "a", "a/b/c"} {
		expect.NoError(t, batchstore.CheckID(id), id)
	}
	for _, id := range []string{"", "/raw", "a//b", "a/./b", "../raw", "a/", "2023-12-01\r\nBcc: x/raw", "a\x00b", "a\x7fb"} {
		expect.True(t, errors.Is(errors.Invalid, batchstore.CheckID(id)), id)
	}
}
