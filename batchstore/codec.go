// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package batchstore

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/maskpipe/table"
	"github.com/klauspost/compress/zstd"
)

// The batch file format is the 4-byte magic "MPB1" followed by a zstd
// stream containing a single CBOR-encoded fileBatch. CBOR is encoded
// with core deterministic encoding, so the same batch always
// produces the same bytes. Time values are stored as RFC 3339 strings
// with nanosecond precision; all other values are stored natively.

var magic = []byte("MPB1")

type fileBatch struct {
	Columns []table.Column  `cbor:"1,keyasint"`
	Rows    [][]interface{} `cbor:"2,keyasint"`
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("batchstore: CBOR encoder initialization failed: " + err.Error())
	}
}

// Encode writes batch b to w in the batch file format.
func Encode(w io.Writer, b *table.Batch) (err error) {
	if err = b.Validate(); err != nil {
		return err
	}
	fb := fileBatch{Columns: b.Columns, Rows: make([][]interface{}, len(b.Rows))}
	for i, row := range b.Rows {
		out := make([]interface{}, len(row))
		for j, v := range row {
			if t, ok := v.(time.Time); ok {
				v = t.UTC().Format(time.RFC3339Nano)
			}
			out[j] = v
		}
		fb.Rows[i] = out
	}
	p, err := encMode.Marshal(fb)
	if err != nil {
		return errors.E(errors.Invalid, "encode batch", err)
	}
	if _, err = w.Write(magic); err != nil {
		return err
	}
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return err
	}
	if _, err = zw.Write(p); err != nil {
		zw.Close() // nolint: errcheck
		return err
	}
	return zw.Close()
}

// Decode reads a batch in the batch file format from r.
func Decode(r io.Reader) (*table.Batch, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, errors.E(errors.Invalid, "decode batch: short header", err)
	}
	if !bytes.Equal(hdr[:], magic) {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("decode batch: bad magic %q", hdr[:]))
	}
	zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, errors.E(errors.Invalid, "decode batch", err)
	}
	defer zr.Close()
	p, err := ioutil.ReadAll(zr)
	if err != nil {
		return nil, errors.E(errors.Invalid, "decode batch: decompress", err)
	}
	var fb fileBatch
	if err := cbor.Unmarshal(p, &fb); err != nil {
		return nil, errors.E(errors.Invalid, "decode batch", err)
	}
	b := &table.Batch{Columns: fb.Columns}
	if len(fb.Rows) > 0 {
		b.Rows = make([]table.Row, len(fb.Rows))
	}
	for i, values := range fb.Rows {
		if len(values) != len(b.Columns) {
			return nil, errors.E(errors.Invalid,
				fmt.Sprintf("decode batch: row %d has %d values, schema has %d columns", i, len(values), len(b.Columns)))
		}
		row := make(table.Row, len(values))
		for j, v := range values {
			if row[j], err = table.Normalize(b.Columns[j].Type, v); err != nil {
				return nil, errors.E(fmt.Sprintf("decode batch: row %d, column %s", i, b.Columns[j].Name), err)
			}
		}
		b.Rows[i] = row
	}
	return b, b.Validate()
}
