// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package table_test

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/go-test/deep"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/maskpipe/table"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func shipments(t *testing.T) *table.Batch {
	t.Helper()
	b := table.New(
		table.Column{Name: "shipment_id", Type: table.String},
		table.Column{Name: "customer_id", Type: table.String},
		table.Column{Name: "customer_name", Type: table.String},
		table.Column{Name: "weight", Type: table.Float},
		table.Column{Name: "pieces", Type: table.Int},
		table.Column{Name: "fragile", Type: table.Bool},
		table.Column{Name: "shipped", Type: table.Time},
	)
	day := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	assert.NoError(t, b.Append("T0001", "C007", "Budi Santoso", 12.5, 3, false, day))
	assert.NoError(t, b.Append("T0002", "C042", "Siti\tNur \"Aini\"\n", 0.1, int64(-1), true, day.Add(90*time.Minute)))
	assert.NoError(t, b.Append("T0003", nil, `back\slash \N`, math.MaxFloat64, nil, nil, nil))
	assert.NoError(t, b.Append("T0004", "", "", 1e-300, int64(math.MaxInt64), false, "2023-12-02"))
	return b
}

func TestDelimitedRoundTrip(t *testing.T) {
	b := shipments(t)
	var buf bytes.Buffer
	assert.NoError(t, table.WriteDelimited(&buf, b))
	got, err := table.ReadDelimited(bytes.NewReader(buf.Bytes()))
	assert.NoError(t, err)
	if diff := deep.Equal(got, b); diff != nil {
		t.Error(diff)
	}
}

func TestDelimitedHeader(t *testing.T) {
	var buf bytes.Buffer
	assert.NoError(t, table.WriteDelimited(&buf, shipments(t)))
	lines := strings.Split(buf.String(), "\n")
	expect.EQ(t, lines[0], "shipment_id:string\tcustomer_id:string\tcustomer_name:string\tweight:float\tpieces:int\tfragile:bool\tshipped:time")
	expect.EQ(t, lines[1], "T0001\tC007\tBudi Santoso\t12.5\t3\tfalse\t2023-12-01T00:00:00Z")
	expect.EQ(t, lines[2], "T0002\tC042\tSiti\\tNur \\qAini\\q\\n\t0.1\t-1\ttrue\t2023-12-01T01:30:00Z")
	expect.EQ(t, lines[3], "T0003\t\\N\tback\\\\slash \\\\N\t1.7976931348623157e+308\t\\N\t\\N\t\\N")
	expect.False(t, strings.Contains(buf.String(), `"`))
}

func TestDelimitedDeterministic(t *testing.T) {
	var a, b bytes.Buffer
	assert.NoError(t, table.WriteDelimited(&a, shipments(t)))
	assert.NoError(t, table.WriteDelimited(&b, shipments(t)))
	expect.EQ(t, a.String(), b.String())
}

func TestDelimitedSingleEmptyColumn(t *testing.T) {
	b := table.New(table.Column{Name: "note", Type: table.String})
	assert.NoError(t, b.Append(""))
	assert.NoError(t, b.Append(nil))
	assert.NoError(t, b.Append("x"))
	var buf bytes.Buffer
	assert.NoError(t, table.WriteDelimited(&buf, b))
	got, err := table.ReadDelimited(&buf)
	assert.NoError(t, err)
	if diff := deep.Equal(got, b); diff != nil {
		t.Error(diff)
	}
}

func TestDelimitedErrors(t *testing.T) {
	for _, c := range []struct {
		name, in string
	}{
		{"empty", ""},
		{"untyped header", "a\tb\n"},
		{"bad type", "a:blob\n"},
		{"short row", "a:string\tb:int\nx\n"},
		{"bad int", "a:int\nabc\n"},
		{"bad escape", "a:string\n\\x\n"},
		{"bare quote", "a:string\nx\"y\n"},
	} {
		_, err := table.ReadDelimited(strings.NewReader(c.in))
		if err == nil {
			t.Errorf("%s: expected error", c.name)
			continue
		}
		if !errors.Is(errors.Invalid, err) {
			t.Errorf("%s: got %v, want kind Invalid", c.name, err)
		}
	}
	if err := table.WriteDelimited(new(bytes.Buffer), table.New()); err == nil {
		t.Error("expected error encoding a batch without columns")
	}
}

func TestAppendNormalizes(t *testing.T) {
	b := table.New(
		table.Column{Name: "n", Type: table.Int},
		table.Column{Name: "f", Type: table.Float},
		table.Column{Name: "s", Type: table.String},
		table.Column{Name: "t", Type: table.Time},
	)
	jakarta := time.FixedZone("WIB", 7*3600)
	assert.NoError(t, b.Append(int32(7), float32(0.5), []byte("abc"), time.Date(2023, 1, 1, 7, 0, 0, 0, jakarta)))
	expect.EQ(t, b.Rows[0][0], int64(7))
	expect.EQ(t, b.Rows[0][1], 0.5)
	expect.EQ(t, b.Rows[0][2], "abc")
	expect.EQ(t, b.Rows[0][3], time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))

	err := b.Append("x", 1.0, "s", nil)
	expect.True(t, errors.Is(errors.Invalid, err))
	err = b.Append(1)
	expect.True(t, errors.Is(errors.Invalid, err))
}

func TestIndexClone(t *testing.T) {
	b := shipments(t)
	expect.EQ(t, b.Index("customer_name"), 2)
	expect.EQ(t, b.Index("missing"), -1)
	c := b.Clone()
	c.Rows[0][1] = "changed"
	expect.EQ(t, b.Rows[0][1], "C007")
}
