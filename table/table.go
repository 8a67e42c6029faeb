// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package table defines the in-memory representation of a batch of
// records that flows between pipeline stages, together with the
// canonical delimited text encoding used for exported batches.
//
// A Batch is a schema (an ordered list of typed columns) and a list of
// rows. Each row holds one value per column. Values are dynamically
// typed but constrained by their column's Type:
//
//	String -> string
//	Int    -> int64
//	Float  -> float64
//	Bool   -> bool
//	Time   -> time.Time (UTC)
//
// A nil value represents SQL NULL in any column.
package table

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/grailbio/base/errors"
)

// Type is the type of a column.
type Type uint8

const (
	// String columns hold string values.
	String Type = iota
	// Int columns hold int64 values.
	Int
	// Float columns hold float64 values.
	Float
	// Bool columns hold bool values.
	Bool
	// Time columns hold time.Time values, normalized to UTC.
	Time
)

var typeNames = [...]string{
	String: "string",
	Int:    "int",
	Float:  "float",
	Bool:   "bool",
	Time:   "time",
}

// String returns the name of type t.
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", t)
}

// ParseType returns the Type named by s.
func ParseType(s string) (Type, error) {
	for t, name := range typeNames {
		if name == s {
			return Type(t), nil
		}
	}
	return 0, errors.E(errors.Invalid, fmt.Sprintf("unknown column type %q", s))
}

// Column describes one column of a batch.
type Column struct {
	Name string `cbor:"name"`
	Type Type   `cbor:"type"`
}

// A Row is a single record. It holds one value per column of its batch.
type Row []interface{}

// Batch is an ordered collection of rows sharing a schema. Batches are
// treated as immutable once written: transformations produce new
// batches.
type Batch struct {
	Columns []Column
	Rows    []Row
}

// New returns an empty batch with the provided columns.
func New(columns ...Column) *Batch {
	return &Batch{Columns: columns}
}

// Len returns the number of rows in the batch.
func (b *Batch) Len() int {
	return len(b.Rows)
}

// Index returns the index of the column with the given name, or -1.
func (b *Batch) Index(name string) int {
	for i, col := range b.Columns {
		if col.Name == name {
			return i
		}
	}
	return -1
}

// Append normalizes and appends a row to the batch. It returns an
// error if the row does not match the batch's schema.
func (b *Batch) Append(values ...interface{}) error {
	if len(values) != len(b.Columns) {
		return errors.E(errors.Invalid,
			fmt.Sprintf("row has %d values, schema has %d columns", len(values), len(b.Columns)))
	}
	row := make(Row, len(values))
	for i, v := range values {
		var err error
		if row[i], err = Normalize(b.Columns[i].Type, v); err != nil {
			return errors.E(fmt.Sprintf("column %s", b.Columns[i].Name), err)
		}
	}
	b.Rows = append(b.Rows, row)
	return nil
}

// Validate checks that every row of the batch matches its schema and
// that column names are unique and non-empty.
func (b *Batch) Validate() error {
	seen := make(map[string]bool, len(b.Columns))
	for _, col := range b.Columns {
		if col.Name == "" {
			return errors.E(errors.Invalid, "empty column name")
		}
		if seen[col.Name] {
			return errors.E(errors.Invalid, fmt.Sprintf("duplicate column %q", col.Name))
		}
		seen[col.Name] = true
		if int(col.Type) >= len(typeNames) {
			return errors.E(errors.Invalid, fmt.Sprintf("column %s: invalid type %d", col.Name, col.Type))
		}
	}
	for i, row := range b.Rows {
		if len(row) != len(b.Columns) {
			return errors.E(errors.Invalid,
				fmt.Sprintf("row %d has %d values, schema has %d columns", i, len(row), len(b.Columns)))
		}
	}
	return nil
}

// Clone returns a copy of the batch whose rows may be modified
// without affecting b. Values themselves are immutable and shared.
func (b *Batch) Clone() *Batch {
	c := &Batch{
		Columns: append([]Column(nil), b.Columns...),
		Rows:    make([]Row, len(b.Rows)),
	}
	for i, row := range b.Rows {
		c.Rows[i] = append(Row(nil), row...)
	}
	return c
}

// Normalize converts v into the canonical Go representation for
// columns of type typ. Integer values of any width are widened to
// int64, floats to float64, and times are converted to UTC. Byte
// slices are accepted for string columns, as returned by many SQL
// drivers. Strings are parsed for non-string columns.
func Normalize(typ Type, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch typ {
	case String:
		switch v := v.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		}
	case Int:
		switch v := v.(type) {
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int16:
			return int64(v), nil
		case int8:
			return int64(v), nil
		case uint64:
			if v > math.MaxInt64 {
				break
			}
			return int64(v), nil
		case uint32:
			return int64(v), nil
		case uint16:
			return int64(v), nil
		case uint8:
			return int64(v), nil
		case string:
			return parseValue(typ, v)
		case []byte:
			return parseValue(typ, string(v))
		}
	case Float:
		switch v := v.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case uint64:
			return float64(v), nil
		case string:
			return parseValue(typ, v)
		case []byte:
			return parseValue(typ, string(v))
		}
	case Bool:
		switch v := v.(type) {
		case bool:
			return v, nil
		case int64:
			return v != 0, nil
		case uint64:
			return v != 0, nil
		case string:
			return parseValue(typ, v)
		case []byte:
			return parseValue(typ, string(v))
		}
	case Time:
		switch v := v.(type) {
		case time.Time:
			return v.UTC(), nil
		case string:
			return parseValue(typ, v)
		case []byte:
			return parseValue(typ, string(v))
		}
	}
	return nil, errors.E(errors.Invalid, fmt.Sprintf("value %v of type %T is not a valid %s", v, v, typ))
}

// timeLayouts are tried in order when parsing time values from text.
// The first is the canonical layout.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func parseValue(typ Type, s string) (interface{}, error) {
	var (
		v   interface{}
		err error
	)
	switch typ {
	case String:
		return s, nil
	case Int:
		v, err = strconv.ParseInt(s, 10, 64)
	case Float:
		v, err = strconv.ParseFloat(s, 64)
	case Bool:
		v, err = strconv.ParseBool(s)
	case Time:
		for _, layout := range timeLayouts {
			var t time.Time
			if t, err = time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
	default:
		err = fmt.Errorf("invalid type %d", typ)
	}
	if err != nil {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("parse %s value %q", typ, s), err)
	}
	return v, nil
}

// formatValue returns the canonical text form of v, which must already
// be normalized for typ.
func formatValue(typ Type, v interface{}) (string, error) {
	switch typ {
	case String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case Int:
		if i, ok := v.(int64); ok {
			return strconv.FormatInt(i, 10), nil
		}
	case Float:
		if f, ok := v.(float64); ok {
			return strconv.FormatFloat(f, 'g', -1, 64), nil
		}
	case Bool:
		if b, ok := v.(bool); ok {
			return strconv.FormatBool(b), nil
		}
	case Time:
		if t, ok := v.(time.Time); ok {
			return t.UTC().Format(time.RFC3339Nano), nil
		}
	}
	return "", errors.E(errors.Invalid, fmt.Sprintf("value %v of type %T is not a valid %s", v, v, typ))
}
