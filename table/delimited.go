// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package table

import (
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
)

// The delimited encoding is a tab-separated table with a single header
// row. Each header field is "name:type". Each subsequent line is one
// row. Fields are escaped so that they never contain a raw tab,
// newline, carriage return, or double quote:
//
//	\\  backslash
//	\t  tab
//	\n  newline
//	\r  carriage return
//	\q  double quote
//	\N  NULL
//	\e  empty string (written only when it would otherwise be the
//	    whole line, i.e. a single-column batch)
//
// Values are formatted canonically: ints in base 10, floats in the
// shortest representation that round-trips, bools as true/false, and
// times in RFC 3339 with nanoseconds in UTC. Encoding the same batch
// always produces the same bytes.

const (
	nullField  = `\N`
	emptyField = `\e`
)

// WriteDelimited writes batch b to w in the delimited encoding.
func WriteDelimited(w io.Writer, b *Batch) error {
	if len(b.Columns) == 0 {
		return errors.E(errors.Invalid, "cannot encode a batch without columns")
	}
	if err := b.Validate(); err != nil {
		return err
	}
	tw := tsv.NewWriter(w)
	for _, col := range b.Columns {
		tw.WriteString(escape(col.Name + ":" + col.Type.String()))
	}
	if err := tw.EndLine(); err != nil {
		return err
	}
	for i, row := range b.Rows {
		for j, v := range row {
			if v == nil {
				tw.WriteString(nullField)
				continue
			}
			s, err := formatValue(b.Columns[j].Type, v)
			if err != nil {
				return errors.E(fmt.Sprintf("row %d, column %s", i, b.Columns[j].Name), err)
			}
			if s == "" && len(row) == 1 {
				s = emptyField
			} else {
				s = escape(s)
			}
			tw.WriteString(s)
		}
		if err := tw.EndLine(); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// ReadDelimited reads a batch in the delimited encoding from r.
func ReadDelimited(r io.Reader) (*Batch, error) {
	tr := tsv.NewReader(r)
	tr.ReuseRecord = false
	header, err := tr.Reader.Read()
	if err == io.EOF {
		return nil, errors.E(errors.Invalid, "delimited batch: missing header row")
	}
	if err != nil {
		return nil, errors.E(errors.Invalid, "delimited batch: read header", err)
	}
	b := &Batch{Columns: make([]Column, len(header))}
	for i, field := range header {
		s, err := unescape(field)
		if err != nil {
			return nil, err
		}
		colon := strings.LastIndexByte(s, ':')
		if colon < 0 {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("delimited batch: header field %q has no type", s))
		}
		typ, err := ParseType(s[colon+1:])
		if err != nil {
			return nil, errors.E("delimited batch: header", err)
		}
		b.Columns[i] = Column{Name: s[:colon], Type: typ}
	}
	tr.FieldsPerRecord = len(header)
	for line := 2; ; line++ {
		fields, err := tr.Reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("delimited batch: line %d", line), err)
		}
		row := make(Row, len(fields))
		for i, field := range fields {
			switch field {
			case nullField:
				continue
			case emptyField:
				field = ""
			default:
				if field, err = unescape(field); err != nil {
					return nil, errors.E(fmt.Sprintf("delimited batch: line %d", line), err)
				}
			}
			if row[i], err = parseValue(b.Columns[i].Type, field); err != nil {
				return nil, errors.E(fmt.Sprintf("delimited batch: line %d, column %s", line, b.Columns[i].Name), err)
			}
		}
		b.Rows = append(b.Rows, row)
	}
	return b, b.Validate()
}

var escaper = strings.NewReplacer(
	`\`, `\\`,
	"\t", `\t`,
	"\n", `\n`,
	"\r", `\r`,
	`"`, `\q`,
)

func escape(s string) string {
	return escaper.Replace(s)
}

func unescape(s string) (string, error) {
	if strings.IndexByte(s, '\\') < 0 {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		i++
		if i == len(s) {
			return "", errors.E(errors.Invalid, fmt.Sprintf("dangling escape in %q", s))
		}
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 't':
			b.WriteByte('\t')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 'q':
			b.WriteByte('"')
		default:
			return "", errors.E(errors.Invalid, fmt.Sprintf("invalid escape \\%c in %q", s[i], s))
		}
	}
	return b.String(), nil
}
