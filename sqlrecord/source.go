// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sqlrecord

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/maskpipe/table"
)

// Source reads all records of a table.
type Source struct {
	Conn
}

// NewSource returns a Source reading from the provided table.
func NewSource(conn Conn) *Source {
	return &Source{conn}
}

// ReadAll reads every row of the source table into a batch. The
// batch schema is derived from the table's column types.
func (s *Source) ReadAll(ctx context.Context) (_ *table.Batch, err error) {
	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer errors.CleanUp(db.Close, &err)

	rows, err := db.QueryContext(ctx, "SELECT * FROM "+Quote(s.Table))
	if err != nil {
		return nil, unavailable(fmt.Sprintf("sqlrecord: query %s", s), err)
	}
	defer errors.CleanUp(rows.Close, &err)
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, unavailable(fmt.Sprintf("sqlrecord: query %s", s), err)
	}
	b := &table.Batch{Columns: make([]table.Column, len(types))}
	for i, typ := range types {
		b.Columns[i] = table.Column{Name: typ.Name(), Type: columnType(typ.DatabaseTypeName())}
	}
	var (
		values = make([]interface{}, len(types))
		ptrs   = make([]interface{}, len(types))
	)
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		for i := range values {
			values[i] = nil
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, unavailable(fmt.Sprintf("sqlrecord: scan %s", s), err)
		}
		if err := b.Append(values...); err != nil {
			return nil, errors.E(fmt.Sprintf("sqlrecord: %s: row %d", s, b.Len()+1), err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(fmt.Sprintf("sqlrecord: read %s", s), err)
	}
	log.Debug.Printf("sqlrecord: read %d rows from %s", b.Len(), s)
	return b, nil
}
