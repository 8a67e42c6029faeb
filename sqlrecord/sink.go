// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sqlrecord

import (
	"context"
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/maskpipe/table"
)

// Sink replaces the contents of a table.
type Sink struct {
	Conn
}

// NewSink returns a Sink writing to the provided table.
func NewSink(conn Conn) *Sink {
	return &Sink{conn}
}

// WriteAll replaces the sink table with batch b: the table is dropped,
// recreated from the batch schema, and filled with the batch's rows.
// All of this happens in one transaction; if any step fails the
// previous table contents remain.
func (s *Sink) WriteAll(ctx context.Context, b *table.Batch) (err error) {
	if err = b.Validate(); err != nil {
		return err
	}
	if len(b.Columns) == 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("sqlrecord: %s: batch has no columns", s))
	}
	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer errors.CleanUp(db.Close, &err)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(fmt.Sprintf("sqlrecord: begin %s", s), err)
	}
	committed := false
	defer func() {
		if !committed {
			if rerr := tx.Rollback(); rerr != nil {
				log.Debug.Printf("sqlrecord: rollback %s: %v", s, rerr)
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+Quote(s.Table)); err != nil {
		return unavailable(fmt.Sprintf("sqlrecord: drop %s", s), err)
	}
	if _, err = tx.ExecContext(ctx, s.createStatement(b.Columns)); err != nil {
		return unavailable(fmt.Sprintf("sqlrecord: create %s", s), err)
	}
	stmt, err := tx.PrepareContext(ctx, s.insertStatement(b.Columns))
	if err != nil {
		return unavailable(fmt.Sprintf("sqlrecord: prepare %s", s), err)
	}
	defer errors.CleanUp(stmt.Close, &err)
	for i, row := range b.Rows {
		if _, err = stmt.ExecContext(ctx, row...); err != nil {
			return unavailable(fmt.Sprintf("sqlrecord: insert %s: row %d", s, i+1), err)
		}
	}
	if err = tx.Commit(); err != nil {
		return unavailable(fmt.Sprintf("sqlrecord: commit %s", s), err)
	}
	committed = true
	log.Debug.Printf("sqlrecord: wrote %d rows to %s", b.Len(), s)
	return nil
}

func (s *Sink) createStatement(columns []table.Column) string {
	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = Quote(col.Name) + " " + s.Dialect.Types[col.Type]
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", Quote(s.Table), strings.Join(defs, ", "))
}

func (s *Sink) insertStatement(columns []table.Column) string {
	names := make([]string, len(columns))
	params := make([]string, len(columns))
	for i, col := range columns {
		names[i] = Quote(col.Name)
		params[i] = s.Dialect.Placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		Quote(s.Table), strings.Join(names, ", "), strings.Join(params, ", "))
}
