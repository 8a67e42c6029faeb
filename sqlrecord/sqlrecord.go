// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package sqlrecord reads and writes whole batches from relational
// tables through database/sql. A Source reads every row of a table; a
// Sink replaces a table's contents with a batch in a single
// transaction.
//
// Each ReadAll and WriteAll call opens its own connection pool and
// closes it before returning, so that a pipeline stage holds database
// resources only for its own duration.
//
// The driver must be registered by the binary, e.g.:
//
//	import _ "github.com/jackc/pgx/v5/stdlib" // "pgx"
//	import _ "modernc.org/sqlite"            // "sqlite"
package sqlrecord

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/maskpipe/table"
)

// Dialect captures the differences between SQL databases that matter
// for reading and writing batches.
type Dialect struct {
	// Name is the dialect name used in configuration.
	Name string
	// Driver is the database/sql driver name.
	Driver string
	// Placeholder returns the bind parameter for the i'th (1-based)
	// argument of a statement.
	Placeholder func(i int) string
	// Types maps column types to SQL column types.
	Types map[table.Type]string
}

var (
	// Postgres is the dialect for PostgreSQL through pgx.
	Postgres = Dialect{
		Name:        "postgres",
		Driver:      "pgx",
		Placeholder: func(i int) string { return fmt.Sprintf("$%d", i) },
		Types: map[table.Type]string{
			table.String: "TEXT",
			table.Int:    "BIGINT",
			table.Float:  "DOUBLE PRECISION",
			table.Bool:   "BOOLEAN",
			table.Time:   "TIMESTAMPTZ",
		},
	}
	// SQLite is the dialect for SQLite through modernc.org/sqlite.
	SQLite = Dialect{
		Name:        "sqlite",
		Driver:      "sqlite",
		Placeholder: func(int) string { return "?" },
		Types: map[table.Type]string{
			table.String: "TEXT",
			table.Int:    "INTEGER",
			table.Float:  "REAL",
			table.Bool:   "BOOLEAN",
			table.Time:   "TIMESTAMP",
		},
	}
)

// LookupDialect returns the dialect with the provided name.
func LookupDialect(name string) (Dialect, error) {
	for _, d := range []Dialect{Postgres, SQLite} {
		if d.Name == name {
			return d, nil
		}
	}
	return Dialect{}, errors.E(errors.Precondition, errors.Fatal, fmt.Sprintf("sqlrecord: unknown dialect %q", name))
}

// columnType maps a database type name, as reported by
// sql.ColumnType.DatabaseTypeName, to a column type. It follows
// SQLite's type affinity rules, which also cover the PostgreSQL type
// names, except that integer types must match a whole word.
func columnType(dbType string) table.Type {
	t := strings.ToUpper(dbType)
	switch {
	case strings.Contains(t, "BOOL"):
		return table.Bool
	case isInteger(t):
		return table.Int
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"),
		strings.Contains(t, "NUMERIC"), strings.Contains(t, "DECIMAL"):
		return table.Float
	case strings.Contains(t, "DATE"), strings.Contains(t, "TIME"):
		return table.Time
	default:
		return table.String
	}
}

var integerTypes = map[string]bool{
	"INT": true, "INTEGER": true, "INT2": true, "INT4": true, "INT8": true,
	"TINYINT": true, "SMALLINT": true, "MEDIUMINT": true, "BIGINT": true,
	"SERIAL": true, "SMALLSERIAL": true, "BIGSERIAL": true,
	"SERIAL2": true, "SERIAL4": true, "SERIAL8": true,
}

// isInteger tells whether any word of the upper-case type name t is an
// integer type.
func isInteger(t string) bool {
	for _, word := range strings.FieldsFunc(t, func(r rune) bool {
		return r == ' ' || r == '(' || r == ')' || r == ','
	}) {
		if integerTypes[word] {
			return true
		}
	}
	return false
}

// Quote quotes an identifier.
func Quote(ident string) string {
	return `"` + strings.Replace(ident, `"`, `""`, -1) + `"`
}

// Conn describes a database table.
type Conn struct {
	Dialect Dialect
	// DSN is the driver-specific data source name.
	DSN string
	// Table is the name of the table.
	Table string
}

func (c Conn) String() string {
	return fmt.Sprintf("%s:%s", c.Dialect.Name, c.Table)
}

func (c Conn) open(ctx context.Context) (*sql.DB, error) {
	if c.Table == "" {
		return nil, errors.E(errors.Precondition, errors.Fatal, "sqlrecord: no table configured")
	}
	db, err := sql.Open(c.Dialect.Driver, c.DSN)
	if err != nil {
		return nil, errors.E(errors.Precondition, errors.Fatal, fmt.Sprintf("sqlrecord: open %s", c), err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close() // nolint: errcheck
		return nil, unavailable(fmt.Sprintf("sqlrecord: connect %s", c), err)
	}
	return db, nil
}

// unavailable returns an error indicating that the database could not
// be reached or failed an operation. Cancellation is preserved as
// such.
func unavailable(msg string, err error) error {
	if err == context.Canceled || err == context.DeadlineExceeded {
		return errors.E(msg, err)
	}
	return errors.E(errors.Unavailable, errors.Temporary, msg, err)
}
