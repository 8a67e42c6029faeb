// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package mask

import (
	"fmt"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/maskpipe/table"
)

// Rule selects how a column's values are masked.
type Rule string

const (
	// RuleIdentifier keeps a fixed prefix and masks the rest. It is
	// used for structured identifiers and, for compatibility with the
	// original export, for locations.
	RuleIdentifier Rule = "identifier"
	// RuleName masks each whitespace-separated token of a free-text
	// name independently.
	RuleName Rule = "name"
)

// Config configures a Masker.
type Config struct {
	// Keep is the number of leading runes kept. Defaults to DefaultKeep.
	Keep int
	// Char is the mask rune. Defaults to DefaultChar.
	Char rune
	// Columns maps column names to the rule applied to them. Columns
	// not named here are passed through untouched.
	Columns map[string]Rule
}

// DefaultConfig returns the masking configuration for the shipment
// dataset: customer identifiers and locations use the identifier rule,
// and customer names use the name rule.
func DefaultConfig() Config {
	return Config{
		Keep: DefaultKeep,
		Char: DefaultChar,
		Columns: map[string]Rule{
			"customer_id":       RuleIdentifier,
			"customer_name":     RuleName,
			"customer_location": RuleIdentifier,
		},
	}
}

// Validate checks that the configuration is well formed.
func (c Config) Validate() error {
	if c.Keep < 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("mask: keep must be positive, got %d", c.Keep))
	}
	if c.Char == utf8.RuneError || !utf8.ValidRune(c.Char) {
		return errors.E(errors.Invalid, fmt.Sprintf("mask: invalid mask character %q", c.Char))
	}
	for col, rule := range c.Columns {
		switch rule {
		case RuleIdentifier, RuleName:
		default:
			return errors.E(errors.Invalid, fmt.Sprintf("mask: column %s: unknown rule %q", col, rule))
		}
	}
	return nil
}

// Masker applies a masking configuration to records. A Masker is
// immutable and safe for concurrent use.
type Masker struct {
	config Config
}

// New returns a new Masker for the provided configuration. Zero Keep
// and Char take their defaults.
func New(config Config) (*Masker, error) {
	if config.Keep == 0 {
		config.Keep = DefaultKeep
	}
	if config.Char == 0 {
		config.Char = DefaultChar
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	columns := make(map[string]Rule, len(config.Columns))
	for col, rule := range config.Columns {
		columns[col] = rule
	}
	config.Columns = columns
	return &Masker{config}, nil
}

// Value masks a single value according to rule. Nil values are
// returned as nil. The second return value is false if v is not a
// string, in which case v is returned unchanged.
func (m *Masker) Value(rule Rule, v interface{}) (interface{}, bool) {
	if v == nil {
		return nil, true
	}
	s, ok := v.(string)
	if !ok {
		return v, false
	}
	switch rule {
	case RuleName:
		return name(s, m.config.Keep, m.config.Char), true
	default:
		return identifier(s, m.config.Keep, m.config.Char), true
	}
}

// binding is a masking configuration resolved against a schema.
type binding struct {
	index  int
	column string
	rule   Rule
}

func (m *Masker) bind(columns []table.Column) []binding {
	names := make([]string, 0, len(m.config.Columns))
	for col := range m.config.Columns {
		names = append(names, col)
	}
	sort.Strings(names)
	var bindings []binding
	for _, col := range names {
		index := -1
		for i := range columns {
			if columns[i].Name == col {
				index = i
				break
			}
		}
		if index < 0 {
			log.Printf("mask: column %s is not present in the batch; skipping", col)
			continue
		}
		bindings = append(bindings, binding{index, col, m.config.Columns[col]})
	}
	return bindings
}

// Stats reports what a masking pass did.
type Stats struct {
	// Rows is the number of rows processed.
	Rows int
	// Masked is the number of values replaced with their masked form.
	Masked int
	// Passed is the number of values in masked columns that were not
	// strings, and were passed through unchanged.
	Passed int
}

// Batch masks every row of b and returns a new batch with the same
// schema; b is not modified. Rows are masked in parallel.
func (m *Masker) Batch(b *table.Batch) (*table.Batch, Stats) {
	var (
		bindings = m.bind(b.Columns)
		out      = &table.Batch{
			Columns: append([]table.Column(nil), b.Columns...),
			Rows:    make([]table.Row, len(b.Rows)),
		}
		warn  = make([]sync.Once, len(bindings))
		mu    sync.Mutex
		stats = Stats{Rows: len(b.Rows)}
	)
	// Masking cannot fail, so neither can the traversal.
	_ = traverse.Parallel.Range(len(b.Rows), func(start, end int) error {
		var masked, passed int
		for i := start; i < end; i++ {
			row := append(table.Row(nil), b.Rows[i]...)
			for j, bnd := range bindings {
				if bnd.index >= len(row) {
					continue
				}
				v, ok := m.Value(bnd.rule, row[bnd.index])
				if !ok {
					passed++
					warn[j].Do(func() {
						log.Printf("mask: column %s holds %T values; passing through unmasked", bnd.column, v)
					})
					continue
				}
				if v != nil {
					masked++
				}
				row[bnd.index] = v
			}
			out.Rows[i] = row
		}
		mu.Lock()
		stats.Masked += masked
		stats.Passed += passed
		mu.Unlock()
		return nil
	})
	return out, stats
}

// Row masks a single row with the given schema, returning a new row.
func (m *Masker) Row(columns []table.Column, row table.Row) table.Row {
	out, _ := m.Batch(&table.Batch{Columns: columns, Rows: []table.Row{row}})
	return out.Rows[0]
}
