// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package mask implements deterministic, lossy redaction of
// personally identifying fields. Masking keeps a short prefix of each
// value so that masked records remain useful for grouping and joins,
// and replaces the remainder with a mask character.
//
// Masking is total: every input string has a masked form, the masked
// form is never longer than the input (in runes), and it contains only
// runes of the input plus the mask character. Masking does not fail.
package mask

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultKeep is the number of leading runes kept by the
	// identifier rule and by the name rule for long tokens.
	DefaultKeep = 3
	// DefaultChar is the rune substituted for masked runes.
	DefaultChar = '*'
)

// Identifier masks a structured identifier using the default
// configuration: the first 3 runes are kept and every remaining rune
// is replaced by '*'. Identifiers of 3 runes or fewer are returned
// unchanged.
func Identifier(s string) string {
	return identifier(s, DefaultKeep, DefaultChar)
}

// Name masks a free-text name using the default configuration. The
// name is split into whitespace-separated tokens. Tokens longer than 3
// runes keep their first 3 runes; shorter tokens keep only their first
// rune. The remaining runes of each token are replaced by '*', and the
// tokens are rejoined with single spaces.
func Name(s string) string {
	return name(s, DefaultKeep, DefaultChar)
}

func identifier(s string, keep int, char rune) string {
	n := utf8.RuneCountInString(s)
	if n <= keep {
		return s
	}
	return redact(s, keep, n, char)
}

func name(s string, keep int, char rune) string {
	tokens := strings.Fields(s)
	for i, tok := range tokens {
		n := utf8.RuneCountInString(tok)
		if n > keep {
			tokens[i] = redact(tok, keep, n, char)
		} else {
			tokens[i] = redact(tok, 1, n, char)
		}
	}
	return strings.Join(tokens, " ")
}

// redact returns the first keep runes of s, followed by n-keep copies
// of char, where n is the rune count of s.
func redact(s string, keep, n int, char rune) string {
	var b strings.Builder
	b.Grow(len(s))
	i := 0
	for _, r := range s {
		if i == keep {
			break
		}
		b.WriteRune(r)
		i++
	}
	for ; i < n; i++ {
		b.WriteRune(char)
	}
	return b.String()
}
