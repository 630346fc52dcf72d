// Package server masks disallowed terms in message content using an
// Aho-Corasick automaton built from the configured term list.
package server

import (
	"sort"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

// Masker replaces every case-insensitive occurrence of a term with a run of
// mask characters of the same length.
type Masker struct {
	matcher  *goahocorasick.Machine
	maskChar rune
}

// NewMasker builds the automaton. An empty term list yields a Masker that
// returns its input unchanged.
func NewMasker(terms []string, maskChar rune) (*Masker, error) {
	cleaned := lo.Uniq(lo.FilterMap(terms, func(term string, _ int) (string, bool) {
		term = strings.ToLower(strings.TrimSpace(term))
		return term, term != ""
	}))

	m := &Masker{maskChar: maskChar}
	if len(cleaned) == 0 {
		return m, nil
	}
	sort.Strings(cleaned)

	patterns := lo.Map(cleaned, func(term string, _ int) []rune {
		return []rune(term)
	})

	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, err
	}
	m.matcher = machine
	return m, nil
}

// Mask returns s with every term occurrence masked. Matches are found on the
// original input in a single pass so masked output is never re-scanned.
func (m *Masker) Mask(s string) string {
	if m == nil || m.matcher == nil || s == "" {
		return s
	}

	orig := []rune(s)
	lowered := make([]rune, len(orig))
	for i, r := range orig {
		lowered[i] = unicode.ToLower(r)
	}

	terms := m.matcher.MultiPatternSearch(lowered, false)
	if len(terms) == 0 {
		return s
	}

	for _, term := range terms {
		start := term.Pos
		end := start + len(term.Word)
		if start < 0 || end > len(orig) {
			continue
		}
		for i := start; i < end; i++ {
			orig[i] = m.maskChar
		}
	}
	return string(orig)
}
