// Package server provides the text policy applied to display names and message
// content before they are stored or broadcast.
package server

import (
	"strings"
	"unicode/utf8"
)

// TextPolicy validates and transforms user supplied text. Implementations must
// be safe for concurrent use and keep no per-call state.
type TextPolicy interface {
	// Validate reports whether content is acceptable as a chat message.
	Validate(content string) bool
	// Sanitize escapes markup significant characters and trims whitespace.
	Sanitize(content string) string
	// Filter masks disallowed terms.
	Filter(content string) string
}

// PolicyConfig configures the default TextPolicy.
type PolicyConfig struct {
	MaxContentLength int
	Terms            []string
	MaskChar         rune
}

var markupEscaper = strings.NewReplacer(
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
)

type defaultPolicy struct {
	maxLength int
	masker    *Masker
}

// NewTextPolicy builds the default TextPolicy from cfg.
func NewTextPolicy(cfg PolicyConfig) (TextPolicy, error) {
	if cfg.MaxContentLength <= 0 {
		cfg.MaxContentLength = 500
	}
	if cfg.MaskChar == 0 {
		cfg.MaskChar = '*'
	}

	masker, err := NewMasker(cfg.Terms, cfg.MaskChar)
	if err != nil {
		return nil, err
	}
	return &defaultPolicy{maxLength: cfg.MaxContentLength, masker: masker}, nil
}

func (p *defaultPolicy) Validate(content string) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(content))
	return n > 0 && n <= p.maxLength
}

func (p *defaultPolicy) Sanitize(content string) string {
	return strings.TrimSpace(markupEscaper.Replace(content))
}

func (p *defaultPolicy) Filter(content string) string {
	return p.masker.Mask(content)
}
