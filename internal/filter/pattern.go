package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind is the matching strategy a raw pattern compiles to.
type Kind int

// Pattern kinds, in classification priority order. Inert patterns never match.
const (
	KindExact Kind = iota
	KindGlob
	KindRegex
	KindInert
)

func (k Kind) String() string {
	switch k {
	case KindExact:
		return "exact"
	case KindGlob:
		return "glob"
	case KindRegex:
		return "regex"
	default:
		return "inert"
	}
}

// Pattern is a compiled pattern string.
type Pattern struct {
	Raw  string
	Kind Kind
	// Err is set for inert patterns.
	Err error

	literal string
	re      *regexp.Regexp
}

// Compile classifies raw as /regex/, glob or literal and compiles it.
// It never fails: a pattern that cannot be compiled becomes inert.
func Compile(raw string) Pattern {
	p := Pattern{Raw: raw}

	if body, ok := regexBody(raw); ok {
		re, err := regexp.Compile("(?i)" + body)
		if err != nil {
			p.Kind = KindInert
			p.Err = fmt.Errorf("invalid regex: %w", err)
			return p
		}
		p.Kind = KindRegex
		p.re = re
		return p
	}

	if hasWildcards(raw) {
		re, err := regexp.Compile(translateGlob(strings.ToLower(raw)))
		if err != nil {
			p.Kind = KindInert
			p.Err = fmt.Errorf("invalid glob: %w", err)
			return p
		}
		p.Kind = KindGlob
		p.re = re
		return p
	}

	p.Kind = KindExact
	p.literal = strings.ToLower(raw)
	return p
}

// Validate reports why a pattern would be inert, or nil.
func Validate(raw string) error {
	return Compile(raw).Err
}

// matchExact compares case-insensitively. With substring set, the literal may
// appear anywhere in text; otherwise the whole string must be equal.
func (p Pattern) matchExact(lower string, substring bool) bool {
	if substring {
		return strings.Contains(lower, p.literal)
	}
	return lower == p.literal
}

func regexBody(raw string) (string, bool) {
	if len(raw) >= 2 && strings.HasPrefix(raw, "/") && strings.HasSuffix(raw, "/") {
		return raw[1 : len(raw)-1], true
	}
	return "", false
}

func hasWildcards(raw string) bool {
	return strings.ContainsAny(raw, "*?[")
}

// translateGlob converts a shell-style wildcard into an anchored regular
// expression. '*' and '?' match any character including '/'; "[...]" is a
// character class, "[!...]" its negation, and an unclosed '[' is literal.
func translateGlob(glob string) string {
	var b strings.Builder
	b.WriteString(`(?s)^`)

	runes := []rune(glob)
	n := len(runes)
	for i := 0; i < n; i++ {
		c := runes[i]
		switch c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '[':
			j := i + 1
			if j < n && runes[j] == '!' {
				j++
			}
			if j < n && runes[j] == ']' {
				j++
			}
			for j < n && runes[j] != ']' {
				j++
			}
			if j >= n {
				b.WriteString(`\[`)
				continue
			}
			b.WriteString(globClass(runes[i+1 : j]))
			i = j
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}

	b.WriteString(`$`)
	return b.String()
}

func globClass(body []rune) string {
	var b strings.Builder
	b.WriteByte('[')
	if len(body) > 0 && body[0] == '!' {
		b.WriteByte('^')
		body = body[1:]
	}
	for _, r := range body {
		switch r {
		case '\\', '[', ']', '^':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte(']')
	return b.String()
}
