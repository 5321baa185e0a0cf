package roster

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// Predicate reports whether a stored cell value matches a query.
// All predicates compare case-insensitively and never match an empty query.
type Predicate func(value string) bool

// fold builds a fresh Caser per call; a Caser must not be shared between goroutines.
func fold(s string) string {
	return cases.Fold().String(s)
}

func spaceAt(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return unicode.IsSpace(r)
}

func spaceBefore(s string, i int) bool {
	if i <= 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return unicode.IsSpace(r)
}

// UsernameEquals matches a stored handle as a whole value. The stored value may
// carry a leading "@" or a link-like prefix ending in "/" (e.g. "t.me/"), and
// trailing whitespace. A leading "@" on the query is ignored as well.
func UsernameEquals(handle string) Predicate {
	want := fold(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
	return func(value string) bool {
		if want == "" {
			return false
		}
		v := fold(strings.TrimRightFunc(value, unicode.IsSpace))
		if v == want {
			return true
		}
		if strings.HasPrefix(v, "@") && v[1:] == want {
			return true
		}
		for i := 0; i < len(v); i++ {
			if v[i] != '/' {
				continue
			}
			if strings.ContainsFunc(v[:i], unicode.IsSpace) {
				return false
			}
			if v[i+1:] == want {
				return true
			}
		}
		return false
	}
}

// NameStartsWith matches values that begin with name followed by whitespace or
// the end of the value: "Ana" matches "Ana García" but not "Anabel Gómez".
func NameStartsWith(name string) Predicate {
	want := fold(strings.TrimSpace(name))
	return func(value string) bool {
		if want == "" {
			return false
		}
		v := fold(value)
		return strings.HasPrefix(v, want) && spaceAt(v, len(want))
	}
}

// NameContainsToken matches values where name appears anywhere as whole
// tokens, so a lone surname finds "Ana García López".
func NameContainsToken(name string) Predicate {
	want := fold(strings.TrimSpace(name))
	return func(value string) bool {
		if want == "" {
			return false
		}
		v := fold(value)
		for from := 0; from < len(v); {
			i := strings.Index(v[from:], want)
			if i < 0 {
				return false
			}
			start := from + i
			if spaceBefore(v, start) && spaceAt(v, start+len(want)) {
				return true
			}
			_, size := utf8.DecodeRuneInString(v[start:])
			from = start + size
		}
		return false
	}
}

// Exact matches the whole value, ignoring case and surrounding whitespace.
func Exact(query string) Predicate {
	want := fold(strings.TrimSpace(query))
	return func(value string) bool {
		return want != "" && fold(strings.TrimSpace(value)) == want
	}
}
