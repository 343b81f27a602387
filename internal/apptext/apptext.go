// Package apptext provides the text value used for application names and
// search queries. Equality, ordering and map keys are defined over a Unicode
// case-folded view of the text, so "Safari" and "safari" are interchangeable.
// Lengths and sub-ranges are measured in grapheme clusters, never bytes.
package apptext

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rivo/uniseg"
	"golang.org/x/text/cases"
)

// ErrOutOfRange is returned when a grapheme range exceeds the text.
var ErrOutOfRange = errors.New("grapheme range out of bounds")

// String is an immutable, case-insensitive text value. The zero value is the
// empty string. Copies share the underlying bytes.
type String struct {
	raw    string
	folded string
}

// New wraps s.
func New(s string) String {
	return String{raw: s, folded: fold(s)}
}

func fold(s string) string {
	if isASCII(s) {
		return strings.ToLower(s)
	}
	// cases.Caser keeps internal state and is not safe for concurrent use.
	return cases.Fold().String(s)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// String returns the text as it was given.
func (s String) String() string { return s.raw }

// Key returns the case-folded form. Two values are equal iff their keys are.
func (s String) Key() string { return s.folded }

// IsEmpty reports whether the text has no characters.
func (s String) IsEmpty() bool { return s.raw == "" }

// Equal compares case-insensitively.
func (s String) Equal(o String) bool { return s.folded == o.folded }

// Compare orders case-insensitively, returning -1, 0 or +1.
func (s String) Compare(o String) int { return strings.Compare(s.folded, o.folded) }

// GraphemeLen counts user-perceived characters.
func (s String) GraphemeLen() int {
	return uniseg.GraphemeClusterCount(s.raw)
}

// boundaries returns the byte offsets of every grapheme boundary, starting
// with 0 and ending with len(raw).
func (s String) boundaries() []int {
	b := make([]int, 1, len(s.raw)+1)
	rest, off, state := s.raw, 0, -1
	for len(rest) > 0 {
		var cluster string
		cluster, rest, _, state = uniseg.FirstGraphemeClusterInString(rest, state)
		off += len(cluster)
		b = append(b, off)
	}
	return b
}

// Substring returns n graphemes starting at grapheme index start.
func (s String) Substring(start, n int) (String, error) {
	b := s.boundaries()
	total := len(b) - 1
	if start < 0 || n < 0 || start+n > total {
		return String{}, fmt.Errorf("substring [%d,+%d) of %d graphemes: %w", start, n, total, ErrOutOfRange)
	}
	return New(s.raw[b[start]:b[start+n]]), nil
}

// Windows returns every contiguous run of n graphemes, left to right. It is
// empty when n is not positive or exceeds the grapheme length.
func (s String) Windows(n int) []String {
	if n <= 0 {
		return nil
	}
	b := s.boundaries()
	total := len(b) - 1
	if n > total {
		return nil
	}
	out := make([]String, 0, total-n+1)
	for i := 0; i+n <= total; i++ {
		out = append(out, New(s.raw[b[i]:b[i+n]]))
	}
	return out
}

// Fields splits around runs of white space.
func (s String) Fields() []String {
	words := strings.Fields(s.raw)
	out := make([]String, len(words))
	for i, w := range words {
		out[i] = New(w)
	}
	return out
}

// MarshalText encodes the original text.
func (s String) MarshalText() ([]byte, error) {
	return []byte(s.raw), nil
}

// UnmarshalText decodes text written by MarshalText.
func (s *String) UnmarshalText(text []byte) error {
	*s = New(string(text))
	return nil
}
