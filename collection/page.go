package collection

import (
	"math"
	"strings"
	"unicode"
)

// DefaultLimit is the page size used when none (or a non-positive one) is
// requested.
const DefaultLimit = 10

// maxPageValue bounds parsed values so offset+limit cannot overflow.
const maxPageValue = math.MaxInt32

// Page selects a window of the newest-first sequence.
type Page struct {
	Offset int
	Limit  int
}

// ParsePage reads the limit and offset query values. Each is parsed as a
// leading base-10 integer: surrounding whitespace and a sign are accepted and
// anything after the digits is ignored, so "5abc" is 5 and "2.9" is 2.
// A missing, non-numeric, zero or negative limit becomes DefaultLimit; a
// missing, non-numeric or negative offset becomes 0.
func ParsePage(limit, offset string) Page {
	p := Page{Limit: DefaultLimit}
	if n, ok := parseLeadingInt(limit); ok && n > 0 {
		p.Limit = n
	}
	if n, ok := parseLeadingInt(offset); ok && n > 0 {
		p.Offset = n
	}
	return p
}

// bounds returns the [start, end) indexes of p within a sequence of n items.
func (p Page) bounds(n int) (int, int) {
	start := min(max(p.Offset, 0), n)
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	end := n
	if limit < n-start {
		end = start + limit
	}
	return start, end
}

func parseLeadingInt(s string) (int, bool) {
	s = strings.TrimLeftFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '\uFEFF'
	})
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}

	n, digits := 0, 0
	for _, c := range []byte(s) {
		if c < '0' || c > '9' {
			break
		}
		digits++
		if n < maxPageValue {
			n = n*10 + int(c-'0')
		}
	}
	if digits == 0 {
		return 0, false
	}
	n = min(n, maxPageValue)
	if neg {
		n = -n
	}
	return n, true
}
