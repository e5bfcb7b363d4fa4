package textutil

import (
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// CompareNatural orders purely numeric names by value ahead of every other
// name; the rest are compared with a numeric-aware collation.
func CompareNatural(a, b string) int {
	return newNaturalCollator().compare(a, b)
}

// SortNatural sorts names in place using CompareNatural.
func SortNatural(names []string) {
	c := newNaturalCollator()
	slices.SortStableFunc(names, c.compare)
}

// IsNumeric reports whether s is a non-empty run of ASCII digits.
func IsNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// naturalCollator wraps a collate.Collator, which is not safe for concurrent
// use, so callers build one per sort.
type naturalCollator struct {
	col *collate.Collator
}

func newNaturalCollator() naturalCollator {
	return naturalCollator{col: collate.New(language.Und, collate.Numeric, collate.IgnoreCase)}
}

func (c naturalCollator) compare(a, b string) int {
	aNum, bNum := IsNumeric(a), IsNumeric(b)
	switch {
	case aNum && bNum:
		return compareDigits(a, b)
	case aNum:
		return -1
	case bNum:
		return 1
	}
	if r := c.col.CompareString(a, b); r != 0 {
		return r
	}
	return strings.Compare(a, b)
}

// compareDigits compares decimal strings by value without parsing, so names
// longer than an int64 still order correctly.
func compareDigits(a, b string) int {
	ta := strings.TrimLeft(a, "0")
	tb := strings.TrimLeft(b, "0")
	if len(ta) != len(tb) {
		return len(ta) - len(tb)
	}
	if r := strings.Compare(ta, tb); r != 0 {
		return r
	}
	return strings.Compare(a, b)
}
