// Package fold compares Turkish UI text without caring about case or
// diacritics.
package fold

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Key lowercases s and strips combining marks, mapping the dotless ı to i,
// so "ÇIKIŞ", "Çıkış" and "cikis" all fold to "cikis".
func Key(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ReplaceAll(strings.ToLower(out), "ı", "i")
}

// ContainsAny reports whether the folded haystack contains any folded needle.
func ContainsAny(haystack string, needles ...string) bool {
	h := Key(haystack)
	for _, n := range needles {
		if n != "" && strings.Contains(h, Key(n)) {
			return true
		}
	}
	return false
}

type pair struct {
	from, to rune
}

var xpathPairs = []pair{
	{'Ç', 'c'}, {'ç', 'c'},
	{'Ğ', 'g'}, {'ğ', 'g'},
	{'İ', 'i'}, {'ı', 'i'},
	{'Ö', 'o'}, {'ö', 'o'},
	{'Ş', 's'}, {'ş', 's'},
	{'Ü', 'u'}, {'ü', 'u'},
	{'Â', 'a'}, {'â', 'a'},
	{'Î', 'i'}, {'î', 'i'},
	{'Û', 'u'}, {'û', 'u'},
}

const (
	asciiUpper = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	asciiLower = "abcdefghijklmnopqrstuvwxyz"
)

// XPath wraps an XPath string expression in translate() calls that apply the
// same folding as Key, within what XPath 1.0 can express. Each non-ASCII
// rune gets its own translate() because some engines index the translate
// tables by byte.
func XPath(expr string) string {
	out := fmt.Sprintf("translate(%s, '%s', '%s')", expr, asciiUpper, asciiLower)
	for _, p := range xpathPairs {
		out = fmt.Sprintf("translate(%s, '%c', '%c')", out, p.from, p.to)
	}
	return out
}

// XPathContains is an XPath predicate: folded expr contains folded needle.
// needle must not contain a single quote.
func XPathContains(expr, needle string) string {
	return fmt.Sprintf("contains(%s, '%s')", XPath(expr), Key(needle))
}
