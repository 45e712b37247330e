// Package parser turns free-text price cells into an amount and a currency
// code. Parsing never fails: unrecognised input yields the zero value.
package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	CurrencyTRY = "TRY"
	CurrencyUSD = "USD"
	CurrencyEUR = "EUR"
)

type currencyToken struct {
	token string
	code  string
	match *regexp.Regexp
}

// currencyTokens is ordered by priority; the first token found wins.
var currencyTokens = []currencyToken{
	symbol("₺", CurrencyTRY),
	word("TL", CurrencyTRY),
	word("TRY", CurrencyTRY),
	symbol("$", CurrencyUSD),
	word("USD", CurrencyUSD),
	symbol("€", CurrencyEUR),
	word("EUR", CurrencyEUR),
}

func symbol(tok, code string) currencyToken {
	return currencyToken{token: tok, code: code}
}

// word tokens match case-insensitively but not inside a longer word, so
// "TITLE" is not TL while "12,50TL" is.
func word(tok, code string) currencyToken {
	return currencyToken{
		token: tok,
		code:  code,
		match: regexp.MustCompile(`(?i)(?:^|[^\p{L}])` + tok + `(?:[^\p{L}]|$)`),
	}
}

var (
	numberPattern     = regexp.MustCompile(`[-+]?\d*\.?\d+`)
	decimalDotPattern = regexp.MustCompile(`^[^.]*\d\.\d{1,2}(?:\D[^.]*)?$`)
)

// DetectCurrency returns the code of the first known currency token in text,
// or "" when there is none.
func DetectCurrency(text string) string {
	for _, c := range currencyTokens {
		if c.match == nil {
			if strings.Contains(text, c.token) {
				return c.code
			}
			continue
		}
		if c.match.MatchString(text) {
			return c.code
		}
	}
	return ""
}

// ParsePrice parses text such as "1.234,56 TL" or "$19.99".
//
// Amounts follow the Turkish convention of a decimal comma and thousands
// dots. A lone dot followed by one or two digits in text without a comma is
// read as a decimal point instead.
func ParsePrice(text string) (float64, string) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, ""
	}
	return parseAmount(s), DetectCurrency(s)
}

func parseAmount(s string) float64 {
	cleaned := strings.Join(strings.Fields(s), "")
	if strings.Contains(cleaned, ",") || !decimalDotPattern.MatchString(cleaned) {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}

	m := numberPattern.FindString(cleaned)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// IsKnownCurrency reports whether code is one of the supported codes.
func IsKnownCurrency(code string) bool {
	switch code {
	case CurrencyTRY, CurrencyUSD, CurrencyEUR:
		return true
	}
	return false
}
