// Package dataset turns the raw records of a walk into the final product set.
package dataset

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/maltedev/pricelist-scraper/internal/models"
	"github.com/maltedev/pricelist-scraper/internal/parser"
)

const maxNameRunes = 90

var unsafeName = regexp.MustCompile(`[^\p{L}\p{N}_.-]+`)

// SanitizeName maps s to a filesystem-safe name: every run of characters
// other than letters, digits, "_", "." and "-" becomes one underscore, outer
// underscores are trimmed and the result is cut to 90 runes.
func SanitizeName(s string) string {
	name := strings.Trim(unsafeName.ReplaceAllString(s, "_"), "_")
	if r := []rune(name); len(r) > maxNameRunes {
		name = strings.TrimRight(string(r[:maxNameRunes]), "_")
	}
	return name
}

// FallbackSKU derives a stable SKU from the title alone: "SKU_" followed by
// twelve digits taken from the SHA-256 of the NFC form of the title.
func FallbackSKU(title string) string {
	sum := sha256.Sum256([]byte(norm.NFC.String(title)))
	n := binary.BigEndian.Uint64(sum[:8]) % 1_000_000_000_000
	return fmt.Sprintf("SKU_%012d", n)
}

// DeriveSKU is the backfill used when a record carries no SKU.
func DeriveSKU(title string) string {
	if slug := SanitizeName(title); slug != "" {
		return slug
	}
	return FallbackSKU(title)
}

// Normalize coerces raw records into products and drops later duplicates of
// a SKU. Every product it returns has a non-empty SKU, a finite price >= 0 and
// a known currency code.
func Normalize(raw []models.RawRecord) []models.Product {
	seen := make(map[string]struct{}, len(raw))
	out := make([]models.Product, 0, len(raw))

	for _, r := range raw {
		p := normalize(r)
		if _, dup := seen[p.SKU]; dup {
			continue
		}
		seen[p.SKU] = struct{}{}
		out = append(out, p)
	}
	return out
}

func normalize(r models.RawRecord) models.Product {
	title := strings.TrimSpace(r.Title)
	sku := strings.TrimSpace(r.SKU)
	if sku == "" {
		sku = DeriveSKU(title)
	}

	price, parsed := parser.ParsePrice(r.PriceText)
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		price = 0
	}

	return models.Product{
		ImageURL: strings.TrimSpace(r.ImageURL),
		SKU:      sku,
		Title:    title,
		Stock:    strings.TrimSpace(r.Stock),
		KDV:      strings.TrimSpace(r.KDV),
		Birim:    strings.TrimSpace(r.Birim),
		Price:    price,
		Currency: currency(r.CurrencyHint, parsed),
	}
}

func currency(hint, parsed string) string {
	for _, c := range []string{strings.ToUpper(strings.TrimSpace(hint)), parsed} {
		if parser.IsKnownCurrency(c) {
			return c
		}
	}
	return parser.CurrencyTRY
}
