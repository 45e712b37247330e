// Package extract reads raw product records from a rendered price list page.
//
// Two readers exist: a tabular one for the classic ASP list and a card
// reader for grid layouts. The first that yields records wins. Neither ever
// fails; an empty result means nothing recognisable was on the page.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/maltedev/pricelist-scraper/internal/dom"
	"github.com/maltedev/pricelist-scraper/internal/fold"
	"github.com/maltedev/pricelist-scraper/internal/models"
	"github.com/maltedev/pricelist-scraper/internal/parser"
)

// CardSelector matches product cards in grid layouts.
const CardSelector = ".product, .urun, .card, .product-card"

const minCells = 4

var (
	lazyImageAttrs = []string{"src", "data-src", "data-original", "data-lazy", "data-echo", "data-image"}
	styleURL       = regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`)

	// imageHeaders are header labels that announce a leading image column.
	imageHeaders = []string{"img", "image", "resim", "gorsel", "foto", "picture"}
)

type Extractor struct {
	session dom.Session
	logger  *slog.Logger
}

func New(session dom.Session, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		session: session,
		logger:  logger.With("component", "extractor"),
	}
}

// Layout names the reader that produced a page's records.
type Layout string

const (
	LayoutNone  Layout = "none"
	LayoutTable Layout = "table"
	LayoutCards Layout = "cards"
)

// ExtractPage reads the current page of the root document.
func (e *Extractor) ExtractPage(ctx context.Context) []models.RawRecord {
	records, _ := e.Read(ctx)
	return records
}

// Read is ExtractPage that also reports which layout matched.
func (e *Extractor) Read(ctx context.Context) ([]models.RawRecord, Layout) {
	var (
		records []models.RawRecord
		layout  = LayoutNone
	)
	err := e.session.Within(dom.MainFrame, func(scope dom.Scope) error {
		records, layout = e.read(ctx, scope)
		return nil
	})
	if err != nil {
		e.logger.Warn("failed to read page", "error", err)
	}
	return records, layout
}

func (e *Extractor) read(ctx context.Context, scope dom.Scope) ([]models.RawRecord, Layout) {
	if records := Tables(ctx, scope); len(records) > 0 {
		e.logger.Debug("tabular layout", "records", len(records))
		return records, LayoutTable
	}
	if records := Cards(ctx, scope, e.logger); len(records) > 0 {
		e.logger.Debug("card layout", "records", len(records))
		return records, LayoutCards
	}
	return nil, LayoutNone
}

// Tables returns the records of the first table in document order that
// yields any.
func Tables(ctx context.Context, scope dom.Scope) []models.RawRecord {
	tables, err := scope.Find(dom.CSS("table"))
	if err != nil {
		return nil
	}
	for _, table := range tables {
		if ctx.Err() != nil {
			return nil
		}
		if records := Table(ctx, table); len(records) > 0 {
			return records
		}
	}
	return nil
}

// Table reads one table element. The first row is the header.
func Table(ctx context.Context, table dom.Element) []models.RawRecord {
	rows, err := table.Find(dom.XPath("./tr | ./thead/tr | ./tbody/tr | ./tfoot/tr"))
	if err != nil || len(rows) < 2 {
		return nil
	}

	header := headerLabels(table, rows[0])
	defaultCurrency := parser.DetectCurrency(strings.Join(header, " "))
	if defaultCurrency == "" {
		defaultCurrency = parser.CurrencyTRY
	}
	imageHeader := len(header) > 0 && fold.ContainsAny(header[0], imageHeaders...)

	var records []models.RawRecord
	for _, row := range rows[1:] {
		if ctx.Err() != nil {
			break
		}
		cells, err := row.Find(dom.XPath("./td"))
		if err != nil || len(cells) < minCells {
			continue
		}
		records = append(records, readRow(cells, imageHeader, defaultCurrency))
	}
	return records
}

func readRow(cells []dom.Element, imageHeader bool, defaultCurrency string) models.RawRecord {
	var rec models.RawRecord

	base := 0
	if img, ok := dom.First(cells[0], dom.CSS("img")); ok {
		rec.ImageURL = ImageURL(img, cells[0])
		base = 1
	} else if u := backgroundURL(cells[0]); u != "" {
		rec.ImageURL = u
		base = 1
	} else if imageHeader {
		base = 1
	}

	cell := func(i int) string {
		if i >= len(cells) {
			return ""
		}
		return text(cells[i])
	}

	rec.SKU = cell(base)
	rec.Title = cell(base + 1)
	rec.Stock = cell(base + 2)
	rec.KDV = cell(base + 3)
	rec.Birim = cell(base + 4)
	rec.PriceText = text(cells[len(cells)-1])

	_, currency := parser.ParsePrice(rec.PriceText)
	if currency == "" {
		currency = defaultCurrency
	}
	rec.CurrencyHint = currency

	return rec
}

// headerLabels collects thead headings, or the first row's cells when the
// table has no thead.
func headerLabels(table, first dom.Element) []string {
	cells, err := table.Find(dom.XPath("./thead//th"))
	if err != nil || len(cells) == 0 {
		cells, _ = first.Find(dom.XPath("./th | ./td"))
	}
	labels := make([]string, 0, len(cells))
	for _, c := range cells {
		labels = append(labels, text(c))
	}
	return labels
}

// Cards reads every product card. A card whose extraction fails is skipped.
func Cards(ctx context.Context, scope dom.Scope, logger *slog.Logger) []models.RawRecord {
	cards, err := scope.Find(dom.CSS(CardSelector))
	if err != nil {
		return nil
	}

	var records []models.RawRecord
	for i, card := range cards {
		if ctx.Err() != nil {
			break
		}
		rec, err := readCard(card)
		if err != nil {
			if logger != nil {
				logger.Debug("skipping card", "index", i, "error", err)
			}
			continue
		}
		if rec.Title == "" && rec.PriceText == "" && rec.SKU == "" {
			continue
		}
		records = append(records, rec)
	}
	return records
}

var (
	cardTitle = dom.CSSList("h3", "h4", ".title", ".product-name", ".urun-adi", ".name")
	cardPrice = dom.CSSList(".price", ".fiyat", ".satis", ".satış", "[class*='price']")
	cardSKU   = dom.CSSList(".sku", ".kod", ".stok", ".barkod", "[class*='sku']", "[class*='kod']")
)

func readCard(card dom.Element) (rec models.RawRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("card extraction panicked: %v", r)
		}
	}()

	rec.Title = firstText(card, cardTitle)
	if rec.Title == "" {
		rec.Title = firstLine(text(card))
	}
	rec.PriceText = firstText(card, cardPrice)
	rec.SKU = firstText(card, cardSKU)

	if img, ok := dom.First(card, dom.CSS("img")); ok {
		rec.ImageURL = ImageURL(img, card)
	} else {
		rec.ImageURL = backgroundURL(card)
	}

	_, rec.CurrencyHint = parser.ParsePrice(rec.PriceText)
	return rec, nil
}

// ImageURL reads the image address from src or a lazy-load attribute,
// skipping inline data URLs, then from a CSS url() on the image or holder.
func ImageURL(img, holder dom.Element) string {
	for _, attr := range lazyImageAttrs {
		v, ok := img.Attr(attr)
		v = strings.TrimSpace(v)
		if !ok || v == "" || strings.HasPrefix(v, "data:image") {
			continue
		}
		return v
	}
	if u := backgroundURL(img); u != "" {
		return u
	}
	if holder != nil {
		return backgroundURL(holder)
	}
	return ""
}

func backgroundURL(el dom.Element) string {
	style, ok := el.Attr("style")
	if !ok {
		return ""
	}
	m := styleURL.FindStringSubmatch(style)
	if m == nil || strings.HasPrefix(m[1], "data:image") {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func firstText(el dom.Element, queries []dom.Query) string {
	for _, q := range queries {
		found, ok := dom.First(el, q)
		if !ok {
			continue
		}
		if t := text(found); t != "" {
			return t
		}
	}
	return ""
}

func text(el dom.Element) string {
	t, ok := el.Text()
	if !ok {
		return ""
	}
	return strings.TrimSpace(t)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
