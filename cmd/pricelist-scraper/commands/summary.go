package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/maltedev/pricelist-scraper/internal/models"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

func renderRun(w io.Writer, run *models.RunResult) {
	t := newTable(w)
	t.AppendRows([]table.Row{
		{"Run", run.ID.String()},
		{"Status", run.Status},
		{"Stop reason", orDash(string(run.StopReason))},
		{"Pages", run.Pages},
		{"Raw records", run.RawRecords},
		{"Products", run.Products},
		{"Images saved", run.Images.Saved},
		{"Images skipped", run.Images.Skipped},
		{"Images failed", run.Images.Failed},
		{"Duration", run.Duration().Round(time.Second)},
	})
	if run.Error != "" {
		t.AppendRow(table.Row{"Error", run.Error})
	}
	t.Render()
}

func renderProducts(w io.Writer, products []models.Product, limit int) {
	t := newTable(w)
	t.AppendHeader(table.Row{"SKU", "Title", "Stock", "Price", "Currency", "Image"})

	shown := products
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for _, p := range shown {
		t.AppendRow(table.Row{p.SKU, p.Title, p.Stock, fmt.Sprintf("%.2f", p.Price), p.Currency, orDash(p.ImageURL)})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d of %d products", len(shown), len(products))})
	t.Render()
}

func renderImages(w io.Writer, products int, stats models.ImageStats) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Products", "Saved", "Skipped", "Failed"})
	t.AppendRow(table.Row{products, stats.Saved, stats.Skipped, stats.Failed})
	t.Render()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
