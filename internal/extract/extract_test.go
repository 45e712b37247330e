package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/pricelist-scraper/internal/dom"
	"github.com/maltedev/pricelist-scraper/internal/dom/snapshot"
	"github.com/maltedev/pricelist-scraper/internal/models"
)

func extractFrom(t *testing.T, markup string) []models.RawRecord {
	t.Helper()
	s, err := snapshot.New(markup)
	require.NoError(t, err)
	return New(s, nil).ExtractPage(context.Background())
}

func TestExtractPage_TableWithImageColumnHeader(t *testing.T) {
	records := extractFrom(t, `<html><body><table>
		<thead><tr><th>img</th><th>sku</th><th>title</th><th>stock</th><th>kdv</th><th>birim</th><th>price(TL)</th></tr></thead>
		<tbody><tr><td></td><td>A1</td><td>Bolt</td><td>10</td><td>%18</td><td>pcs</td><td>12,50 TL</td></tr></tbody>
	</table></body></html>`)

	require.Len(t, records, 1)
	assert.Equal(t, models.RawRecord{
		SKU:          "A1",
		Title:        "Bolt",
		Stock:        "10",
		KDV:          "%18",
		Birim:        "pcs",
		PriceText:    "12,50 TL",
		CurrencyHint: "TRY",
	}, records[0])
}

func TestExtractPage_ImageCellShiftsFields(t *testing.T) {
	records := extractFrom(t, `<html><body><table>
		<tr><th>Resim</th><th>Kod</th><th>Ürün</th><th>Stok</th><th>KDV</th><th>Birim</th><th>Fiyat USD</th></tr>
		<tr>
			<td><img src="data:image/gif;base64,R0lGOD" data-src="/img/a1.png"></td>
			<td>A1</td><td>Bolt</td><td>Var</td><td>%20</td><td>Adet</td><td>19.99</td>
		</tr>
		<tr>
			<td style="background-image: url('/img/b2.jpg')"><img></td>
			<td>B2</td><td>Somun</td><td>Yok</td><td>%20</td><td>Adet</td><td>3,50 €</td>
		</tr>
	</table></body></html>`)

	require.Len(t, records, 2)

	assert.Equal(t, "/img/a1.png", records[0].ImageURL)
	assert.Equal(t, "A1", records[0].SKU)
	assert.Equal(t, "Bolt", records[0].Title)
	assert.Equal(t, "Adet", records[0].Birim)
	// no row currency, header says USD
	assert.Equal(t, "USD", records[0].CurrencyHint)

	assert.Equal(t, "/img/b2.jpg", records[1].ImageURL)
	assert.Equal(t, "B2", records[1].SKU)
	assert.Equal(t, "EUR", records[1].CurrencyHint)
}

func TestExtractPage_TableWithoutImageColumn(t *testing.T) {
	records := extractFrom(t, `<html><body><table>
		<tr><th>Kod</th><th>Ürün</th><th>Stok</th><th>Fiyat</th></tr>
		<tr><td>K-1</td><td>Vana 1/2"</td><td>5</td><td>1.234,56</td></tr>
		<tr><td colspan="4">Toplam</td></tr>
		<tr><td>K-2</td><td>Dirsek</td><td>0</td><td>$4.10</td></tr>
	</table></body></html>`)

	require.Len(t, records, 2)
	assert.Equal(t, "K-1", records[0].SKU)
	assert.Equal(t, "Vana 1/2\"", records[0].Title)
	assert.Equal(t, "5", records[0].Stock)
	assert.Equal(t, "1.234,56", records[0].KDV)
	assert.Empty(t, records[0].Birim)
	assert.Equal(t, "1.234,56", records[0].PriceText)
	assert.Equal(t, "TRY", records[0].CurrencyHint)

	assert.Equal(t, "K-2", records[1].SKU)
	assert.Equal(t, "USD", records[1].CurrencyHint)
}

func TestExtractPage_SkipsLayoutTable(t *testing.T) {
	records := extractFrom(t, `<html><body>
		<table><tr><td>logo</td><td>menu</td></tr></table>
		<table>
			<tr><th>Kod</th><th>Ürün</th><th>Stok</th><th>KDV</th><th>Fiyat</th></tr>
			<tr><td>A</td><td>B</td><td>C</td><td>D</td><td>2,00 TL</td></tr>
		</table>
	</body></html>`)

	require.Len(t, records, 1)
	assert.Equal(t, "A", records[0].SKU)
}

func TestExtractPage_Cards(t *testing.T) {
	records := extractFrom(t, `<html><body><div class="grid">
		<div class="product-card">
			<img data-original="https://cdn.test/p/1.webp">
			<h4>Küresel Vana</h4>
			<span class="urun-kod">KV-100</span>
			<div class="fiyat">245,90 TL</div>
		</div>
		<div class="card">
			<div>Dirsek 90°</div>
			<div>Stokta</div>
			<span class="price-now">€ 3,10</span>
		</div>
		<div class="card"></div>
	</div></body></html>`)

	require.Len(t, records, 2)

	assert.Equal(t, "Küresel Vana", records[0].Title)
	assert.Equal(t, "KV-100", records[0].SKU)
	assert.Equal(t, "245,90 TL", records[0].PriceText)
	assert.Equal(t, "TRY", records[0].CurrencyHint)
	assert.Equal(t, "https://cdn.test/p/1.webp", records[0].ImageURL)

	assert.Equal(t, "Dirsek 90°", records[1].Title)
	assert.Equal(t, "€ 3,10", records[1].PriceText)
	assert.Equal(t, "EUR", records[1].CurrencyHint)
}

func TestExtractPage_NothingRecognised(t *testing.T) {
	assert.Empty(t, extractFrom(t, `<html><body><p>Kayıt bulunamadı</p></body></html>`))
}

func TestCards_SkipsPanickingCard(t *testing.T) {
	s := snapshot.MustNew(`<html><body>
		<div class="urun"><h3>Bozuk</h3></div>
		<div class="urun"><h3>Sağlam</h3><b class="fiyat">1,00 TL</b></div>
	</body></html>`)

	var records []models.RawRecord
	err := s.Within(dom.MainFrame, func(scope dom.Scope) error {
		records = Cards(context.Background(), &panickyScope{Scope: scope}, nil)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "Sağlam", records[0].Title)
}

// panickyScope wraps the first card in an element whose text read panics.
type panickyScope struct {
	dom.Scope
}

func (p *panickyScope) Find(q dom.Query) ([]dom.Element, error) {
	els, err := p.Scope.Find(q)
	if err != nil || len(els) == 0 {
		return els, err
	}
	els[0] = &panickyElement{Element: els[0]}
	return els, nil
}

type panickyElement struct {
	dom.Element
}

func (p *panickyElement) Find(dom.Query) ([]dom.Element, error) {
	panic("detached node")
}

func TestImageURL(t *testing.T) {
	s := snapshot.MustNew(`<html><body>
		<div id="h1"><img id="i1" src="/a.jpg" data-src="/b.jpg"></div>
		<div id="h2"><img id="i2" src="data:image/png;base64,AAA" data-lazy="/lazy.png"></div>
		<div id="h3" style="background:url(&quot;/bg.gif&quot;) no-repeat"><img id="i3" src="data:image/png;base64,AAA"></div>
		<div id="h4"><img id="i4"></div>
	</body></html>`)

	tests := []struct {
		holder string
		img    string
		want   string
	}{
		{"#h1", "#i1", "/a.jpg"},
		{"#h2", "#i2", "/lazy.png"},
		{"#h3", "#i3", "/bg.gif"},
		{"#h4", "#i4", ""},
	}

	for _, tt := range tests {
		t.Run(tt.img, func(t *testing.T) {
			err := s.Within(dom.MainFrame, func(scope dom.Scope) error {
				holder, ok := dom.First(scope, dom.CSS(tt.holder))
				require.True(t, ok)
				img, ok := dom.First(scope, dom.CSS(tt.img))
				require.True(t, ok)
				assert.Equal(t, tt.want, ImageURL(img, holder))
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestRead_ReportsLayout(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		want   Layout
	}{
		{"table", `<table><tr><th>Kod</th><th>Ad</th><th>Stok</th><th>Fiyat</th></tr><tr><td>A</td><td>B</td><td>1</td><td>2 TL</td></tr></table>`, LayoutTable},
		{"cards", `<div class="urun"><h3>Vida</h3><span class="fiyat">1 TL</span></div>`, LayoutCards},
		{"none", `<p>boş</p>`, LayoutNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := snapshot.MustNew(`<html><body>` + tt.markup + `</body></html>`)
			_, layout := New(s, nil).Read(context.Background())
			assert.Equal(t, tt.want, layout)
		})
	}
}
