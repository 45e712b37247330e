package commands

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/pricelist-scraper/internal/config"
	"github.com/maltedev/pricelist-scraper/internal/models"
	"github.com/maltedev/pricelist-scraper/internal/storage"
)

const savedPage = `<html><body><table>
	<tr><th>Resim</th><th>Kod</th><th>Ürün</th><th>Stok</th><th>KDV</th><th>Birim</th><th>Fiyat</th></tr>
	<tr><td><img src="/img/a1.png"></td><td>A1</td><td>Kablo</td><td>Var</td><td>%20</td><td>Adet</td><td>12,50 TL</td></tr>
	<tr><td></td><td>B2</td><td>Priz</td><td>Yok</td><td>%20</td><td>Adet</td><td>$3.10</td></tr>
</table></body></html>`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseCommand_WritesDataset(t *testing.T) {
	dir := t.TempDir()
	page := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(page, []byte(savedPage), 0644))

	out, err := execute(t, "parse", page, "--output-dir", dir, "--write")
	require.NoError(t, err)
	assert.Contains(t, out, "A1")
	assert.Contains(t, out, "12.50")

	products, err := func() ([]models.Product, error) {
		store, err := storage.NewProductStore(dir)
		if err != nil {
			return nil, err
		}
		return store.Load()
	}()
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "A1", products[0].SKU)
	assert.Equal(t, "TRY", products[0].Currency)
	assert.Equal(t, "USD", products[1].Currency)
	assert.FileExists(t, filepath.Join(dir, storage.CSVFile))
}

func TestParseCommand_DryRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	page := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(page, []byte(savedPage), 0644))

	_, err := execute(t, "parse", page, "--output-dir", dir)
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dir, storage.JSONFile))
}

func TestParseCommand_MissingFile(t *testing.T) {
	_, err := execute(t, "parse", filepath.Join(t.TempDir(), "nope.html"))
	assert.ErrorContains(t, err, "failed to read page")
}

func TestRunCommand_MissingCredentials(t *testing.T) {
	t.Setenv("GENCER_MUSTERI", "")
	t.Setenv("GENCER_KULLANICI", "user")
	t.Setenv("GENCER_SIFRE", "")
	dir := t.TempDir()

	_, err := execute(t, "run", "--output-dir", dir)
	require.ErrorIs(t, err, config.ErrMissingCredentials)
	assert.ErrorContains(t, err, "GENCER_MUSTERI")
	assert.ErrorContains(t, err, "GENCER_SIFRE")
	assert.NoFileExists(t, filepath.Join(dir, storage.JSONFile))
}

func TestImagesCommand_DownloadsFromSavedDataset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("image:" + r.URL.Path))
	}))
	defer srv.Close()

	dir := t.TempDir()
	store, err := storage.NewProductStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.SaveProducts([]models.Product{
		{SKU: "A1", ImageURL: srv.URL + "/a1.png", Currency: "TRY"},
		{SKU: "B2", Currency: "TRY"},
	}))

	out, err := execute(t, "images", "--output-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, strings.ToUpper(out), "SAVED")

	data, err := os.ReadFile(filepath.Join(dir, downloadsDir, "A1.png"))
	require.NoError(t, err)
	assert.Equal(t, "image:/a1.png", string(data))
}

func TestRenderRun(t *testing.T) {
	run := models.NewRunResult()
	run.Pages = 3
	run.Finish(models.RunNavigationFailed)

	var buf bytes.Buffer
	renderRun(&buf, run)

	out := buf.String()
	assert.Contains(t, out, run.ID.String())
	assert.Contains(t, out, "navigation_failed")
	assert.Contains(t, out, "Pages")
}

func TestRenderProducts_Limit(t *testing.T) {
	products := []models.Product{{SKU: "A"}, {SKU: "B"}, {SKU: "C"}}

	var buf bytes.Buffer
	renderProducts(&buf, products, 2)

	out := buf.String()
	assert.Contains(t, out, "A")
	assert.NotContains(t, out, "│ C ")
}
