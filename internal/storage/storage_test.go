package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/pricelist-scraper/internal/models"
)

var sample = []models.Product{
	{ImageURL: "https://cdn.test/a1.jpg?w=200&h=200", SKU: "A1", Title: "Bolt", Stock: "10", KDV: "%18", Birim: "pcs", Price: 12.5, Currency: "TRY"},
	{SKU: "Özel_Ürün_1", Title: "Özel Ürün #1, \"büyük\"", Price: 19.99, Currency: "USD"},
}

func TestSaveProducts_CSV(t *testing.T) {
	ps, err := NewProductStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, ps.SaveProducts(sample))

	data, err := os.ReadFile(ps.CSVPath())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "image_url,sku,title,stock,kdv,birim,price,currency", lines[0])

	var back []models.Product
	require.NoError(t, gocsv.UnmarshalBytes(data, &back))
	assert.Equal(t, sample, back)
}

func TestSaveProducts_JSON(t *testing.T) {
	ps, err := NewProductStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, ps.SaveProducts(sample))

	data, err := os.ReadFile(ps.JSONPath())
	require.NoError(t, err)
	text := string(data)

	assert.True(t, strings.HasPrefix(text, "[\n  {\n    \"image_url\""))
	assert.Contains(t, text, "Özel Ürün")
	assert.Contains(t, text, "?w=200&h=200")
	assert.NotContains(t, text, `\u00`)

	loaded, err := ps.Load()
	require.NoError(t, err)
	assert.Equal(t, sample, loaded)
}

func TestSaveProducts_ReplacesAndLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	ps, err := NewProductStore(dir)
	require.NoError(t, err)

	require.NoError(t, ps.SaveProducts(sample))
	require.NoError(t, ps.SaveProducts(sample[:1]))

	loaded, err := ps.Load()
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
	assert.Equal(t, sample[:1], ps.Products())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{CSVFile, JSONFile}, names)
}

func TestSaveProducts_EmptyIsArray(t *testing.T) {
	ps, err := NewProductStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, ps.SaveProducts(nil))

	data, err := os.ReadFile(ps.JSONPath())
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestLoad_Missing(t *testing.T) {
	ps, err := NewProductStore(filepath.Join(t.TempDir(), "nested", "out"))
	require.NoError(t, err)

	_, err = ps.Load()
	assert.True(t, os.IsNotExist(err))
}
