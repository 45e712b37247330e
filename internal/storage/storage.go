// Package storage writes the product dataset to the output directory.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gocarina/gocsv"

	"github.com/maltedev/pricelist-scraper/internal/models"
)

const (
	CSVFile  = "products.csv"
	JSONFile = "products.json"
)

// ProductStore keeps the last written dataset in memory next to its files.
type ProductStore struct {
	mu       sync.RWMutex
	products []models.Product
	dir      string
}

func NewProductStore(dir string) (*ProductStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &ProductStore{dir: dir}, nil
}

func (ps *ProductStore) CSVPath() string  { return filepath.Join(ps.dir, CSVFile) }
func (ps *ProductStore) JSONPath() string { return filepath.Join(ps.dir, JSONFile) }

// SaveProducts replaces both dataset files. Each file is written to a
// temporary name first and renamed into place.
func (ps *ProductStore) SaveProducts(products []models.Product) error {
	if products == nil {
		products = []models.Product{}
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	csvData, err := gocsv.MarshalBytes(&products)
	if err != nil {
		return fmt.Errorf("failed to encode csv: %w", err)
	}
	if err := writeAtomic(ps.CSVPath(), csvData); err != nil {
		return err
	}

	jsonData, err := encodeJSON(products)
	if err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	if err := writeAtomic(ps.JSONPath(), jsonData); err != nil {
		return err
	}

	ps.products = append([]models.Product(nil), products...)
	return nil
}

// Products returns the dataset held in memory.
func (ps *ProductStore) Products() []models.Product {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	return append([]models.Product(nil), ps.products...)
}

// Load reads products.json back, for example to re-run image downloads.
func (ps *ProductStore) Load() ([]models.Product, error) {
	data, err := os.ReadFile(ps.JSONPath())
	if err != nil {
		return nil, err
	}

	var products []models.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", JSONFile, err)
	}

	ps.mu.Lock()
	ps.products = products
	ps.mu.Unlock()

	return products, nil
}

// encodeJSON indents by two spaces and keeps non-ASCII and HTML characters
// literal.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeAtomic(path string, data []byte) error {
	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpFile, path); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to move %s into place: %w", filepath.Base(path), err)
	}
	return nil
}
