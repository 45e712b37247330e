package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/pricelist-scraper/internal/models"
)

// RunRepository persists scrape runs and the product catalogue they feed.
type RunRepository struct {
	db *DB
}

func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// InsertRunWithTx records one finished run.
func (r *RunRepository) InsertRunWithTx(ctx context.Context, tx pgx.Tx, run *models.RunResult) error {
	query := `
		INSERT INTO scrape_runs (
			id, status, stop_reason, pages, raw_records, products,
			images_saved, images_skipped, images_failed, error,
			started_at, finished_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)`

	_, err := tx.Exec(ctx, query,
		run.ID, string(run.Status), string(run.StopReason), run.Pages, run.RawRecords, run.Products,
		run.Images.Saved, run.Images.Skipped, run.Images.Failed, run.Error,
		run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// UpsertProductsWithTx writes products keyed by SKU and reports how many of
// them were not in the catalogue before.
func (r *RunRepository) UpsertProductsWithTx(ctx context.Context, tx pgx.Tx, runID uuid.UUID, products []models.Product) (int, error) {
	if len(products) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO products (
			sku, title, image_url, stock, kdv, birim, price, currency, last_run_id
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		ON CONFLICT (sku) DO UPDATE SET
			title = EXCLUDED.title,
			image_url = EXCLUDED.image_url,
			stock = EXCLUDED.stock,
			kdv = EXCLUDED.kdv,
			birim = EXCLUDED.birim,
			price = EXCLUDED.price,
			currency = EXCLUDED.currency,
			last_run_id = EXCLUDED.last_run_id,
			updated_at = NOW()
		RETURNING (xmax = 0) AS inserted`

	batch := &pgx.Batch{}
	for _, p := range products {
		batch.Queue(query, p.SKU, p.Title, p.ImageURL, p.Stock, p.KDV, p.Birim, p.Price, p.Currency, runID)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	added := 0
	for _, p := range products {
		var inserted bool
		if err := results.QueryRow().Scan(&inserted); err != nil {
			return 0, fmt.Errorf("failed to upsert product %s: %w", p.SKU, err)
		}
		if inserted {
			added++
		}
	}
	return added, nil
}

// ListProducts returns the catalogue ordered by SKU.
func (r *RunRepository) ListProducts(ctx context.Context) ([]models.Product, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT image_url, sku, title, stock, kdv, birim, price, currency
		FROM products
		ORDER BY sku`)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ImageURL, &p.SKU, &p.Title, &p.Stock, &p.KDV, &p.Birim, &p.Price, &p.Currency); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return products, nil
}

// LastRun returns the most recently finished run, or pgx.ErrNoRows.
func (r *RunRepository) LastRun(ctx context.Context) (*models.RunResult, error) {
	run := &models.RunResult{}
	var status, stopReason string
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, status, stop_reason, pages, raw_records, products,
			images_saved, images_skipped, images_failed, error,
			started_at, finished_at
		FROM scrape_runs
		ORDER BY finished_at DESC
		LIMIT 1`).Scan(
		&run.ID, &status, &stopReason, &run.Pages, &run.RawRecords, &run.Products,
		&run.Images.Saved, &run.Images.Skipped, &run.Images.Failed, &run.Error,
		&run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get last run: %w", err)
	}
	run.Status = models.RunStatus(status)
	run.StopReason = models.StopReason(stopReason)
	return run, nil
}
