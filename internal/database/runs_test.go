package database

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/pricelist-scraper/internal/models"
)

func TestRunRepository_UpsertProducts(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRunRepository(db)

	first := models.NewRunResult()
	first.Finish(models.RunCompleted)

	var added int
	err := db.Transaction(ctx, func(tx pgx.Tx) error {
		if err := repo.InsertRunWithTx(ctx, tx, first); err != nil {
			return err
		}
		var err error
		added, err = repo.UpsertProductsWithTx(ctx, tx, first.ID, []models.Product{
			{SKU: "A1", Title: "Kablo", Price: 12.5, Currency: "TRY"},
			{SKU: "B2", Title: "Priz", Price: 3, Currency: "USD"},
		})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	second := models.NewRunResult()
	second.Finish(models.RunCompleted)

	err = db.Transaction(ctx, func(tx pgx.Tx) error {
		if err := repo.InsertRunWithTx(ctx, tx, second); err != nil {
			return err
		}
		var err error
		added, err = repo.UpsertProductsWithTx(ctx, tx, second.ID, []models.Product{
			{SKU: "A1", Title: "Kablo 2m", Price: 14, Currency: "TRY"},
			{SKU: "C3", Title: "Sigorta", Price: 7, Currency: "EUR"},
		})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	products, err := repo.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 3)
	assert.Equal(t, "Kablo 2m", products[0].Title)
	assert.Equal(t, 14.0, products[0].Price)

	last, err := repo.LastRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, last.ID)
	assert.Equal(t, models.RunCompleted, last.Status)
	assert.WithinDuration(t, second.FinishedAt, last.FinishedAt, time.Millisecond)
}

func TestRunRepository_RollbackKeepsCatalogue(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRunRepository(db)
	run := models.NewRunResult()
	run.Finish(models.RunCompleted)

	err := db.Transaction(ctx, func(tx pgx.Tx) error {
		if _, err := repo.UpsertProductsWithTx(ctx, tx, run.ID, []models.Product{{SKU: "X", Title: "x", Currency: "TRY"}}); err != nil {
			return err
		}
		return pgx.ErrTxClosed
	})
	assert.Error(t, err)

	products, err := repo.ListProducts(ctx)
	require.NoError(t, err)
	assert.Empty(t, products)
}
