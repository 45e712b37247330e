package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/maltedev/pricelist-scraper/internal/assets"
	"github.com/maltedev/pricelist-scraper/internal/storage"
)

func newImagesCmd(root *rootFlags) *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "images",
		Short: "Downloads missing product images for the saved products.json.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := root.setup(cmd)
			if err != nil {
				return err
			}
			if workers > 0 {
				cfg.Assets.Workers = workers
			}

			store, err := storage.NewProductStore(cfg.Output.Dir)
			if err != nil {
				return err
			}
			products, err := store.Load()
			if err != nil {
				return fmt.Errorf("failed to load products: %w", err)
			}

			fetcher, err := assets.New(assets.Options{
				Dir:     filepath.Join(cfg.Output.Dir, downloadsDir),
				BaseURL: cfg.Portal.BaseURL + "/",
				Workers: cfg.Assets.Workers,
				Timeout: cfg.Assets.Timeout,
				RateMin: cfg.Assets.RateMin,
				RateMax: cfg.Assets.RateMax,
				Retries: cfg.Assets.Retries,
			}, log)
			if err != nil {
				return err
			}

			stats := fetcher.FetchAll(cmd.Context(), products)
			renderImages(cmd.OutOrStdout(), len(products), stats)
			return nil
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "Parallel downloads (default $ASSETS_WORKERS or 1)")
	return cmd
}
