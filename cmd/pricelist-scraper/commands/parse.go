package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/maltedev/pricelist-scraper/internal/dataset"
	"github.com/maltedev/pricelist-scraper/internal/dom/snapshot"
	"github.com/maltedev/pricelist-scraper/internal/extract"
	"github.com/maltedev/pricelist-scraper/internal/storage"
)

type parseFlags struct {
	write bool
	limit int
}

func newParseCmd(root *rootFlags) *cobra.Command {
	flags := &parseFlags{}

	cmd := &cobra.Command{
		Use:   "parse <page.html>",
		Short: "Extracts and normalizes products from a saved price list page.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := root.setup(cmd)
			if err != nil {
				return err
			}

			markup, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read page: %w", err)
			}
			session, err := snapshot.New(string(markup))
			if err != nil {
				return fmt.Errorf("failed to parse page: %w", err)
			}

			raw, layout := extract.New(session, log).Read(cmd.Context())
			products := dataset.Normalize(raw)
			log.Info("page parsed", "file", args[0], "layout", layout, "records", len(raw), "products", len(products))

			if flags.write && len(products) > 0 {
				store, err := storage.NewProductStore(cfg.Output.Dir)
				if err != nil {
					return err
				}
				if err := store.SaveProducts(products); err != nil {
					return fmt.Errorf("failed to save products: %w", err)
				}
				log.Info("dataset written", "csv", store.CSVPath(), "json", store.JSONPath())
			}

			renderProducts(cmd.OutOrStdout(), products, flags.limit)
			return nil
		},
	}

	cmd.Flags().BoolVar(&flags.write, "write", false, "Write products.csv and products.json to the output directory")
	cmd.Flags().IntVar(&flags.limit, "limit", 20, "Rows to print, 0 for all")
	return cmd
}
