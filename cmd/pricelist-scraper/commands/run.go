package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/maltedev/pricelist-scraper/internal/api"
	"github.com/maltedev/pricelist-scraper/internal/assets"
	"github.com/maltedev/pricelist-scraper/internal/browser"
	"github.com/maltedev/pricelist-scraper/internal/config"
	"github.com/maltedev/pricelist-scraper/internal/database"
	"github.com/maltedev/pricelist-scraper/internal/events"
	"github.com/maltedev/pricelist-scraper/internal/metrics"
	"github.com/maltedev/pricelist-scraper/internal/scraper"
	"github.com/maltedev/pricelist-scraper/internal/storage"
)

const (
	downloadsDir = "_downloads"
	drainTimeout = time.Minute
)

type runFlags struct {
	maxPages   int
	headed     bool
	noImages   bool
	statusAddr string
}

func newRunCmd(root *rootFlags) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Logs in, walks every price list page and writes the dataset and images.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := root.setup(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("max-pages") {
				cfg.Scraper.MaxPages = flags.maxPages
			}
			if flags.headed {
				cfg.Browser.Headless = false
			}
			if flags.noImages {
				cfg.Assets.Enabled = false
			}
			if flags.statusAddr != "" {
				cfg.Status.Addr = flags.statusAddr
			}
			return runJob(cmd, cfg, log)
		},
	}

	cmd.Flags().IntVar(&flags.maxPages, "max-pages", 0, "Upper bound on price list pages (default $SCRAPER_MAX_PAGES or 149)")
	cmd.Flags().BoolVar(&flags.headed, "headed", false, "Show the browser window")
	cmd.Flags().BoolVar(&flags.noImages, "no-images", false, "Skip image downloads")
	cmd.Flags().StringVar(&flags.statusAddr, "status-addr", "", "Serve /health, /metrics and /api/v1 on this address while running")
	return cmd
}

func runJob(cmd *cobra.Command, cfg *config.Config, log *slog.Logger) error {
	if err := cfg.Credentials.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Scraper.RunTimeout)
	defer cancel()

	store, err := storage.NewProductStore(cfg.Output.Dir)
	if err != nil {
		return err
	}
	downloads := filepath.Join(cfg.Output.Dir, downloadsDir)

	m := metrics.New()
	tracker := api.NewTracker()

	var (
		publisher *events.Publisher
		relay     *database.Relay
		catalog   *database.RunRepository
	)
	if cfg.Database.URL != "" {
		db, err := database.New(ctx, database.Config{
			URL:      cfg.Database.URL,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		if err := db.EnsureSchema(ctx); err != nil {
			return err
		}
		publisher = events.NewPublisher(db, cfg.Redis.Stream, log)
		catalog = database.NewRunRepository(db)

		if cfg.Redis.Addr != "" {
			redisClient := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer redisClient.Close()

			if err := redisClient.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("failed to connect to Redis: %w", err)
			}
			relay = database.NewRelay(db, redisClient, log, database.RelayConfig{
				Stream: cfg.Redis.Stream,
			})
		}
	}

	// Leftovers from earlier runs are published while this one scrapes.
	stopRelay := func() {}
	if relay != nil {
		relayCtx, cancelRelay := context.WithCancel(ctx)
		relayDone := make(chan struct{})
		go func() {
			defer close(relayDone)
			_ = relay.Start(relayCtx)
		}()
		stopRelay = func() {
			cancelRelay()
			<-relayDone
		}
	}
	defer stopRelay()

	if cfg.Status.Addr != "" {
		handlers := api.NewHandlers(tracker, store, log)
		if relay != nil {
			handlers.WithOutbox(relay)
		}
		if catalog != nil {
			handlers.WithCatalog(catalog)
		}
		server := api.NewServer(cfg.Status.Addr, api.NewRouter(handlers, m.Registry), cfg.Status.ShutdownTimeout, log)

		serverCtx, stopServer := context.WithCancel(context.WithoutCancel(ctx))
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := server.Run(serverCtx); err != nil {
				log.Error("status server failed", "error", err)
			}
		}()
		defer func() {
			stopServer()
			<-done
		}()
	}

	b, err := browser.New(browserOptions(cfg))
	if err != nil {
		return fmt.Errorf("failed to initialize browser: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn("failed to close browser", "error", err)
		}
	}()

	session, err := b.NewSession()
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Debug("failed to close page", "error", err)
		}
	}()

	service := scraper.NewService(session, store, scraper.OptionsFromConfig(cfg, downloads), log).
		WithMetrics(m).
		WithProgress(tracker.Update)
	if publisher != nil {
		service.WithSink(publisher)
	}
	if cfg.Assets.Enabled {
		fetcher, err := assets.New(assets.Options{
			Dir:     downloads,
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
		service.WithImages(fetcher.WithMetrics(m))
	}

	run, runErr := service.Run(ctx, cfg.Credentials)

	if relay != nil {
		stopRelay()
		drainCtx, cancelDrain := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
		published, err := relay.Drain(drainCtx)
		cancelDrain()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			log.Error("failed to drain outbox", "error", err)
		}
		log.Info("outbox drained", "published", published)
	}

	if run != nil {
		renderRun(cmd.OutOrStdout(), run)
	}
	return runErr
}

func browserOptions(cfg *config.Config) *browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = cfg.Browser.Headless
	opts.Timeout = cfg.Browser.Timeout
	opts.ViewportWidth = cfg.Browser.ViewportWidth
	opts.ViewportHeight = cfg.Browser.ViewportHeight
	opts.AcceptLanguage = cfg.Browser.AcceptLanguage
	opts.TimezoneID = cfg.Browser.TimezoneID
	opts.Locale = cfg.Browser.Locale
	opts.ProxyServer = cfg.Browser.ProxyServer
	return opts
}
