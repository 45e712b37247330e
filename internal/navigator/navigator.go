// Package navigator moves a signed-in session to the price list.
package navigator

import (
	"context"
	"log/slog"
	"time"

	"github.com/maltedev/pricelist-scraper/internal/dom"
	"github.com/maltedev/pricelist-scraper/internal/locator"
)

// ContentQueries signal a rendered price list: table rows or product cards.
var ContentQueries = []dom.Query{
	dom.CSS("table tr"),
	dom.CSS(".product, .urun, .card, .product-card"),
}

var menuQueries = dom.XPaths(
	"//a[contains(., 'Fiyat Listesi')]",
	"//a[contains(., 'Fiyat Teklifi')]",
	"//button[contains(., 'Fiyat Listesi') or contains(., 'Fiyat Teklifi')]",
	"//span[contains(., 'Fiyat Listesi') or contains(., 'Fiyat Teklifi')]",
)

type Timing struct {
	MenuTimeout    time.Duration
	ContentTimeout time.Duration
	Interval       time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		MenuTimeout:    6 * time.Second,
		ContentTimeout: 20 * time.Second,
		Interval:       250 * time.Millisecond,
	}
}

type Navigator struct {
	session    dom.Session
	resolver   *locator.Resolver
	directURLs []string
	timing     Timing
	logger     *slog.Logger
}

func New(resolver *locator.Resolver, directURLs []string, timing Timing, logger *slog.Logger) *Navigator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Navigator{
		session:    resolver.Session(),
		resolver:   resolver,
		directURLs: directURLs,
		timing:     timing,
		logger:     logger.With("component", "navigator"),
	}
}

// GotoPriceList prefers the portal's own menu and falls back to the direct
// addresses. It returns false when no price list content shows up; that is
// not an error, the caller decides to stop the run.
func (n *Navigator) GotoPriceList(ctx context.Context) bool {
	n.logger.Info("navigating to price list")

	if n.clickMenu(ctx) {
		if n.WaitForContent(ctx, n.timing.ContentTimeout) {
			n.logger.Info("price list opened from menu")
			return true
		}
		n.logger.Warn("menu click did not show the price list, trying direct addresses")
	}

	for _, url := range n.directURLs {
		if ctx.Err() != nil {
			return false
		}
		if err := n.session.Navigate(ctx, url); err != nil {
			n.logger.Warn("direct navigation failed", "url", url, "error", err)
			continue
		}
		if n.WaitForContent(ctx, n.timing.ContentTimeout) {
			n.logger.Info("price list opened", "url", url)
			return true
		}
	}

	n.logger.Error("price list not found")
	return false
}

func (n *Navigator) clickMenu(ctx context.Context) bool {
	for _, q := range menuQueries {
		if m, ok := n.resolver.ForceClick(ctx, []dom.Query{q}, n.timing.MenuTimeout); ok {
			n.logger.Debug("menu entry clicked", "frame", m.Frame.String(), "query", m.Query.String())
			return true
		}
	}
	return false
}

// WaitForContent polls the root document for table rows or product cards.
func (n *Navigator) WaitForContent(ctx context.Context, timeout time.Duration) bool {
	return HasContent(ctx, n.session, timeout, n.timing.Interval)
}

// HasContent waits up to timeout for the price list content signal.
func HasContent(ctx context.Context, session dom.Session, timeout, interval time.Duration) bool {
	err := dom.Poll(ctx, timeout, interval, func() bool {
		found := false
		_ = session.Within(dom.MainFrame, func(scope dom.Scope) error {
			found = dom.Exists(scope, ContentQueries...)
			return nil
		})
		return found
	})
	return err == nil
}
