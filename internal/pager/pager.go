// Package pager moves the price list to its next page.
package pager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/pricelist-scraper/internal/dom"
	"github.com/maltedev/pricelist-scraper/internal/locator"
)

var errNotClickable = errors.New("no clickable control")

// nextLabels are the captions of "next" controls. A control matches when
// its whole normalized label is one of them, optionally followed by an
// arrow, so product links such as "Nextion HMI" never count.
var nextLabels = []string{"Sonraki", "Sonraki Sayfa", "Sonraki sayfa", "İleri", "Next", "Next page", "Next Page"}

func labelPredicate() string {
	parts := []string{"normalize-space(.)='»'", "normalize-space(.)='›'"}
	for _, l := range nextLabels {
		parts = append(parts,
			fmt.Sprintf("normalize-space(.)='%s'", l),
			fmt.Sprintf("normalize-space(.)='%s »'", l),
			fmt.Sprintf("normalize-space(.)='%s ›'", l),
		)
	}
	return strings.Join(parts, " or ")
}

// textQueries match "next" controls by their label.
var textQueries = dom.XPaths(
	"//a["+labelPredicate()+"]",
	"//button["+labelPredicate()+"]",
	"//li[contains(@class, 'next')]/a",
)

// attrQueries match "next" controls by their attributes.
var attrQueries = dom.CSSList(
	"a[rel='next']",
	"a[aria-label*='Sonraki']",
	"button[aria-label*='Sonraki']",
	"a[aria-label*='Next']",
	"button[aria-label*='Next']",
	"li.next a",
)

type Timing struct {
	NumberTimeout time.Duration
	TextTimeout   time.Duration
	AttrTimeout   time.Duration
	ScrollPause   time.Duration
	AfterClick    time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		NumberTimeout: 3 * time.Second,
		TextTimeout:   4 * time.Second,
		AttrTimeout:   3 * time.Second,
		ScrollPause:   300 * time.Millisecond,
		AfterClick:    time.Second,
	}
}

type Pager struct {
	session  dom.Session
	resolver *locator.Resolver
	timing   Timing
	logger   *slog.Logger
}

func New(resolver *locator.Resolver, timing Timing, logger *slog.Logger) *Pager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pager{
		session:  resolver.Session(),
		resolver: resolver,
		timing:   timing,
		logger:   logger.With("component", "pager"),
	}
}

// Advance clicks through to page current+1. A numbered control is
// preferred over generic "next" controls. False means no control could be
// clicked, which is read as the end of the list.
func (p *Pager) Advance(ctx context.Context, current int) bool {
	next := current + 1

	p.scrollToBottom(ctx)
	number := dom.XPath(fmt.Sprintf("//a[normalize-space(text())='%d'] | //button[normalize-space(text())='%d']", next, next))
	if p.click(ctx, number, p.timing.NumberTimeout) {
		p.logger.Debug("advanced by page number", "page", next)
		return true
	}

	for _, q := range textQueries {
		if p.click(ctx, q, p.timing.TextTimeout) {
			p.logger.Debug("advanced by next label", "page", next, "query", q.String())
			return true
		}
	}

	for _, q := range attrQueries {
		if p.click(ctx, q, p.timing.AttrTimeout) {
			p.logger.Debug("advanced by next attribute", "page", next, "query", q.String())
			return true
		}
	}

	return false
}

func (p *Pager) click(ctx context.Context, q dom.Query, timeout time.Duration) bool {
	m, ok := p.resolver.Resolve(ctx, []dom.Query{q}, timeout)
	if !ok {
		return false
	}

	err := p.resolver.WithinAll(m, func(els []dom.Element) error {
		for _, el := range els {
			if !clickable(el) {
				continue
			}
			return el.ForceClick()
		}
		return errNotClickable
	})
	if err != nil {
		p.logger.Debug("pager control not clicked", "query", q.String(), "error", err)
		return false
	}

	dom.Sleep(ctx, p.timing.AfterClick)
	return true
}

// clickable rejects hidden and disabled controls, such as a greyed out
// "next" on the last page.
func clickable(el dom.Element) bool {
	if !el.Visible() {
		return false
	}
	if _, ok := el.Attr("disabled"); ok {
		return false
	}
	if v, _ := el.Attr("aria-disabled"); strings.EqualFold(v, "true") {
		return false
	}
	if class, _ := el.Attr("class"); containsWord(class, "disabled") {
		return false
	}
	return true
}

func containsWord(list, word string) bool {
	for _, f := range strings.Fields(list) {
		if strings.EqualFold(f, word) {
			return true
		}
	}
	return false
}

func (p *Pager) scrollToBottom(ctx context.Context) {
	h, err := p.session.ScrollHeight()
	if err != nil {
		return
	}
	if err := p.session.ScrollTo(h); err != nil {
		return
	}
	dom.Sleep(ctx, p.timing.ScrollPause)
}
