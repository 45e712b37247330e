// Package auth signs into the dealer portal without knowing its login form.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/pricelist-scraper/internal/config"
	"github.com/maltedev/pricelist-scraper/internal/dom"
	"github.com/maltedev/pricelist-scraper/internal/fold"
	"github.com/maltedev/pricelist-scraper/internal/locator"
)

var (
	ErrAuthFieldsNotFound = errors.New("login fields not found")
	ErrAuthTimeout        = errors.New("login did not complete in time")
)

// successKeywords appear on every page behind the login.
var successKeywords = []string{
	"fiyat", "liste", "ürün", "urun", "stok", "sepet", "çıkış", "cikis", "katalog",
}

type Timing struct {
	FieldTimeout    time.Duration
	RetryTimeout    time.Duration
	SubmitTimeout   time.Duration
	SuccessTimeout  time.Duration
	SuccessInterval time.Duration
	Pause           time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		FieldTimeout:    12 * time.Second,
		RetryTimeout:    6 * time.Second,
		SubmitTimeout:   3 * time.Second,
		SuccessTimeout:  30 * time.Second,
		SuccessInterval: 500 * time.Millisecond,
		Pause:           500 * time.Millisecond,
	}
}

type Authenticator struct {
	session  dom.Session
	resolver *locator.Resolver
	loginURL string
	diag     *Diagnostics
	timing   Timing
	logger   *slog.Logger
}

func New(resolver *locator.Resolver, loginURL string, diag *Diagnostics, timing Timing, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		session:  resolver.Session(),
		resolver: resolver,
		loginURL: loginURL,
		diag:     diag,
		timing:   timing,
		logger:   logger.With("component", "auth"),
	}
}

type resolvedField struct {
	group *fieldGroup
	match locator.Match
}

// Login fills and submits the login form, then waits until the portal shows
// a page that only exists behind the login.
func (a *Authenticator) Login(ctx context.Context, creds config.Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}

	a.logger.Info("opening login page", "url", a.loginURL)
	if err := a.session.Navigate(ctx, a.loginURL); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}

	a.dismissConsent(ctx)

	groups := []*fieldGroup{&accountField, &usernameField, &passwordField}
	fields, missing := a.resolveFields(ctx, groups, a.timing.FieldTimeout)
	if len(missing) > 0 {
		a.logger.Warn("login fields missing, retrying after scroll", "missing", missing)
		a.nudgeScroll(ctx)
		fields, missing = a.resolveFields(ctx, groups, a.timing.RetryTimeout)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(missing) > 0 {
		a.diag.Dump(a.session, "not_found")
		return fmt.Errorf("%w: %v", ErrAuthFieldsNotFound, missing)
	}

	values := map[string]string{
		accountField.name:  creds.AccountID,
		usernameField.name: creds.Username,
		passwordField.name: creds.Password,
	}
	for _, f := range fields {
		if err := a.fill(ctx, f, values[f.group.name]); err != nil {
			return fmt.Errorf("failed to fill %s field: %w", f.group.name, err)
		}
		a.logger.Debug("field filled", "field", f.group.name, "frame", f.match.Frame.String(), "query", f.match.Query.String())
	}

	a.submit(ctx, fields[len(fields)-1].match)

	err := dom.Poll(ctx, a.timing.SuccessTimeout, a.timing.SuccessInterval, func() bool {
		text, err := a.session.PageText()
		return err == nil && fold.ContainsAny(text, successKeywords...)
	})
	switch {
	case errors.Is(err, dom.ErrTimeout):
		a.diag.Dump(a.session, "post_submit")
		return fmt.Errorf("%w after %s", ErrAuthTimeout, a.timing.SuccessTimeout)
	case err != nil:
		return err
	}

	a.logger.Info("login succeeded")
	return nil
}

func (a *Authenticator) resolveFields(ctx context.Context, groups []*fieldGroup, timeout time.Duration) ([]resolvedField, []string) {
	var (
		found   []resolvedField
		missing []string
	)
	for _, g := range groups {
		m, ok := a.resolver.Resolve(ctx, g.queries, timeout)
		if !ok {
			missing = append(missing, g.name)
			continue
		}
		found = append(found, resolvedField{group: g, match: m})
	}
	return found, missing
}

func (a *Authenticator) fill(ctx context.Context, f resolvedField, value string) error {
	return a.resolver.Within(f.match, func(el dom.Element) error {
		_ = el.Clear()
		if err := el.Click(); err != nil {
			if err := el.ForceClick(); err != nil {
				return err
			}
		}
		dom.Sleep(ctx, a.timing.Pause/5)
		return el.Type(value)
	})
}

// submit clicks the first submit control found, one candidate at a time,
// and falls back to pressing Enter in the password field.
func (a *Authenticator) submit(ctx context.Context, password locator.Match) {
	for _, q := range submitQueries {
		if m, ok := a.resolver.ForceClick(ctx, []dom.Query{q}, a.timing.SubmitTimeout); ok {
			a.logger.Info("login submitted", "frame", m.Frame.String(), "query", m.Query.String())
			return
		}
	}

	a.logger.Info("no submit control found, pressing enter in password field")
	err := a.resolver.Within(password, func(el dom.Element) error {
		return el.Press("Enter")
	})
	if err != nil {
		a.logger.Warn("failed to submit with enter", "error", err)
	}
}

func (a *Authenticator) dismissConsent(ctx context.Context) {
	_ = a.session.Within(dom.MainFrame, func(scope dom.Scope) error {
		for _, q := range consentQueries {
			el, ok := dom.First(scope, q)
			if !ok {
				continue
			}
			if err := el.ForceClick(); err != nil {
				a.logger.Debug("consent click failed", "error", err)
				continue
			}
			dom.Sleep(ctx, a.timing.Pause)
		}
		return nil
	})
}

// nudgeScroll scrolls to the bottom and back to trigger lazy content.
func (a *Authenticator) nudgeScroll(ctx context.Context) {
	h, err := a.session.ScrollHeight()
	if err != nil {
		return
	}
	_ = a.session.ScrollTo(h)
	dom.Sleep(ctx, a.timing.Pause)
	_ = a.session.ScrollTo(0)
	dom.Sleep(ctx, a.timing.Pause)
}
