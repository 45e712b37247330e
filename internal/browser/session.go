package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/maltedev/pricelist-scraper/internal/dom"
)

// Session is a playwright page exposed as a dom.Session. Frames are
// addressed by their index among the main frame's children, re-read on every
// call because the portal swaps iframes while it loads.
type Session struct {
	page          playwright.Page
	browser       *Browser
	actionTimeout time.Duration
	logger        *slog.Logger
}

var _ dom.Session = (*Session)(nil)

func (s *Session) Close() error {
	return s.page.Close()
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.browser.NavigateWithRetry(ctx, s.page, url, 3)
}

func (s *Session) Frames() ([]dom.FrameID, error) {
	children := s.page.MainFrame().ChildFrames()
	ids := make([]dom.FrameID, len(children))
	for i := range children {
		ids[i] = dom.FrameID(i)
	}
	return ids, nil
}

func (s *Session) Within(frame dom.FrameID, fn func(dom.Scope) error) error {
	target := s.page.MainFrame()
	if frame != dom.MainFrame {
		children := target.ChildFrames()
		if int(frame) < 0 || int(frame) >= len(children) {
			return fmt.Errorf("%s: %w", frame, dom.ErrNoSuchFrame)
		}
		target = children[frame]
	}
	// Playwright frames are handles rather than ambient state, so leaving
	// the scope needs no explicit switch back to the root document.
	return fn(&frameScope{frame: target, session: s})
}

func (s *Session) ScrollTo(y int) error {
	_, err := s.page.Evaluate(`y => window.scrollTo(0, y)`, y)
	return err
}

func (s *Session) ScrollHeight() (int, error) {
	v, err := s.page.Evaluate(`() => document.body ? document.body.scrollHeight : 0`)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("unexpected scroll height %T", v)
	}
}

func (s *Session) PageText() (string, error) {
	return s.page.Locator("body").InnerText(playwright.LocatorInnerTextOptions{
		Timeout: s.timeoutMS(),
	})
}

func (s *Session) Content() (string, error) {
	return s.page.Content()
}

func (s *Session) Screenshot(path string) error {
	_, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	return err
}

func (s *Session) timeoutMS() *float64 {
	return playwright.Float(float64(s.actionTimeout.Milliseconds()))
}

func selector(q dom.Query) string {
	if q.Kind == dom.KindCSS {
		return "css=" + q.Expr
	}
	return "xpath=" + q.Expr
}

type frameScope struct {
	frame   playwright.Frame
	session *Session
}

func (f *frameScope) Find(q dom.Query) ([]dom.Element, error) {
	return wrapAll(f.frame.Locator(selector(q)), f.session)
}

func wrapAll(loc playwright.Locator, s *Session) ([]dom.Element, error) {
	all, err := loc.All()
	if err != nil {
		return nil, err
	}
	out := make([]dom.Element, 0, len(all))
	for _, l := range all {
		out = append(out, &Element{loc: l, session: s})
	}
	return out, nil
}

// Element is one resolved playwright locator.
type Element struct {
	loc     playwright.Locator
	session *Session
}

// Find evaluates q below the element. XPath expressions starting with "/"
// are made relative by playwright when chained.
func (e *Element) Find(q dom.Query) ([]dom.Element, error) {
	return wrapAll(e.loc.Locator(selector(q)), e.session)
}

func (e *Element) Text() (string, bool) {
	text, err := e.loc.InnerText(playwright.LocatorInnerTextOptions{Timeout: e.session.timeoutMS()})
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(text), true
}

// Attr reads the attribute in the page so that a missing attribute (null)
// and an empty one stay distinguishable.
func (e *Element) Attr(name string) (string, bool) {
	v, err := e.loc.Evaluate(`(el, name) => el.getAttribute(name)`, name,
		playwright.LocatorEvaluateOptions{Timeout: e.session.timeoutMS()})
	if err != nil || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (e *Element) Visible() bool {
	ok, err := e.loc.IsVisible()
	return err == nil && ok
}

func (e *Element) Click() error {
	return e.loc.Click(playwright.LocatorClickOptions{Timeout: e.session.timeoutMS()})
}

func (e *Element) ForceClick() error {
	_, err := e.loc.Evaluate(`el => el.click()`, nil, playwright.LocatorEvaluateOptions{Timeout: e.session.timeoutMS()})
	return err
}

func (e *Element) Clear() error {
	return e.loc.Clear(playwright.LocatorClearOptions{Timeout: e.session.timeoutMS()})
}

func (e *Element) Type(text string) error {
	return e.loc.PressSequentially(text, playwright.LocatorPressSequentiallyOptions{
		Delay:   playwright.Float(25),
		Timeout: e.session.timeoutMS(),
	})
}

func (e *Element) Press(key string) error {
	return e.loc.Press(key, playwright.LocatorPressOptions{Timeout: e.session.timeoutMS()})
}
