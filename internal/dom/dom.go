// Package dom describes the browser capabilities the scraper consumes.
//
// Everything that touches a live page goes through Session, Scope and
// Element, so the locator, authentication, navigation, extraction and paging
// logic can run unchanged against playwright or against a static snapshot.
package dom

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoSuchFrame = errors.New("frame no longer present")
	ErrTimeout     = errors.New("timed out waiting for condition")
)

// QueryKind selects the query language of an expression.
type QueryKind int

const (
	KindXPath QueryKind = iota
	KindCSS
)

// Query is one candidate expression used to locate elements.
type Query struct {
	Kind QueryKind
	Expr string
}

func XPath(expr string) Query { return Query{Kind: KindXPath, Expr: expr} }

func CSS(expr string) Query { return Query{Kind: KindCSS, Expr: expr} }

func (q Query) String() string {
	if q.Kind == KindCSS {
		return "css=" + q.Expr
	}
	return "xpath=" + q.Expr
}

// XPaths wraps a list of XPath expressions into queries, keeping their order.
func XPaths(exprs ...string) []Query {
	out := make([]Query, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, XPath(e))
	}
	return out
}

// CSSList wraps a list of CSS selectors into queries, keeping their order.
func CSSList(exprs ...string) []Query {
	out := make([]Query, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, CSS(e))
	}
	return out
}

// FrameID identifies a document context. MainFrame is the root document,
// non-negative values index the embedded frames of the root in document order.
type FrameID int

const MainFrame FrameID = -1

func (f FrameID) String() string {
	if f == MainFrame {
		return "main"
	}
	return fmt.Sprintf("frame[%d]", int(f))
}

// Scope is a single document context in which queries are evaluated.
type Scope interface {
	Find(q Query) ([]Element, error)
}

// Element is a handle on one DOM node. Reads are Option-style: a missing
// value and a failed read are both reported as ok == false.
type Element interface {
	Scope
	Text() (string, bool)
	Attr(name string) (string, bool)
	Visible() bool
	Click() error
	// ForceClick dispatches the click from script, reaching elements that
	// are covered by overlays.
	ForceClick() error
	Clear() error
	Type(text string) error
	Press(key string) error
}

// Session is one browser tab. Frame contexts are entered explicitly through
// Within, which always returns to the root context before it returns.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Frames() ([]FrameID, error)
	Within(frame FrameID, fn func(Scope) error) error
	ScrollTo(y int) error
	ScrollHeight() (int, error)
	PageText() (string, error)
	Content() (string, error)
	Screenshot(path string) error
}

// First returns the first element yielded by q in scope, if any.
func First(s Scope, q Query) (Element, bool) {
	els, err := s.Find(q)
	if err != nil || len(els) == 0 {
		return nil, false
	}
	return els[0], true
}

// Exists reports whether any of the queries yields at least one element.
func Exists(s Scope, queries ...Query) bool {
	for _, q := range queries {
		if els, err := s.Find(q); err == nil && len(els) > 0 {
			return true
		}
	}
	return false
}

// Poll evaluates cond every interval until it holds or timeout elapses.
// cond is always evaluated at least once.
func Poll(ctx context.Context, timeout, interval time.Duration, cond func() bool) error {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrTimeout
		}
		wait := interval
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Sleep pauses for d unless ctx is cancelled first.
func Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
