// Package locator finds elements under markup whose attribute names are not
// known in advance.
//
// A lookup is an ordered list of candidate queries. The resolver polls the
// root document with every candidate on each tick and, failing that, repeats
// the full polling loop inside each embedded frame in document order. The
// first candidate by position wins; callers order their lists
// most-specific-first.
package locator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/maltedev/pricelist-scraper/internal/dom"
)

const DefaultInterval = 200 * time.Millisecond

var ErrStale = errors.New("matched element is no longer present")

// Match records where a lookup succeeded. It carries no context state; use
// Within to act on the element.
type Match struct {
	Frame dom.FrameID
	Query dom.Query
}

type Resolver struct {
	session  dom.Session
	interval time.Duration
	logger   *slog.Logger
}

func New(session dom.Session, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		session:  session,
		interval: DefaultInterval,
		logger:   logger.With("component", "locator"),
	}
}

// WithInterval overrides the poll interval.
func (r *Resolver) WithInterval(d time.Duration) *Resolver {
	r.interval = d
	return r
}

func (r *Resolver) Session() dom.Session { return r.session }

// Resolve looks for the first candidate that yields any element, spending up
// to timeout in the root document and again up to timeout in each frame.
// The frame set is read fresh on every call.
func (r *Resolver) Resolve(ctx context.Context, queries []dom.Query, timeout time.Duration) (Match, bool) {
	if len(queries) == 0 {
		return Match{}, false
	}

	if q, ok := r.poll(ctx, dom.MainFrame, queries, timeout); ok {
		return Match{Frame: dom.MainFrame, Query: q}, true
	}

	frames, err := r.session.Frames()
	if err != nil {
		r.logger.Debug("failed to list frames", "error", err)
		return Match{}, false
	}

	for _, frame := range frames {
		if ctx.Err() != nil {
			return Match{}, false
		}
		if q, ok := r.poll(ctx, frame, queries, timeout); ok {
			return Match{Frame: frame, Query: q}, true
		}
	}

	return Match{}, false
}

func (r *Resolver) poll(ctx context.Context, frame dom.FrameID, queries []dom.Query, timeout time.Duration) (dom.Query, bool) {
	var (
		hit   dom.Query
		found bool
		gone  bool
	)

	_ = dom.Poll(ctx, timeout, r.interval, func() bool {
		err := r.session.Within(frame, func(scope dom.Scope) error {
			for _, q := range queries {
				if dom.Exists(scope, q) {
					hit, found = q, true
					return nil
				}
			}
			return nil
		})
		if errors.Is(err, dom.ErrNoSuchFrame) {
			gone = true
			return true
		}
		return found
	})

	if gone {
		r.logger.Debug("frame disappeared while polling", "frame", frame.String())
		return dom.Query{}, false
	}
	return hit, found
}

// Within re-enters the matched frame and runs fn on the first element the
// matched query yields there. The root context is restored afterwards.
func (r *Resolver) Within(m Match, fn func(dom.Element) error) error {
	return r.session.Within(m.Frame, func(scope dom.Scope) error {
		el, ok := dom.First(scope, m.Query)
		if !ok {
			return ErrStale
		}
		return fn(el)
	})
}

// WithinAll is Within for every element the matched query yields.
func (r *Resolver) WithinAll(m Match, fn func([]dom.Element) error) error {
	return r.session.Within(m.Frame, func(scope dom.Scope) error {
		els, err := scope.Find(m.Query)
		if err != nil {
			return err
		}
		if len(els) == 0 {
			return ErrStale
		}
		return fn(els)
	})
}

// ForceClick resolves queries and clicks the hit from script.
func (r *Resolver) ForceClick(ctx context.Context, queries []dom.Query, timeout time.Duration) (Match, bool) {
	m, ok := r.Resolve(ctx, queries, timeout)
	if !ok {
		return Match{}, false
	}
	if err := r.Within(m, func(el dom.Element) error { return el.ForceClick() }); err != nil {
		r.logger.Debug("click failed", "query", m.Query.String(), "frame", m.Frame.String(), "error", err)
		return m, false
	}
	return m, true
}
