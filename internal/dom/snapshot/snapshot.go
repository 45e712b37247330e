// Package snapshot implements the dom capabilities over static markup.
//
// CSS queries run through goquery, XPath queries through htmlquery. A
// Session can carry embedded frame documents and click/navigation hooks, which
// is enough to replay a saved portal page offline or to drive the scraping
// components in tests.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/maltedev/pricelist-scraper/internal/dom"
)

var ErrNoScreenshot = errors.New("snapshot: screenshots are not supported")

// Session is an in-memory dom.Session.
type Session struct {
	root   *html.Node
	frames []*html.Node

	// OnClick runs for every Click and ForceClick.
	OnClick func(el *Element) error
	// OnNavigate runs for every Navigate; a non-nil error fails navigation.
	OnNavigate func(url string) error
	// OnPress runs for every key press sent to an element.
	OnPress func(el *Element, key string) error

	Height   int
	Visited  []string
	Clicked  []*Element
	Scrolled []int
}

// New parses markup into a session. Each entry of frames becomes an
// embedded document, addressed by its index.
func New(markup string, frames ...string) (*Session, error) {
	s := &Session{Height: 2000}
	if err := s.SetDocument(markup); err != nil {
		return nil, err
	}
	if err := s.SetFrames(frames...); err != nil {
		return nil, err
	}
	return s, nil
}

// MustNew is New for fixtures that are known to parse.
func MustNew(markup string, frames ...string) *Session {
	s, err := New(markup, frames...)
	if err != nil {
		panic(err)
	}
	return s
}

// SetDocument replaces the root document.
func (s *Session) SetDocument(markup string) error {
	root, err := htmlquery.Parse(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}
	s.root = root
	return nil
}

// SetFrames replaces the embedded frame documents.
func (s *Session) SetFrames(frames ...string) error {
	parsed := make([]*html.Node, 0, len(frames))
	for i, markup := range frames {
		node, err := htmlquery.Parse(strings.NewReader(markup))
		if err != nil {
			return fmt.Errorf("failed to parse frame %d: %w", i, err)
		}
		parsed = append(parsed, node)
	}
	s.frames = parsed
	return nil
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.Visited = append(s.Visited, url)
	if s.OnNavigate != nil {
		return s.OnNavigate(url)
	}
	return nil
}

func (s *Session) Frames() ([]dom.FrameID, error) {
	ids := make([]dom.FrameID, len(s.frames))
	for i := range s.frames {
		ids[i] = dom.FrameID(i)
	}
	return ids, nil
}

func (s *Session) Within(frame dom.FrameID, fn func(dom.Scope) error) error {
	if frame == dom.MainFrame {
		return fn(&Element{node: s.root, session: s})
	}
	if int(frame) < 0 || int(frame) >= len(s.frames) {
		return fmt.Errorf("%s: %w", frame, dom.ErrNoSuchFrame)
	}
	return fn(&Element{node: s.frames[frame], session: s})
}

func (s *Session) ScrollTo(y int) error {
	s.Scrolled = append(s.Scrolled, y)
	return nil
}

func (s *Session) ScrollHeight() (int, error) {
	return s.Height, nil
}

func (s *Session) PageText() (string, error) {
	body := htmlquery.FindOne(s.root, "//body")
	if body == nil {
		body = s.root
	}
	return innerText(body), nil
}

func (s *Session) Content() (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, s.root); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s *Session) Screenshot(string) error {
	return ErrNoScreenshot
}

// Element wraps a parsed node. The document node itself doubles as the
// scope of a frame context.
type Element struct {
	node    *html.Node
	session *Session
}

// Node exposes the underlying node, mainly for click hooks.
func (e *Element) Node() *html.Node { return e.node }

func (e *Element) Find(q dom.Query) ([]dom.Element, error) {
	var nodes []*html.Node
	switch q.Kind {
	case dom.KindCSS:
		goquery.NewDocumentFromNode(e.node).Find(q.Expr).Each(func(_ int, sel *goquery.Selection) {
			nodes = append(nodes, sel.Nodes...)
		})
	default:
		found, err := htmlquery.QueryAll(e.node, q.Expr)
		if err != nil {
			return nil, fmt.Errorf("invalid query %s: %w", q, err)
		}
		for _, n := range found {
			if n.Type == html.ElementNode {
				nodes = append(nodes, n)
			}
		}
	}

	out := make([]dom.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &Element{node: n, session: e.session})
	}
	return out, nil
}

func (e *Element) Text() (string, bool) {
	return innerText(e.node), true
}

func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.node.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func (e *Element) Visible() bool {
	for n := e.node; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		for _, a := range n.Attr {
			switch a.Key {
			case "hidden":
				return false
			case "style":
				style := strings.ReplaceAll(strings.ToLower(a.Val), " ", "")
				if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
					return false
				}
			case "type":
				if n == e.node && strings.EqualFold(a.Val, "hidden") {
					return false
				}
			}
		}
	}
	return true
}

func (e *Element) Click() error {
	e.session.Clicked = append(e.session.Clicked, e)
	if e.session.OnClick != nil {
		return e.session.OnClick(e)
	}
	return nil
}

func (e *Element) ForceClick() error {
	return e.Click()
}

func (e *Element) Clear() error {
	e.setAttr("value", "")
	return nil
}

func (e *Element) Type(text string) error {
	current, _ := e.Attr("value")
	e.setAttr("value", current+text)
	return nil
}

func (e *Element) Press(key string) error {
	if e.session.OnPress != nil {
		return e.session.OnPress(e, key)
	}
	return nil
}

func (e *Element) setAttr(key, val string) {
	for i, a := range e.node.Attr {
		if a.Key == key {
			e.node.Attr[i].Val = val
			return
		}
	}
	e.node.Attr = append(e.node.Attr, html.Attribute{Key: key, Val: val})
}

var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"div": true, "dl": true, "dt": true, "dd": true, "fieldset": true,
	"figure": true, "footer": true, "form": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "header": true,
	"hr": true, "li": true, "main": true, "nav": true, "ol": true,
	"p": true, "section": true, "table": true, "tr": true, "ul": true,
}

// innerText approximates the rendered text of a node: block elements and
// <br> break lines, whitespace inside a line collapses, blank lines vanish.
func innerText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			// source newlines are layout, not rendered line breaks
			b.WriteString(collapseSpace(n.Data))
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "head", "template":
				return
			case "br":
				b.WriteString("\n")
				return
			case "td", "th":
				b.WriteString(" ")
			}
		}
		block := n.Type == html.ElementNode && blockTags[n.Data]
		if block {
			b.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteString("\n")
		}
	}
	walk(n)

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func collapseSpace(s string) string {
	var b strings.Builder
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}
	if space {
		b.WriteByte(' ')
	}
	return b.String()
}
