// Package render owns the terminal page and the live tile and chart state
// pushed to it.
package render

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
)

//go:embed page.html
var defaultPage []byte

// Trend selects the colour and arrow of a tile's change element.
type Trend string

const (
	TrendNone Trend = ""
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
)

// TrendOf returns TrendUp for v >= 0 and TrendDown otherwise.
func TrendOf(v float64) Trend {
	if v >= 0 {
		return TrendUp
	}
	return TrendDown
}

// Tile is one rendered metric. Empty Value or Change leaves that element
// untouched.
type Tile struct {
	Metric    string    `json:"metric"`
	Value     string    `json:"value,omitempty"`
	Change    string    `json:"change,omitempty"`
	Trend     Trend     `json:"trend,omitempty"`
	Seq       uint64    `json:"seq"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Document is a parsed HTML page whose metric tiles can be rewritten in place.
type Document struct {
	mu   sync.RWMutex
	root *html.Node
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{root: root}, nil
}

// DefaultDocument parses the built-in terminal page.
func DefaultDocument() (*Document, error) {
	return Parse(bytes.NewReader(defaultPage))
}

// SetTile writes t into the element carrying data-metric=t.Metric. It reports
// whether the element exists; a missing element is not an error.
func (d *Document) SetTile(t Tile) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	tile := find(d.root, func(n *html.Node) bool { return attr(n, "data-metric") == t.Metric })
	if tile == nil {
		return false
	}
	if t.Value != "" {
		if el := find(tile, hasClassFn("metric-value")); el != nil {
			setText(el, t.Value)
		}
	}
	if t.Change != "" || t.Trend != TrendNone {
		if el := find(tile, hasClassFn("metric-change")); el != nil {
			text := t.Change
			switch t.Trend {
			case TrendUp:
				setClass(el, "positive", true)
				setClass(el, "negative", false)
				text = "↑ " + text
			case TrendDown:
				setClass(el, "negative", true)
				setClass(el, "positive", false)
				text = "↓ " + text
			}
			if t.Change != "" {
				setText(el, strings.TrimSpace(text))
			}
		}
	}
	return true
}

// Apply implements Target.
func (d *Document) Apply(_ context.Context, t Tile) error {
	d.SetTile(t)
	return nil
}

// Text returns the text content of the first element matching the
// data-metric name and class, for inspection.
func (d *Document) Text(metric, class string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	tile := find(d.root, func(n *html.Node) bool { return attr(n, "data-metric") == metric })
	if tile == nil {
		return "", false
	}
	el := tile
	if class != "" {
		if el = find(tile, hasClassFn(class)); el == nil {
			return "", false
		}
	}
	return textContent(el), true
}

// Render serializes the document.
func (d *Document) Render(w io.Writer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return html.Render(w, d.root)
}

// --- node helpers ---

// find returns the first element in n's subtree (n included) matching fn,
// in document order.
func find(n *html.Node, fn func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && fn(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, fn); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClassFn(class string) func(*html.Node) bool {
	return func(n *html.Node) bool { return hasClass(n, class) }
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func setClass(n *html.Node, class string, on bool) {
	var kept []string
	for _, c := range strings.Fields(attr(n, "class")) {
		if c != class {
			kept = append(kept, c)
		}
	}
	if on {
		kept = append(kept, class)
	}
	val := strings.Join(kept, " ")
	for i := range n.Attr {
		if n.Attr[i].Key == "class" {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: "class", Val: val})
}

func setText(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
