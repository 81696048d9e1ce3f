// Package htmldoc implements the interpreter's Document over a parsed HTML
// page, so DNA can be replayed from rendered markup outside a browser.
package htmldoc

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"mapdna/internal/interpreter"
)

// Document is a parsed page.
type Document struct {
	mu   sync.Mutex
	root *html.Node
}

var _ interpreter.Document = (*Document)(nil)

// Parse reads a full page or a fragment.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	return &Document{root: root}, nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Render writes the document, including changes made by replay.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

// String renders the document.
func (d *Document) String() string {
	var b bytes.Buffer
	_ = d.Render(&b)
	return b.String()
}

// Scripts returns the text of every inline script, in document order.
func (d *Document) Scripts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Script && n.FirstChild != nil {
			out = append(out, n.FirstChild.Data)
		}
		return true
	})
	return out
}

func (d *Document) ElementByID(id string) (interpreter.Element, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var found *html.Node
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && attr(n, "id") == id {
			found = n
			return false
		}
		return true
	})
	if found == nil {
		return nil, false
	}
	return &Element{doc: d, n: found}, true
}

func (d *Document) CountID(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	count := 0
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && attr(n, "id") == id {
			count++
		}
		return true
	})
	return count
}

func (d *Document) ElementsByClass(class string) []interpreter.Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []interpreter.Element
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && hasClass(n, class) {
			out = append(out, &Element{doc: d, n: n})
		}
		return true
	})
	return out
}

// CreateElement returns a detached div.
func (d *Document) CreateElement() interpreter.Element {
	return &Element{doc: d, n: &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}}
}

// Element wraps one node.
type Element struct {
	doc *Document
	n   *html.Node
}

var _ interpreter.Element = (*Element)(nil)

func (e *Element) ID() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return attr(e.n, "id")
}

func (e *Element) SetID(id string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	setAttr(e.n, "id", id)
}

func (e *Element) AddClass(class string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if hasClass(e.n, class) {
		return
	}
	classes := strings.TrimSpace(attr(e.n, "class") + " " + class)
	setAttr(e.n, "class", classes)
}

// SetStyle sets one inline style property, replacing an earlier value.
func (e *Element) SetStyle(prop, value string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	props := parseStyle(attr(e.n, "style"))
	replaced := false
	for i := range props {
		if props[i][0] == prop {
			props[i][1] = value
			replaced = true
		}
	}
	if !replaced {
		props = append(props, [2]string{prop, value})
	}
	parts := make([]string, 0, len(props))
	for _, p := range props {
		parts = append(parts, p[0]+": "+p[1])
	}
	setAttr(e.n, "style", strings.Join(parts, "; ")+";")
}

func (e *Element) Attr(name string) (string, bool) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for _, a := range e.n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// ClientHeight reads a pixel height from the inline style or the height
// attribute of the element or its nearest ancestor that declares one.
// There is no layout engine, so anything else is zero.
func (e *Element) ClientHeight() int {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for n := e.n; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		for _, p := range parseStyle(attr(n, "style")) {
			if p[0] == "height" {
				return pixels(p[1])
			}
		}
		if h := attr(n, "height"); h != "" {
			return pixels(h)
		}
	}
	return 0
}

func (e *Element) AppendChild(child interpreter.Element) {
	c, ok := child.(*Element)
	if !ok {
		return
	}
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if c.n.Parent != nil {
		c.n.Parent.RemoveChild(c.n)
	}
	e.n.AppendChild(c.n)
}

func (e *Element) Attached() bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	n := e.n
	for n.Parent != nil {
		n = n.Parent
	}
	return n == e.doc.root
}

// Remove detaches the element from the document.
func (e *Element) Remove() {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if e.n.Parent != nil {
		e.n.Parent.RemoveChild(e.n)
	}
}

// walk visits nodes depth-first until visit returns false.
func walk(n *html.Node, visit func(*html.Node) bool) bool {
	if !visit(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, visit) {
			return false
		}
	}
	return true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func parseStyle(s string) [][2]string {
	var out [][2]string
	for _, decl := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		out = append(out, [2]string{k, strings.TrimSpace(v)})
	}
	return out
}

func pixels(s string) int {
	s = strings.TrimSuffix(strings.TrimSpace(s), "px")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0
	}
	return int(f)
}
