// Package view collects the scripts and stylesheets a page needs while it is
// being rendered, and emits them at their registered positions.
package view

import (
	"html/template"
	"strings"
)

// Position is where on the page a registered script is emitted.
type Position int

const (
	// PosHead emits inside <head>.
	PosHead Position = iota
	// PosEnd emits just before </body>.
	PosEnd
)

// View accumulates page resources for a single response. It is not safe for
// concurrent use.
type View struct {
	js      map[Position][]string
	files   map[Position][]string
	css     []string
	seenJS  map[string]struct{}
	seenSrc map[string]struct{}
}

// New creates an empty view.
func New() *View {
	return &View{
		js:      make(map[Position][]string),
		files:   make(map[Position][]string),
		seenJS:  make(map[string]struct{}),
		seenSrc: make(map[string]struct{}),
	}
}

// RegisterJS adds an inline script body. Identical bodies are emitted once.
func (v *View) RegisterJS(js string, pos Position) {
	js = strings.TrimSpace(js)
	if js == "" {
		return
	}
	key := positionKey(pos) + js
	if _, ok := v.seenJS[key]; ok {
		return
	}
	v.seenJS[key] = struct{}{}
	v.js[pos] = append(v.js[pos], js)
}

// RegisterJSFile adds an external script. Each URL is emitted once.
func (v *View) RegisterJSFile(url string, pos Position) {
	if url == "" {
		return
	}
	if _, ok := v.seenSrc[url]; ok {
		return
	}
	v.seenSrc[url] = struct{}{}
	v.files[pos] = append(v.files[pos], url)
}

// RegisterCSSFile adds a stylesheet to the head.
func (v *View) RegisterCSSFile(url string) {
	if url == "" {
		return
	}
	if _, ok := v.seenSrc[url]; ok {
		return
	}
	v.seenSrc[url] = struct{}{}
	v.css = append(v.css, url)
}

// JS returns the inline scripts registered at pos, in registration order.
func (v *View) JS(pos Position) []string {
	return append([]string(nil), v.js[pos]...)
}

// JSFiles returns the script URLs registered at pos.
func (v *View) JSFiles(pos Position) []string {
	return append([]string(nil), v.files[pos]...)
}

// CSSFiles returns the registered stylesheet URLs.
func (v *View) CSSFiles() []string {
	return append([]string(nil), v.css...)
}

// Head renders stylesheets, head script files and head inline scripts.
func (v *View) Head() template.HTML {
	var b strings.Builder
	for _, href := range v.css {
		b.WriteString(`<link href="` + template.HTMLEscapeString(href) + `" rel="stylesheet">` + "\n")
	}
	v.writeScripts(&b, PosHead)
	return template.HTML(b.String())
}

// EndBody renders the scripts that belong before </body>.
func (v *View) EndBody() template.HTML {
	var b strings.Builder
	v.writeScripts(&b, PosEnd)
	return template.HTML(b.String())
}

func (v *View) writeScripts(b *strings.Builder, pos Position) {
	for _, src := range v.files[pos] {
		b.WriteString(`<script src="` + template.HTMLEscapeString(src) + `"></script>` + "\n")
	}
	if len(v.js[pos]) == 0 {
		return
	}
	b.WriteString("<script>")
	b.WriteString(strings.Join(v.js[pos], "\n"))
	b.WriteString("</script>\n")
}

func positionKey(pos Position) string {
	if pos == PosHead {
		return "head:"
	}
	return "end:"
}
