// Package sanitize reduces editor-supplied markup to plain text.
package sanitize

import (
	"html"
	"strings"

	nethtml "golang.org/x/net/html"
)

// StripHTML returns the text content of s with tags removed and entities
// decoded. Entity-encoded tags are stripped as well. Script and style
// bodies are dropped.
func StripHTML(s string) string {
	text := textContent(s)
	if strings.ContainsRune(text, '<') {
		text = textContent(text)
	}
	return strings.TrimSpace(text)
}

func textContent(s string) string {
	var b strings.Builder
	z := nethtml.NewTokenizer(strings.NewReader(s))
	skip := 0
	for {
		switch z.Next() {
		case nethtml.ErrorToken:
			// io.EOF, or a reader error on a strings.Reader that cannot happen.
			return b.String()
		case nethtml.TextToken:
			if skip == 0 {
				b.WriteString(html.UnescapeString(string(z.Raw())))
			}
		case nethtml.StartTagToken:
			if name, _ := z.TagName(); isRawText(name) {
				skip++
			}
		case nethtml.EndTagToken:
			if name, _ := z.TagName(); isRawText(name) && skip > 0 {
				skip--
			}
		}
	}
}

func isRawText(tag []byte) bool {
	switch string(tag) {
	case "script", "style":
		return true
	}
	return false
}

// Text sanitizes a string for safe text storage by stripping HTML
// and collapsing whitespace. Use for editor-provided address parts.
func Text(s string) string {
	return strings.Join(strings.Fields(StripHTML(s)), " ")
}
