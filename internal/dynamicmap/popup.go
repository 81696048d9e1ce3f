package dynamicmap

import (
	"errors"
	"html"
	"html/template"

	"mapdna/internal/templates"
)

// PopupRenderer renders marker popup templates. Render reports failures as
// errors; the builder turns them into fallback content.
type PopupRenderer interface {
	Render(name string, data any) (template.HTML, error)
	RenderFallback(name string, data any) (template.HTML, error)
	Resolve(name string) string
}

var errNoRenderer = errors.New("no popup template renderer is configured")

// popupContent renders the popup template, substituting the popup-error
// template when it cannot be rendered. It never fails.
func (m *DynamicMap) popupContent(name string, ctx map[string]any) template.HTML {
	r := m.deps.Popups
	if r == nil {
		return fallbackPopup(nil, name, errNoRenderer)
	}

	content, err := r.Render(name, ctx)
	if err == nil {
		return content
	}

	filename := r.Resolve(name)
	cause := err
	var renderErr *templates.RenderError
	if errors.As(err, &renderErr) {
		filename = renderErr.Path
		cause = renderErr.Err
	}
	if m.deps.Log != nil {
		m.deps.Log.WithMapID(m.ID).TemplateError(filename, cause)
	}
	return fallbackPopup(r, filename, cause)
}

func fallbackPopup(r PopupRenderer, filename string, cause error) template.HTML {
	data := templates.PopupError{Filename: filename, Message: cause.Error()}
	if r != nil {
		if out, err := r.RenderFallback(templates.PopupErrorTemplate, data); err == nil {
			return out
		}
	}
	return template.HTML(`<div class="mb-popup-error"><code>` + html.EscapeString(data.Filename) +
		`</code><p>` + html.EscapeString(data.Message) + `</p></div>`)
}

// addPopup stores rendered popup options for markerID. The last write for an
// id wins.
func (m *DynamicMap) addPopup(opts Options, markerID string, ctx map[string]any) {
	if markerID == "" {
		return
	}
	popupOptions := opts.Map("popupOptions").Clone()
	popupOptions["content"] = m.popupContent(opts.String("popupTemplate"), ctx)

	if _, seen := m.popups[markerID]; !seen {
		m.popupOrder = append(m.popupOrder, markerID)
	}
	m.popups[markerID] = popupOptions
}
