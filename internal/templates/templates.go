// Package templates renders site templates such as marker popups.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path"
	"strings"

	"mapdna/platform/config"
)

//go:embed fallback/*.html
var fallbackFS embed.FS

// PopupErrorTemplate is the built-in template shown in place of a popup
// whose template failed to render.
const PopupErrorTemplate = "popup-error"

// RenderError reports a template that could not be parsed or executed.
type RenderError struct {
	// Template is the name the caller asked for.
	Template string
	// Path is the resolved path relative to the template root.
	Path string
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render template %s: %v", e.Path, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// PopupError is the data passed to the popup-error template.
type PopupError struct {
	Filename string
	Message  string
}

// Renderer renders html/template files below a root directory.
type Renderer struct {
	root  fs.FS
	funcs template.FuncMap
}

// New creates a renderer rooted at the configured templates path.
func New(cfg config.TemplateConfig) *Renderer {
	return NewFS(os.DirFS(cfg.GetTemplatesPath()))
}

// NewFS creates a renderer over an arbitrary file system.
func NewFS(root fs.FS) *Renderer {
	return &Renderer{
		root: root,
		funcs: template.FuncMap{
			"join": strings.Join,
		},
	}
}

// Resolve maps a template name to its path below the root. Names without an
// extension get ".html" appended, and a leading slash is ignored.
func (r *Renderer) Resolve(name string) string {
	p := path.Clean("/" + strings.TrimSpace(name))
	p = strings.TrimPrefix(p, "/")
	if path.Ext(p) == "" {
		p += ".html"
	}
	return p
}

// Render executes the named template with data.
func (r *Renderer) Render(name string, data any) (template.HTML, error) {
	p := r.Resolve(name)
	if name == "" || !fs.ValidPath(p) {
		return "", &RenderError{Template: name, Path: p, Err: fs.ErrInvalid}
	}
	return execute(r.root, r.funcs, name, p, data)
}

// RenderFallback executes one of the built-in templates.
func (r *Renderer) RenderFallback(name string, data any) (template.HTML, error) {
	return execute(fallbackFS, r.funcs, name, "fallback/"+name+".html", data)
}

func execute(root fs.FS, funcs template.FuncMap, name, p string, data any) (template.HTML, error) {
	if _, err := fs.Stat(root, p); err != nil {
		return "", &RenderError{Template: name, Path: p, Err: err}
	}
	tmpl, err := template.New(path.Base(p)).Funcs(funcs).ParseFS(root, p)
	if err != nil {
		return "", &RenderError{Template: name, Path: p, Err: err}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", &RenderError{Template: name, Path: p, Err: err}
	}
	return template.HTML(buf.String()), nil
}
