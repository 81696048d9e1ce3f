// Package assets resolves and registers the scripts and stylesheets a page
// needs before any map can be constructed in the browser.
package assets

import (
	"context"
	"net/url"
	"strings"

	"mapdna/internal/view"
	"mapdna/platform/config"
	"mapdna/platform/logger"
)

// Provider services.
const (
	ServiceMaps     = "maps"
	ServiceSearch   = "search"
	ServiceLanguage = "language"
)

// Interpreter bundles served next to the provider script.
const (
	BundleRegistry   = "mapbox.js"
	BundleDynamicMap = "dynamicmap.js"

	// BundlePrefix is the object prefix bundles are published under.
	BundlePrefix = "interpreter"
)

const (
	apiBase          = "https://api.mapbox.com/"
	defaultGLVersion = "v2.13.0"
)

// APIURL returns the provider script URL for service, or "" for an unknown
// service. Params are appended as a query string.
func APIURL(service, glVersion string, params map[string]string) string {
	if glVersion == "" {
		glVersion = defaultGLVersion
	}

	var endpoint string
	switch service {
	case ServiceMaps:
		endpoint = "mapbox-gl-js/" + glVersion + "/mapbox-gl.js"
	case ServiceSearch:
		endpoint = "search-js/v1.0.0-beta.17/core.js"
	case ServiceLanguage:
		endpoint = "mapbox-gl-js/plugins/mapbox-gl-language/v1.0.0/mapbox-gl-language.js"
	default:
		return ""
	}

	return withParams(apiBase+endpoint, params)
}

// StylesheetURL returns the GL stylesheet matching glVersion.
func StylesheetURL(glVersion string) string {
	if glVersion == "" {
		glVersion = defaultGLVersion
	}
	return apiBase + "mapbox-gl-js/" + glVersion + "/mapbox-gl.css"
}

func withParams(raw string, params map[string]string) string {
	if len(params) == 0 {
		return raw
	}
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	return raw + "?" + q.Encode()
}

// BundleResolver returns the public URL of an interpreter bundle.
type BundleResolver interface {
	BundleURL(ctx context.Context, name string) (string, error)
}

// StaticResolver serves bundles from a fixed base URL.
type StaticResolver struct {
	BaseURL string
}

// BundleURL implements BundleResolver.
func (s StaticResolver) BundleURL(_ context.Context, name string) (string, error) {
	return strings.TrimRight(s.BaseURL, "/") + "/" + name, nil
}

// Loader registers everything a page needs for a provider service.
type Loader struct {
	cfg      config.MapboxConfig
	bundles  BundleResolver
	fallback StaticResolver
	log      *logger.Logger
}

// NewLoader creates a loader. A nil bundles resolver serves bundles from the
// configured assets base URL.
func NewLoader(cfg config.MapboxConfig, bundles BundleResolver, log *logger.Logger) *Loader {
	fallback := StaticResolver{BaseURL: cfg.GetAssetsBaseURL()}
	if bundles == nil {
		bundles = fallback
	}
	return &Loader{cfg: cfg, bundles: bundles, fallback: fallback, log: log}
}

// Files lists the script files needed for service, in load order.
func (l *Loader) Files(ctx context.Context, service string, params map[string]string) []string {
	files := make([]string, 0, 3)
	if api := APIURL(service, l.cfg.GetMapboxGLVersion(), params); api != "" {
		files = append(files, api)
	}
	for _, name := range []string{BundleRegistry, BundleDynamicMap} {
		files = append(files, l.bundleURL(ctx, name))
	}
	return files
}

// Load registers the scripts, the access-token bootstrap and the stylesheet
// for service on v.
func (l *Loader) Load(ctx context.Context, v *view.View, service string, params map[string]string) {
	for _, f := range l.Files(ctx, service, params) {
		v.RegisterJSFile(f, view.PosHead)
	}
	v.RegisterJS("window.mapboxAccessToken='"+jsString(l.cfg.GetMapboxAccessToken())+"'", view.PosHead)
	v.RegisterCSSFile(StylesheetURL(l.cfg.GetMapboxGLVersion()))
}

func (l *Loader) bundleURL(ctx context.Context, name string) string {
	u, err := l.bundles.BundleURL(ctx, name)
	if err == nil && u != "" {
		return u
	}
	if err != nil {
		l.log.Warn("bundle url unavailable, using static path", "bundle", name, "error", err)
	}
	u, _ = l.fallback.BundleURL(ctx, name)
	return u
}

// jsString escapes s for a single-quoted JavaScript literal inside <script>.
func jsString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`, "<", `\x3c`)
	return r.Replace(s)
}
