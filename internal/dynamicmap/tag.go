package dynamicmap

import (
	"context"
	"encoding/json"
	"html"
	"html/template"
	"regexp"
	"strings"

	"mapdna/internal/view"
	"mapdna/platform/apperr"
)

// ContainerClass marks managed map containers in the page.
const ContainerClass = "mb-map"

var callbackPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*(\.[A-Za-z_$][A-Za-z0-9_$]*)*$`)

// TagOptions configure the markup produced by Tag.
type TagOptions struct {
	// Assets loads the provider scripts. Defaults to true.
	Assets *bool `json:"assets,omitempty" yaml:"assets,omitempty"`
	// Params are extra provider API parameters.
	Params map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
	// Inline emits the popup data script right after the container instead
	// of at the end of the page.
	Inline bool `json:"inline,omitempty" yaml:"inline,omitempty"`
	// Init schedules browser initialization on page load. Defaults to true.
	Init *bool `json:"init,omitempty" yaml:"init,omitempty"`
	// Callback names a global JavaScript function run after initialization.
	Callback string `json:"callback,omitempty" yaml:"callback,omitempty"`
}

func (o TagOptions) assets() bool { return o.Assets == nil || *o.Assets }
func (o TagOptions) init() bool   { return o.Init == nil || *o.Init }

// Tag renders the map container with its serialized DNA and schedules the
// scripts that seed popup data and initialize the map in the browser.
func (m *DynamicMap) Tag(ctx context.Context, opts TagOptions) (template.HTML, error) {
	if err := m.validate(); err != nil {
		return "", err
	}
	if opts.Params == nil {
		opts.Params = map[string]string{}
	}

	if opts.assets() && m.deps.Assets != nil && m.deps.View != nil {
		m.deps.Assets.Load(ctx, m.deps.View, "maps", opts.Params)
	}

	dna, err := json.Marshal(m.dna)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "failed to encode map dna", err)
	}

	var b strings.Builder
	b.WriteString(`<div id="` + html.EscapeString(m.ID) + `" class="` + ContainerClass +
		`" data-dna="` + html.EscapeString(string(dna)) + `">Loading map...</div>`)

	data, err := m.dataScript()
	if err != nil {
		return "", err
	}
	if m.deps.View != nil {
		m.deps.View.RegisterJS(seedScript(m.deps.Logging), view.PosHead)
	}

	if opts.Inline || m.deps.View == nil {
		b.WriteString("\n<script>" + data + "\n</script>")
	} else {
		m.deps.View.RegisterJS(data, view.PosEnd)
	}

	if opts.init() {
		initJS := m.initScript(opts.Callback)
		if m.deps.View != nil {
			m.deps.View.RegisterJS(initJS, view.PosEnd)
		} else {
			b.WriteString("\n<script>" + initJS + "</script>")
		}
	}

	return template.HTML(b.String()), nil
}

// seedScript creates the shared browser namespace once per page.
func seedScript(logging bool) string {
	flag := "false"
	if logging {
		flag = "true"
	}
	return "window._mbData = window._mbData || {logging: " + flag + ", popups: {}};"
}

// dataScript seeds the namespace and attaches this map's popups to it.
func (m *DynamicMap) dataScript() (string, error) {
	js := seedScript(m.deps.Logging)
	if len(m.popups) == 0 {
		return js, nil
	}
	popups, err := json.Marshal(m.popups)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "failed to encode map popups", err)
	}
	return js + "\nwindow._mbData.popups['" + quoteJS(m.ID) + "'] = " + string(popups) + ";", nil
}

func (m *DynamicMap) initScript(callback string) string {
	cb := "null"
	if callback != "" {
		if callbackPattern.MatchString(callback) {
			cb = callback
		} else if m.deps.Log != nil {
			m.deps.Log.WithMapID(m.ID).Warn("ignoring invalid map callback", "callback", callback)
		}
	}
	return "addEventListener('load', function () {mapbox.init('" + quoteJS(m.ID) + "', " + cb + ")});"
}

// quoteJS escapes s for a single-quoted JavaScript string inside <script>.
func quoteJS(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`, "<", `\x3c`)
	return r.Replace(s)
}
