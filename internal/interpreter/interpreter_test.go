package interpreter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapdna/internal/dynamicmap"
	"mapdna/internal/interpreter"
	"mapdna/internal/interpreter/htmldoc"
	"mapdna/internal/interpreter/memengine"
)

type harness struct {
	reg       *interpreter.Registry
	doc       *htmldoc.Document
	engine    *memengine.Engine
	console   *interpreter.Transcript
	scheduler *interpreter.ManualScheduler
}

func newHarness(t *testing.T, markup string, page interpreter.Page) *harness {
	t.Helper()
	doc, err := htmldoc.ParseString(markup)
	require.NoError(t, err)
	if page.AccessToken == "" {
		page.AccessToken = "pk.test"
	}
	h := &harness{
		doc:       doc,
		engine:    memengine.New(),
		console:   &interpreter.Transcript{},
		scheduler: &interpreter.ManualScheduler{},
	}
	h.reg = interpreter.NewRegistry(interpreter.Config{
		Engine:    h.engine,
		Document:  doc,
		Console:   h.console,
		Page:      page,
		Scheduler: h.scheduler,
		NewID:     func(prefix string) string { return prefix + "-zzz" },
	})
	return h
}

func TestSingleAddressReplay(t *testing.T) {
	h := newHarness(t, "", interpreter.Page{})

	m := h.reg.Unpack([]byte(`[
		{"type":"map","locations":[],"options":{"id":"map-abc123"}},
		{"type":"markers","locations":[{"lng":-64.75,"lat":32.31,"id":"42-location"}],"options":{}}
	]`))
	require.NotNil(t, m)

	snap := m.Snapshot()
	require.Len(t, snap.Markers, 1)
	assert.Equal(t, interpreter.MarkerState{ID: "42-location", Lng: -64.75, Lat: 32.31, Visible: true}, snap.Markers[0])
	assert.Equal(t, float64(interpreter.ComfortableZoom), snap.Zoom)
	assert.Equal(t, interpreter.LngLat{Lng: -64.75, Lat: 32.31}, snap.Center)
	assert.False(t, snap.FitPending)
	assert.Empty(t, h.console.Messages(interpreter.LevelWarn))
	assert.Empty(t, m.PopupIDs())
}

func TestTwoMarkersFitAfterDelay(t *testing.T) {
	h := newHarness(t, "", interpreter.Page{})

	m := h.reg.Unpack([]byte(`[
		{"type":"map","locations":[],"options":{"id":"pair"}},
		{"type":"markers","locations":[{"lng":-64.75,"lat":32.31,"id":"a"},{"lng":-64.70,"lat":32.35,"id":"b"}],"options":{}}
	]`))
	require.NotNil(t, m)

	assert.Equal(t, float64(interpreter.ComfortableZoom), m.GetZoom())
	assert.True(t, m.FitPending())

	h.scheduler.Advance(interpreter.FitDelay / 2)
	assert.True(t, m.FitPending())

	h.scheduler.Advance(interpreter.FitDelay / 2)
	assert.False(t, m.FitPending())

	assert.NotEqual(t, float64(interpreter.ComfortableZoom), m.GetZoom())
	center := m.GetCenter()
	assert.InDelta(t, -64.725, center.Lng, 1e-9)
	assert.InDelta(t, 32.33, center.Lat, 1e-9)

	visible := m.GetBounds()
	for _, id := range []string{"a", "b"} {
		marker, ok := m.GetMarker(id)
		require.True(t, ok)
		p := marker.LngLat()
		assert.True(t, p.Lng >= visible.SW.Lng && p.Lng <= visible.NE.Lng, "marker %s lng outside view", id)
		assert.True(t, p.Lat >= visible.SW.Lat && p.Lat <= visible.NE.Lat, "marker %s lat outside view", id)
	}

	calls := h.engine.Maps()[0].Calls()
	last := calls[len(calls)-1]
	assert.Equal(t, "fitBounds", last.Method)
	opts := last.Args[1].(map[string]any)
	assert.Equal(t, false, opts["animate"])
	assert.Equal(t, interpreter.DefaultPadding(), opts["padding"])
}

func TestUnknownPopupDoesNotDisturbOthers(t *testing.T) {
	h := newHarness(t, "", interpreter.Page{Popups: map[string]map[string]interpreter.PopupData{
		"m": {
			"a": {"content": "<b>A</b>"},
			"b": {"content": "<b>B</b>", "maxWidth": "200px"},
		},
	}})

	m := h.reg.Unpack([]byte(`[
		{"type":"map","locations":[],"options":{"id":"m"}},
		{"type":"markers","locations":[{"lng":1,"lat":1,"id":"a"},{"lng":2,"lat":2,"id":"b"}],"options":{}},
		{"type":"openPopup","markerId":"a"},
		{"type":"openPopup","markerId":"ghost"},
		{"type":"zoom","level":5}
	]`))
	require.NotNil(t, m)

	assert.Equal(t, []string{
		`[MB] Unable to find popup "ghost"`,
		`[MB] Unable to open popup "ghost"`,
	}, h.console.Messages(interpreter.LevelWarn))

	snap := m.Snapshot()
	require.Len(t, snap.Markers, 2)
	assert.True(t, snap.Markers[0].PopupOpen)
	assert.False(t, snap.Markers[1].PopupOpen)
	assert.Equal(t, 5.0, snap.Zoom)

	popup, ok := m.GetPopup("b")
	require.True(t, ok)
	assert.Equal(t, "200px", popup.(*memengine.Popup).Options["maxWidth"])
	assert.Equal(t, "<b>B</b>", popup.(*memengine.Popup).HTML)
}

func TestWildcardMatchesExplicitList(t *testing.T) {
	const dna = `[
		{"type":"map","locations":[],"options":{"id":"w","zoom":4}},
		{"type":"markers","locations":[{"lng":1,"lat":1,"id":"a"},{"lng":2,"lat":2,"id":"b"},{"lng":3,"lat":3,"id":"c"}],"options":{}}
	]`

	wild := newHarness(t, "", interpreter.Page{Logging: true})
	mw := wild.reg.Unpack([]byte(dna))
	mw.HideMarker(dynamicmap.AllMarkers())

	listed := newHarness(t, "", interpreter.Page{Logging: true})
	ml := listed.reg.Unpack([]byte(dna))
	ml.HideMarker(dynamicmap.MarkerIDs("a", "b", "c"))

	assert.Equal(t, ml.Snapshot().Markers, mw.Snapshot().Markers)
	for _, s := range mw.Snapshot().Markers {
		assert.False(t, s.Visible)
	}

	assert.True(t, wild.console.Contains(interpreter.LevelLog, "Hiding all markers"))
	assert.False(t, wild.console.Contains(interpreter.LevelLog, `Hiding marker "a"`))
	assert.True(t, listed.console.Contains(interpreter.LevelLog, `Hiding marker "a"`))

	mw.ShowMarker(dynamicmap.AllMarkers())
	for _, s := range mw.Snapshot().Markers {
		assert.True(t, s.Visible)
	}
}

func TestWildcardPopupsUsePopupRegistry(t *testing.T) {
	h := newHarness(t, "", interpreter.Page{Popups: map[string]map[string]interpreter.PopupData{
		"p": {"b": {"content": "B"}},
	}})
	m := h.reg.Map([]interpreter.Location{interpreter.At(1, 1, "a"), interpreter.At(2, 2, "b")}, map[string]any{"id": "p"})

	m.OpenPopup(dynamicmap.AllMarkers())

	assert.Empty(t, h.console.Messages(interpreter.LevelWarn))
	snap := m.Snapshot()
	assert.False(t, snap.Markers[0].HasPopup)
	assert.True(t, snap.Markers[1].PopupOpen)

	m.ClosePopup(dynamicmap.MarkerIDs("b"))
	assert.False(t, m.Snapshot().Markers[1].PopupOpen)
}

func TestCalibrationWithoutMarkers(t *testing.T) {
	h := newHarness(t, "", interpreter.Page{})

	m := h.reg.Unpack([]byte(`[{"type":"map","locations":[],"options":{"id":"empty"}}]`))
	require.NotNil(t, m)

	assert.True(t, h.console.Contains(interpreter.LevelError, "No items on the map"))
	assert.Equal(t, 2.0, m.GetZoom())
	assert.Equal(t, interpreter.LngLat{}, m.GetCenter())
	assert.False(t, m.FitPending())
}

func TestCalibrationKeepsExplicitCenterAndZoom(t *testing.T) {
	h := newHarness(t, "", interpreter.Page{})

	m := h.reg.Map(
		[]interpreter.Location{interpreter.At(1, 1, "a"), interpreter.At(9, 9, "b")},
		map[string]any{"id": "c", "center": []any{5.0, 6.0}, "zoom": 3.0},
	)
	m.Tag("")

	assert.Equal(t, interpreter.LngLat{Lng: 5, Lat: 6}, m.GetCenter())
	assert.Equal(t, 3.0, m.GetZoom())
	assert.False(t, m.FitPending())

	calls := h.engine.Maps()[0].Calls()
	require.GreaterOrEqual(t, len(calls), 3)
	tail := calls[len(calls)-3:]
	assert.Equal(t, []string{"setZoom", "setCenter", "setZoom"}, []string{tail[0].Method, tail[1].Method, tail[2].Method})
	assert.Equal(t, 1.0, tail[0].Args[0])
}

func TestMissingAccessToken(t *testing.T) {
	doc, err := htmldoc.ParseString("")
	require.NoError(t, err)
	console := &interpreter.Transcript{}
	reg := interpreter.NewRegistry(interpreter.Config{
		Engine:    memengine.New(),
		Document:  doc,
		Console:   console,
		Scheduler: &interpreter.ManualScheduler{},
	})

	m := reg.Unpack([]byte(`[
		{"type":"map","locations":[],"options":{"id":"nt"}},
		{"type":"markers","locations":[{"lng":1,"lat":2,"id":"a"}],"options":{}},
		{"type":"zoom","level":3},
		{"type":"fit","options":null}
	]`))
	require.NotNil(t, m)

	assert.True(t, console.Contains(interpreter.LevelWarn, "[MB] Unable to initialize map, no access token provided."))
	assert.Nil(t, m.Live())
	assert.False(t, m.Snapshot().Live)
	assert.Equal(t, []string{"a"}, m.MarkerIDs())
}

func TestUnpackRejectsBadDNA(t *testing.T) {
	tests := []struct {
		name string
		dna  string
		want string
	}{
		{name: "not json", dna: `{oops`, want: "Unable to read map DNA"},
		{name: "empty", dna: `[]`, want: "No map DNA provided."},
		{name: "misordered", dna: `[{"type":"zoom","level":3}]`, want: "Map DNA is misconfigured."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "", interpreter.Page{})
			assert.Nil(t, h.reg.Unpack([]byte(tt.dna)))
			assert.True(t, h.console.Contains(interpreter.LevelWarn, tt.want))
			assert.Empty(t, h.reg.Maps())
		})
	}
}

func TestUnpackSkipsBadBlocks(t *testing.T) {
	h := newHarness(t, "", interpreter.Page{})

	m := h.reg.Unpack([]byte(`[
		{"type":"map","locations":[],"options":{"id":"s","zoom":6}},
		"garbage",
		{"type":"markers","locations":[{"lng":1,"lat":2,"id":"a"},{"lat":3},{"lng":"4","lat":"5"}],"options":{}},
		{"type":"teleport"},
		{"type":"hideMarker","markerId":"nope"},
		{"type":"showMarker","markerId":["a"]}
	]`))
	require.NotNil(t, m)

	assert.Equal(t, []string{"a", "marker-zzz"}, m.MarkerIDs())
	warnings := h.console.Messages(interpreter.LevelWarn)
	assert.Contains(t, warnings, `[MB] Unknown DNA instruction "teleport"`)
	assert.Contains(t, warnings, `[MB] Unable to hide marker "nope"`)
	assert.True(t, h.console.Contains(interpreter.LevelWarn, "Skipping unreadable DNA block 1"))
	assert.Equal(t, 6.0, m.GetZoom())
}

func TestChangeMarkerKeepsPopup(t *testing.T) {
	h := newHarness(t, "", interpreter.Page{Popups: map[string]map[string]interpreter.PopupData{
		"cm": {"a": {"content": "A"}},
	}})
	m := h.reg.Map([]interpreter.Location{interpreter.At(1, 2, "a")}, map[string]any{"id": "cm"})
	before, _ := m.GetMarker("a")

	m.ChangeMarker(dynamicmap.MarkerID("a"), map[string]any{"color": "red"})

	after, ok := m.GetMarker("a")
	require.True(t, ok)
	assert.NotSame(t, before, after)
	assert.False(t, before.OnMap())
	assert.True(t, after.OnMap())
	assert.Equal(t, interpreter.LngLat{Lng: 1, Lat: 2}, after.LngLat())
	assert.Equal(t, "red", after.(*memengine.Marker).Options["color"])
	assert.NotNil(t, after.(*memengine.Marker).Popup())

	m.ChangeMarker(dynamicmap.MarkerID("zz"), nil)
	assert.True(t, h.console.Contains(interpreter.LevelWarn, `marker "zz" does not exist`))
}

func TestPopupDataIsConsumedOnce(t *testing.T) {
	page := interpreter.Page{Popups: map[string]map[string]interpreter.PopupData{
		"pc": {"a": {"content": "A"}},
	}}
	h := newHarness(t, "", page)
	m := h.reg.Map([]interpreter.Location{interpreter.At(1, 2, "a")}, map[string]any{"id": "pc"})
	first, ok := m.GetPopup("a")
	require.True(t, ok)
	assert.NotContains(t, page.Popups["pc"], "a")

	m.Markers([]interpreter.Location{interpreter.At(3, 4, "a")}, nil)

	again, ok := m.GetPopup("a")
	require.True(t, ok)
	assert.Same(t, first, again)
	marker, _ := m.GetMarker("a")
	assert.Same(t, first, marker.(*memengine.Marker).Popup())
}

func TestFitWithoutMarkers(t *testing.T) {
	h := newHarness(t, "", interpreter.Page{})
	m := h.reg.Map(nil, map[string]any{"id": "f"})

	m.Fit(nil)

	assert.Equal(t, []string{
		"[MB] Cannot determine bounds, the map has no existing markers.",
		"[MB] Cannot fit the map, unable to determine bounds.",
	}, h.console.Messages(interpreter.LevelWarn))
}

func TestFitIgnoresHiddenMarkers(t *testing.T) {
	h := newHarness(t, "", interpreter.Page{})
	m := h.reg.Map([]interpreter.Location{interpreter.At(1, 1, "a"), interpreter.At(50, 50, "b")}, map[string]any{"id": "h"})
	m.HideMarker(dynamicmap.MarkerID("b"))

	m.Fit(map[string]any{"padding": 10.0})

	assert.Equal(t, interpreter.LngLat{Lng: 1, Lat: 1}, m.GetCenter())
}

func TestPanToMarker(t *testing.T) {
	h := newHarness(t, "", interpreter.Page{})
	m := h.reg.Map([]interpreter.Location{interpreter.At(7, 8, "a")}, map[string]any{"id": "pan"})

	m.PanToMarker("a")
	assert.Equal(t, interpreter.LngLat{Lng: 7, Lat: 8}, m.GetCenter())

	m.PanToMarker("b")
	assert.Equal(t, []string{`[MB] Unable to find marker "b"`, `[MB] Unable to pan to marker "b"`}, h.console.Messages(interpreter.LevelWarn))
}

func TestMarkerIDPrecedence(t *testing.T) {
	h := newHarness(t, "", interpreter.Page{})
	m := h.reg.Map(nil, map[string]any{"id": "ids"})

	m.Markers([]interpreter.Location{interpreter.At(1, 1, "own")}, map[string]any{"id": "forced"})
	m.Markers([]interpreter.Location{interpreter.At(2, 2, "own")}, nil)
	m.Markers([]interpreter.Location{interpreter.At(3, 3, "")}, nil)

	assert.Equal(t, []string{"forced", "marker-zzz", "own"}, m.MarkerIDs())
}

const page = `<html><body>
<div id="wrap"></div>
<div id="one" class="mb-map" style="height: 300px" data-dna='[{"type":"map","locations":[],"options":{"id":"one"}},{"type":"markers","locations":[{"lng":1,"lat":2,"id":"a"}],"options":{}}]'>Loading map...</div>
<div id="dup" class="mb-map" data-dna='[{"type":"map","locations":[],"options":{"id":"dup"}}]'></div>
<span id="dup"></span>
<div id="bare" class="mb-map"></div>
</body></html>`

func TestInitAllContainers(t *testing.T) {
	h := newHarness(t, page, interpreter.Page{})
	calls := 0

	results := h.reg.Init(func() { calls++ })

	require.Len(t, results, 3)
	assert.Equal(t, interpreter.InitResult{ID: "one", Status: interpreter.InitOK, Map: results[0].Map}, results[0])
	assert.Equal(t, interpreter.InitDuplicate, results[1].Status)
	assert.Equal(t, interpreter.InitMissingDNA, results[2].Status)
	assert.Equal(t, 1, calls)

	assert.Equal(t, []string{
		"[MB] Multiple DOM elements are using the identifier #dup",
		"[MB] Map container #bare is missing DNA",
	}, h.console.Messages(interpreter.LevelWarn))

	m, ok := h.reg.GetMap("one")
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, m.MarkerIDs())
}

func TestInitByID(t *testing.T) {
	h := newHarness(t, page, interpreter.Page{})

	results := h.reg.Init(nil, "one", "missing")

	require.Len(t, results, 2)
	assert.Equal(t, interpreter.InitOK, results[0].Status)
	assert.Equal(t, interpreter.InitNotFound, results[1].Status)
	assert.True(t, h.console.Contains(interpreter.LevelWarn, "Cannot find specified map container #missing"))
}

func TestZeroHeightWarningOnlyWhenLogging(t *testing.T) {
	quiet := newHarness(t, "", interpreter.Page{})
	quiet.reg.Map(nil, map[string]any{"id": "q"}).Tag("")
	assert.False(t, quiet.console.Contains(interpreter.LevelWarn, "zero pixels tall"))

	loud := newHarness(t, "", interpreter.Page{Logging: true})
	loud.reg.Map(nil, map[string]any{"id": "l"}).Tag("")
	assert.True(t, loud.console.Contains(interpreter.LevelWarn, "zero pixels tall"))

	sized := newHarness(t, "", interpreter.Page{Logging: true})
	sized.reg.Map(nil, map[string]any{"id": "s", "height": 250.0}).Tag("")
	assert.False(t, sized.console.Contains(interpreter.LevelWarn, "zero pixels tall"))
}

func TestTagIntoParent(t *testing.T) {
	h := newHarness(t, page, interpreter.Page{})
	m := h.reg.Map(nil, map[string]any{"id": "fresh"})
	assert.False(t, m.Container().Attached())

	m.Tag("wrap")
	assert.True(t, m.Container().Attached())
	assert.Contains(t, h.doc.String(), `<div id="wrap"><div id="fresh" class="mb-map" style="display: block;"></div></div>`)

	h.reg.Map(nil, map[string]any{"id": "lost"}).Tag("nowhere")
	assert.True(t, h.console.Contains(interpreter.LevelWarn, "Unable to find target container #nowhere"))
}

func TestTeardownCancelsDelayedFit(t *testing.T) {
	h := newHarness(t, "", interpreter.Page{})
	m := h.reg.Unpack([]byte(`[
		{"type":"map","locations":[],"options":{"id":"td"}},
		{"type":"markers","locations":[{"lng":1,"lat":1,"id":"a"},{"lng":3,"lat":3,"id":"b"}],"options":{}}
	]`))
	require.True(t, m.FitPending())

	assert.True(t, h.reg.Teardown("td"))
	assert.False(t, h.reg.Teardown("td"))
	assert.Equal(t, 0, h.scheduler.Pending())

	h.scheduler.Advance(interpreter.FitDelay)
	for _, c := range h.engine.Maps()[0].Calls() {
		assert.NotEqual(t, "fitBounds", c.Method)
	}
	_, ok := h.reg.GetMap("td")
	assert.False(t, ok)
}

func TestSweepRemovesDetachedMaps(t *testing.T) {
	h := newHarness(t, page, interpreter.Page{})
	h.reg.Init(nil, "one")

	el, ok := h.doc.ElementByID("one")
	require.True(t, ok)
	assert.Empty(t, h.reg.Sweep())

	el.(*htmldoc.Element).Remove()
	assert.Equal(t, []string{"one"}, h.reg.Sweep())
	assert.Empty(t, h.reg.Maps())
}

func TestNormalizeStyle(t *testing.T) {
	inline := map[string]any{"version": 8.0}
	tests := []struct {
		name string
		in   any
		want any
		err  bool
	}{
		{name: "empty", in: "", want: nil},
		{name: "nil", in: nil, want: nil},
		{name: "native", in: "outdoors-v12", want: "mapbox://styles/mapbox/outdoors-v12"},
		{name: "url", in: "mapbox://styles/me/abc", want: "mapbox://styles/me/abc"},
		{name: "https url", in: "https://example.com/style.json", want: "https://example.com/style.json"},
		{name: "inline document", in: `{"version": 8}`, want: inline},
		{name: "object passthrough", in: inline, want: inline},
		{name: "not a style", in: "Streets", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := interpreter.NormalizeStyle(tt.in)
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConstructionOptions(t *testing.T) {
	h := newHarness(t, "", interpreter.Page{})
	m := h.reg.Map(nil, map[string]any{
		"id":         "opts",
		"width":      320.0,
		"style":      "dark-v11",
		"mapOptions": map[string]any{"center": map[string]any{"lng": 3.0, "lat": 4.0}, "zoom": 7.0, "pitch": 45.0},
	})

	live := h.engine.Maps()[0]
	assert.Equal(t, "opts", live.Options.Container)
	assert.Equal(t, "pk.test", live.Options.AccessToken)
	assert.Equal(t, interpreter.LngLat{Lng: 3, Lat: 4}, live.Options.Center)
	require.NotNil(t, live.Options.Zoom)
	assert.Equal(t, 7.0, *live.Options.Zoom)
	assert.Equal(t, "mapbox://styles/mapbox/dark-v11", live.Options.Style)
	assert.Equal(t, map[string]any{"pitch": 45.0}, live.Options.Extra)

	style, _ := m.Container().Attr("style")
	assert.Equal(t, "display: block; width: 320px;", style)

	m.Style("light-v11")
	assert.Equal(t, "mapbox://styles/mapbox/light-v11", m.Snapshot().Style)
}
