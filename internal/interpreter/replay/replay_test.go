package replay

import (
	"context"
	"encoding/json"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapdna/internal/dynamicmap"
	"mapdna/internal/geo"
	"mapdna/internal/interpreter"
	"mapdna/internal/templates"
)

func fixedID(prefix string) string { return prefix + "-abc123" }

func buildMap(t *testing.T) (*dynamicmap.DynamicMap, string) {
	t.Helper()
	deps := dynamicmap.Deps{
		NewID:  fixedID,
		Popups: templates.NewFS(fstest.MapFS{"_popups/shop.html": {Data: []byte(`<p>{{ .markerId }} on {{ .mapId }}</p>`)}}),
	}
	m := dynamicmap.New(deps, []any{geo.Coords{Lng: 10, Lat: 20}}, dynamicmap.Options{"id": "rt"}).
		Markers(geo.Coords{Lng: 11, Lat: 21}, dynamicmap.Options{"id": "shop", "popupTemplate": "_popups/shop"}).
		OpenPopup(dynamicmap.MarkerID("shop")).
		Style("outdoors-v12").
		Zoom(9)

	out, err := m.Tag(context.Background(), dynamicmap.TagOptions{})
	require.NoError(t, err)
	return m, "<html><body>" + string(out) + "</body></html>"
}

func TestRenderedMarkupReplays(t *testing.T) {
	_, page := buildMap(t)

	report, err := HTMLString(page, Options{AccessToken: "pk.test"})
	require.NoError(t, err)

	require.Len(t, report.Containers, 1)
	assert.Equal(t, interpreter.InitOK, report.Containers[0].Status)
	require.Len(t, report.Maps, 1)

	snap := report.Maps[0]
	assert.Equal(t, "rt", snap.ID)
	assert.True(t, snap.Live)
	assert.Equal(t, 9.0, snap.Zoom)
	assert.Equal(t, "mapbox://styles/mapbox/outdoors-v12", snap.Style)
	assert.Equal(t, []interpreter.MarkerState{
		{ID: "10,20", Lng: 10, Lat: 20, Visible: true},
		{ID: "shop", Lng: 11, Lat: 21, Visible: true, HasPopup: true, PopupOpen: true},
	}, snap.Markers)
	assert.Empty(t, report.Warnings())
}

func TestDNARoundTrip(t *testing.T) {
	m, _ := buildMap(t)

	dna, err := json.Marshal(m.DNA())
	require.NoError(t, err)
	seq, err := interpreter.ParseDNA(dna)
	require.NoError(t, err)
	require.Empty(t, seq.Skipped)

	want := m.DNA()
	require.Len(t, seq.Blocks, len(want))
	for i, in := range want {
		b := seq.Blocks[i]
		assert.Equal(t, in.Type, b.Type, "block %d", i)
		assert.Len(t, b.Locations, len(in.Locations), "block %d", i)
		for j, rec := range in.Locations {
			assert.Equal(t, interpreter.At(rec.Lng, rec.Lat, rec.ID), b.Locations[j])
		}
		assert.Equal(t, in.MarkerID.IDs(), b.MarkerID.IDs(), "block %d", i)
		if in.Type == dynamicmap.TypeZoom {
			require.NotNil(t, b.Level)
			assert.Equal(t, in.Level, *b.Level)
		}
	}
}

func TestDNAWithPopupsAndSettle(t *testing.T) {
	dna := []byte(`[
		{"type":"map","locations":[],"options":{"id":"d"}},
		{"type":"markers","locations":[{"lng":1,"lat":1,"id":"a"},{"lng":2,"lat":2,"id":"b"}],"options":{}},
		{"type":"openPopup","markerId":"*"}
	]`)
	popups := map[string]interpreter.PopupData{"b": {"content": "B"}}

	pending, err := DNA(dna, popups, Options{AccessToken: "pk"})
	require.NoError(t, err)
	require.Len(t, pending.Maps, 1)
	assert.True(t, pending.Maps[0].FitPending)
	assert.Equal(t, float64(interpreter.ComfortableZoom), pending.Maps[0].Zoom)
	assert.True(t, pending.Maps[0].Markers[1].PopupOpen)

	settled, err := DNA(dna, popups, Options{AccessToken: "pk", Settle: true})
	require.NoError(t, err)
	assert.False(t, settled.Maps[0].FitPending)
	assert.NotEqual(t, float64(interpreter.ComfortableZoom), settled.Maps[0].Zoom)
	assert.InDelta(t, 1.5, settled.Maps[0].Center.Lng, 1e-9)
}

func TestMissingTokenIsReported(t *testing.T) {
	report, err := DNA([]byte(`[{"type":"map","locations":[],"options":{"id":"x"}}]`), nil, Options{})
	require.NoError(t, err)
	assert.Contains(t, report.Warnings(), "[MB] Unable to initialize map, no access token provided.")
	assert.False(t, report.Maps[0].Live)
}
