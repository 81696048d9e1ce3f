package mapspec

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapdna/internal/dynamicmap"
	"mapdna/internal/elements"
	"mapdna/internal/geo"
	"mapdna/platform/apperr"
	"mapdna/platform/validator"
)

func fixedID(prefix string) string { return prefix + "-abc123" }

func dnaJSON(t *testing.T, m *dynamicmap.DynamicMap) string {
	t.Helper()
	out, err := json.Marshal(m.DNA())
	require.NoError(t, err)
	return string(out)
}

const storesYAML = `
id: stores
options:
  zoom: 3
locations:
  - lng: -64.75
    lat: 32.31
    id: hq
elements:
  - id: 9
    kind: entry
    title: Harbour store
    fields:
      - id: 7
        handle: location
        address:
          city: Hamilton
          lng: "-64.78"
          lat: "32.29"
steps:
  - markers:
      locations:
        - element: 9
      options:
        color: red
  - style: outdoors-v12
  - zoom: 6
  - center: {lng: 1.5, lat: 2.5}
  - fit: true
  - panToMarker: hq
  - changeMarker:
      markerId: [hq, 9-location]
      options: {color: blue}
  - hideMarker: "*"
  - showMarker: hq
  - openPopup: hq
  - closePopup: [hq]
`

func TestParseYAMLAndBuild(t *testing.T) {
	doc, err := Parse([]byte(storesYAML), FormatYAML)
	require.NoError(t, err)

	c := NewCompiler(validator.New(), nil)
	m, err := c.Build(context.Background(), doc, dynamicmap.Deps{NewID: fixedID})
	require.NoError(t, err)

	assert.Equal(t, "stores", m.ID)
	assert.JSONEq(t, `[
		{"type":"map","locations":[],"options":{"id":"stores","zoom":3}},
		{"type":"markers","locations":[{"lng":-64.75,"lat":32.31,"id":"hq"}],"options":{"zoom":3}},
		{"type":"markers","locations":[{"lng":-64.78,"lat":32.29,"id":"9-location"}],"options":{"color":"red"}},
		{"type":"style","mapStyle":"outdoors-v12"},
		{"type":"zoom","level":6},
		{"type":"center","coords":{"lng":1.5,"lat":2.5}},
		{"type":"fit","options":null},
		{"type":"panToMarker","markerId":"hq"},
		{"type":"changeMarker","markerId":["hq","9-location"],"options":{"color":"blue"}},
		{"type":"hideMarker","markerId":"*"},
		{"type":"showMarker","markerId":"hq"},
		{"type":"openPopup","markerId":"hq"},
		{"type":"closePopup","markerId":["hq"]}
	]`, dnaJSON(t, m))
}

func TestParseJSON(t *testing.T) {
	doc, err := Parse([]byte(`{
		"locations": [{"address": {"city": "Hamilton", "lng": "1", "lat": "2"}}],
		"steps": [{"fit": {"padding": 10}}, {"hideMarker": ["a", "b"]}],
		"tag": {"inline": true, "callback": "onReady"}
	}`), FormatJSON)
	require.NoError(t, err)

	assert.True(t, doc.Tag.Inline)
	assert.Equal(t, "onReady", doc.Tag.Callback)
	require.Len(t, doc.Steps, 2)
	assert.Equal(t, MarkerRef{IDs: []string{"a", "b"}, List: true}, *doc.Steps[1].HideMarker)

	m, err := NewCompiler(validator.New(), nil).Build(context.Background(), doc, dynamicmap.Deps{NewID: fixedID})
	require.NoError(t, err)
	dna := m.DNA()
	require.Len(t, dna, 4)
	assert.Equal(t, "marker-abc123", dna[1].Locations[0].ID)
	assert.Equal(t, dynamicmap.Options{"padding": float64(10)}, dna[2].Options)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte(`{"locations": [], "zoom": 3}`), FormatJSON)
	require.Error(t, err)

	_, err = Parse([]byte("zoom: 3\n"), FormatYAML)
	require.Error(t, err)
}

func TestParseEmptyYAML(t *testing.T) {
	doc, err := Parse(nil, FormatYAML)
	require.NoError(t, err)
	assert.Empty(t, doc.Steps)
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatFromPath("maps/stores.JSON"))
	assert.Equal(t, FormatYAML, FormatFromPath("maps/stores.yml"))
	assert.Equal(t, FormatYAML, FormatFromPath("stores"))
}

func TestValidate(t *testing.T) {
	lng, lat, bad := 1.0, 2.0, 200.0
	tests := []struct {
		name string
		doc  Document
		want string
	}{
		{
			name: "lone longitude",
			doc:  Document{Locations: []Location{{Lng: &lng}}},
			want: "lng and lat must be given together",
		},
		{
			name: "two sources",
			doc:  Document{Locations: []Location{{Lng: &lng, Lat: &lat, Element: 3}}},
			want: "got 2",
		},
		{
			name: "empty location",
			doc:  Document{Locations: []Location{{}}},
			want: "got 0",
		},
		{
			name: "longitude out of range",
			doc:  Document{Locations: []Location{{Lng: &bad, Lat: &lat}}},
			want: "longitude",
		},
		{
			name: "two operations in one step",
			doc:  Document{Steps: []Step{{PanToMarker: "a", Zoom: &lat}}},
			want: "expected exactly one operation, got 2",
		},
		{
			name: "empty step",
			doc:  Document{Steps: []Step{{}}},
			want: "got 0",
		},
		{
			name: "fit false",
			doc:  Document{Steps: []Step{{Fit: false}}},
			want: "expected options or true",
		},
		{
			name: "bad map id",
			doc:  Document{ID: "not an id"},
			want: "markerid",
		},
		{
			name: "bad address coordinates",
			doc:  Document{Locations: []Location{{Address: map[string]any{"lat": "north"}}}},
			want: "address",
		},
	}

	c := NewCompiler(validator.New(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Validate(&tt.doc)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation))

			var ae *apperr.Error
			require.ErrorAs(t, err, &ae)
			details, ok := ae.Details.([]string)
			require.True(t, ok)
			assert.Contains(t, strings.Join(details, "\n"), tt.want)
		})
	}
}

func TestBuildResolvesElementsFromSource(t *testing.T) {
	stored := &elements.Element{ID: 5, Kind: "entry", Fields: []elements.Field{{
		ID: 7, Handle: "location", Type: elements.FieldTypeAddress,
		Address: &geo.Address{Location: geo.NewLocation(3, 4), OwnerID: 5, FieldID: 7},
	}}}
	source := elements.NewMemorySource(stored)

	doc := &Document{
		ID:        "m",
		Locations: []Location{{Elements: []int64{5, 9}}},
		Elements: []Element{{ID: 9, Kind: "entry", Fields: []Field{{
			ID: 8, Handle: "spot", Address: map[string]any{"lng": "1", "lat": "2"},
		}}}},
	}

	m, err := NewCompiler(validator.New(), source).Build(context.Background(), doc, dynamicmap.Deps{NewID: fixedID})
	require.NoError(t, err)

	dna := m.DNA()
	require.Len(t, dna, 2)
	ids := make([]string, 0, len(dna[1].Locations))
	for _, r := range dna[1].Locations {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"5-location", "9-spot"}, ids)
}

func TestBuildUnknownElement(t *testing.T) {
	doc := &Document{Locations: []Location{{Element: 77}}}

	_, err := NewCompiler(validator.New(), elements.NewMemorySource()).Build(context.Background(), doc, dynamicmap.Deps{})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestBuildElementWithoutSource(t *testing.T) {
	doc := &Document{Locations: []Location{{Element: 77}}}

	_, err := NewCompiler(validator.New(), nil).Build(context.Background(), doc, dynamicmap.Deps{})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUnavailable))
}

func TestRender(t *testing.T) {
	doc, err := Parse([]byte(`
id: small
locations:
  - {lng: 1, lat: 2}
tag:
  inline: true
  assets: false
`), FormatYAML)
	require.NoError(t, err)

	html, m, err := NewCompiler(validator.New(), nil).Render(context.Background(), doc, dynamicmap.Deps{})
	require.NoError(t, err)
	assert.Equal(t, "small", m.ID)
	assert.Contains(t, string(html), `<div id="small" class="mb-map"`)
	assert.Contains(t, string(html), `mapbox.init('small', null)`)
}
