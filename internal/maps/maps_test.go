package maps

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mapdna/internal/elements"
	"mapdna/internal/geo"
	apphttp "mapdna/internal/http"
	"mapdna/internal/interpreter/replay"
	"mapdna/platform/config"
	"mapdna/platform/logger"
	"mapdna/platform/validator"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	env := map[string]string{
		"MAPBOX_ACCESSTOKEN": "pk.test",
		"ENABLE_JS_LOGGING":  "false",
	}
	cfg, err := config.FromLookup(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.NoError(t, err)
	return cfg
}

func harbour(id int64) *elements.Element {
	lng, lat := -64.78, 32.29
	return &elements.Element{
		ID:   id,
		Kind: "entry",
		Fields: []elements.Field{{
			ID: 7, Handle: "location", Type: elements.FieldTypeAddress,
			Address: &geo.Address{
				Location: geo.Location{Lng: &lng, Lat: &lat},
				OwnerID:  id, FieldID: 7, City: "Hamilton",
			},
		}},
	}
}

func newRouter(t *testing.T, source elements.Source) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mod := NewModule(Options{
		Config:    testConfig(t),
		Validator: validator.New(),
		Source:    source,
		Logger:    logger.Discard(),
	})

	engine := gin.New()
	mod.RegisterRoutes(&apphttp.RouterContext{Engine: engine, V1: engine.Group("/api/v1")})
	return engine
}

func do(engine *gin.Engine, method, path, contentType, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRenderJSON(t *testing.T) {
	r := newRouter(t, nil)

	w := do(r, http.MethodPost, "/api/v1/maps/render", "application/json",
		`{"id":"shops","locations":[{"lng":1,"lat":2,"id":"a"}],"steps":[{"zoom":5}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res RenderResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "shops", res.ID)
	assert.Contains(t, res.HTML, `id="shops"`)
	assert.Contains(t, res.HTML, "data-dna=")
	assert.Contains(t, res.Head, "window._mbData")
	assert.Contains(t, res.EndBody, "mapbox.init('shops', null)")
	require.Len(t, res.DNA, 3)
	assert.EqualValues(t, "map", res.DNA[0].Type)
	assert.EqualValues(t, "markers", res.DNA[1].Type)
	assert.EqualValues(t, "zoom", res.DNA[2].Type)
}

func TestRenderYAMLAsHTML(t *testing.T) {
	r := newRouter(t, nil)

	body := "id: shops\nlocations:\n  - lng: 1\n    lat: 2\n"
	w := do(r, http.MethodPost, "/api/v1/maps/render?format=html", "application/yaml", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), `<div id="shops" class="mb-map"`)
	assert.Contains(t, w.Body.String(), "mapbox.init('shops'")
}

func TestRenderNegotiatesHTML(t *testing.T) {
	r := newRouter(t, nil)

	w := do(r, http.MethodPost, "/api/v1/maps/render", "application/json",
		`{"id":"shops"}`, "Accept", "text/html")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
}

func TestRenderRejectsBadDocuments(t *testing.T) {
	r := newRouter(t, nil)

	tests := []struct {
		name        string
		contentType string
		body        string
		status      int
	}{
		{"malformed json", "application/json", `{"id":`, http.StatusBadRequest},
		{"unknown field", "application/json", `{"bogus":1}`, http.StatusBadRequest},
		{"lng without lat", "application/json", `{"locations":[{"lng":1}]}`, http.StatusBadRequest},
		{"two operations", "application/json", `{"steps":[{"zoom":1,"style":"dark-v11"}]}`, http.StatusBadRequest},
		{"element without source", "application/yaml", "locations:\n  - element: 4\n", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/api/v1/maps/render", tt.contentType, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestRenderResolvesStoredElements(t *testing.T) {
	r := newRouter(t, elements.NewMemorySource(harbour(9)))

	w := do(r, http.MethodPost, "/api/v1/maps/render", "application/json",
		`{"id":"shops","locations":[{"element":9}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res RenderResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.DNA, 2)
	require.Len(t, res.DNA[1].Locations, 1)
	assert.Equal(t, "9-location", res.DNA[1].Locations[0].ID)
	assert.InDelta(t, -64.78, res.DNA[1].Locations[0].Lng, 1e-9)
}

func TestRenderResolvesElementLists(t *testing.T) {
	r := newRouter(t, elements.NewMemorySource(harbour(9), harbour(12)))

	w := do(r, http.MethodPost, "/api/v1/maps/render", "application/json",
		`{"id":"shops","locations":[{"elements":[12,9,404]}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res RenderResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.DNA, 2)
	ids := make([]string, 0, len(res.DNA[1].Locations))
	for _, l := range res.DNA[1].Locations {
		ids = append(ids, l.ID)
	}
	assert.Equal(t, []string{"12-location", "9-location"}, ids)
}

func TestRenderUnknownElement(t *testing.T) {
	r := newRouter(t, elements.NewMemorySource())

	w := do(r, http.MethodPost, "/api/v1/maps/render", "application/json",
		`{"locations":[{"element":404}]}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestElementMap(t *testing.T) {
	r := newRouter(t, elements.NewMemorySource(harbour(9)))

	w := do(r, http.MethodGet, "/api/v1/elements/9/map?zoom=8&style=dark-v11", "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res RenderResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "element-9", res.ID)
	require.Len(t, res.DNA, 4)
	assert.EqualValues(t, "style", res.DNA[2].Type)
	assert.EqualValues(t, "zoom", res.DNA[3].Type)
}

func TestElementMapErrors(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable,
		do(newRouter(t, nil), http.MethodGet, "/api/v1/elements/9/map", "", "").Code)

	r := newRouter(t, elements.NewMemorySource(harbour(9)))
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/v1/elements/nine/map", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/v1/elements/9/map?zoom=40", "", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/v1/elements/10/map", "", "").Code)
}

func TestReplayDNA(t *testing.T) {
	r := newRouter(t, nil)

	dna := `[{"type":"map","locations":[],"options":{"id":"m1"}},` +
		`{"type":"markers","locations":[{"lng":1,"lat":2,"id":"a"},{"lng":3,"lat":4,"id":"b"}],"options":{}}]`
	body, err := json.Marshal(map[string]any{"dna": dna, "settle": true})
	require.NoError(t, err)

	w := do(r, http.MethodPost, "/api/v1/maps/replay", "application/json", string(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var report replay.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.Len(t, report.Maps, 1)
	m := report.Maps[0]
	assert.Equal(t, "m1", m.ID)
	assert.True(t, m.Live)
	assert.False(t, m.FitPending)
	assert.Len(t, m.Markers, 2)
	assert.Empty(t, report.Warnings())
}

func TestReplayRenderedMarkup(t *testing.T) {
	r := newRouter(t, nil)

	w := do(r, http.MethodPost, "/api/v1/maps/render?format=html", "application/json",
		`{"id":"shops","locations":[{"lng":1,"lat":2,"id":"a"}]}`)
	require.Equal(t, http.StatusOK, w.Code)

	body, err := json.Marshal(map[string]any{"html": "<html><body>" + w.Body.String() + "</body></html>"})
	require.NoError(t, err)
	w = do(r, http.MethodPost, "/api/v1/maps/replay", "application/json", string(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var report replay.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.Len(t, report.Maps, 1)
	assert.Equal(t, "shops", report.Maps[0].ID)
	require.Len(t, report.Maps[0].Markers, 1)
	assert.Equal(t, "a", report.Maps[0].Markers[0].ID)
}

func TestReplayRequiresInput(t *testing.T) {
	r := newRouter(t, nil)
	w := do(r, http.MethodPost, "/api/v1/maps/replay", "application/json", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mod := NewModule(Options{
		Config:      testConfig(t),
		Validator:   validator.New(),
		Logger:      logger.Discard(),
		RenderRate:  0.001,
		RenderBurst: 1,
	})
	engine := gin.New()
	mod.RegisterRoutes(&apphttp.RouterContext{Engine: engine, V1: engine.Group("/api/v1")})

	assert.Equal(t, http.StatusOK, do(engine, http.MethodPost, "/api/v1/maps/render", "application/json", `{}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(engine, http.MethodPost, "/api/v1/maps/render", "application/json", `{}`).Code)
}

func TestRequestFormat(t *testing.T) {
	assert.Equal(t, "yaml", string(requestFormat("application/yaml")))
	assert.Equal(t, "yaml", string(requestFormat("text/x-yaml; charset=utf-8")))
	assert.Equal(t, "json", string(requestFormat("application/json")))
	assert.Equal(t, "json", string(requestFormat("")))
}
