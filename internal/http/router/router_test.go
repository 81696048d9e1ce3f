package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apphttp "mapdna/internal/http"
	"mapdna/platform/config"
	"mapdna/platform/httpkit"
	"mapdna/platform/logger"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type echoModule struct{}

func (echoModule) Name() string { return "echo" }

func (echoModule) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.V1.GET("/echo", func(c *gin.Context) { httpkit.OK(c, gin.H{"echo": c.Query("q")}) })
}

func newApp(t *testing.T, env map[string]string, health apphttp.HealthChecker) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg, err := config.FromLookup(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.NoError(t, err)
	return New(&apphttp.App{
		Config:  cfg,
		Logger:  logger.Discard(),
		Health:  health,
		Modules: []apphttp.Module{echoModule{}},
	})
}

func get(engine *gin.Engine, path string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := get(newApp(t, nil, nil), "/api/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	down := pingFunc(func(context.Context) error { return errors.New("refused") })
	w = get(newApp(t, nil, down), "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestModulesAreMountedUnderV1(t *testing.T) {
	w := get(newApp(t, nil, nil), "/api/v1/echo?q=hi")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"echo":"hi"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(httpkit.HeaderRequestID))
}

func TestCORS(t *testing.T) {
	engine := newApp(t, map[string]string{"CORS_ORIGINS": "https://maps.example.com"}, nil)

	w := get(engine, "/api/v1/echo", "Origin", "https://maps.example.com")
	assert.Equal(t, "https://maps.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = get(engine, "/api/v1/echo", "Origin", "https://evil.example.com")
	assert.Equal(t, http.StatusForbidden, w.Code)

	open := newApp(t, map[string]string{"CORS_ALLOW_ALL": "true"}, nil)
	w = get(open, "/api/v1/echo", "Origin", "https://anywhere.example.com")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
