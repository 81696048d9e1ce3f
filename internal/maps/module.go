package maps

import (
	"mapdna/internal/dynamicmap"
	"mapdna/internal/elements"
	apphttp "mapdna/internal/http"
	"mapdna/internal/mapspec"
	"mapdna/platform/config"
	"mapdna/platform/httpkit"
	"mapdna/platform/logger"
	"mapdna/platform/validator"

	"golang.org/x/time/rate"
)

// Options holds the collaborators of the maps module. Source and Fields
// may be nil when no element store is configured.
type Options struct {
	Config    config.MapboxConfig
	Validator *validator.Validator
	Source    elements.Source
	Fields    elements.FieldResolver
	Popups    dynamicmap.PopupRenderer
	Assets    dynamicmap.AssetLoader
	Logger    *logger.Logger

	// RenderRate limits render and replay calls per client IP. Zero
	// disables the limit.
	RenderRate  rate.Limit
	RenderBurst int
}

// Module wires the map rendering HTTP routes.
type Module struct {
	handler *Handler
	limiter *httpkit.IPRateLimiter
}

func NewModule(opts Options) *Module {
	compiler := mapspec.NewCompiler(opts.Validator, opts.Source)
	svc := NewService(compiler, opts.Source, opts.Fields, opts.Popups, opts.Assets, opts.Config, opts.Logger)

	m := &Module{handler: NewHandler(svc)}
	if opts.RenderRate > 0 {
		burst := opts.RenderBurst
		if burst <= 0 {
			burst = 1
		}
		m.limiter = httpkit.NewIPRateLimiter(opts.RenderRate, burst, opts.Logger)
	}
	return m
}

func (m *Module) Name() string {
	return "maps"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/maps")
	if m.limiter != nil {
		group.Use(m.limiter.RateLimit())
	}
	group.POST("/render", m.handler.Render)
	group.POST("/replay", m.handler.Replay)

	ctx.V1.GET("/elements/:id/map", m.handler.ElementMap)
}

var _ apphttp.Module = (*Module)(nil)
