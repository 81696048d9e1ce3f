// Package webhook receives change notifications from the content store.
package webhook

import (
	"mapdna/internal/events"
	apphttp "mapdna/internal/http"
	"mapdna/platform/logger"
	"mapdna/platform/validator"
)

// Module is the webhook module implementing http.Module.
type Module struct {
	handler *Handler
	apiKey  string
}

// NewModule creates the webhook module. Requests must carry apiKey in the
// X-Webhook-API-Key header.
func NewModule(apiKey string, eventBus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	service := NewService(eventBus, log)
	return &Module{
		handler: NewHandler(service, val),
		apiKey:  apiKey,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts webhook routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/webhook")
	group.Use(APIKeyAuthMiddleware(m.apiKey))
	group.POST("/elements", m.handler.HandleElementsChanged)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
