package webhook

import (
	"net/http"

	"mapdna/platform/httpkit"
	"mapdna/platform/validator"

	"github.com/gin-gonic/gin"
)

// ElementsChangedRequest is sent by the content store after elements were
// saved or deleted.
type ElementsChangedRequest struct {
	IDs    []int64 `json:"ids" validate:"required,min=1,max=500,dive,gt=0"`
	Change string  `json:"change" validate:"omitempty,oneof=saved deleted"`
}

// Handler exposes the webhook endpoints.
type Handler struct {
	svc *Service
	val *validator.Validator
}

func NewHandler(svc *Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// HandleElementsChanged handles POST /api/v1/webhook/elements.
func (h *Handler) HandleElementsChanged(c *gin.Context) {
	var req ElementsChangedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", validator.FieldErrors(err))
		return
	}

	if httpkit.HandleError(c, h.svc.ElementsChanged(c.Request.Context(), req)) {
		return
	}
	c.Status(http.StatusNoContent)
}
