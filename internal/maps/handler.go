package maps

import (
	"mime"
	"net/http"
	"strconv"
	"strings"

	"mapdna/internal/mapspec"
	"mapdna/platform/apperr"
	"mapdna/platform/httpkit"

	"github.com/gin-gonic/gin"
)

const maxDocumentBytes = 1 << 20

// Handler exposes map rendering over HTTP.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Render handles POST /api/v1/maps/render. The body is a map document in
// JSON or YAML, picked by Content-Type. ?format=html or an Accept header
// preferring text/html returns the embeddable fragment instead of JSON.
func (h *Handler) Render(c *gin.Context) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxDocumentBytes)
	doc, err := mapspec.Decode(body, requestFormat(c.GetHeader("Content-Type")))
	if err != nil {
		httpkit.HandleError(c, apperr.Wrap(apperr.KindBadRequest, "invalid map document", err).WithDetails(err.Error()))
		return
	}

	res, err := h.svc.Render(c.Request.Context(), doc)
	if httpkit.HandleError(c, err) {
		return
	}
	respond(c, res)
}

// Replay handles POST /api/v1/maps/replay.
func (h *Handler) Replay(c *gin.Context) {
	var req ReplayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "html or dna is required", err.Error())
		return
	}

	report, err := h.svc.Replay(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report)
}

// ElementMap handles GET /api/v1/elements/:id/map.
func (h *Handler) ElementMap(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		httpkit.Error(c, http.StatusBadRequest, "invalid element id", nil)
		return
	}

	var req ElementMapRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid query", err.Error())
		return
	}

	res, err := h.svc.ElementMap(c.Request.Context(), id, req)
	if httpkit.HandleError(c, err) {
		return
	}
	respond(c, res)
}

func respond(c *gin.Context, res *RenderResult) {
	if wantsHTML(c) {
		httpkit.HTML(c, http.StatusOK, res.Fragment())
		return
	}
	httpkit.OK(c, res)
}

func wantsHTML(c *gin.Context) bool {
	if f := c.Query("format"); f != "" {
		return f == "html"
	}
	return c.NegotiateFormat(gin.MIMEJSON, gin.MIMEHTML) == gin.MIMEHTML
}

func requestFormat(contentType string) mapspec.Format {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return mapspec.FormatJSON
	}
	if strings.Contains(mt, "yaml") {
		return mapspec.FormatYAML
	}
	return mapspec.FormatJSON
}
