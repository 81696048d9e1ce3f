package maps

import (
	"context"
	"encoding/json"
	"strconv"

	"mapdna/internal/dynamicmap"
	"mapdna/internal/elements"
	"mapdna/internal/interpreter/replay"
	"mapdna/internal/mapspec"
	"mapdna/internal/view"
	"mapdna/platform/apperr"
	"mapdna/platform/config"
	"mapdna/platform/logger"
)

// Service renders and replays maps.
type Service struct {
	compiler *mapspec.Compiler
	source   elements.Source
	fields   elements.FieldResolver
	popups   dynamicmap.PopupRenderer
	assets   dynamicmap.AssetLoader
	cfg      config.MapboxConfig
	log      *logger.Logger
}

// NewService creates the service. source and fields may be nil when no
// element store is configured.
func NewService(
	compiler *mapspec.Compiler,
	source elements.Source,
	fields elements.FieldResolver,
	popups dynamicmap.PopupRenderer,
	assets dynamicmap.AssetLoader,
	cfg config.MapboxConfig,
	log *logger.Logger,
) *Service {
	return &Service{
		compiler: compiler,
		source:   source,
		fields:   fields,
		popups:   popups,
		assets:   assets,
		cfg:      cfg,
		log:      log,
	}
}

func (s *Service) deps(v *view.View) dynamicmap.Deps {
	return dynamicmap.Deps{
		Fields:  s.fields,
		Popups:  s.popups,
		Assets:  s.assets,
		View:    v,
		Logging: s.cfg.IsJSLoggingEnabled(),
		Log:     s.log,
	}
}

// Render compiles a map document and tags it.
func (s *Service) Render(ctx context.Context, doc *mapspec.Document) (*RenderResult, error) {
	v := view.New()
	out, m, err := s.compiler.Render(ctx, doc, s.deps(v))
	if err != nil {
		return nil, err
	}
	return result(m, string(out), v), nil
}

// ElementMap renders a map of one stored element's address fields.
func (s *Service) ElementMap(ctx context.Context, id int64, req ElementMapRequest) (*RenderResult, error) {
	if s.source == nil {
		return nil, apperr.Unavailable("element storage is not configured")
	}
	e, err := s.source.GetElement(ctx, id)
	if err != nil {
		return nil, err
	}

	v := view.New()
	markerOpts := dynamicmap.Options{}
	if len(req.Fields) > 0 {
		markerOpts["field"] = req.Fields
	}
	if req.PopupTemplate != "" {
		markerOpts["popupTemplate"] = req.PopupTemplate
	}

	m := dynamicmap.New(s.deps(v), nil, dynamicmap.Options{"id": "element-" + strconv.FormatInt(id, 10)}).
		Markers(e, markerOpts)
	if req.Style != "" {
		m.Style(req.Style)
	}
	if req.Zoom > 0 {
		m.Zoom(req.Zoom)
	}

	out, err := m.Tag(ctx, dynamicmap.TagOptions{})
	if err != nil {
		return nil, err
	}
	return result(m, string(out), v), nil
}

// Replay runs markup or DNA through the interpreter with the in-memory
// engine.
func (s *Service) Replay(_ context.Context, req ReplayRequest) (*replay.Report, error) {
	opts := replay.Options{
		AccessToken: s.cfg.GetMapboxAccessToken(),
		Settle:      req.Settle,
	}
	if req.HTML != "" {
		return replay.HTMLString(req.HTML, opts)
	}
	if len(req.DNA) == 0 {
		return nil, apperr.BadRequest("either html or dna is required")
	}
	return replay.DNA(dnaBytes(req.DNA), req.Popups, opts)
}

// dnaBytes accepts DNA as a JSON array or as a string holding one, which
// is how it appears in a data-dna attribute.
func dnaBytes(raw []byte) []byte {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []byte(s)
	}
	return raw
}

func result(m *dynamicmap.DynamicMap, html string, v *view.View) *RenderResult {
	return &RenderResult{
		ID:      m.ID,
		HTML:    html,
		Head:    string(v.Head()),
		EndBody: string(v.EndBody()),
		DNA:     m.DNA(),
		Popups:  m.Popups(),
	}
}
