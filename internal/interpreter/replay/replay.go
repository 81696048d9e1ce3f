// Package replay runs the interpreter against rendered markup or raw DNA
// with the in-memory engine and reports what the page would show.
package replay

import (
	"io"
	"strings"

	"mapdna/internal/interpreter"
	"mapdna/internal/interpreter/htmldoc"
	"mapdna/internal/interpreter/memengine"
)

// Options tune a replay.
type Options struct {
	// AccessToken is used when the page does not define one.
	AccessToken string
	// Logging forces verbose console output on.
	Logging bool
	// Settle runs delayed work, such as the automatic fit, before the
	// report is taken.
	Settle bool
	NewID  func(prefix string) string
}

// Report is the outcome of a replay.
type Report struct {
	Containers []interpreter.InitResult `json:"containers,omitempty"`
	Maps       []interpreter.Snapshot   `json:"maps"`
	Console    []interpreter.Entry      `json:"console"`
}

// Warnings returns the warning and error messages.
func (r *Report) Warnings() []string {
	var out []string
	for _, e := range r.Console {
		if e.Level != interpreter.LevelLog {
			out = append(out, e.Message)
		}
	}
	return out
}

type session struct {
	registry  *interpreter.Registry
	console   *interpreter.Transcript
	scheduler *interpreter.ManualScheduler
	settle    bool
}

func newSession(doc *htmldoc.Document, page interpreter.Page, opts Options) *session {
	if page.AccessToken == "" {
		page.AccessToken = opts.AccessToken
	}
	if opts.Logging {
		page.Logging = true
	}
	s := &session{
		console:   &interpreter.Transcript{},
		scheduler: &interpreter.ManualScheduler{},
		settle:    opts.Settle,
	}
	s.registry = interpreter.NewRegistry(interpreter.Config{
		Engine:    memengine.New(),
		Document:  doc,
		Console:   s.console,
		Page:      page,
		Scheduler: s.scheduler,
		NewID:     opts.NewID,
	})
	return s
}

func (s *session) report(results []interpreter.InitResult) *Report {
	if s.settle {
		s.scheduler.Advance(interpreter.FitDelay)
	}
	r := &Report{Containers: results, Maps: []interpreter.Snapshot{}}
	for _, m := range s.registry.Maps() {
		r.Maps = append(r.Maps, m.Snapshot())
	}
	r.Console = s.console.Entries()
	return r
}

// HTML replays every managed map container in a page.
func HTML(r io.Reader, opts Options) (*Report, error) {
	doc, err := htmldoc.Parse(r)
	if err != nil {
		return nil, err
	}
	s := newSession(doc, doc.Page(), opts)
	results := s.registry.Init(nil)
	return s.report(results), nil
}

// HTMLString is HTML over a string.
func HTMLString(page string, opts Options) (*Report, error) {
	return HTML(strings.NewReader(page), opts)
}

// DNA replays one DNA string on a blank page. popups are the map's popup
// table keyed by marker id.
func DNA(dna []byte, popups map[string]interpreter.PopupData, opts Options) (*Report, error) {
	doc, err := htmldoc.ParseString("")
	if err != nil {
		return nil, err
	}
	page := interpreter.Page{Popups: map[string]map[string]interpreter.PopupData{}}
	if len(popups) > 0 {
		seq, err := interpreter.ParseDNA(dna)
		if err == nil && len(seq.Blocks) > 0 {
			if id, ok := seq.Blocks[0].Options["id"].(string); ok {
				page.Popups[id] = popups
			}
		}
	}

	s := newSession(doc, page, opts)
	s.registry.Unpack(dna)
	return s.report(nil), nil
}
