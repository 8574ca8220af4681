package api

import (
	"bytes"
	"net/http"
	"time"

	"github.com/dgallion1/docgate/internal/engine"
	"github.com/dgallion1/docgate/internal/parser"
)

// handleParse evaluates one upload synchronously and returns the full
// engine result.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r, 1) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	_, fh, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	up, uerr := s.readUpload(fh)
	if uerr != nil {
		jsonError(w, uerr.msg, uerr.code)
		return
	}

	p, err := parser.ForFile(up.filename, parser.Options{PDFFallbackPdftotext: s.cfg.PDFFallbackPdftotext})
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	parseStart := time.Now()
	doc, err := p.Parse(bytes.NewReader(up.data), up.filename)
	if err != nil {
		s.log.Warn("parse failed", "filename", up.filename, "error", err)
		jsonError(w, "parse: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}

	evalStart := time.Now()
	res := engine.Run(doc, s.orchestrator.Ruleset(), engine.Options{
		Profile:         s.profileFor(r),
		IncludeSegments: r.FormValue("segments") == "true",
	})
	s.orchestrator.ObserveSync(parseStart, evalStart, res.ProductionGate.Status, res.ProductionGate.ProfileID)

	writeJSON(w, http.StatusOK, res)
}
