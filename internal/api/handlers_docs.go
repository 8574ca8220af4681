package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dgallion1/docgate/internal/archive"
	"github.com/go-chi/chi/v5"
)

const maxListLimit = 200

// handleListDocuments lists archived results, newest first.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	if s.docs == nil {
		jsonError(w, "archive disabled", http.StatusServiceUnavailable)
		return
	}

	limit := queryInt(r, "limit", 50)
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	docs, err := s.docs.List(r.Context(), limit, offset)
	if err != nil {
		jsonError(w, "failed to list documents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	total, err := s.docs.Count(r.Context())
	if err != nil {
		jsonError(w, "failed to count documents: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"total":     total,
		"limit":     limit,
		"offset":    offset,
	})
}

// handleGetDocument returns one archived result by content hash.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	if s.docs == nil {
		jsonError(w, "archive disabled", http.StatusServiceUnavailable)
		return
	}

	hash := chi.URLParam(r, "hash")
	doc, err := s.docs.Get(r.Context(), hash)
	if errors.Is(err, archive.ErrNotFound) {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, "failed to read document: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
