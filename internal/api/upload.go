package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dgallion1/docgate/internal/parser"
)

// upload is one validated file from a multipart form.
type upload struct {
	filename string
	data     []byte
}

// uploadError carries the HTTP status to answer with.
type uploadError struct {
	msg  string
	code int
}

func (e *uploadError) Error() string { return e.msg }

func (s *Server) readUpload(fh *multipart.FileHeader) (upload, *uploadError) {
	filename := sanitizeFilename(fh.Filename)
	if !parser.IsSupportedExtension(filename) {
		return upload{}, &uploadError{fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest}
	}

	f, err := fh.Open()
	if err != nil {
		return upload{}, &uploadError{"failed to open file", http.StatusInternalServerError}
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return upload{}, &uploadError{"failed to read file", http.StatusInternalServerError}
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return upload{}, &uploadError{fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge}
	}
	return upload{filename: filename, data: data}, nil
}

// parseForm limits the body and parses the multipart form. The caller
// must call r.MultipartForm.RemoveAll when ok.
func (s *Server) parseForm(w http.ResponseWriter, r *http.Request, files int64) bool {
	// Extra 1MB per request for form overhead.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes*files+1024*1024)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// profileFor returns the requested gate profile, or the configured one.
func (s *Server) profileFor(r *http.Request) string {
	if p := strings.TrimSpace(r.FormValue("profile")); p != "" {
		return p
	}
	return s.cfg.GateProfile
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	// Remove any path separators that might have survived.
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
