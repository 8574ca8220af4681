package api

import (
	"fmt"
	"net/http"

	"github.com/dgallion1/docgate/internal/pipeline"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
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

	job := pipeline.NewJob(up.filename, s.profileFor(r), up.data)
	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   job.ID,
		"status":   pipeline.StatusQueued,
		"poll_url": pollURL(job.ID),
	})
}

func (s *Server) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r, 10) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		jsonError(w, "at least one file is required", http.StatusBadRequest)
		return
	}
	profile := s.profileFor(r)

	results := make([]map[string]any, 0, len(files))
	for _, fh := range files {
		up, uerr := s.readUpload(fh)
		if uerr != nil {
			results = append(results, map[string]any{
				"filename": sanitizeFilename(fh.Filename),
				"error":    uerr.msg,
			})
			continue
		}

		job := pipeline.NewJob(up.filename, profile, up.data)
		if err := s.orchestrator.Submit(job); err != nil {
			results = append(results, map[string]any{
				"filename": up.filename,
				"error":    err.Error(),
			})
			continue
		}

		results = append(results, map[string]any{
			"filename": up.filename,
			"job_id":   job.ID,
			"status":   pipeline.StatusQueued,
			"poll_url": pollURL(job.ID),
		})
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"jobs": results})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot(r.URL.Query().Get("result") == "true"))
}

func pollURL(jobID string) string {
	return fmt.Sprintf("/api/jobs/%s", jobID)
}
