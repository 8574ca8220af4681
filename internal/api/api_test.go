package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgallion1/docgate/internal/archive"
	"github.com/dgallion1/docgate/internal/config"
	"github.com/dgallion1/docgate/internal/pipeline"
	"github.com/dgallion1/docgate/internal/ruleset"
)

const (
	testKey   = "secret"
	bilanText = "IDENTITÉ\nMadame Anne ROCHAT - 756.1111.2222.33\nCONCLUSION\nApte au placement.\n"
)

func newTestServer(t *testing.T) (*Server, *archive.Store) {
	t.Helper()
	rs, err := ruleset.Default()
	if err != nil {
		t.Fatalf("load ruleset: %v", err)
	}
	store, err := archive.Open(":memory:")
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	cfg := config.Config{
		DocgateAPIKey:  testKey,
		WorkerCount:    1,
		MaxQueueSize:   4,
		MaxUploadBytes: 1 << 20,
		JobTTL:         time.Hour,
		StatsWindow:    time.Hour,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := pipeline.NewOrchestrator(cfg, rs, store, log)
	orch.Start(context.Background())
	t.Cleanup(func() {
		orch.Stop()
		store.Close()
	})
	return NewServer(orch, store, log, cfg), store
}

func multipartBody(t *testing.T, field, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	req.Header.Set("Authorization", "Bearer "+testKey)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != `{"status":"ok"}` {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestAuthRequired(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ruleset", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without header, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/ruleset", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with bad key, got %d", rec.Code)
	}
}

func TestParse(t *testing.T) {
	s, _ := newTestServer(t)

	body, ct := multipartBody(t, "file", "bilan.txt", bilanText, map[string]string{"segments": "true"})
	req := httptest.NewRequest(http.MethodPost, "/api/parse", body)
	req.Header.Set("Content-Type", ct)
	rec := do(t, s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var res struct {
		Normalized     map[string]any   `json:"normalized"`
		Segments       []map[string]any `json:"segments"`
		ProductionGate struct {
			Status    string `json:"status"`
			ProfileID string `json:"profile_id"`
		} `json:"production_gate"`
		Meta struct {
			Source          string `json:"source"`
			ParagraphsCount int    `json:"paragraphs_count"`
		} `json:"meta"`
	}
	decode(t, rec, &res)
	if res.Meta.Source != "bilan.txt" || res.Meta.ParagraphsCount != 4 {
		t.Errorf("unexpected meta: %+v", res.Meta)
	}
	if res.ProductionGate.ProfileID == "" {
		t.Error("expected a gate profile")
	}
	if len(res.Segments) == 0 {
		t.Error("expected segments when requested")
	}
	if _, ok := res.Normalized["identity"]; !ok {
		t.Errorf("expected identity section, got keys %v", res.Normalized)
	}

	stats := do(t, s, httptest.NewRequest(http.MethodGet, "/api/stats/parse", nil))
	var report pipeline.StatsReport
	decode(t, stats, &report)
	if report.Parse.Count != 1 || report.Evaluate.Count != 1 {
		t.Errorf("expected synchronous parse to be counted, got %+v", report)
	}
}

func TestParse_UnsupportedType(t *testing.T) {
	s, _ := newTestServer(t)
	body, ct := multipartBody(t, "file", "bilan.xls", "x", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/parse", body)
	req.Header.Set("Content-Type", ct)
	rec := do(t, s, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestParse_ForcedProfile(t *testing.T) {
	s, _ := newTestServer(t)
	body, ct := multipartBody(t, "file", "bilan.txt", bilanText, map[string]string{"profile": "bilan_complet"})
	req := httptest.NewRequest(http.MethodPost, "/api/parse", body)
	req.Header.Set("Content-Type", ct)
	rec := do(t, s, req)

	var res struct {
		ProductionGate struct {
			ProfileID string `json:"profile_id"`
			Forced    bool   `json:"forced"`
		} `json:"production_gate"`
	}
	decode(t, rec, &res)
	if !res.ProductionGate.Forced || res.ProductionGate.ProfileID != "bilan_complet" {
		t.Errorf("expected forced bilan_complet, got %+v", res.ProductionGate)
	}
}

func TestJobLifecycle(t *testing.T) {
	s, store := newTestServer(t)

	body, ct := multipartBody(t, "file", "bilan.txt", bilanText, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", body)
	req.Header.Set("Content-Type", ct)
	rec := do(t, s, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var accepted struct {
		JobID   string `json:"job_id"`
		PollURL string `json:"poll_url"`
	}
	decode(t, rec, &accepted)
	if accepted.PollURL != "/api/jobs/"+accepted.JobID {
		t.Errorf("unexpected poll url %q", accepted.PollURL)
	}

	var snap pipeline.JobSnapshot
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec = do(t, s, httptest.NewRequest(http.MethodGet, accepted.PollURL, nil))
		decode(t, rec, &snap)
		if snap.Status == pipeline.StatusCompleted || snap.Status == pipeline.StatusFailed {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if snap.Status != pipeline.StatusCompleted {
		t.Fatalf("expected completed job, got %+v", snap)
	}
	if snap.Verdict == nil {
		t.Fatal("expected verdict on completed job")
	}

	rec = do(t, s, httptest.NewRequest(http.MethodGet, accepted.PollURL+"?result=true", nil))
	var full map[string]any
	decode(t, rec, &full)
	if _, ok := full["result"]; !ok {
		t.Error("expected full result with result=true")
	}

	// The archive now serves the document.
	n, err := store.Count(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("expected one archived document, got %d (%v)", n, err)
	}
	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/documents", nil))
	var list struct {
		Documents []archive.Document `json:"documents"`
		Total     int                `json:"total"`
		Limit     int                `json:"limit"`
	}
	decode(t, rec, &list)
	if list.Total != 1 || len(list.Documents) != 1 || list.Limit != 50 {
		t.Fatalf("unexpected listing: %+v", list)
	}
	if list.Documents[0].ContentHash != snap.ContentHash {
		t.Errorf("expected hash %q, got %q", snap.ContentHash, list.Documents[0].ContentHash)
	}

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/documents/"+snap.ContentHash, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var doc archive.Document
	decode(t, rec, &doc)
	if len(doc.Result) == 0 {
		t.Error("expected archived result body")
	}
}

func TestJobStatus_NotFound(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/jobs/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestDocument_NotFound(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/documents/abc", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestSubmitBatch(t *testing.T) {
	s, _ := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range map[string]string{"a.txt": bilanText, "b.exe": "x"} {
		fw, _ := mw.CreateFormFile("files", name)
		fw.Write([]byte(content))
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/batch", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := do(t, s, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	var out struct {
		Jobs []map[string]any `json:"jobs"`
	}
	decode(t, rec, &out)
	if len(out.Jobs) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(out.Jobs))
	}
	var queued, rejected int
	for _, j := range out.Jobs {
		if _, ok := j["job_id"]; ok {
			queued++
		}
		if _, ok := j["error"]; ok {
			rejected++
		}
	}
	if queued != 1 || rejected != 1 {
		t.Errorf("expected one queued and one rejected, got %v", out.Jobs)
	}
}

func TestRuleset(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/ruleset", nil))
	var sum ruleset.Summary
	decode(t, rec, &sum)
	if sum.Version != "1.0" || sum.DefaultProfile != "placement_suivi" {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if len(sum.Profiles) != 3 {
		t.Errorf("expected 3 profiles, got %v", sum.Profiles)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct{ in, want string }{
		{"bilan.docx", "bilan.docx"},
		{"../../etc/passwd", "passwd"},
		{`C:\docs\bilan.pdf`, "bilan.pdf"},
		{"", "unnamed"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
