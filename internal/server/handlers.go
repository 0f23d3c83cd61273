package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drawscan/hexmark/internal/pipeline"
	"github.com/drawscan/hexmark/internal/utils"
	"github.com/drawscan/hexmark/internal/version"
)

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.wrap("/healthz", s.healthHandler))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /runs", s.wrap("/runs", s.createRunHandler))
	mux.HandleFunc("GET /runs/{id}", s.wrap("/runs/{id}", s.runStatusHandler))
	mux.HandleFunc("POST /runs/{id}/cancel", s.wrap("/runs/{id}/cancel", s.cancelRunHandler))
	mux.HandleFunc("POST /runs/{id}/retry", s.wrap("/runs/{id}/retry", s.retryRunHandler))
	mux.HandleFunc("POST /runs/{id}/reset", s.wrap("/runs/{id}/reset", s.resetRunHandler))
	mux.HandleFunc("GET /runs/{id}/report", s.wrap("/runs/{id}/report", s.reportHandler))
	mux.HandleFunc("GET /runs/{id}/images/{name}", s.wrap("/runs/{id}/images/{name}", s.imageHandler))
	mux.HandleFunc("GET /runs/{id}/ws", s.runEventsHandler)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, message string, status int) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	v, _, _ := version.Info()
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: v,
		Time:    time.Now().UTC().Format(time.RFC3339),
	})
}

// createRunHandler accepts an uploaded drawing and starts a pipeline run
// over it in the background.
func (s *Server) createRunHandler(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.cfg.MaxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		s.writeError(w, "Failed to parse form data", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeError(w, "No image file provided", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	if !utils.IsSupportedImage(header.Filename) {
		s.writeError(w, "Unsupported image format", http.StatusBadRequest)
		return
	}

	session, err := pipeline.NewSession(s.cfg.WorkDir, "", "")
	if err != nil {
		s.writeError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	inputPath := filepath.Join(session.Dir, "input"+filepath.Ext(header.Filename))
	dst, err := os.Create(inputPath) //nolint:gosec // G304: session-scoped upload path
	if err != nil {
		s.writeError(w, "Failed to store upload", http.StatusInternalServerError)
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		_ = dst.Close()
		s.writeError(w, "Failed to store upload", http.StatusInternalServerError)
		return
	}
	if err := dst.Close(); err != nil {
		s.writeError(w, "Failed to store upload", http.StatusInternalServerError)
		return
	}
	session.ImagePath = inputPath

	orch := pipeline.NewOrchestrator(session, s.detector, s.judge, s.opts)
	s.addRun(session.ID, orch)

	go s.executeRun(orch)

	s.writeJSON(w, http.StatusAccepted, RunCreatedResponse{ID: session.ID})
}

// executeRun drives one run to a terminal state and records its metrics.
func (s *Server) executeRun(orch *pipeline.Orchestrator) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.TimeoutSec)*time.Second)
	defer cancel()

	err := orch.Run(ctx)
	snap := orch.Snapshot()

	status := "completed"
	if snap.Halted {
		status = "halted"
	}
	runsTotal.WithLabelValues(status).Inc()
	for stage, d := range snap.StageTimings {
		stageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
	}
	if snap.Stage == pipeline.StageCompleted {
		markersValidated.Observe(float64(snap.ValidatedCount))
	}
	if err != nil {
		slog.Error("run finished with error", "session", orch.Session().ID, "error", err)
	}
}

func (s *Server) runStatusHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	orch, ok := s.run(id)
	if !ok {
		s.writeError(w, "Run not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, RunStatusResponse{ID: id, Snapshot: orch.Snapshot()})
}

func (s *Server) cancelRunHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	orch, ok := s.run(id)
	if !ok {
		s.writeError(w, "Run not found", http.StatusNotFound)
		return
	}
	orch.Cancel()
	s.writeJSON(w, http.StatusOK, RunStatusResponse{ID: id, Snapshot: orch.Snapshot()})
}

func (s *Server) retryRunHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	orch, ok := s.run(id)
	if !ok {
		s.writeError(w, "Run not found", http.StatusNotFound)
		return
	}
	snap := orch.Snapshot()
	if !snap.Halted {
		s.writeError(w, "Run is not halted", http.StatusConflict)
		return
	}
	if !snap.Retryable {
		s.writeError(w, fmt.Sprintf("Halt is not retryable: %s", snap.HaltReason), http.StatusConflict)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.TimeoutSec)*time.Second)
		defer cancel()
		if err := orch.Retry(ctx); err != nil {
			slog.Error("retry finished with error", "session", id, "error", err)
		}
	}()
	s.writeJSON(w, http.StatusAccepted, RunStatusResponse{ID: id, Snapshot: snap})
}

func (s *Server) resetRunHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	orch, ok := s.run(id)
	if !ok {
		s.writeError(w, "Run not found", http.StatusNotFound)
		return
	}
	if err := orch.Reset(); err != nil {
		s.writeError(w, err.Error(), http.StatusConflict)
		return
	}
	s.writeJSON(w, http.StatusOK, RunStatusResponse{ID: id, Snapshot: orch.Snapshot()})
}

// reportHandler serves the persisted instance report of a completed run.
func (s *Server) reportHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	orch, ok := s.run(id)
	if !ok {
		s.writeError(w, "Run not found", http.StatusNotFound)
		return
	}
	path := orch.Session().ReportPath()
	if _, err := os.Stat(path); err != nil {
		s.writeError(w, "Report not available", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	http.ServeFile(w, r, path)
}

// imageHandler serves the annotated or mapped overlay of a run.
func (s *Server) imageHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	orch, ok := s.run(id)
	if !ok {
		s.writeError(w, "Run not found", http.StatusNotFound)
		return
	}

	var path string
	switch r.PathValue("name") {
	case "annotated":
		path = orch.Session().AnnotatedPath()
	case "mapped":
		path = orch.Session().MappedPath()
	default:
		s.writeError(w, "Unknown image name", http.StatusNotFound)
		return
	}
	if _, err := os.Stat(path); err != nil {
		s.writeError(w, "Image not available", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeFile(w, r, path)
}
