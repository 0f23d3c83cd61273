// Package server exposes the marker pipeline over HTTP: image upload starts
// a run, run state is polled or streamed over WebSocket, and the persisted
// stage outputs are served for inspection.
package server

import (
	"fmt"
	"sync"

	"github.com/drawscan/hexmark/internal/pipeline"
)

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigin  string
	MaxUploadMB int64
	TimeoutSec  int
	WorkDir     string
}

// Server holds the HTTP server state and dependencies. Every uploaded image
// becomes an independent pipeline run with its own session directory and
// orchestrator; runs share nothing but the providers.
type Server struct {
	cfg      Config
	opts     pipeline.Options
	detector pipeline.Detector
	judge    pipeline.Judge

	mu   sync.RWMutex
	runs map[string]*pipeline.Orchestrator
}

// NewServer creates a server backed by the given providers.
func NewServer(cfg Config, detector pipeline.Detector, judge pipeline.Judge, opts pipeline.Options) *Server {
	return &Server{
		cfg:      cfg,
		opts:     opts,
		detector: detector,
		judge:    judge,
		runs:     make(map[string]*pipeline.Orchestrator),
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

func (s *Server) run(id string) (*pipeline.Orchestrator, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.runs[id]
	return o, ok
}

func (s *Server) addRun(id string, o *pipeline.Orchestrator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[id] = o
}

// Response types for API endpoints.

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
}

type RunCreatedResponse struct {
	ID string `json:"id"`
}

type RunStatusResponse struct {
	ID       string            `json:"id"`
	Snapshot pipeline.Snapshot `json:"snapshot"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
