package webmonitor

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/disfluency"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/logger"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/metrics"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/pipeline"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/report"
	"github.com/dj-oyu/toastmaster-toolbox/coach-server/internal/timing"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 16

// Server serves the coaching telemetry endpoints.
type Server struct {
	cfg         Config
	pipeline    *pipeline.Pipeline
	files       *report.FileStore
	archive     *report.SQLiteStore
	metrics     *metrics.Metrics
	broadcaster *StatusBroadcaster
}

// NewServer returns a configured server. archive may be nil.
func NewServer(cfg Config, p *pipeline.Pipeline, files *report.FileStore, archive *report.SQLiteStore) *Server {
	if cfg.StatusInterval == 0 {
		cfg.StatusInterval = DefaultConfig().StatusInterval
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = DefaultConfig().CORSOrigin
	}
	if files == nil {
		dir := cfg.ReportDir
		if dir == "" {
			dir = DefaultConfig().ReportDir
		}
		files = report.NewFileStore(dir)
	}

	broadcaster := NewStatusBroadcaster(p, cfg.StatusInterval)
	broadcaster.Start()

	// Push disfluency changes to clients without waiting for the next tick.
	p.Ledger().Subscribe(func(disfluency.Event) {
		broadcaster.Publish()
	})

	return &Server{
		cfg:         cfg,
		pipeline:    p,
		files:       files,
		archive:     archive,
		metrics:     p.Metrics(),
		broadcaster: broadcaster,
	}
}

// Close stops the broadcaster and disconnects streaming clients.
func (s *Server) Close() {
	s.broadcaster.Stop()
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/disfluency", disfluency.Handler(s.pipeline.Ledger()))

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/status/stream", s.handleStatusStream)
	mux.HandleFunc("/api/telemetry/ws", s.handleTelemetryWS)

	mux.HandleFunc("/api/session/start", s.handleSessionStart)
	mux.HandleFunc("/api/session/stop", s.handleSessionStop)
	mux.HandleFunc("/api/session/reset", s.handleSessionReset)
	mux.HandleFunc("/api/session/target", s.handleSessionTarget)
	mux.HandleFunc("/api/detection", s.handleDetection)
	mux.HandleFunc("/api/mirror", s.handleMirror)

	mux.HandleFunc("/api/report", s.handleReport)
	mux.HandleFunc("/api/report/save", s.handleReportSave)
	mux.HandleFunc("/api/reports", s.handleReports)

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", s.metrics.Handler())

	return s.withMetrics(mux, s.withCORS(mux))
}

// withCORS lets a browser dashboard on another origin call the API.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.CORSOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code while keeping streaming
// (Flusher) and WebSocket (Hijacker) support of the wrapped writer.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	if r.status == 0 {
		r.status = http.StatusSwitchingProtocols
	}
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// withMetrics counts requests by the route pattern they match, so the
// label set stays bounded whatever paths clients send.
func (s *Server) withMetrics(mux *http.ServeMux, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, pattern := mux.Handler(r)
		if pattern == "" {
			pattern = metrics.UnmatchedEndpoint
		}

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		s.metrics.ObserveRequest(r.Method, pattern, rec.status)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.pipeline.Status())
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(id)

	s.metrics.ActiveClients.Add(1)
	s.metrics.TotalClients.Add(1)
	defer s.metrics.ActiveClients.Add(-1)

	// Prime the stream so a new client sees state immediately.
	go s.broadcaster.Publish()

	streamStatusEventsFromChannel(w, r, eventCh, wantsProtobuf(r))
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	changed := s.pipeline.Engine().Start(s.pipeline.Now())
	if changed {
		logger.Info("Session", "Speech started")
	}
	s.writeSession(w, changed)
}

func (s *Server) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	changed := s.pipeline.Engine().Stop(s.pipeline.Now())
	if changed {
		logger.Info("Session", "Speech stopped")
	}
	s.writeSession(w, changed)
}

// handleSessionReset resets timing and the disfluency ledger. With
// ?scope=all the expression statistics are cleared too.
func (s *Server) handleSessionReset(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if r.URL.Query().Get("scope") == "all" {
		s.pipeline.ResetAll()
		logger.Info("Session", "Full reset")
	} else {
		s.pipeline.Engine().Reset()
		logger.Info("Session", "Speech reset")
	}
	s.writeSession(w, true)
}

func (s *Server) handleSessionTarget(w http.ResponseWriter, r *http.Request) {
	engine := s.pipeline.Engine()
	if r.Method == http.MethodGet {
		writeJSON(w, engine.Config())
		return
	}
	if !requirePost(w, r) {
		return
	}

	var req TargetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	cfg := engine.Config()
	if req.TargetSeconds != nil {
		cfg.TargetSeconds = *req.TargetSeconds
	}
	if req.WarnLow != nil {
		cfg.WarnLow = *req.WarnLow
	}
	if req.WarnHigh != nil {
		cfg.WarnHigh = *req.WarnHigh
	}

	if err := engine.SetTarget(cfg); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	if cfg.WarnLow > cfg.WarnHigh {
		logger.Warn("Session", "warn_low %.2f is above warn_high %.2f; medium band unreachable", cfg.WarnLow, cfg.WarnHigh)
	}
	s.writeSession(w, true)
}

func (s *Server) handleDetection(w http.ResponseWriter, r *http.Request) {
	s.handleToggle(w, r, s.pipeline.DetectionEnabled, s.pipeline.SetDetectionEnabled)
}

func (s *Server) handleMirror(w http.ResponseWriter, r *http.Request) {
	s.handleToggle(w, r, s.pipeline.Mirror, s.pipeline.SetMirror)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request, get func() bool, set func(bool)) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		var req ToggleRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err, http.StatusBadRequest)
			return
		}
		if req.Enabled == nil {
			writeError(w, errors.New("missing field: enabled"), http.StatusBadRequest)
			return
		}
		set(*req.Enabled)
		s.broadcaster.Publish()
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]any{"enabled": get()})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep := s.pipeline.Report()
	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, rep)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(rep.Text()))
}

func (s *Server) handleReportSave(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	rep := s.pipeline.Report()
	path, err := s.files.Save(r.URL.Query().Get("name"), rep.Text())
	if err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	resp := SaveReportResponse{ID: rep.ID, Path: path}
	if s.archive != nil {
		if err := s.archive.Save(r.Context(), rep, path); err != nil {
			logger.Error("Report", "Archive failed: %v", err)
		} else {
			resp.Archived = true
		}
	}

	logger.Info("Report", "Saved report %s to %s", rep.ID, path)
	writeJSON(w, resp)
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	files, err := s.files.List()
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}

	payload := map[string]any{"files": files}
	if s.archive != nil {
		records, err := s.archive.List(r.Context(), 50)
		if err != nil {
			writeError(w, err, http.StatusInternalServerError)
			return
		}
		payload["archived"] = records
	}
	writeJSON(w, payload)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{
		Status:          "ok",
		SourceExhausted: s.pipeline.Exhausted(),
		Clients:         s.broadcaster.ClientCount(),
	})
}

func (s *Server) writeSession(w http.ResponseWriter, changed bool) {
	snap := s.pipeline.Engine().Tick(s.pipeline.Now())
	s.broadcaster.Publish()
	writeJSON(w, struct {
		Changed bool            `json:"changed"`
		Timing  timing.Snapshot `json:"timing"`
	}{changed, snap})
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, err error, status int) {
	writeJSONWithStatus(w, map[string]any{"error": err.Error()}, status)
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":"%s"}`, err.Error())
	}
}

// Serve runs an http.Server for h until the server is shut down.
func Serve(srv *http.Server) error {
	logger.Info("HTTP", "Listening on %s", srv.Addr)
	start := time.Now()
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		logger.Info("HTTP", "Server closed after %s", time.Since(start).Round(time.Second))
		return nil
	}
	return err
}
