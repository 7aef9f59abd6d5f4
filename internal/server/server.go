package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"termbridge/internal/domain"
	"termbridge/internal/metrics"
)

const maxBodySize = 1 << 20 // 1MB

// Server is the HTTP request dispatcher. It owns no state of its own: it
// translates inbound requests into calls on the executor and analyzer and
// serializes their structured outcomes back to the caller.
type Server struct {
	host    string
	port    int
	version string

	executor domain.Executor
	analyzer domain.Analyzer
	audit    domain.AuditLogger // optional
	logger   *slog.Logger

	metricsEnabled  bool
	metricsEndpoint string

	server *http.Server
}

type Config struct {
	Host            string
	Port            int
	Version         string
	Executor        domain.Executor
	Analyzer        domain.Analyzer
	Audit           domain.AuditLogger
	Logger          *slog.Logger
	MetricsEnabled  bool
	MetricsEndpoint string
}

func New(cfg Config) *Server {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 3000
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MetricsEndpoint == "" {
		cfg.MetricsEndpoint = "/metrics"
	}
	return &Server{
		host:            cfg.Host,
		port:            cfg.Port,
		version:         cfg.Version,
		executor:        cfg.Executor,
		analyzer:        cfg.Analyzer,
		audit:           cfg.Audit,
		logger:          cfg.Logger,
		metricsEnabled:  cfg.MetricsEnabled,
		metricsEndpoint: cfg.MetricsEndpoint,
	}
}

// Handler builds the route table. Exposed separately from Start so tests
// can drive it through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /mcp/execute", s.handleExecute)
	mux.HandleFunc("POST /mcp/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metricsEnabled {
		mux.Handle("GET "+s.metricsEndpoint, metrics.Collector.Handler())
	}
	return mux
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Write timeout must cover the execution budget plus slack.
		WriteTimeout:   120 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	s.logger.Info("server started", "addr", "http://"+addr, "metrics", s.metricsEnabled)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// --- Wire types ---

type executeRequest struct {
	Command string `json:"command"`
	Cwd     string `json:"cwd,omitempty"`
}

type executeResponse struct {
	Success    bool   `json:"success"`
	Output     string `json:"output"`
	Error      string `json:"error"`
	ReturnCode *int   `json:"return_code,omitempty"`
}

type analyzeRequest struct {
	Command string         `json:"command"`
	Context map[string]any `json:"context,omitempty"`
}

type analyzeResponse struct {
	Command     string   `json:"command"`
	Type        string   `json:"type"`
	Suggestions []string `json:"suggestions"`
	RiskLevel   string   `json:"risk_level"`
}

// --- Handlers ---

func (s *Server) handleExecute(rw http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if !s.decode(rw, r, &req) {
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		s.reject(rw, "missing required field: command")
		return
	}

	metrics.ExecutionsTotal.Inc()
	metrics.ActiveExecutions.Inc()
	start := time.Now()
	res := s.executor.Execute(r.Context(), domain.ExecRequest{
		Command:    req.Command,
		WorkingDir: req.Cwd,
	})
	metrics.ActiveExecutions.Dec()
	metrics.ExecLatency.Observe(time.Since(start).Seconds())
	if res.TimedOut {
		metrics.ExecTimeoutsTotal.Inc()
	}
	if !res.Success {
		metrics.ExecFailuresTotal.Inc()
	}

	s.logAudit(r.Context(), "execute", req.Command, execAuditResult(res), res.FailureReason)

	// On timeout or launch failure the error field carries the failure
	// description and return_code is absent.
	resp := executeResponse{
		Success:    res.Success,
		Output:     res.Stdout,
		Error:      res.Stderr,
		ReturnCode: res.ExitCode,
	}
	if res.FailureReason != "" {
		resp.Error = res.FailureReason
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (s *Server) handleAnalyze(rw http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !s.decode(rw, r, &req) {
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		s.reject(rw, "missing required field: command")
		return
	}

	metrics.AnalysesTotal.Inc()
	res := s.analyzer.Analyze(domain.AnalysisRequest{
		Command: req.Command,
		Context: req.Context,
	})

	s.logAudit(r.Context(), "analyze", req.Command, string(res.RiskLevel),
		fmt.Sprintf("%d suggestions", len(res.Suggestions)))

	suggestions := res.Suggestions
	if suggestions == nil {
		suggestions = []string{}
	}
	writeJSON(rw, http.StatusOK, analyzeResponse{
		Command:     res.Command,
		Type:        "analysis",
		Suggestions: suggestions,
		RiskLevel:   string(res.RiskLevel),
	})
}

func (s *Server) handleHealth(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"time":    time.Now().Format(time.RFC3339),
	})
}

// --- Helpers ---

// decode reads and unmarshals the request body. A false return means a
// transport-level rejection was already written.
func (s *Server) decode(rw http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		s.reject(rw, "cannot read request body")
		return false
	}
	defer r.Body.Close()

	if err := json.Unmarshal(body, v); err != nil {
		s.reject(rw, "invalid JSON payload")
		return false
	}
	return true
}

// reject writes a transport-level error, distinct from a semantic
// execution or analysis failure (which is a 200 with success=false).
func (s *Server) reject(rw http.ResponseWriter, msg string) {
	metrics.BadRequestsTotal.Inc()
	s.logger.Warn("request rejected", "reason", msg)
	writeJSON(rw, http.StatusBadRequest, map[string]string{"error": msg})
}

func (s *Server) logAudit(ctx context.Context, action, command, result, details string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogAudit(ctx, domain.AuditEntry{
		Action:  action,
		Command: command,
		Result:  result,
		Details: details,
	}); err != nil {
		s.logger.Warn("audit write failed", "err", err)
	}
}

func execAuditResult(res domain.ExecResult) string {
	if res.Success {
		return "success"
	}
	if res.TimedOut {
		return "timeout"
	}
	return "failure"
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(v)
}
