package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"termbridge/internal/analyzer"
	"termbridge/internal/domain"
	"termbridge/internal/executor"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = testLogger()
	}
	if cfg.Executor == nil {
		cfg.Executor = executor.New(executor.Config{TimeoutSeconds: 5, Logger: cfg.Logger})
	}
	if cfg.Analyzer == nil {
		cfg.Analyzer = analyzer.NewDefault()
	}
	return New(cfg)
}

func post(t *testing.T, s *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

// --- /mcp/execute ---

func TestHandleExecute_Echo_Success(t *testing.T) {
	s := testServer(t, Config{})
	rec := post(t, s, "/mcp/execute", `{"command": "echo hello"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Success    bool   `json:"success"`
		Output     string `json:"output"`
		Error      string `json:"error"`
		ReturnCode *int   `json:"return_code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if !resp.Success {
		t.Error("expected success=true")
	}
	if !strings.Contains(resp.Output, "hello") {
		t.Errorf("output should contain 'hello', got %q", resp.Output)
	}
	if resp.Error != "" {
		t.Errorf("error should be empty, got %q", resp.Error)
	}
	if resp.ReturnCode == nil || *resp.ReturnCode != 0 {
		t.Errorf("return_code should be 0, got %v", resp.ReturnCode)
	}
}

func TestHandleExecute_Cwd(t *testing.T) {
	dir := t.TempDir()
	s := testServer(t, Config{})
	rec := post(t, s, "/mcp/execute", `{"command": "pwd", "cwd": "`+dir+`"}`)

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["success"] != true {
		t.Fatalf("pwd should succeed: %v", resp)
	}
}

func TestHandleExecute_Timeout_NoReturnCode(t *testing.T) {
	// Stubbed executor: the timeout mapping is the server's concern.
	s := testServer(t, Config{Executor: stubExecutor{domain.ExecResult{
		Success:       false,
		FailureReason: "command timed out after 30s",
		TimedOut:      true,
	}}})
	rec := post(t, s, "/mcp/execute", `{"command": "sleep 60"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("semantic failure is still 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"success":false`) {
		t.Errorf("expected success=false: %s", body)
	}
	if !strings.Contains(body, "timed out") {
		t.Errorf("error should mention timeout: %s", body)
	}
	if strings.Contains(body, "return_code") {
		t.Errorf("return_code must be absent on timeout: %s", body)
	}
}

func TestHandleExecute_MissingCommand_Rejected(t *testing.T) {
	s := testServer(t, Config{})
	for _, body := range []string{`{}`, `{"command": ""}`, `{"cwd": "/tmp"}`} {
		rec := post(t, s, "/mcp/execute", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "error") {
			t.Errorf("body %s: rejection should carry an error field: %s", body, rec.Body.String())
		}
		// Transport-level rejection, not an ExecutionResult shape
		if strings.Contains(rec.Body.String(), "success") {
			t.Errorf("body %s: rejection must not look like an execution result: %s", body, rec.Body.String())
		}
	}
}

func TestHandleExecute_InvalidJSON_Rejected(t *testing.T) {
	s := testServer(t, Config{})
	rec := post(t, s, "/mcp/execute", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

// --- /mcp/analyze ---

func TestHandleAnalyze_ForcePush(t *testing.T) {
	s := testServer(t, Config{})
	rec := post(t, s, "/mcp/analyze", `{"command": "git push --force"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Command     string   `json:"command"`
		Type        string   `json:"type"`
		Suggestions []string `json:"suggestions"`
		RiskLevel   string   `json:"risk_level"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Command != "git push --force" {
		t.Errorf("command should be echoed, got %q", resp.Command)
	}
	if resp.Type != "analysis" {
		t.Errorf("type: got %q", resp.Type)
	}
	if resp.RiskLevel != "medium" {
		t.Errorf("risk_level: got %q", resp.RiskLevel)
	}
	if len(resp.Suggestions) == 0 || !strings.Contains(resp.Suggestions[0], "force-with-lease") {
		t.Errorf("suggestions: got %v", resp.Suggestions)
	}
}

func TestHandleAnalyze_Benign_EmptyArray(t *testing.T) {
	s := testServer(t, Config{})
	rec := post(t, s, "/mcp/analyze", `{"command": "ls -la"}`)

	body := rec.Body.String()
	if !strings.Contains(body, `"suggestions":[]`) {
		t.Errorf("suggestions must serialize as an empty array: %s", body)
	}
	if !strings.Contains(body, `"risk_level":"low"`) {
		t.Errorf("risk_level should be low: %s", body)
	}
}

func TestHandleAnalyze_WithContext(t *testing.T) {
	s := testServer(t, Config{})
	rec := post(t, s, "/mcp/analyze", `{"command": "sudo rm -rf /", "context": {"shell": "bash"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"risk_level":"high"`) {
		t.Errorf("expected high risk: %s", rec.Body.String())
	}
}

func TestHandleAnalyze_MissingCommand_Rejected(t *testing.T) {
	s := testServer(t, Config{})
	rec := post(t, s, "/mcp/analyze", `{"context": {}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

// --- /health ---

func TestHandleHealth(t *testing.T) {
	s := testServer(t, Config{Version: "1.2.3"})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	ct := rec.Header().Get("Content-Type")
	if !strings.HasPrefix(ct, "application/json") {
		t.Errorf("expected JSON content type, got %s", ct)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("health body must be JSON: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status: got %v", resp["status"])
	}
	if resp["version"] != "1.2.3" {
		t.Errorf("version: got %v", resp["version"])
	}
}

// --- /metrics ---

func TestMetricsEndpoint_Gated(t *testing.T) {
	enabled := testServer(t, Config{MetricsEnabled: true})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	enabled.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("metrics enabled: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "termbridge_uptime_seconds") {
		t.Errorf("metrics output should contain uptime: %s", rec.Body.String()[:min(200, rec.Body.Len())])
	}

	disabled := testServer(t, Config{})
	rec = httptest.NewRecorder()
	disabled.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code == http.StatusOK {
		t.Error("metrics disabled: endpoint should not be registered")
	}
}

// --- Audit wiring ---

type captureAudit struct {
	entries []domain.AuditEntry
}

func (c *captureAudit) LogAudit(_ context.Context, e domain.AuditEntry) error {
	c.entries = append(c.entries, e)
	return nil
}

func TestAudit_RecordsExecuteAndAnalyze(t *testing.T) {
	aud := &captureAudit{}
	s := testServer(t, Config{Audit: aud})

	post(t, s, "/mcp/execute", `{"command": "echo hi"}`)
	post(t, s, "/mcp/analyze", `{"command": "rm -rf /"}`)

	if len(aud.entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(aud.entries))
	}
	if aud.entries[0].Action != "execute" || aud.entries[0].Result != "success" {
		t.Errorf("execute entry: %+v", aud.entries[0])
	}
	if aud.entries[1].Action != "analyze" || aud.entries[1].Result != "high" {
		t.Errorf("analyze entry: %+v", aud.entries[1])
	}
}

// stubExecutor returns a fixed result.
type stubExecutor struct {
	res domain.ExecResult
}

func (s stubExecutor) Execute(_ context.Context, _ domain.ExecRequest) domain.ExecResult {
	return s.res
}
