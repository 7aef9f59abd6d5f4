package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"
)

// Status classifies the liveness of a single target. Each failure mode is
// a distinct category; one bad target never aborts the batch.
type Status string

const (
	StatusRunning Status = "running"
	StatusDown    Status = "down"    // connection refused
	StatusTimeout Status = "timeout" // request timed out
	StatusError   Status = "error"   // non-200 status or invalid body
)

// Target is one service instance to probe.
type Target struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Report is the per-target probe outcome.
type Report struct {
	Name       string         `json:"name"`
	Status     Status         `json:"status"`
	StatusCode int            `json:"status_code,omitempty"`
	Error      string         `json:"error,omitempty"`
	Response   map[string]any `json:"response,omitempty"`
}

// Poller probes liveness endpoints. A healthy instance answers HTTP 200
// with a JSON body.
type Poller struct {
	client *http.Client
	logger *slog.Logger
}

func NewPoller(timeout time.Duration, logger *slog.Logger) *Poller {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Check probes a single target and classifies the outcome.
func (p *Poller) Check(ctx context.Context, t Target) Report {
	report := Report{Name: t.Name}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		report.Status = StatusError
		report.Error = err.Error()
		return report
	}

	resp, err := p.client.Do(req)
	if err != nil {
		switch {
		case errors.Is(err, syscall.ECONNREFUSED):
			report.Status = StatusDown
			report.Error = "connection refused"
		case isTimeout(err):
			report.Status = StatusTimeout
			report.Error = "request timed out"
		default:
			report.Status = StatusError
			report.Error = err.Error()
		}
		return report
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		report.Status = StatusError
		report.StatusCode = resp.StatusCode
		report.Error = fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		return report
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		report.Status = StatusError
		report.Error = "cannot read response body"
		return report
	}
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		report.Status = StatusError
		report.StatusCode = resp.StatusCode
		report.Error = "invalid JSON response"
		return report
	}

	report.Status = StatusRunning
	report.StatusCode = resp.StatusCode
	report.Response = parsed
	return report
}

// CheckAll probes every target in parallel and returns reports in target
// order.
func (p *Poller) CheckAll(ctx context.Context, targets []Target) []Report {
	reports := make([]Report, len(targets))
	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func(i int, t Target) {
			defer wg.Done()
			reports[i] = p.Check(ctx, t)
			p.logger.Debug("health check", "target", t.Name, "status", reports[i].Status)
		}(i, t)
	}
	wg.Wait()
	return reports
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
