package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"browserq/internal/config"
	"browserq/internal/ports"

	"github.com/google/uuid"
)

var _ ports.Agent = (*HTTPAgent)(nil)

// HTTPAgent drives a browser agent sidecar over HTTP. Each job gets its own
// session ID and connection pool; the sidecar starts a fresh browser and
// model client per session.
type HTTPAgent struct {
	BaseURL     string
	Model       string
	ModelAPIKey string
	Headless    bool
	// Slack is added to the job timeout for the HTTP client deadline so the
	// sidecar can report its own timeout before the connection is cut.
	Slack time.Duration
}

func NewHTTP(cfg config.Agent) *HTTPAgent {
	return &HTTPAgent{
		BaseURL:     strings.TrimRight(cfg.URL, "/"),
		Model:       cfg.Model,
		ModelAPIKey: cfg.ModelAPIKey,
		Headless:    cfg.Headless,
		Slack:       cfg.RequestSlack,
	}
}

type runRequest struct {
	SessionID string `json:"sessionId"`
	Task      string `json:"task"`
	Timeout   int    `json:"timeout"`
	Model     string `json:"model"`
	Headless  bool   `json:"headless"`
}

type runResponse struct {
	Result *string `json:"result"`
	Error  string  `json:"error"`
}

func (a *HTTPAgent) Configure(ctx context.Context) (ports.Session, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &httpSession{
		agent:     a,
		id:        uuid.NewString(),
		transport: transport,
		client:    &http.Client{Transport: transport},
	}, nil
}

type httpSession struct {
	agent     *HTTPAgent
	id        string
	transport *http.Transport
	client    *http.Client
}

func (s *httpSession) Execute(ctx context.Context, task string, timeout time.Duration) (string, error) {
	body, err := json.Marshal(runRequest{
		SessionID: s.id,
		Task:      task,
		Timeout:   int(timeout / time.Second),
		Model:     s.agent.Model,
		Headless:  s.agent.Headless,
	})
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout+s.agent.Slack)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.agent.BaseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.agent.ModelAPIKey != "" {
		req.Header.Set("X-Model-API-Key", s.agent.ModelAPIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("agent request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", fmt.Errorf("read agent response: %w", err)
	}

	var out runResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode/100 != 2 {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && out.Error != "" {
			msg = out.Error
		}
		return "", fmt.Errorf("agent returned %d: %s", resp.StatusCode, truncate(msg, 512))
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode agent response: %w", decodeErr)
	}
	if out.Error != "" {
		return "", fmt.Errorf("agent error: %s", out.Error)
	}
	if out.Result == nil {
		return "", fmt.Errorf("agent returned no result")
	}
	return *out.Result, nil
}

func (s *httpSession) Close() error {
	s.transport.CloseIdleConnections()
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
