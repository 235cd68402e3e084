package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/voltio/ramsgen/pkg/models"
)

// generateRequest is the wire shape both agents accept.
type generateRequest struct {
	JobID       string             `json:"jobId"`
	Query       string             `json:"query"`
	Scale       string             `json:"scale"`
	ProjectInfo models.ProjectInfo `json:"projectInfo"`
}

// HTTPRiskAgent implements models.RiskAgent against the risk agent's HTTP API.
type HTTPRiskAgent struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRiskAgent creates a risk agent client. The timeout here is a
// last-resort transport bound; the orchestrator's shared context governs the
// real deadline.
func NewHTTPRiskAgent(baseURL string, timeout time.Duration) *HTTPRiskAgent {
	return &HTTPRiskAgent{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (a *HTTPRiskAgent) Name() string { return "risk-agent" }

func (a *HTTPRiskAgent) GenerateRisk(ctx context.Context, req models.AgentRequest) (*models.RawRiskData, error) {
	var resp models.RiskAgentResponse
	if err := postGenerate(ctx, a.client, a.baseURL+"/generate", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		reason := resp.Error
		if reason == "" {
			reason = "agent reported failure without a reason"
		}
		return nil, fmt.Errorf("%w: %s", ErrAgentDeclined, reason)
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("%w: success with no data block", ErrInvalidResponse)
	}
	return resp.Data, nil
}

// HTTPMethodAgent implements models.MethodAgent against the method agent's HTTP API.
type HTTPMethodAgent struct {
	baseURL string
	client  *http.Client
}

// NewHTTPMethodAgent creates a method agent client.
func NewHTTPMethodAgent(baseURL string, timeout time.Duration) *HTTPMethodAgent {
	return &HTTPMethodAgent{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (a *HTTPMethodAgent) Name() string { return "method-agent" }

func (a *HTTPMethodAgent) GenerateMethod(ctx context.Context, req models.AgentRequest) (*models.RawMethodData, error) {
	var resp models.MethodAgentResponse
	if err := postGenerate(ctx, a.client, a.baseURL+"/generate", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		reason := resp.Error
		if reason == "" {
			reason = "agent reported failure without a reason"
		}
		return nil, fmt.Errorf("%w: %s", ErrAgentDeclined, reason)
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("%w: success with no data block", ErrInvalidResponse)
	}
	return resp.Data, nil
}

// Healthy probes an agent's health endpoint.
func Healthy(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrAgentUnavailable, resp.StatusCode)
	}
	return nil
}

func postGenerate(ctx context.Context, client *http.Client, url string, req models.AgentRequest, out any) error {
	body, err := json.Marshal(generateRequest{
		JobID:       req.JobID.String(),
		Query:       req.Description,
		Scale:       req.Scale,
		ProjectInfo: req.ProjectInfo,
	})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrAgentUnavailable, resp.StatusCode, msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

// classifyError maps transport errors onto sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: timeout", ErrAgentUnavailable)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: timeout", ErrAgentUnavailable)
	}
	return fmt.Errorf("%w: %v", ErrAgentUnavailable, err)
}

var (
	_ models.RiskAgent   = (*HTTPRiskAgent)(nil)
	_ models.MethodAgent = (*HTTPMethodAgent)(nil)
)
