// Package interp wraps the external interpolation collaborator: given a
// raw measurement file and threshold parameters, it returns the
// attributed point batch the ingestion pipeline reconciles.
package interp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	payloadschema "github.com/JinJiangyue/EUflood-sub000/schema"
)

// DefaultEndpoint points to a locally running interpolation service.
const DefaultEndpoint = "http://127.0.0.1:8750/interpolate"

// Request describes one interpolation job: a whole input file, the
// threshold selection, and the boundary polygons to attribute against.
type Request struct {
	InputFile     string            `json:"input_file"`
	ThresholdMode string            `json:"threshold_mode"`
	Threshold     float64           `json:"threshold"`
	GridRPBand    string            `json:"grid_rp_band,omitempty"`
	BoundaryFiles []string          `json:"boundary_files,omitempty"`
	Options       map[string]string `json:"options,omitempty"`
}

// Runner is the interpolation collaborator contract. The batch is
// whole-file: no partial or streaming results.
type Runner interface {
	Run(ctx context.Context, req Request) (*payloadschema.InterpolationResult, error)
}

// Client calls the interpolation service over HTTP and validates the
// payload against the embedded schema before handing it on.
type Client struct {
	endpointURL string
	client      *http.Client
}

var _ Runner = (*Client)(nil)

func NewClient(endpoint string, timeout time.Duration) *Client {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		trimmed = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		endpointURL: trimmed,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) Run(ctx context.Context, req Request) (*payloadschema.InterpolationResult, error) {
	if c == nil {
		return nil, fmt.Errorf("interpolation client is nil")
	}
	if strings.TrimSpace(req.InputFile) == "" {
		return nil, fmt.Errorf("input file is required")
	}
	mode := strings.TrimSpace(req.ThresholdMode)
	if mode != payloadschema.ThresholdModeFixed && mode != payloadschema.ThresholdModeGrid {
		return nil, fmt.Errorf("threshold mode must be %q or %q", payloadschema.ThresholdModeFixed, payloadschema.ThresholdModeGrid)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal interpolation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build interpolation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send interpolation request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read interpolation response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("interpolation endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	result, err := payloadschema.ValidateInterpolationResult(respBody)
	if err != nil {
		return nil, fmt.Errorf("invalid interpolation payload: %w", err)
	}
	if !result.Success {
		msg := "unknown interpolation failure"
		if result.Error != nil && strings.TrimSpace(*result.Error) != "" {
			msg = strings.TrimSpace(*result.Error)
		}
		return nil, fmt.Errorf("interpolation failed: %s", msg)
	}
	return result, nil
}
