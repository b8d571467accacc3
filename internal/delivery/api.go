package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ashureev/incident-intake/internal/domain"
)

const maxResponseBytes = 1 << 20 // 1MB

var (
	errUnexpectedStatus = errors.New("unexpected status")
	errMissingEcho      = errors.New("response does not echo incident theme and description")
)

// APIForwarder posts reports to a REST endpoint.
type APIForwarder struct {
	url    string
	client *http.Client
}

// NewAPIForwarder creates a forwarder posting to url.
func NewAPIForwarder(url string, client *http.Client) *APIForwarder {
	if client == nil {
		client = http.DefaultClient
	}
	return &APIForwarder{url: url, client: client}
}

type apiPayload struct {
	Incident domain.Report `json:"incident"`
}

// apiEcho accepts the incident echoed either at the top level or nested
// under "json" the way httpbin-style echo services return it.
type apiEcho struct {
	Incident map[string]json.RawMessage `json:"incident"`
	JSON     *struct {
		Incident map[string]json.RawMessage `json:"incident"`
	} `json:"json"`
}

// Forward issues one POST and verifies the endpoint echoed the report.
func (f *APIForwarder) Forward(ctx context.Context, report domain.Report) error {
	body, err := json.Marshal(apiPayload{Incident: report})
	if err != nil {
		return fmt.Errorf("marshal incident: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("post incident: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w %d", errUnexpectedStatus, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var echo apiEcho
	if err := json.Unmarshal(raw, &echo); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	incident := echo.Incident
	if incident == nil && echo.JSON != nil {
		incident = echo.JSON.Incident
	}
	if _, ok := incident["theme"]; !ok {
		return errMissingEcho
	}
	if _, ok := incident["description"]; !ok {
		return errMissingEcho
	}
	return nil
}
