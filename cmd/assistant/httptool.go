package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/atlasvoice/assistant/internal/domain/models"
)

// httpToolExecutor is a generic ports.ToolExecutor that POSTs a tool
// action's args as JSON to its configured endpoint and decodes the JSON
// response body. Implementing any specific external tool (smart-home,
// weather, issue trackers) is out of scope; this is only the transport
// shim the orchestrator needs to call whatever Endpoint a ToolAction
// declares.
type httpToolExecutor struct {
	client *http.Client
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

func (h *httpToolExecutor) Invoke(ctx context.Context, action *models.ToolAction, args map[string]string) (map[string]any, error) {
	return h.post(ctx, action.Endpoint, args)
}

func (h *httpToolExecutor) Rollback(ctx context.Context, action *models.ToolAction, args map[string]string, priorResult map[string]any) error {
	if !action.RollbackCapable {
		return nil
	}
	payload := map[string]any{"args": args, "prior_result": priorResult}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal rollback payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action.Endpoint+"/rollback", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build rollback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("invoke rollback endpoint: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("rollback endpoint %s returned status %d", action.Endpoint, resp.StatusCode)
	}
	return nil
}

func (h *httpToolExecutor) post(ctx context.Context, endpoint string, args map[string]string) (map[string]any, error) {
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal args: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoke endpoint %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("endpoint %s returned status %d: %s", endpoint, resp.StatusCode, string(respBody))
	}
	var result map[string]any
	if len(respBody) == 0 {
		return map[string]any{}, nil
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode response from %s: %w", endpoint, err)
	}
	return result, nil
}
