package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/edvin/hosting-billing/internal/model"
)

// APIError is a non-2xx response from the provisioning API.
type APIError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("provisioning API %s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("provisioning API %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// StatusCode exposes the HTTP status for retry classification.
func (e *APIError) StatusCode() int { return e.Code }

// HTTPClient calls the provisioning REST API with a bearer token.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *HTTPClient) Suspend(ctx context.Context, externalID string) error {
	return c.do(ctx, http.MethodPost, serverPath(externalID)+"/suspend", nil)
}

func (c *HTTPClient) Unsuspend(ctx context.Context, externalID string) error {
	return c.do(ctx, http.MethodPost, serverPath(externalID)+"/unsuspend", nil)
}

func (c *HTTPClient) Status(ctx context.Context, externalID string) (model.ResourceStatus, error) {
	var resp struct {
		State       string `json:"state"`
		IsSuspended bool   `json:"is_suspended"`
	}
	if err := c.do(ctx, http.MethodGet, serverPath(externalID), &resp); err != nil {
		return model.ResourceStatus{}, err
	}
	return model.ResourceStatus{
		ExternalID:  externalID,
		State:       resp.State,
		IsSuspended: resp.IsSuspended,
	}, nil
}

func serverPath(externalID string) string {
	return "/servers/" + url.PathEscape(externalID)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provisioning API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{Method: method, Path: path, Code: resp.StatusCode, Body: string(body)}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
