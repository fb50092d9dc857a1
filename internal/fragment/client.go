package fragment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Jayphen/fragsync/internal/types"
)

// ErrBackend is returned when the workspace backend answers with an error status.
var ErrBackend = errors.New("workspace backend error")

// Client talks to the workspace backend's REST API.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new backend client.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Create stores a new fragment and returns the ID assigned by the backend.
func (c *Client) Create(ctx context.Context, workspaceID, typeID string, payload Payload) (string, error) {
	body := struct {
		TypeID string `json:"typeId"`
		Payload
	}{TypeID: typeID, Payload: payload}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal create request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, c.fragmentsURL(workspaceID, ""), data)
	if err != nil {
		return "", fmt.Errorf("create fragment: %w", err)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp, &created); err != nil {
		return "", fmt.Errorf("parse create response: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("%w: create response has no fragment id", ErrBackend)
	}

	return created.ID, nil
}

// Update replaces the writable part of a fragment.
func (c *Client) Update(ctx context.Context, workspaceID, fragmentID string, payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal update request: %w", err)
	}

	if _, err := c.doRequest(ctx, http.MethodPut, c.fragmentsURL(workspaceID, fragmentID), data); err != nil {
		return fmt.Errorf("update fragment %s: %w", fragmentID, err)
	}
	return nil
}

// Delete removes a fragment.
func (c *Client) Delete(ctx context.Context, workspaceID, fragmentID string) error {
	if _, err := c.doRequest(ctx, http.MethodDelete, c.fragmentsURL(workspaceID, fragmentID), nil); err != nil {
		return fmt.Errorf("delete fragment %s: %w", fragmentID, err)
	}
	return nil
}

// List returns the fragments matching the filter.
func (c *Client) List(ctx context.Context, workspaceID string, filter *Filter) ([]Fragment, error) {
	apiURL := c.fragmentsURL(workspaceID, "")
	if q := filter.Query(); len(q) > 0 {
		apiURL += "?" + q.Encode()
	}

	resp, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("list fragments: %w", err)
	}

	var result struct {
		Fragments []Fragment `json:"fragments"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("parse list response: %w", err)
	}

	return result.Fragments, nil
}

// Count returns the number of fragments matching the filter.
func (c *Client) Count(ctx context.Context, workspaceID string, filter Filter) (int, error) {
	apiURL := c.fragmentsURL(workspaceID, "count")
	if q := filter.Query(); len(q) > 0 {
		apiURL += "?" + q.Encode()
	}

	resp, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return 0, fmt.Errorf("count fragments: %w", err)
	}

	var result struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return 0, fmt.Errorf("parse count response: %w", err)
	}

	return result.Count, nil
}

// ListMembers returns the workspace member directory.
func (c *Client) ListMembers(ctx context.Context, workspaceID string) ([]types.Member, error) {
	apiURL := fmt.Sprintf("%s/workspaces/%s/members", c.BaseURL, url.PathEscape(workspaceID))

	resp, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	var result struct {
		Members []types.Member `json:"members"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("parse members response: %w", err)
	}

	return result.Members, nil
}

func (c *Client) fragmentsURL(workspaceID, suffix string) string {
	u := fmt.Sprintf("%s/workspaces/%s/fragments", c.BaseURL, url.PathEscape(workspaceID))
	if suffix != "" {
		u += "/" + url.PathEscape(suffix)
	}
	return u
}

// doRequest executes an authenticated request and returns the response body.
func (c *Client) doRequest(ctx context.Context, method, apiURL string, body []byte) ([]byte, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("%w: workspace backend URL not set", types.ErrNotConfigured)
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound && method != http.MethodGet {
		return nil, fmt.Errorf("%w: %s", types.ErrTaskNotFound, strings.TrimSpace(string(respBody)))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrBackend, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	return respBody, nil
}
