// Package jira is a small Jira Cloud REST v3 client covering what fragsync
// needs: fetching an issue, listing its transitions and executing one.
package jira

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Jayphen/fragsync/internal/types"
)

// issueFields is the set of fields requested when fetching an issue.
const issueFields = "summary,description,status,priority,issuetype,project,assignee,parent"

// Config holds the tracker credential record.
type Config struct {
	Site     string // "acme" for acme.atlassian.net, or a full base URL
	Email    string
	APIToken string
}

// IsComplete reports whether every credential is present.
func (c Config) IsComplete() bool {
	return strings.TrimSpace(c.Site) != "" && c.Email != "" && c.APIToken != ""
}

// BaseURL returns the instance URL for the configured site.
func (c Config) BaseURL() string {
	site := strings.TrimSpace(c.Site)
	if site == "" {
		return ""
	}
	if strings.HasPrefix(site, "http://") || strings.HasPrefix(site, "https://") {
		return strings.TrimSuffix(site, "/")
	}
	site = strings.TrimSuffix(site, ".atlassian.net")
	return "https://" + site + ".atlassian.net"
}

// Client provides HTTP access to a Jira instance.
type Client struct {
	URL        string
	Email      string
	APIToken   string
	HTTPClient *http.Client
}

// NewClient creates a new Jira client. A zero timeout means 30 seconds.
func NewClient(cfg Config, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		URL:      cfg.BaseURL(),
		Email:    cfg.Email,
		APIToken: cfg.APIToken,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// BrowseURL returns the human-facing URL of an issue.
func (c *Client) BrowseURL(key string) string {
	return fmt.Sprintf("%s/browse/%s", c.URL, key)
}

// FetchIssue fetches a single issue by key (e.g., "PROJ-123") and normalizes it.
func (c *Client) FetchIssue(ctx context.Context, key string) (types.TrackerIssue, error) {
	apiURL := fmt.Sprintf("%s/rest/api/3/issue/%s?fields=%s", c.URL, url.PathEscape(key), issueFields)

	body, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return types.TrackerIssue{}, fmt.Errorf("fetch issue %s: %w", key, err)
	}

	var issue Issue
	if err := json.Unmarshal(body, &issue); err != nil {
		return types.TrackerIssue{}, fmt.Errorf("%w: parse issue response: %v", types.ErrTrackerRejected, err)
	}
	if issue.Key == "" {
		issue.Key = key
	}

	return c.normalize(issue), nil
}

// ListTransitions returns the transitions currently available on an issue,
// in the order Jira reports them.
func (c *Client) ListTransitions(ctx context.Context, key string) ([]types.Transition, error) {
	apiURL := fmt.Sprintf("%s/rest/api/3/issue/%s/transitions", c.URL, url.PathEscape(key))

	body, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("list transitions %s: %w", key, err)
	}

	var result struct {
		Transitions []types.Transition `json:"transitions"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: parse transitions response: %v", types.ErrTrackerRejected, err)
	}

	return result.Transitions, nil
}

// ExecuteTransition moves an issue through the given transition.
func (c *Client) ExecuteTransition(ctx context.Context, key, transitionID string) error {
	payload := map[string]interface{}{
		"transition": map[string]string{"id": transitionID},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal transition request: %w", err)
	}

	apiURL := fmt.Sprintf("%s/rest/api/3/issue/%s/transitions", c.URL, url.PathEscape(key))

	if _, err := c.doRequest(ctx, http.MethodPost, apiURL, data); err != nil {
		return fmt.Errorf("transition %s via %s: %w", key, transitionID, err)
	}
	return nil
}

func (c *Client) normalize(issue Issue) types.TrackerIssue {
	f := issue.Fields
	out := types.TrackerIssue{
		Key:         issue.Key,
		Summary:     f.Summary,
		Description: FlattenDescription(f.Description),
		URL:         c.BrowseURL(issue.Key),
	}
	if status := optional[NamedField](f.Status); status != nil {
		out.Status = status.Name
	}
	if priority := optional[NamedField](f.Priority); priority != nil {
		out.Priority = priority.Name
	}
	if issueType := optional[NamedField](f.IssueType); issueType != nil {
		out.IssueType = issueType.Name
	}
	if project := optional[ProjectField](f.Project); project != nil {
		out.ProjectKey = project.Key
		out.ProjectName = project.Name
	}
	if assignee := optional[UserField](f.Assignee); assignee != nil {
		out.AssigneeEmail = assignee.EmailAddress
		out.AssigneeName = assignee.DisplayName
	}
	if parent := optional[ParentField](f.Parent); parent != nil {
		out.EpicKey = parent.Key
		if pf := optional[ParentFields](parent.Fields); pf != nil {
			out.EpicName = pf.Summary
		}
	}
	return out
}

// doRequest executes an authenticated HTTP request and returns the response body.
// Every failure is wrapped in one of the tracker sentinel errors.
func (c *Client) doRequest(ctx context.Context, method, apiURL string, body []byte) ([]byte, error) {
	if c.URL == "" || c.Email == "" || c.APIToken == "" {
		return nil, fmt.Errorf("%w: jira credentials missing", types.ErrNotConfigured)
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	auth := base64.StdEncoding.EncodeToString([]byte(c.Email + ":" + c.APIToken))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "fragsync")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrTrackerUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", types.ErrTrackerUnreachable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", types.ErrTrackerNotFound, snippet(respBody))
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: jira returned %d: %s", types.ErrTrackerUnreachable, resp.StatusCode, snippet(respBody))
	default:
		return nil, fmt.Errorf("%w: jira returned %d: %s", types.ErrTrackerRejected, resp.StatusCode, snippet(respBody))
	}
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
