// Package stacks talks to the repository server's administrative HTTP API.
package stacks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// JobAPI is the subset of the client the reconciliation engine depends on.
// It is implemented by *Client and can be faked in tests.
type JobAPI interface {
	ListJobs(ctx context.Context) (JobListResponse, error)
	JobDetails(ctx context.Context, jobIDs []string) (map[string]JobDetail, error)
}

// Ensure Client implements JobAPI at compile time.
var _ JobAPI = (*Client)(nil)

// APIError reports a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api returned status %d", e.StatusCode)
}

// Client talks to the stacks HTTP API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
}

const (
	defaultAPIBind   = "127.0.0.1:7060"
	defaultUserAgent = "curator/0.1"
	requestTimeout   = 10 * time.Second
)

// NewClient builds a Client using the provided apiBind host:port value.
func NewClient(apiBind string) (*Client, error) {
	base, err := parseBaseURL(apiBind)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout: requestTimeout,
		},
		userAgent: defaultUserAgent,
	}, nil
}

// ListJobs retrieves the server's current batch job listing.
func (c *Client) ListJobs(ctx context.Context) (JobListResponse, error) {
	if c == nil {
		return JobListResponse{}, fmt.Errorf("client is nil")
	}
	var payload JobListResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs", nil, &payload); err != nil {
		return JobListResponse{}, err
	}
	return payload, nil
}

// JobDetails retrieves member lists for the given job ids in one request.
func (c *Client) JobDetails(ctx context.Context, jobIDs []string) (map[string]JobDetail, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if len(jobIDs) == 0 {
		return map[string]JobDetail{}, nil
	}
	body := struct {
		JobIDs []string `json:"jobIds"`
	}{JobIDs: jobIDs}
	payload := map[string]JobDetail{}
	if err := c.do(ctx, http.MethodPost, "/api/jobs/details", body, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// SubmitMove asks the server to move the given objects into newParent.
// The returned job id tracks the background move.
func (c *Client) SubmitMove(ctx context.Context, newParent string, ids []string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("client is nil")
	}
	if strings.TrimSpace(newParent) == "" {
		return "", fmt.Errorf("destination parent required")
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("at least one object id required")
	}
	body := struct {
		NewParent string   `json:"newParent"`
		IDs       []string `json:"ids"`
	}{NewParent: newParent, IDs: ids}
	var payload MoveReceipt
	if err := c.do(ctx, http.MethodPost, "/api/moves", body, &payload); err != nil {
		return "", err
	}
	if payload.JobID == "" {
		return "", fmt.Errorf("server accepted move but returned no job id")
	}
	return payload.JobID, nil
}

// ListObjects retrieves the objects directly within a container.
func (c *Client) ListObjects(ctx context.Context, parent string) ([]Object, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	values := url.Values{}
	if p := strings.TrimSpace(parent); p != "" {
		values.Set("parent", p)
	}
	rel := &url.URL{Path: "/api/objects", RawQuery: values.Encode()}
	var payload ObjectListResponse
	if err := c.doURL(ctx, http.MethodGet, rel, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Items, nil
}

// Do issues a request described by a descriptor, substituting targetID into
// the URL template, and returns the raw JSON payload for caller-side checks.
func (c *Client) Do(ctx context.Context, desc RequestDescriptor, targetID string) (json.RawMessage, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	path, err := resolveTemplate(desc.URLTemplate, targetID)
	if err != nil {
		return nil, err
	}
	method := strings.ToUpper(strings.TrimSpace(desc.Method))
	if method == "" {
		method = http.MethodGet
	}
	var payload json.RawMessage
	if err := c.do(ctx, method, path, desc.Body, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func resolveTemplate(template, targetID string) (string, error) {
	template = strings.TrimSpace(template)
	if template == "" {
		return "", fmt.Errorf("url template is empty")
	}
	if strings.Contains(template, TargetToken) && strings.TrimSpace(targetID) == "" {
		return "", fmt.Errorf("url template %q requires a target id", template)
	}
	return strings.ReplaceAll(template, TargetToken, url.PathEscape(targetID)), nil
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	rel := &url.URL{Path: path}
	return c.doURL(ctx, method, rel, body, dest)
}

func (c *Client) doURL(ctx context.Context, method string, rel *url.URL, body, dest any) error {
	reqURL := c.baseURL.ResolveReference(rel)

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	var req *http.Request
	var err error
	if reader != nil {
		req, err = http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, reqURL.String(), nil)
	}
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var errPayload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errPayload)
		return &APIError{StatusCode: resp.StatusCode, Message: errPayload.Error}
	}
	if dest == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseBaseURL(apiBind string) (*url.URL, error) {
	trimmed := strings.TrimSpace(apiBind)
	if trimmed == "" {
		trimmed = defaultAPIBind
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api_bind %q: %w", apiBind, err)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
