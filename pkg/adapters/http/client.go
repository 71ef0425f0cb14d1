package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/engine"
)

// Client calls a remote Server. It satisfies worker.Client, so runners can
// drive workers against a remote engine.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.http = c
	}
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Claim(ctx context.Context, role, workerID string) (*domain.UOW, error) {
	var u domain.UOW
	status, err := c.do(ctx, http.MethodPost, "/v1/claims", claimRequest{Role: role, WorkerID: workerID}, &u)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, domain.ErrNoWork
	}
	return &u, nil
}

func (c *Client) Heartbeat(ctx context.Context, uowID, workerID string) (*domain.UOW, error) {
	var u domain.UOW
	if _, err := c.do(ctx, http.MethodPost, uowPath(uowID, "heartbeat"), workerRequest{WorkerID: workerID}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) Submit(ctx context.Context, req engine.SubmitRequest) (*engine.SubmitResult, error) {
	var res engine.SubmitResult
	body := submitRequest{WorkerID: req.WorkerID, Result: req.Result, Rationale: req.Rationale}
	if _, err := c.do(ctx, http.MethodPost, uowPath(req.UOWID, "submit"), body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ReportFailure(ctx context.Context, uowID, workerID, code, details string) (*domain.UOW, error) {
	var u domain.UOW
	body := failureRequest{WorkerID: workerID, Code: code, Details: details}
	if _, err := c.do(ctx, http.MethodPost, uowPath(uowID, "failure"), body, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) Spawn(ctx context.Context, parentID, workerID string, specs []engine.ChildSpec) ([]*domain.UOW, error) {
	var out []*domain.UOW
	body := spawnRequest{WorkerID: workerID, Children: specs}
	if _, err := c.do(ctx, http.MethodPost, uowPath(parentID, "children"), body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateRoot creates and queues a root unit of work.
func (c *Client) CreateRoot(ctx context.Context, location string, attributes map[string]any, rationale string) (*domain.UOW, error) {
	var u domain.UOW
	body := createRequest{Location: location, Attributes: attributes, Rationale: rationale}
	if _, err := c.do(ctx, http.MethodPost, "/v1/uows", body, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Get fetches a unit of work.
func (c *Client) Get(ctx context.Context, uowID string) (*domain.UOW, error) {
	var u domain.UOW
	if _, err := c.do(ctx, http.MethodGet, uowPath(uowID, ""), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// History fetches the history of a unit of work.
func (c *Client) History(ctx context.Context, uowID string) ([]domain.HistoryEntry, error) {
	var out []domain.HistoryEntry
	if _, err := c.do(ctx, http.MethodGet, uowPath(uowID, "history"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func uowPath(id, action string) string {
	p := "/v1/uows/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var eb ErrorBody
		if err := json.NewDecoder(resp.Body).Decode(&eb); err != nil {
			return resp.StatusCode, &APIError{Status: resp.StatusCode, Code: CodeInternal, Message: resp.Status}
		}
		return resp.StatusCode, &APIError{Status: resp.StatusCode, Code: eb.Code, Message: eb.Error}
	}
	if resp.StatusCode == http.StatusNoContent || out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}
