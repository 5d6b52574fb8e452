package servicegeek

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

	"github.com/google/uuid"
)

const (
	// DefaultTimeout is the default HTTP timeout used by the client.
	DefaultTimeout = 10 * time.Second

	maxResponseSize = 10 * 1024 * 1024
)

// Client is the request/response side of the Service Geek API.
//
// It covers the calls the project chat needs: message history, the
// create/delete fallback path, the current user and the health probe.
// The live side lives in package transport.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// New creates a new client.
func New(baseURL string) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, err
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}, nil
}

// NewWithToken creates a new client authenticated with a bearer token.
func NewWithToken(baseURL, token string) (*Client, error) {
	c, err := New(baseURL)
	if err != nil {
		return nil, err
	}
	c.token = token
	return c, nil
}

// BaseURL returns the address the client was created with, without a
// trailing slash. The live transport derives its address from it.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("servicegeek: http %d: %s", e.StatusCode, e.Message)
	case e.Body != "":
		return fmt.Sprintf("servicegeek: http %d: %s", e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("servicegeek: http %d", e.StatusCode)
	}
}

func newAPIError(status int, data []byte) *APIError {
	e := &APIError{StatusCode: status, Body: string(data)}
	var body struct {
		Message json.RawMessage `json:"message"`
		Code    string          `json:"code"`
	}
	if json.Unmarshal(data, &body) != nil {
		return e
	}
	e.Code = body.Code
	// Validation failures come back with a list of messages.
	var single string
	var many []string
	if json.Unmarshal(body.Message, &single) == nil {
		e.Message = single
	} else if json.Unmarshal(body.Message, &many) == nil {
		e.Message = strings.Join(many, "; ")
	}
	return e
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, in any, out any) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}

func (c *Client) delete(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodDelete, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, in any, out any) error {
	data, err := c.doBytes(ctx, method, path, in)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// doBytes performs the request and returns the raw 2xx body.
func (c *Client) doBytes(ctx context.Context, method, path string, in any) ([]byte, error) {
	resp, err := c.doRaw(ctx, method, path, "application/json", in)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxResponseSize)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, data)
	}
	return data, nil
}

func (c *Client) doRaw(ctx context.Context, method, path, accept string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
