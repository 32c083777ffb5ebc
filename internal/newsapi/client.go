package newsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxBodyBytes caps how much of a response body is read into memory.
const maxBodyBytes = 10 << 20

// Client talks to the upstream news service. The base URL is fixed at
// construction; callers only choose the endpoint path.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Get issues a GET against endpointPath and returns the JSON body on any 2xx.
// Every failure is a *TransportError.
func (c *Client) Get(ctx context.Context, endpointPath string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, endpointPath, nil)
}

// Put sends body as JSON to endpointPath and returns the JSON response on any 2xx.
func (c *Client) Put(ctx context.Context, endpointPath string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error encoding request body: %w", err)
	}
	return c.do(ctx, http.MethodPut, endpointPath, payload)
}

func (c *Client) do(ctx context.Context, method, endpointPath string, payload []byte) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(endpointPath), body)
	if err != nil {
		return nil, &TransportError{Method: method, Path: endpointPath, Err: fmt.Errorf("error creating request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, Path: endpointPath, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{
			Method:     method,
			Path:       endpointPath,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Err:        fmt.Errorf("error reading resp.Body: %w", err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{
			Method:     method,
			Path:       endpointPath,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       truncate(string(data), 512),
		}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage("null"), nil
	}

	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &TransportError{
			Method:     method,
			Path:       endpointPath,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Err:        fmt.Errorf("error decoding resp.Body: %w", err),
		}
	}

	return raw, nil
}

func (c *Client) url(endpointPath string) string {
	return c.baseURL + "/" + strings.TrimLeft(endpointPath, "/")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
