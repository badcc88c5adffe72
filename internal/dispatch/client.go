package dispatch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	CalcDeliveryPathPath = "/api/v1/calcDeliveryPath"

	maxResponseBytes = 32 << 20
)

// Planner computes delivery paths for a dispatch request body.
type Planner interface {
	CalcDeliveryPath(ctx context.Context, body string) ([]byte, error)
}

// Client talks to the delivery-planning backend over HTTP.
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

// CalcDeliveryPath posts body verbatim and returns the raw response body.
// Network failures come back as *TransportError, non-2xx statuses as *HTTPError.
func (c *Client) CalcDeliveryPath(ctx context.Context, body string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+CalcDeliveryPathPath, strings.NewReader(body))
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("error creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			Status:     resp.StatusCode,
			StatusText: statusText(resp),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("error reading resp.Body: %w", err)}
	}
	return data, nil
}

// statusText strips the numeric code from resp.Status ("500 Internal Server Error").
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}
