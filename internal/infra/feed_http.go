package infra

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jlongo78/joe-ritchey-machining/internal/pricing"
)

// maxFeedBytes caps a single feed document.
const maxFeedBytes = 32 << 20

// HTTPFeedClient fetches REST feeds and scraper-service endpoints.
type HTTPFeedClient struct {
	httpClient *http.Client
}

func NewHTTPFeedClient() *HTTPFeedClient {
	return &HTTPFeedClient{
		// per-request deadlines come from the context
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

func (c *HTTPFeedClient) Fetch(ctx context.Context, r pricing.FeedRequest) ([]byte, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if method == http.MethodPost {
		body = bytes.NewReader([]byte("{}"))
	}
	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("feed: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json, application/xml, text/csv")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed: %s unreachable: %w", r.Target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("feed: %s returned %d", r.Target, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes+1))
	if err != nil {
		return nil, fmt.Errorf("feed: read body: %w", err)
	}
	if len(data) > maxFeedBytes {
		return nil, fmt.Errorf("feed: %s body exceeds %d bytes", r.Target, maxFeedBytes)
	}
	return data, nil
}
