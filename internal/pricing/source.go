package pricing

import (
	"context"
	"time"
)

// API types of a feed endpoint.
const (
	APITypeREST   = "rest"
	APITypeXMLRPC = "xmlrpc"
)

// FeedRequest is everything a Price Feed Source needs to fetch one document.
// Target identifies the supplier or competitor for rate limiting and circuit
// breaking, e.g. "supplier:12".
type FeedRequest struct {
	Target             string
	APIType            string
	URL                string
	Method             string
	Headers            map[string]string
	XMLRPCMethod       string
	XMLRPCArgs         []any
	Timeout            time.Duration
	RateLimitPerMinute int
}

// FeedSource fetches raw supplier or competitor price documents. XML-RPC
// sources return the decoded response re-encoded as JSON.
type FeedSource interface {
	Fetch(ctx context.Context, req FeedRequest) ([]byte, error)
}
