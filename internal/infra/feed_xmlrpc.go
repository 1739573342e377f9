package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kolo/xmlrpc"

	"github.com/jlongo78/joe-ritchey-machining/internal/pricing"
)

// XMLRPCFeedClient calls a supplier's XML-RPC price method and re-encodes the
// response as JSON, so the same feed parser handles it.
type XMLRPCFeedClient struct{}

func NewXMLRPCFeedClient() *XMLRPCFeedClient { return &XMLRPCFeedClient{} }

func (c *XMLRPCFeedClient) Fetch(ctx context.Context, r pricing.FeedRequest) ([]byte, error) {
	if r.XMLRPCMethod == "" {
		return nil, fmt.Errorf("xmlrpc: %s has no method configured", r.Target)
	}
	var transport http.RoundTripper
	if r.Timeout > 0 {
		// the rpc client has no context support, so bound the exchange here too
		transport = &http.Transport{ResponseHeaderTimeout: r.Timeout}
	}
	client, err := xmlrpc.NewClient(r.URL, transport)
	if err != nil {
		return nil, fmt.Errorf("xmlrpc: failed to create client: %w", err)
	}

	type result struct {
		raw any
		err error
	}
	done := make(chan result, 1)
	go func() {
		var raw any
		args := r.XMLRPCArgs
		if args == nil {
			args = []any{}
		}
		err := client.Call(r.XMLRPCMethod, args, &raw)
		done <- result{raw: raw, err: err}
	}()

	select {
	case <-ctx.Done():
		// done is buffered; the call goroutine exits on its own.
		client.Close()
		return nil, ctx.Err()
	case res := <-done:
		client.Close()
		if res.err != nil {
			return nil, fmt.Errorf("xmlrpc: %s %s failed: %w", r.Target, r.XMLRPCMethod, res.err)
		}
		body, err := json.Marshal(res.raw)
		if err != nil {
			return nil, fmt.Errorf("xmlrpc: encode response: %w", err)
		}
		return body, nil
	}
}
