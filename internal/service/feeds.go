package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jlongo78/joe-ritchey-machining/internal/apierror"
	"github.com/jlongo78/joe-ritchey-machining/internal/dto"
	"github.com/jlongo78/joe-ritchey-machining/internal/metrics"
	"github.com/jlongo78/joe-ritchey-machining/internal/pricing"
)

// fetchFeed runs one time-bounded fetch and classifies failures as
// ExternalService errors.
func fetchFeed(ctx context.Context, src pricing.FeedSource, req pricing.FeedRequest) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	done := metrics.TrackFeedFetch(req.APIType)
	body, err := src.Fetch(ctx, req)
	done(err)
	if err == nil {
		return body, nil
	}
	if apierror.Is(err, apierror.KindExternalService) {
		return nil, err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, apierror.External(err, "%s: feed fetch timed out after %s", req.Target, req.Timeout)
	}
	return nil, apierror.External(err, "%s: feed fetch failed", req.Target)
}

func joinURL(base, path string) string {
	if path == "" {
		return base
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func timeoutOr(seconds int, def time.Duration) time.Duration {
	if seconds <= 0 {
		return def
	}
	return time.Duration(seconds) * time.Second
}

func itemErrors(in []pricing.ItemError) []dto.ItemError {
	out := make([]dto.ItemError, 0, len(in))
	for _, e := range in {
		out = append(out, dto.ItemError{SKU: e.SKU, Error: e.Error})
	}
	return out
}
