package infra

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jlongo78/joe-ritchey-machining/internal/apierror"
	"github.com/jlongo78/joe-ritchey-machining/internal/pricing"
)

// FeedGateway is the Price Feed Source used by the services. It dispatches by
// API type and guards each target with its own requests-per-minute limiter and
// circuit breaker.
type FeedGateway struct {
	rest   pricing.FeedSource
	xmlrpc pricing.FeedSource
	cbCfg  CircuitBreakerConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	breakers map[string]*CircuitBreaker
}

func NewFeedGateway(rest, xmlrpc pricing.FeedSource, cbCfg CircuitBreakerConfig) *FeedGateway {
	return &FeedGateway{
		rest:     rest,
		xmlrpc:   xmlrpc,
		cbCfg:    cbCfg,
		limiters: make(map[string]*rate.Limiter),
		breakers: make(map[string]*CircuitBreaker),
	}
}

func (g *FeedGateway) Fetch(ctx context.Context, r pricing.FeedRequest) ([]byte, error) {
	src := g.rest
	if r.APIType == pricing.APITypeXMLRPC {
		src = g.xmlrpc
	}
	if !g.limiter(r).Allow() {
		return nil, apierror.External(nil, "%s: rate limit of %d requests/minute exceeded", r.Target, r.RateLimitPerMinute)
	}

	var body []byte
	err := g.breaker(r.Target).Execute(func() error {
		var err error
		body, err = src.Fetch(ctx, r)
		return err
	})
	if errors.Is(err, ErrCircuitOpen) {
		return nil, apierror.External(err, "%s: feed disabled after repeated failures", r.Target)
	}
	return body, err
}

// BreakerStates reports every known breaker, for the health endpoint.
func (g *FeedGateway) BreakerStates() map[string]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]string, len(g.breakers))
	for name, cb := range g.breakers {
		out[name] = cb.State().String()
	}
	return out
}

func (g *FeedGateway) limiter(r pricing.FeedRequest) *rate.Limiter {
	perMin := r.RateLimitPerMinute
	if perMin <= 0 {
		perMin = 60
	}
	every := rate.Every(time.Minute / time.Duration(perMin))

	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.limiters[r.Target]
	if !ok {
		l = rate.NewLimiter(every, perMin)
		g.limiters[r.Target] = l
		return l
	}
	if l.Limit() != every {
		l.SetLimit(every)
		l.SetBurst(perMin)
	}
	return l
}

func (g *FeedGateway) breaker(target string) *CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	cb, ok := g.breakers[target]
	if !ok {
		cb = NewCircuitBreaker(target, g.cbCfg)
		g.breakers[target] = cb
	}
	return cb
}
