package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
)

// ProxyRouteProvider rotates outbound requests across a pool of proxy
// routes. Refresh advances to the next route, so a retrying caller gets a
// fresh egress identity on every attempt when the remote end rate-limits
// per route.
type ProxyRouteProvider struct {
	mu   sync.Mutex
	urls []*url.URL
	idx  int
}

func NewProxyRouteProvider(rawURLs []string) (*ProxyRouteProvider, error) {
	urls := make([]*url.URL, 0, len(rawURLs))
	for _, raw := range rawURLs {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", raw, err)
		}
		urls = append(urls, u)
	}
	return &ProxyRouteProvider{urls: urls}, nil
}

// Refresh rotates to the next proxy route. With an empty pool it is a no-op.
func (p *ProxyRouteProvider) Refresh(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.urls) > 0 {
		p.idx = (p.idx + 1) % len(p.urls)
	}
	return nil
}

// Current returns the active proxy route, or nil for direct egress.
func (p *ProxyRouteProvider) Current() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.urls) == 0 {
		return nil
	}
	return p.urls[p.idx]
}

// ProxyFunc plugs the provider into an http.Transport.
func (p *ProxyRouteProvider) ProxyFunc(_ *http.Request) (*url.URL, error) {
	return p.Current(), nil
}
