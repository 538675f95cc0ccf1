// Package proxy implements "Proxy Indirection" component: an
// optional HTTP reverse proxy a domain can run in front of its registry
// and checker, plus a client-side transport that routes a worker's
// outbound registry/checker requests through one when a deployment
// requires it (a domain behind NAT that cannot be dialed directly, or an
// operator who wants a single egress point to audit). Neither side is
// required: a deployment with no Proxy node simply never constructs
// either type, and every other package talks HTTP directly.
package proxy

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"

	"github.com/brane-project/brane/internal/config"
)

// Upstream names one backend a Server can forward to: requests whose
// path has Prefix stripped are forwarded to Target.
type Upstream struct {
	Name   string
	Prefix string
	Target *url.URL
}

// Server is a domain's outbound proxy: a path-prefix-routed reverse
// proxy, one httputil.ReverseProxy per process with a routing Director
// that picks the upstream whose prefix matches the request.
type Server struct {
	mu        sync.RWMutex
	upstreams []Upstream
	proxy     *httputil.ReverseProxy
}

// NewServer builds a Server from a node config's Proxy section.
// Upstreams are addressed as "<prefix>=<target-url>" pairs, matching
// the flat string-list shape config.ProxyNodeConfig.Upstreams already
// carries over the wire.
func NewServer(cfg config.ProxyNodeConfig) (*Server, error) {
	s := &Server{}
	for _, raw := range cfg.Upstreams {
		prefix, target, ok := strings.Cut(raw, "=")
		if !ok {
			return nil, fmt.Errorf("proxy: malformed upstream entry %q, want \"<prefix>=<url>\"", raw)
		}
		u, err := url.Parse(target)
		if err != nil {
			return nil, fmt.Errorf("proxy: parsing upstream target %q: %w", raw, err)
		}
		s.upstreams = append(s.upstreams, Upstream{Name: strings.TrimPrefix(prefix, "/"), Prefix: prefix, Target: u})
	}
	s.proxy = &httputil.ReverseProxy{Director: s.direct}
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.match(r.URL.Path) == nil {
		http.NotFound(w, r)
		return
	}
	s.proxy.ServeHTTP(w, r)
}

func (s *Server) match(path string) *Upstream {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *Upstream
	for i := range s.upstreams {
		u := &s.upstreams[i]
		if strings.HasPrefix(path, u.Prefix) {
			if best == nil || len(u.Prefix) > len(best.Prefix) {
				best = u
			}
		}
	}
	return best
}

func (s *Server) direct(r *http.Request) {
	u := s.match(r.URL.Path)
	if u == nil {
		return
	}
	r.URL.Scheme = u.Target.Scheme
	r.URL.Host = u.Target.Host
	r.URL.Path = strings.TrimPrefix(r.URL.Path, u.Prefix)
	if !strings.HasPrefix(r.URL.Path, "/") {
		r.URL.Path = "/" + r.URL.Path
	}
	r.Host = u.Target.Host
}

// Transport wraps an http.RoundTripper so every request is routed
// through a fixed proxy address instead of dialing its destination
// directly, the client-side half of 's "via the
// optional proxy service." base defaults to http.DefaultTransport.Clone()
// when nil.
func Transport(proxyAddr string, base *http.Transport) (http.RoundTripper, error) {
	u, err := url.Parse(proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("proxy: parsing proxy address %q: %w", proxyAddr, err)
	}
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	} else {
		base = base.Clone()
	}
	base.Proxy = http.ProxyURL(u)
	return base, nil
}

// NewClient builds an *http.Client that routes every request through
// proxyAddr when non-empty, or behaves as http.DefaultClient otherwise.
// No other package's constructor calls it; its result can be passed
// wherever an *http.Client is accepted, such as pkg/worker.NewTransferer.
func NewClient(proxyAddr string) (*http.Client, error) {
	if proxyAddr == "" {
		return &http.Client{}, nil
	}
	rt, err := Transport(proxyAddr, nil)
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: rt}, nil
}
