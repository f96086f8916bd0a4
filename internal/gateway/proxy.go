package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vstream/video-platform-back/internal/http/middleware"
)

// Route maps a path prefix to a named downstream target.
type Route struct {
	Prefix string
	Target string
	URL    string
}

type Config struct {
	Routes           []Route
	CallTimeout      time.Duration
	FailureThreshold int
	ResetTimeout     time.Duration
}

type route struct {
	prefix  string
	target  string
	baseURL *url.URL
}

// Proxy is the single entry point for inbound traffic. It resolves the
// downstream target, consults that target's breaker, forwards with a
// bounded timeout and reports the outcome. Breakers are per target, so a
// dead backend never blocks traffic to a healthy one.
type Proxy struct {
	routes      []route
	callTimeout time.Duration

	breakersMu sync.Mutex
	breakers   map[string]*Breaker

	failureThreshold int
	resetTimeout     time.Duration

	client *http.Client
	logger *log.Logger
}

func NewProxy(cfg Config, logger *log.Logger) (*Proxy, error) {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 3 * time.Second
	}

	routes := make([]route, 0, len(cfg.Routes))
	for _, r := range cfg.Routes {
		parsed, err := url.Parse(r.URL)
		if err != nil {
			return nil, fmt.Errorf("parse target url for %s: %w", r.Target, err)
		}
		routes = append(routes, route{prefix: r.Prefix, target: r.Target, baseURL: parsed})
	}
	// Longest prefix wins so /api/v1/search beats /api.
	sort.Slice(routes, func(i, j int) bool {
		return len(routes[i].prefix) > len(routes[j].prefix)
	})

	return &Proxy{
		routes:           routes,
		callTimeout:      cfg.CallTimeout,
		breakers:         make(map[string]*Breaker),
		failureThreshold: cfg.FailureThreshold,
		resetTimeout:     cfg.ResetTimeout,
		client: &http.Client{
			// Per-request context carries the deadline; the client
			// timeout is a backstop only.
			Timeout: cfg.CallTimeout + time.Second,
		},
		logger: logger,
	}, nil
}

// BreakerFor returns the breaker owned by this proxy for a target,
// creating it on first use.
func (p *Proxy) BreakerFor(target string) *Breaker {
	p.breakersMu.Lock()
	defer p.breakersMu.Unlock()

	breaker, ok := p.breakers[target]
	if !ok {
		breaker = NewBreaker(p.failureThreshold, p.resetTimeout)
		p.breakers[target] = breaker
	}
	return breaker
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	matched, ok := p.resolve(r.URL.Path)
	if !ok {
		p.writeError(w, r, http.StatusNotFound, "unknown_route", "no downstream target for path")
		return
	}

	breaker := p.BreakerFor(matched.target)
	if !breaker.Allow() {
		if p.logger != nil {
			p.logger.Printf(
				"breaker rejected request target=%s path=%s request_id=%s",
				matched.target, r.URL.Path, middleware.GetRequestID(r.Context()),
			)
		}
		p.writeError(w, r, http.StatusServiceUnavailable, "circuit_open", "service temporarily unavailable")
		return
	}

	response, err := p.forward(r, matched)
	if err != nil {
		breaker.Report(false)
		code, wireCode := classifyForwardError(err)
		if p.logger != nil {
			p.logger.Printf(
				"downstream call failed target=%s path=%s code=%s request_id=%s err=%v",
				matched.target, r.URL.Path, wireCode, middleware.GetRequestID(r.Context()), err,
			)
		}
		p.writeError(w, r, code, wireCode, "service temporarily unavailable")
		return
	}
	defer response.Body.Close()

	// 5xx counts against the breaker; the response still passes through
	// untouched so the caller sees the original failure.
	breaker.Report(response.StatusCode < http.StatusInternalServerError)

	copyHeaders(w.Header(), response.Header)
	w.WriteHeader(response.StatusCode)
	_, _ = io.Copy(w, response.Body)
}

func (p *Proxy) resolve(path string) (route, bool) {
	for _, r := range p.routes {
		if strings.HasPrefix(path, r.prefix) {
			return r, true
		}
	}
	return route{}, false
}

func (p *Proxy) forward(r *http.Request, matched route) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(r.Context(), p.callTimeout)
	defer cancel()

	outboundURL := *matched.baseURL
	outboundURL.Path = singleJoin(matched.baseURL.Path, r.URL.Path)
	outboundURL.RawQuery = r.URL.RawQuery

	outbound, err := http.NewRequestWithContext(ctx, r.Method, outboundURL.String(), r.Body)
	if err != nil {
		return nil, fmt.Errorf("build outbound request: %w", err)
	}
	copyHeaders(outbound.Header, r.Header)
	outbound.Header.Set("X-Request-Id", middleware.GetRequestID(r.Context()))

	response, err := p.client.Do(outbound)
	if err != nil {
		return nil, err
	}

	// Buffer before the deadline is released so a slow body cannot
	// outlive the call budget.
	body, readErr := io.ReadAll(response.Body)
	response.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("read downstream body: %w", readErr)
	}
	response.Body = io.NopCloser(strings.NewReader(string(body)))
	return response, nil
}

func classifyForwardError(err error) (int, string) {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return http.StatusGatewayTimeout, "upstream_timeout"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return http.StatusGatewayTimeout, "upstream_timeout"
	}
	return http.StatusBadGateway, "upstream_unavailable"
}

var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailers":            {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if _, skip := hopByHopHeaders[http.CanonicalHeaderKey(key)]; skip {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

func singleJoin(base, path string) string {
	base = strings.TrimSuffix(base, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

func (p *Proxy) writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = fmt.Fprintf(
		w,
		`{"error":{"code":%q,"message":%q},"request_id":%q}`,
		code, message, middleware.GetRequestID(r.Context()),
	)
}
