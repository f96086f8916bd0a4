package gateway

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestProxy(t *testing.T, routes []Route, callTimeout time.Duration) *Proxy {
	t.Helper()

	proxy, err := NewProxy(Config{
		Routes:           routes,
		CallTimeout:      callTimeout,
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
	}, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("unexpected proxy construction error: %v", err)
	}
	return proxy
}

func decodeErrorCode(t *testing.T, body []byte) string {
	t.Helper()

	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("failed decoding error payload %q: %v", body, err)
	}
	return payload.Error.Code
}

func TestProxyForwardsToMatchingTarget(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/videos" {
			t.Errorf("unexpected forwarded path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[{"id":"v1"}]`))
	}))
	defer backend.Close()

	proxy := newTestProxy(t, []Route{
		{Prefix: "/api/videos", Target: "videos", URL: backend.URL},
	}, time.Second)

	recorder := httptest.NewRecorder()
	proxy.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/videos", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if body := recorder.Body.String(); !strings.Contains(body, "v1") {
		t.Fatalf("expected backend body, got %q", body)
	}
}

func TestProxyUnknownRouteReturnsNotFound(t *testing.T) {
	proxy := newTestProxy(t, nil, time.Second)

	recorder := httptest.NewRecorder()
	proxy.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
	if code := decodeErrorCode(t, recorder.Body.Bytes()); code != "unknown_route" {
		t.Fatalf("expected unknown_route, got %q", code)
	}
}

func TestProxyBreakerOpensAfterRepeatedFailuresAndShortCircuits(t *testing.T) {
	var hits atomic.Int64
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer backend.Close()

	proxy := newTestProxy(t, []Route{
		{Prefix: "/api/v1/search", Target: "search", URL: backend.URL},
	}, time.Second)

	for i := 0; i < 5; i++ {
		recorder := httptest.NewRecorder()
		proxy.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/search/jobs", nil))
		if recorder.Code != http.StatusInternalServerError {
			t.Fatalf("expected pass-through 500 on call %d, got %d", i+1, recorder.Code)
		}
	}
	if got := hits.Load(); got != 5 {
		t.Fatalf("expected 5 backend hits before trip, got %d", got)
	}

	// Sixth call short-circuits: distinct code, zero network attempts.
	recorder := httptest.NewRecorder()
	proxy.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/search/jobs", nil))
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from open breaker, got %d", recorder.Code)
	}
	if code := decodeErrorCode(t, recorder.Body.Bytes()); code != "circuit_open" {
		t.Fatalf("expected circuit_open, got %q", code)
	}
	if got := hits.Load(); got != 5 {
		t.Fatalf("expected no backend hit while open, got %d", got)
	}
}

func TestProxyBreakerRecoversThroughTrial(t *testing.T) {
	var healthy atomic.Bool
	var hits atomic.Int64
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer backend.Close()

	proxy := newTestProxy(t, []Route{
		{Prefix: "/api/v1/search", Target: "search", URL: backend.URL},
	}, time.Second)

	clock := newFakeClock()
	proxy.BreakerFor("search").now = clock.Now

	for i := 0; i < 5; i++ {
		recorder := httptest.NewRecorder()
		proxy.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/search/jobs", nil))
	}
	if got := proxy.BreakerFor("search").State(); got != StateOpen {
		t.Fatalf("expected open after 5 failures, got %v", got)
	}

	healthy.Store(true)
	clock.Advance(30 * time.Second)

	hitsBefore := hits.Load()
	recorder := httptest.NewRecorder()
	proxy.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/search/jobs", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected trial to pass through, got %d", recorder.Code)
	}
	if got := hits.Load(); got != hitsBefore+1 {
		t.Fatalf("expected exactly one trial attempt, got %d extra", hits.Load()-hitsBefore)
	}

	breaker := proxy.BreakerFor("search")
	if got := breaker.State(); got != StateClosed {
		t.Fatalf("expected closed after successful trial, got %v", got)
	}
	if got := breaker.ConsecutiveFailures(); got != 0 {
		t.Fatalf("expected zero failures after recovery, got %d", got)
	}
}

func TestProxyTimeoutCountsAgainstBreaker(t *testing.T) {
	release := make(chan struct{})
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer backend.Close()
	defer close(release)

	proxy := newTestProxy(t, []Route{
		{Prefix: "/api/v1/search", Target: "search", URL: backend.URL},
	}, 50*time.Millisecond)

	recorder := httptest.NewRecorder()
	proxy.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/search/jobs", nil))

	if recorder.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504 on timeout, got %d", recorder.Code)
	}
	if code := decodeErrorCode(t, recorder.Body.Bytes()); code != "upstream_timeout" {
		t.Fatalf("expected upstream_timeout, got %q", code)
	}
	if got := proxy.BreakerFor("search").ConsecutiveFailures(); got != 1 {
		t.Fatalf("expected timeout counted as failure, got %d", got)
	}
}

func TestProxyTargetsFailIndependently(t *testing.T) {
	downBackend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer downBackend.Close()

	var videoHits atomic.Int64
	upBackend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		videoHits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer upBackend.Close()

	proxy := newTestProxy(t, []Route{
		{Prefix: "/api/v1/search", Target: "search", URL: downBackend.URL},
		{Prefix: "/api/videos", Target: "videos", URL: upBackend.URL},
	}, time.Second)

	for i := 0; i < 6; i++ {
		recorder := httptest.NewRecorder()
		proxy.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/search/jobs", nil))
	}
	if got := proxy.BreakerFor("search").State(); got != StateOpen {
		t.Fatalf("expected search breaker open, got %v", got)
	}

	recorder := httptest.NewRecorder()
	proxy.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/videos", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected healthy target unaffected, got %d", recorder.Code)
	}
	if got := videoHits.Load(); got != 1 {
		t.Fatalf("expected videos backend hit, got %d", got)
	}
	if got := proxy.BreakerFor("videos").State(); got != StateClosed {
		t.Fatalf("expected videos breaker closed, got %v", got)
	}
}

func TestProxyDownstreamErrorDistinctFromBreakerOpen(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"backend exploded"}`))
	}))
	defer backend.Close()

	proxy := newTestProxy(t, []Route{
		{Prefix: "/api/v1/search", Target: "search", URL: backend.URL},
	}, time.Second)

	// While the breaker is closed the downstream failure passes through
	// with its original status and body.
	recorder := httptest.NewRecorder()
	proxy.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/search/jobs", nil))
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("expected pass-through 500, got %d", recorder.Code)
	}
	if body := recorder.Body.String(); !strings.Contains(body, "backend exploded") {
		t.Fatalf("expected original backend body, got %q", body)
	}
}
