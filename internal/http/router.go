package httpserver

import (
	"log"
	"net/http"

	"github.com/vstream/video-platform-back/internal/http/handlers"
	"github.com/vstream/video-platform-back/internal/http/middleware"
)

type SearchRouterDependencies struct {
	API            *handlers.SearchAPI
	Logger         *log.Logger
	Verifier       middleware.Verifier
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewSearchRouter(deps SearchRouterDependencies) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", deps.API.Health)
	mux.HandleFunc("/api/v1/search", deps.API.Submit)
	mux.HandleFunc("/api/v1/search/", deps.API.JobRoutes)

	return chain(mux, deps.Logger, deps.Verifier, deps.CORSOrigins, deps.RateLimitRPS, deps.RateLimitBurst)
}

type VideoRouterDependencies struct {
	API            *handlers.VideoAPI
	Logger         *log.Logger
	Verifier       middleware.Verifier
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewVideoRouter(deps VideoRouterDependencies) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", deps.API.Health)
	mux.HandleFunc("/api/videos", deps.API.Collection)
	mux.HandleFunc("/api/videos/", deps.API.Item)

	return chain(mux, deps.Logger, deps.Verifier, deps.CORSOrigins, deps.RateLimitRPS, deps.RateLimitBurst)
}

type GatewayRouterDependencies struct {
	Proxy          http.Handler
	Logger         *log.Logger
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewGatewayRouter serves the gateway's own health locally and hands
// everything else to the proxy. Authentication stays with the backends;
// the gateway only forwards the bearer token.
func NewGatewayRouter(deps GatewayRouterDependencies) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy","service":"api-gateway"}`))
	})
	mux.Handle("/", deps.Proxy)

	handler := http.Handler(mux)
	handler = middleware.RateLimit(deps.RateLimitRPS, deps.RateLimitBurst)(handler)
	handler = middleware.CORS(middleware.CORSConfig{AllowedOrigins: deps.CORSOrigins})(handler)
	handler = middleware.Trace(deps.Logger)(handler)
	handler = middleware.RequestID(handler)
	return handler
}

func chain(
	mux *http.ServeMux,
	logger *log.Logger,
	verifier middleware.Verifier,
	corsOrigins []string,
	rateLimitRPS float64,
	rateLimitBurst int,
) http.Handler {
	handler := http.Handler(mux)
	handler = middleware.Identity(verifier)(handler)
	handler = middleware.RateLimit(rateLimitRPS, rateLimitBurst)(handler)
	handler = middleware.CORS(middleware.CORSConfig{AllowedOrigins: corsOrigins})(handler)
	handler = middleware.Trace(logger)(handler)
	handler = middleware.RequestID(handler)
	return handler
}
