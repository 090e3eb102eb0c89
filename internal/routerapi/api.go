// Package routerapi implements the visitor-facing HTTP surface: the /r
// redirect endpoint and the snippet-config read API. It handles HTTP
// routing, request decoding, and response formatting; all routing
// decisions live in the resolver package.
package routerapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/dmarins/hermes/internal/config"
	"github.com/dmarins/hermes/internal/recorder"
	"github.com/dmarins/hermes/internal/resolver"
)

// API holds the router dependencies and the chi multiplexer.
// Dependencies are injected to keep handlers testable with fakes.
type API struct {
	// Router is the chi multiplexer that handles HTTP requests.
	Router *chi.Mux

	resolver *resolver.Resolver
	recorder *recorder.Recorder

	// resolveBudget bounds entity lookups on the redirect path so a slow
	// backend cannot hang visitor-facing redirects.
	resolveBudget time.Duration

	cookieMaxAge time.Duration

	snippet config.SnippetConfig
}

// NewAPI creates a new router API instance and registers its routes.
// Panics on nil dependencies: the router cannot serve without them.
func NewAPI(res *resolver.Resolver, rec *recorder.Recorder, routerCfg *config.RouterConfig, snippetCfg config.SnippetConfig) *API {
	if res == nil {
		panic("routerapi: resolver cannot be nil")
	}
	if rec == nil {
		panic("routerapi: recorder cannot be nil")
	}
	if routerCfg == nil {
		panic("routerapi: router config cannot be nil")
	}

	api := &API{
		Router:        chi.NewRouter(),
		resolver:      res,
		recorder:      rec,
		resolveBudget: routerCfg.ResolveBudget,
		cookieMaxAge:  routerCfg.CookieMaxAge,
		snippet:       snippetCfg,
	}

	api.configureRoutes()
	return api
}

// configureRoutes registers the global middleware stack and endpoints.
func (a *API) configureRoutes() {
	// RequestID: unique ID per request context, carried into logs.
	a.Router.Use(middleware.RequestID)
	// RealIP: sets the client IP from forwarding headers behind a proxy/LB.
	a.Router.Use(middleware.RealIP)
	// Logger: structured request log with status and duration.
	a.Router.Use(RequestLogger)
	// Metrics: per-route duration histogram and request counter.
	a.Router.Use(RequestMetrics)
	// Recoverer: a panicking handler returns 500 instead of killing the server.
	a.Router.Use(middleware.Recoverer)

	// The redirect endpoint responds with plain text on failure and a bare
	// 302 on success, so it stays outside the JSON content-type group.
	a.Router.Get("/r", a.handleRedirect)

	a.Router.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/snippet/config", a.handleSnippetConfig)
	})

	a.Router.Get("/health", a.handleHealthCheck)
}

// handleHealthCheck reports basic HTTP serving capability. Deep dependency
// checks live on the observability server's readiness probe.
func (a *API) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "ok"})
}
