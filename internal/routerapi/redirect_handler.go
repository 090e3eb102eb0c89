package routerapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/dmarins/hermes/internal/logger"
	"github.com/dmarins/hermes/internal/observability"
	"github.com/dmarins/hermes/internal/recorder"
	"github.com/dmarins/hermes/internal/resolver"
)

// noMatchBody is the plain-text response when no tier yields a usable rule.
const noMatchBody = "No redirect rule configured"

// handleRedirect processes GET /r?aff_id=&u=&c=.
//
// The flow is: derive the requesting domain from the Host header, run the
// priority cascade under the resolve budget, hand the outcome to the click
// recorder (fire-and-forget), then answer 302 with tracking parameters and
// the attribution cookie, or 404 when nothing matched. Resolution failures
// never become 5xx: a deterministic 404 beats an opaque error page for a
// visitor mid-redirect.
func (a *API) handleRedirect(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	query := r.URL.Query()
	req := resolver.Request{
		DomainName:  hostname(r.Host),
		AffID:       query.Get("aff_id"),
		OverrideURL: query.Get("u"),
		CreativeRef: query.Get("c"),
	}

	// Entity lookups run under a hard budget; on timeout the cascade
	// reports no match and the visitor gets the 404 path. The click log
	// write below is detached from this context and still completes.
	ctx, cancel := context.WithTimeout(r.Context(), a.resolveBudget)
	defer cancel()

	rc, err := a.resolver.Resolve(ctx, req)
	if err != nil && err != resolver.ErrNoMatch {
		log.Error("resolution failed", slog.String("error", err.Error()))
		rc = resolver.ResolutionContext{Source: resolver.SourceNone}
	}

	observability.ResolutionsTotal.WithLabelValues(string(rc.Source)).Inc()

	clickID := uuid.NewString()
	a.recorder.Record(recorder.Event{
		ClickID:    clickID,
		Resolution: rc,
		IPAddress:  r.RemoteAddr,
		UserAgent:  r.UserAgent(),
		Referer:    r.Referer(),
	})

	if !rc.Matched() {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(noMatchBody))
		return
	}

	location := appendTracking(rc.RedirectURL, req.AffID, clickID)

	http.SetCookie(w, a.attributionCookie(r, clickID, req.AffID))
	http.Redirect(w, r, location, http.StatusFound)
}

// hostname strips the port from a Host header value. Domain records are
// stored by hostname only.
func hostname(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return strings.TrimSpace(host)
}
