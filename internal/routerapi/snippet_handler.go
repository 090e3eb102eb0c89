package routerapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"github.com/dmarins/hermes/internal/logger"
	"github.com/dmarins/hermes/internal/resolver"
)

// handleSnippetConfig processes GET /api/snippet/config?partner=&domain=.
// It validates the partner and requesting domain, then returns the ranked
// creative list the widget selects from client-side.
func (a *API) handleSnippetConfig(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	affID := strings.TrimSpace(r.URL.Query().Get("partner"))
	domainName := strings.TrimSpace(r.URL.Query().Get("domain"))

	if affID == "" || domainName == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Message: "partner and domain parameters are required"})
		return
	}

	cfg, err := a.resolver.SnippetConfig(r.Context(), affID, hostname(domainName), resolver.SnippetOptions{
		EnforceDomain: a.snippet.EnforceDomain,
	})
	if err != nil {
		switch {
		case errors.Is(err, resolver.ErrPartnerNotFound):
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, ErrorResponse{Message: "Partner not found or not approved"})
		case errors.Is(err, resolver.ErrDomainNotAllowed):
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, ErrorResponse{Message: "Domain not allowed or deactivated"})
		default:
			log.Error("snippet config failed",
				slog.String("aff_id", affID),
				slog.String("error", err.Error()),
			)
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, ErrorResponse{Message: "Internal error"})
		}
		return
	}

	// The widget iterates creatives unconditionally; an empty list must
	// serialize as [] rather than null.
	creatives := cfg.Creatives
	if creatives == nil {
		creatives = []resolver.SnippetCreative{}
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, SnippetResponse{
		Success: true,
		Partner: SnippetPartner{
			ID:   cfg.Partner.AffID,
			Name: cfg.Partner.PartnerName,
		},
		Config: SnippetPayload{
			Selectors:       a.snippet.Selectors,
			Creatives:       creatives,
			CacheTTLSeconds: int(a.snippet.CacheTTL.Seconds()),
		},
	})
}
