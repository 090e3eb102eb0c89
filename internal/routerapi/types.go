package routerapi

import "github.com/dmarins/hermes/internal/resolver"

// SnippetPartner identifies the partner in the snippet-config envelope.
// The id is the public affiliate id, never the surrogate key.
type SnippetPartner struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SnippetPayload is the config block consumed by the embedded widget.
type SnippetPayload struct {
	Selectors       []string                   `json:"selectors"`
	Creatives       []resolver.SnippetCreative `json:"creatives"`
	CacheTTLSeconds int                        `json:"cache_ttl_seconds"`
}

// SnippetResponse is the success envelope of /api/snippet/config.
type SnippetResponse struct {
	Success bool           `json:"success"`
	Partner SnippetPartner `json:"partner"`
	Config  SnippetPayload `json:"config"`
}

// ErrorResponse is the error envelope shared by the JSON endpoints.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
