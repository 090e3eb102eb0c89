package routerapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// attributionCookieName is read by client-side scripts to correlate a
// visitor's click with later conversions, so it is deliberately not
// HttpOnly.
const attributionCookieName = "cb_attribution"

// appendTracking adds tid (the raw caller-supplied affiliate id, present or
// not in the partner table) and cb_click_id to the destination URL. The
// existing query string is preserved verbatim rather than re-encoded:
// downstream tracking attributes on the exact parameter bytes the offer
// owner configured.
func appendTracking(rawURL, affID, clickID string) string {
	var pairs []string
	if affID != "" {
		pairs = append(pairs, "tid="+url.QueryEscape(affID))
	}
	pairs = append(pairs, "cb_click_id="+url.QueryEscape(clickID))
	encoded := strings.Join(pairs, "&")

	u, err := url.Parse(rawURL)
	if err != nil {
		// Unparseable destination: fall back to raw concatenation.
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		return rawURL + sep + encoded
	}

	if u.RawQuery == "" {
		u.RawQuery = encoded
	} else {
		u.RawQuery = u.RawQuery + "&" + encoded
	}
	return u.String()
}

// attributionPayload is the JSON body of the cb_attribution cookie.
type attributionPayload struct {
	ClickID string `json:"click_id"`
	AffID   string `json:"aff_id"`
}

// attributionCookie builds the client-readable attribution cookie. The JSON
// payload is URL-escaped because cookie values cannot carry quotes or
// commas raw.
func (a *API) attributionCookie(r *http.Request, clickID, affID string) *http.Cookie {
	payload, _ := json.Marshal(attributionPayload{ClickID: clickID, AffID: affID})

	return &http.Cookie{
		Name:     attributionCookieName,
		Value:    url.QueryEscape(string(payload)),
		Path:     "/",
		MaxAge:   int(a.cookieMaxAge.Seconds()),
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
		HttpOnly: false,
	}
}
