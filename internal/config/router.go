package config

import (
	"fmt"
	"time"
)

// RouterConfig configures the visitor-facing HTTP server (the /r redirect
// endpoint and the snippet-config API).
type RouterConfig struct {
	Port              string        `envconfig:"PORT" default:"8080"`
	Host              string        `envconfig:"HOST" default:"0.0.0.0"`
	ReadTimeout       time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"5s"`
	IdleTimeout       time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes    int           `envconfig:"MAX_HEADER_BYTES" default:"524288" validate:"min=1"` // 512KB

	// ResolveBudget is the overall deadline for entity lookups on one
	// redirect request. On timeout the visitor gets a deterministic 404;
	// the click log write still happens afterwards.
	ResolveBudget time.Duration `envconfig:"RESOLVE_BUDGET" default:"250ms" validate:"gt=0"`

	// CookieMaxAge controls the lifetime of the cb_attribution cookie.
	CookieMaxAge time.Duration `envconfig:"COOKIE_MAX_AGE" default:"720h"` // 30 days

	// L1 cache for hot rule sets, per process.
	L1CacheCapacity int           `envconfig:"L1_CACHE_CAPACITY" default:"10000" validate:"min=1"`
	L1CacheTTL      time.Duration `envconfig:"L1_CACHE_TTL" default:"30s" validate:"gt=0"`

	// TLS
	TLSEnabled bool   `envconfig:"TLS_ENABLED" default:"false"`
	TLSCert    string `envconfig:"TLS_CERT_FILE"`
	TLSKey     string `envconfig:"TLS_KEY_FILE"`
}

// Validate performs validation on the RouterConfig.
func (c *RouterConfig) Validate(environment string) error {
	if err := validatePort(c.Port, "router"); err != nil {
		return err
	}

	if err := validateHost(c.Host, "router"); err != nil {
		return err
	}

	// The attribution cookie is the correlation key for conversion
	// matching; an expiring-too-soon cookie silently breaks attribution.
	if c.CookieMaxAge < time.Hour {
		return fmt.Errorf("router cookie max age must be at least 1h, got %s", c.CookieMaxAge)
	}

	if environment == EnvironmentProduction && !c.TLSEnabled {
		return fmt.Errorf("TLS must be enabled in production environment")
	}

	if c.TLSEnabled && (c.TLSCert == "" || c.TLSKey == "") {
		return fmt.Errorf("TLS enabled but cert or key file not specified")
	}

	return nil
}

// SnippetConfig configures the snippet-config read path.
type SnippetConfig struct {
	// EnforceDomain requires the requesting domain to be registered and
	// active before creatives are served.
	EnforceDomain bool `envconfig:"ENFORCE_DOMAIN" default:"true"`

	// Selectors are the CSS selectors the embedded widget binds to.
	Selectors []string `envconfig:"SELECTORS" default:".cb-offer,[data-cb-slot]"`

	// CacheTTL is advertised to widgets as cache_ttl_seconds.
	CacheTTL time.Duration `envconfig:"CACHE_TTL" default:"5m" validate:"gt=0"`
}
