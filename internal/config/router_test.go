package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		want    func(t *testing.T, cfg *Config)
		wantErr bool
	}{
		{
			name: "Should parse valid router timeouts and limits",
			envVars: mergeEnvVars(map[string]string{
				"HERMES_ROUTER_READ_TIMEOUT":     "15s",
				"HERMES_ROUTER_WRITE_TIMEOUT":    "15s",
				"HERMES_ROUTER_MAX_HEADER_BYTES": "1048576",
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 15*time.Second, cfg.Router.ReadTimeout)
				assert.Equal(t, 15*time.Second, cfg.Router.WriteTimeout)
				assert.Equal(t, 1048576, cfg.Router.MaxHeaderBytes)
			},
			wantErr: false,
		},
		{
			name: "Should fail validation on invalid router port",
			envVars: mergeEnvVars(map[string]string{
				"HERMES_ROUTER_PORT": "0",
			}),
			wantErr: true,
		},
		{
			name: "Should fail validation on non-positive resolve budget",
			envVars: mergeEnvVars(map[string]string{
				"HERMES_ROUTER_RESOLVE_BUDGET": "0s",
			}),
			wantErr: true,
		},
		{
			name: "Should fail validation on cookie max age below one hour",
			envVars: mergeEnvVars(map[string]string{
				"HERMES_ROUTER_COOKIE_MAX_AGE": "30m",
			}),
			wantErr: true,
		},
		{
			name: "Should fail validation when TLS enabled without cert and key",
			envVars: mergeEnvVars(map[string]string{
				"HERMES_ROUTER_TLS_ENABLED": "true",
			}),
			wantErr: true,
		},
		{
			name: "Should fail validation on zero L1 cache capacity",
			envVars: mergeEnvVars(map[string]string{
				"HERMES_ROUTER_L1_CACHE_CAPACITY": "0",
			}),
			wantErr: true,
		},
		{
			name: "Should parse snippet settings",
			envVars: mergeEnvVars(map[string]string{
				"HERMES_SNIPPET_ENFORCE_DOMAIN": "false",
				"HERMES_SNIPPET_SELECTORS":      ".offer-slot",
				"HERMES_SNIPPET_CACHE_TTL":      "10m",
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.Snippet.EnforceDomain)
				assert.Equal(t, []string{".offer-slot"}, cfg.Snippet.Selectors)
				assert.Equal(t, 10*time.Minute, cfg.Snippet.CacheTTL)
			},
			wantErr: false,
		},
		{
			name: "Should fail validation on non-positive snippet cache TTL",
			envVars: mergeEnvVars(map[string]string{
				"HERMES_SNIPPET_CACHE_TTL": "0s",
			}),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := Load()

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			if tt.want != nil {
				tt.want(t, cfg)
			}
		})
	}
}
