package identity

import (
	"strings"
	"time"
)

type Config struct {
	URL            string        `env:"SUPABASE_URL"`
	AnonKey        string        `env:"SUPABASE_ANON_KEY"`
	ServiceRoleKey string        `env:"SUPABASE_SERVICE_ROLE_KEY"`
	Timeout        time.Duration `env:"AUTH_PROVIDER_TIMEOUT" envDefault:"5s"`
	OAuthProviders []string      `env:"AUTH_OAUTH_PROVIDERS" envDefault:"google,github"`
	OAuthScopes    string        `env:"AUTH_OAUTH_SCOPES" envDefault:""`
}

// authURL returns the GoTrue base URL for a Supabase project URL.
func (c Config) authURL() string {
	u := strings.TrimRight(c.URL, "/")
	if strings.HasSuffix(u, "/auth/v1") {
		return u
	}
	return u + "/auth/v1"
}
