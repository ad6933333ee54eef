package cookie

import (
	"net/http"

	"github.com/dmitrymomot/launchkit/pkg/secrets"
)

type Config struct {
	Path     string        `env:"COOKIE_PATH" envDefault:"/"`
	Domain   string        `env:"COOKIE_DOMAIN" envDefault:""`
	Secure   bool          `env:"COOKIE_SECURE" envDefault:"true"`
	SameSite http.SameSite `env:"COOKIE_SAME_SITE" envDefault:"2"` // 2 = Lax
}

// NewFromConfig builds a Manager using the cookie keys from kr.
func NewFromConfig(cfg Config, kr *secrets.Keyring, opts ...Option) (*Manager, error) {
	if kr == nil {
		return nil, ErrInvalidKey
	}
	configOpts := []Option{
		WithSecure(cfg.Secure),
	}
	if cfg.Path != "" {
		configOpts = append(configOpts, WithPath(cfg.Path))
	}
	if cfg.Domain != "" {
		configOpts = append(configOpts, WithDomain(cfg.Domain))
	}
	if cfg.SameSite != 0 {
		configOpts = append(configOpts, WithSameSite(cfg.SameSite))
	}
	return New(kr.CookieSigning, kr.CookieEncryption, append(configOpts, opts...)...)
}
