package main

import (
	"errors"

	"github.com/dmitrymomot/launchkit/pkg/secrets"
)

var errInvalidUpstream = errors.New("APP_UPSTREAM_URL must be an absolute URL")

// appConfig holds the settings that do not belong to any single package.
type appConfig struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	Name        string `env:"APP_NAME" envDefault:"launchkit"`
	BaseURL     string `env:"APP_BASE_URL"`
	Secret      string `env:"APP_SECRET,required"`
	RoutesFile  string `env:"ROUTES_FILE"`
	LandingPath string `env:"APP_LANDING_PATH" envDefault:"/profile"`
	UpstreamURL string `env:"APP_UPSTREAM_URL"`
}

func (c appConfig) Validate() error {
	if len(c.Secret) < secrets.MinMasterLength {
		return errors.New("APP_SECRET must be at least 32 characters")
	}
	return nil
}
