// Package routes classifies request paths into protected, auth, public and
// other groups. Classification is a pure function of the path.
package routes

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind is the classification of a request path.
type Kind string

const (
	KindProtected Kind = "protected"
	KindAuth      Kind = "auth"
	KindPublic    Kind = "public"
	KindOther     Kind = "other"
)

// Default prefixes.
var (
	DefaultProtected = []string{"/profile", "/dashboard", "/admin", "/settings"}
	DefaultAuth      = []string{"/login", "/signup", "/reset-password"}
	DefaultPublic    = []string{"/", "/pricing", "/contact", "/about"}
)

var ErrInvalidPrefix = errors.New("route prefix must start with /")

// Classifier matches paths against prefix lists. Protected wins over auth,
// auth over public. It is immutable after construction.
type Classifier struct {
	protected []string
	auth      []string
	public    []string
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithProtected replaces the protected prefixes.
func WithProtected(prefixes ...string) Option {
	return func(c *Classifier) { c.protected = prefixes }
}

// WithAuth replaces the auth prefixes.
func WithAuth(prefixes ...string) Option {
	return func(c *Classifier) { c.auth = prefixes }
}

// WithPublic replaces the public prefixes. "/" matches only the root path.
func WithPublic(prefixes ...string) Option {
	return func(c *Classifier) { c.public = prefixes }
}

// New returns a Classifier with the default prefixes, modified by opts.
func New(opts ...Option) (*Classifier, error) {
	c := &Classifier{
		protected: DefaultProtected,
		auth:      DefaultAuth,
		public:    DefaultPublic,
	}
	for _, opt := range opts {
		opt(c)
	}

	var err error
	if c.protected, err = normalize(c.protected); err != nil {
		return nil, err
	}
	if c.auth, err = normalize(c.auth); err != nil {
		return nil, err
	}
	if c.public, err = normalize(c.public); err != nil {
		return nil, err
	}
	return c, nil
}

// Classify returns the Kind of p. Query strings must be stripped by the caller.
func (c *Classifier) Classify(p string) Kind {
	p = clean(p)
	switch {
	case matchAny(c.protected, p):
		return KindProtected
	case matchAny(c.auth, p):
		return KindAuth
	case matchAny(c.public, p):
		return KindPublic
	default:
		return KindOther
	}
}

// fileConfig is the YAML layout accepted by LoadFile.
type fileConfig struct {
	Protected []string `yaml:"protected"`
	Auth      []string `yaml:"auth"`
	Public    []string `yaml:"public"`
}

// LoadFile reads prefix lists from a YAML file. Lists absent from the file
// keep their defaults.
//
//	protected: [/profile, /dashboard, /billing]
//	auth: [/login, /signup]
func LoadFile(name string) ([]Option, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read routes file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse routes file: %w", err)
	}

	var opts []Option
	if fc.Protected != nil {
		opts = append(opts, WithProtected(fc.Protected...))
	}
	if fc.Auth != nil {
		opts = append(opts, WithAuth(fc.Auth...))
	}
	if fc.Public != nil {
		opts = append(opts, WithPublic(fc.Public...))
	}
	return opts, nil
}

func normalize(prefixes []string) ([]string, error) {
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = strings.TrimSpace(p)
		if !strings.HasPrefix(p, "/") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPrefix, p)
		}
		out = append(out, clean(p))
	}
	return out, nil
}

func clean(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// matchAny reports whether p equals a prefix or is nested under it on a
// segment boundary. The root prefix only matches itself.
func matchAny(prefixes []string, p string) bool {
	for _, prefix := range prefixes {
		if p == prefix {
			return true
		}
		if prefix != "/" && strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}
