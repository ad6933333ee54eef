// Package redirect builds the absolute URLs the auth gate and callback
// redirect to: the login page carrying a returnTo parameter, and the
// post-authentication destination read back from it.
package redirect

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
)

const (
	DefaultLoginPath   = "/login"
	DefaultLandingPath = "/profile"

	// ReturnToParam is the query parameter carrying the original destination.
	ReturnToParam = "returnTo"
	MessageParam  = "message"
	ErrorParam    = "error"
)

var ErrInvalidBaseURL = errors.New("base URL must be an absolute http(s) URL")

// Builder constructs redirect URLs. The zero value is not usable; call New.
type Builder struct {
	base        *url.URL
	loginPath   string
	landingPath string
}

type Option func(*Builder)

// WithBaseURL pins the origin instead of deriving it from each request.
// An empty value keeps per-request origins.
func WithBaseURL(raw string) Option {
	return func(b *Builder) {
		if raw == "" {
			return
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			b.base = &url.URL{}
			return
		}
		b.base = &url.URL{Scheme: u.Scheme, Host: u.Host}
	}
}

func WithLoginPath(p string) Option {
	return func(b *Builder) { b.loginPath = p }
}

// WithLandingPath sets the destination used when returnTo is absent or rejected.
func WithLandingPath(p string) Option {
	return func(b *Builder) { b.landingPath = p }
}

func New(opts ...Option) (*Builder, error) {
	b := &Builder{loginPath: DefaultLoginPath, landingPath: DefaultLandingPath}
	for _, opt := range opts {
		opt(b)
	}
	if b.base != nil && b.base.Host == "" {
		return nil, ErrInvalidBaseURL
	}
	return b, nil
}

// CurrentURL returns the absolute URL of r.
func (b *Builder) CurrentURL(r *http.Request) *url.URL {
	u := *r.URL
	origin := b.origin(r)
	u.Scheme, u.Host = origin.Scheme, origin.Host
	return &u
}

func (b *Builder) origin(r *http.Request) *url.URL {
	if b.base != nil {
		return &url.URL{Scheme: b.base.Scheme, Host: b.base.Host}
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	return &url.URL{Scheme: scheme, Host: host}
}

// LoginURL returns {origin}/login?returnTo={path+query of current}, encoded
// like encodeURIComponent. Percent signs in current are encoded again.
func (b *Builder) LoginURL(current *url.URL) *url.URL {
	target := current.EscapedPath()
	if target == "" {
		target = "/"
	}
	if current.RawQuery != "" {
		target += "?" + current.RawQuery
	}
	return &url.URL{
		Scheme:   current.Scheme,
		Host:     current.Host,
		Path:     b.loginPath,
		RawQuery: ReturnToParam + "=" + EncodeComponent(target),
	}
}

// PostAuthURL returns the destination for an authenticated user. returnTo is
// the already query-decoded parameter value; it is percent-decoded once more
// and accepted only if it names a same-origin path. Anything else yields
// the landing path.
func (b *Builder) PostAuthURL(current *url.URL, returnTo string) *url.URL {
	if target, ok := b.sameOrigin(current, returnTo); ok {
		return target
	}
	return &url.URL{Scheme: current.Scheme, Host: current.Host, Path: b.landingPath}
}

// Path returns an absolute URL for p on the origin of current. p may carry
// a query string.
func (b *Builder) Path(current *url.URL, p string) *url.URL {
	u := &url.URL{Scheme: current.Scheme, Host: current.Host}
	if path, query, ok := strings.Cut(p, "?"); ok {
		u.Path, u.RawQuery = path, query
	} else {
		u.Path = p
	}
	return u
}

// Landing returns the default landing URL on the origin of current.
func (b *Builder) Landing(current *url.URL) *url.URL {
	return b.Path(current, b.landingPath)
}

// Login returns the bare login URL on the origin of current.
func (b *Builder) Login(current *url.URL) *url.URL {
	return b.Path(current, b.loginPath)
}

func (b *Builder) sameOrigin(current *url.URL, returnTo string) (*url.URL, bool) {
	if returnTo == "" {
		return nil, false
	}
	decoded, err := url.PathUnescape(returnTo)
	if err != nil || decoded == "" {
		return nil, false
	}

	target, err := url.Parse(decoded)
	if err != nil {
		return nil, false
	}

	switch {
	case target.IsAbs():
		if target.Host != current.Host || (target.Scheme != "http" && target.Scheme != "https") {
			return nil, false
		}
	case target.Host != "":
		// protocol-relative //evil.example
		return nil, false
	case !strings.HasPrefix(decoded, "/") || strings.HasPrefix(decoded, "//") || strings.HasPrefix(decoded, "/\\"):
		return nil, false
	}

	if target.Path == b.loginPath || strings.HasPrefix(target.Path, b.loginPath+"/") {
		return nil, false
	}

	return &url.URL{
		Scheme:   current.Scheme,
		Host:     current.Host,
		Path:     target.Path,
		RawPath:  target.RawPath,
		RawQuery: target.RawQuery,
		Fragment: target.Fragment,
	}, true
}

// WithParam returns a copy of u with key set to value in its query.
func WithParam(u *url.URL, key, value string) *url.URL {
	out := *u
	q := out.Query()
	q.Set(key, value)
	out.RawQuery = q.Encode()
	return &out
}

// WithMessage adds a user-facing message parameter.
func WithMessage(u *url.URL, msg string) *url.URL {
	return WithParam(u, MessageParam, msg)
}

// WithError adds a user-facing error parameter.
func WithError(u *url.URL, msg string) *url.URL {
	return WithParam(u, ErrorParam, msg)
}
