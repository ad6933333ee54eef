package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
)

// linkedProvidersKey is the app metadata key that records providers merged
// into an account by the linking flow.
const linkedProvidersKey = "linked_providers"

// GoTrue implements Provider on top of a Supabase Auth (GoTrue) server.
type GoTrue struct {
	client gotrue.Client
	cfg    Config
}

var _ Provider = (*GoTrue)(nil)

// NewGoTrue builds a GoTrue-backed Provider from cfg.
func NewGoTrue(cfg Config) (*GoTrue, error) {
	if cfg.URL == "" || cfg.AnonKey == "" {
		return nil, ErrMissingConfig
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := gotrue.New("", cfg.AnonKey).
		WithCustomGoTrueURL(cfg.authURL()).
		WithClient(http.Client{Timeout: cfg.Timeout})
	return &GoTrue{client: client, cfg: cfg}, nil
}

// call runs fn in its own goroutine so ctx cancellation is honored even
// though the underlying client has no context support.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, errors.Join(ErrTimeout, ctx.Err())
		}
		return zero, ctx.Err()
	case res := <-ch:
		return res.v, classify(res.err)
	}
}

func callErr(ctx context.Context, fn func() error) error {
	_, err := call(ctx, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

// classify maps client errors onto the package sentinels. GoTrue errors come
// back as "response status code N: body".
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, types.ErrInvalidTokenRequest) {
		return errors.Join(ErrInvalidGrant, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return errors.Join(ErrTimeout, err)
		}
		return errors.Join(ErrNetwork, err)
	}

	msg := strings.ToLower(err.Error())
	status := statusCode(msg)
	switch {
	case strings.Contains(msg, "invalid login credentials"),
		strings.Contains(msg, "invalid_credentials"):
		return errors.Join(ErrInvalidCredentials, err)
	case strings.Contains(msg, "invalid_grant"),
		strings.Contains(msg, "flow state"),
		strings.Contains(msg, "code verifier"),
		strings.Contains(msg, "invalid refresh token"):
		return errors.Join(ErrInvalidGrant, err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.Join(ErrUnauthorized, err)
	case status == http.StatusNotFound:
		return errors.Join(ErrUserNotFound, err)
	case status > 0:
		return errors.Join(ErrProvider, err)
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "eof"):
		return errors.Join(ErrNetwork, err)
	}
	return errors.Join(ErrProvider, err)
}

func statusCode(msg string) int {
	const prefix = "response status code "
	i := strings.Index(msg, prefix)
	if i < 0 {
		return 0
	}
	rest := msg[i+len(prefix):]
	end := strings.IndexFunc(rest, func(r rune) bool { return r < '0' || r > '9' })
	if end < 0 {
		end = len(rest)
	}
	n, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0
	}
	return n
}

func (g *GoTrue) GetUser(ctx context.Context, accessToken string) (*User, error) {
	if accessToken == "" {
		return nil, ErrNoSession
	}
	resp, err := call(ctx, func() (*types.UserResponse, error) {
		return g.client.WithToken(accessToken).GetUser()
	})
	if err != nil {
		return nil, err
	}
	return toUser(resp.User), nil
}

func (g *GoTrue) ExchangeCodeForSession(ctx context.Context, code, verifier string) (*Session, *User, error) {
	if verifier == "" {
		return nil, nil, ErrNoVerifier
	}
	resp, err := call(ctx, func() (*types.TokenResponse, error) {
		return g.client.Token(types.TokenRequest{
			GrantType:    "pkce",
			Code:         code,
			CodeVerifier: verifier,
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return toSession(resp.Session), toUser(resp.Session.User), nil
}

// VerifyEmailLink calls GET /verify, which answers with a redirect carrying
// the session in the URL fragment, then loads the user it belongs to.
func (g *GoTrue) VerifyEmailLink(ctx context.Context, kind, tokenHash, redirectTo string) (*Session, *User, error) {
	if kind == "" || tokenHash == "" {
		return nil, nil, ErrInvalidGrant
	}
	resp, err := call(ctx, func() (*types.VerifyResponse, error) {
		return g.client.Verify(types.VerifyRequest{
			Type:       types.VerificationType(kind),
			Token:      tokenHash,
			RedirectTo: redirectTo,
		})
	})
	if err != nil {
		return nil, nil, err
	}
	if resp.Error != "" || resp.ErrorCode != "" || resp.AccessToken == "" {
		return nil, nil, fmt.Errorf("%w: %s: %s", ErrInvalidGrant, resp.ErrorCode, resp.ErrorDescription)
	}

	sess := &Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
	}
	if resp.ExpiresIn > 0 {
		sess.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second).UTC()
	}
	user, err := g.GetUser(ctx, sess.AccessToken)
	if err != nil {
		return nil, nil, err
	}
	return sess, user, nil
}

func (g *GoTrue) SignInWithPassword(ctx context.Context, email, password string) (*Session, *User, error) {
	resp, err := call(ctx, func() (*types.TokenResponse, error) {
		return g.client.SignInWithEmailPassword(email, password)
	})
	if err != nil {
		return nil, nil, err
	}
	return toSession(resp.Session), toUser(resp.Session.User), nil
}

func (g *GoTrue) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*Session, *User, error) {
	resp, err := call(ctx, func() (*types.SignupResponse, error) {
		return g.client.Signup(types.SignupRequest{
			Email:    email,
			Password: password,
			Data:     metadata,
		})
	})
	if err != nil {
		return nil, nil, err
	}
	// With autoconfirm on GoTrue returns a session whose user is nested.
	if resp.AccessToken != "" {
		return toSession(resp.Session), toUser(resp.Session.User), nil
	}
	return nil, toUser(resp.User), nil
}

func (g *GoTrue) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}
	return callErr(ctx, func() error {
		return g.client.WithToken(accessToken).Logout()
	})
}

func (g *GoTrue) ResetPasswordForEmail(ctx context.Context, email string) error {
	return callErr(ctx, func() error {
		return g.client.Recover(types.RecoverRequest{Email: email})
	})
}

func (g *GoTrue) UpdatePassword(ctx context.Context, accessToken, password string) error {
	if accessToken == "" {
		return ErrNoSession
	}
	_, err := call(ctx, func() (*types.UpdateUserResponse, error) {
		return g.client.WithToken(accessToken).UpdateUser(types.UpdateUserRequest{Password: &password})
	})
	return err
}

func (g *GoTrue) RefreshSession(ctx context.Context, refreshToken string) (*Session, *User, error) {
	if refreshToken == "" {
		return nil, nil, ErrNoSession
	}
	resp, err := call(ctx, func() (*types.TokenResponse, error) {
		return g.client.RefreshToken(refreshToken)
	})
	if err != nil {
		return nil, nil, err
	}
	return toSession(resp.Session), toUser(resp.Session.User), nil
}

// AuthorizeURL asks GoTrue for the provider redirect. The callback target is
// the redirect URL configured on the GoTrue server.
func (g *GoTrue) AuthorizeURL(ctx context.Context, provider string) (string, string, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !slices.Contains(g.cfg.OAuthProviders, provider) {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedOAuth, provider)
	}
	resp, err := call(ctx, func() (*types.AuthorizeResponse, error) {
		return g.client.Authorize(types.AuthorizeRequest{
			Provider: types.Provider(provider),
			FlowType: types.FlowPKCE,
			Scopes:   g.cfg.OAuthScopes,
		})
	})
	if err != nil {
		return "", "", err
	}
	return resp.AuthorizationURL, resp.Verifier, nil
}

func (g *GoTrue) admin() (gotrue.Client, error) {
	if g.cfg.ServiceRoleKey == "" {
		return nil, ErrMissingAdminKey
	}
	return g.client.WithToken(g.cfg.ServiceRoleKey), nil
}

// ListUsersByEmail returns every account whose email matches, case-insensitively.
func (g *GoTrue) ListUsersByEmail(ctx context.Context, email string) ([]User, error) {
	admin, err := g.admin()
	if err != nil {
		return nil, err
	}
	resp, err := call(ctx, func() (*types.AdminListUsersResponse, error) {
		return admin.AdminListUsers()
	})
	if err != nil {
		return nil, err
	}

	email = strings.TrimSpace(email)
	var out []User
	for _, u := range resp.Users {
		if strings.EqualFold(u.Email, email) {
			out = append(out, *toUser(u))
		}
	}
	return out, nil
}

func (g *GoTrue) DeleteUser(ctx context.Context, userID string) error {
	admin, err := g.admin()
	if err != nil {
		return err
	}
	id, err := uuid.Parse(userID)
	if err != nil {
		return errors.Join(ErrInvalidUserID, err)
	}
	return callErr(ctx, func() error {
		return admin.AdminDeleteUser(types.AdminDeleteUserRequest{UserID: id})
	})
}

func (g *GoTrue) LinkProvider(ctx context.Context, userID, provider string) error {
	admin, err := g.admin()
	if err != nil {
		return err
	}
	id, err := uuid.Parse(userID)
	if err != nil {
		return errors.Join(ErrInvalidUserID, err)
	}

	current, err := call(ctx, func() (*types.AdminGetUserResponse, error) {
		return admin.AdminGetUser(types.AdminGetUserRequest{UserID: id})
	})
	if err != nil {
		return err
	}

	linked := stringSlice(current.AppMetadata[linkedProvidersKey])
	if slices.Contains(linked, provider) {
		return nil
	}
	linked = append(linked, provider)

	_, err = call(ctx, func() (*types.AdminUpdateUserResponse, error) {
		return admin.AdminUpdateUser(types.AdminUpdateUserRequest{
			UserID:      id,
			AppMetadata: map[string]any{linkedProvidersKey: linked},
		})
	})
	return err
}

func (g *GoTrue) Ping(ctx context.Context) error {
	_, err := call(ctx, func() (*types.HealthCheckResponse, error) {
		return g.client.HealthCheck()
	})
	return err
}

func toSession(s types.Session) *Session {
	out := &Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
	}
	switch {
	case s.ExpiresAt > 0:
		out.ExpiresAt = time.Unix(s.ExpiresAt, 0).UTC()
	case s.ExpiresIn > 0:
		out.ExpiresAt = time.Now().Add(time.Duration(s.ExpiresIn) * time.Second).UTC()
	}
	return out
}

func toUser(u types.User) *User {
	out := &User{
		ID:             u.ID.String(),
		Email:          u.Email,
		EmailConfirmed: u.EmailConfirmedAt != nil,
		Metadata:       u.UserMetadata,
		CreatedAt:      u.CreatedAt,
		LastSignInAt:   u.LastSignInAt,
	}
	if u.ID == uuid.Nil {
		out.ID = ""
	}

	add := func(p string) {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && !slices.Contains(out.Providers, p) {
			out.Providers = append(out.Providers, p)
		}
	}
	for _, id := range u.Identities {
		out.Identities = append(out.Identities, Identity{
			ID:        id.ID,
			Provider:  id.Provider,
			CreatedAt: id.CreatedAt,
		})
		add(id.Provider)
	}
	if p, ok := u.AppMetadata["provider"].(string); ok {
		add(p)
	}
	for _, p := range stringSlice(u.AppMetadata["providers"]) {
		add(p)
	}
	for _, p := range stringSlice(u.AppMetadata[linkedProvidersKey]) {
		add(p)
	}
	return out
}

func stringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
