// Package checkout exposes the JSON endpoints that start a hosted
// subscription checkout and report its outcome. Both signed-in users and
// guests may check out; a guest whose email already belongs to an account is
// asked to sign in first.
package checkout

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/launchkit/handler"
	"github.com/dmitrymomot/launchkit/pkg/authstatus"
	"github.com/dmitrymomot/launchkit/pkg/billing"
	"github.com/dmitrymomot/launchkit/pkg/binder"
	"github.com/dmitrymomot/launchkit/pkg/identity"
	"github.com/dmitrymomot/launchkit/pkg/logger"
	"github.com/dmitrymomot/launchkit/pkg/redirect"
)

const (
	CreatePath = "/api/checkout"
	VerifyPath = "/api/checkout/verify"

	DefaultSuccessPath = "/checkout/success?session_id={CHECKOUT_SESSION_ID}"
	DefaultCancelPath  = "/pricing"
)

var (
	ErrMissingPrice     = handler.NewHTTPError(http.StatusBadRequest, "missing_price_id")
	ErrMissingEmail     = handler.NewHTTPError(http.StatusBadRequest, "missing_email")
	ErrMissingSessionID = handler.NewHTTPError(http.StatusBadRequest, "missing_session_id")
	ErrAccountExists    = handler.NewHTTPError(http.StatusConflict, "account_exists")
	ErrSessionNotFound  = handler.NewHTTPError(http.StatusNotFound, "checkout_session_not_found")
	ErrBillingDisabled  = handler.NewHTTPError(http.StatusServiceUnavailable, "billing_disabled")
	ErrProviderFailed   = handler.NewHTTPError(http.StatusBadGateway, "payment_provider_error")
)

// UserLookup finds existing accounts by email.
type UserLookup interface {
	ListUsersByEmail(ctx context.Context, email string) ([]identity.User, error)
}

// StatusResolver resolves the session of requests the auth gate does not
// classify.
type StatusResolver interface {
	Resolve(w http.ResponseWriter, r *http.Request) authstatus.Status
}

// CustomerEnsurer returns the billing customer id of a signed-in user.
type CustomerEnsurer interface {
	EnsureCustomer(ctx context.Context, user *identity.User) (string, error)
}

type Handler struct {
	billing     billing.Provider
	users       UserLookup
	redirects   *redirect.Builder
	resolver    StatusResolver
	customers   CustomerEnsurer
	priceID     string
	successPath string
	cancelPath  string
	log         *slog.Logger
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithDefaultPrice sets the price used when a request names none.
func WithDefaultPrice(priceID string) Option {
	return func(h *Handler) {
		h.priceID = strings.TrimSpace(priceID)
	}
}

func WithStatusResolver(r StatusResolver) Option {
	return func(h *Handler) {
		h.resolver = r
	}
}

func WithCustomers(c CustomerEnsurer) Option {
	return func(h *Handler) {
		h.customers = c
	}
}

// WithReturnPaths overrides where the provider sends the buyer after paying
// or cancelling. Paths are resolved against the request origin.
func WithReturnPaths(success, cancel string) Option {
	return func(h *Handler) {
		if success != "" {
			h.successPath = success
		}
		if cancel != "" {
			h.cancelPath = cancel
		}
	}
}

// New builds the checkout handler. A nil provider answers every request
// with ErrBillingDisabled.
func New(provider billing.Provider, users UserLookup, redirects *redirect.Builder, opts ...Option) *Handler {
	h := &Handler{
		billing:     provider,
		users:       users,
		redirects:   redirects,
		successPath: DefaultSuccessPath,
		cancelPath:  DefaultCancelPath,
		log:         logger.Noop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the checkout routes on r.
func (h *Handler) Register(r chi.Router) {
	errs := handler.WithErrorHandler(handler.NewErrorHandler(h.log))
	r.Post(CreatePath, handler.Wrap(h.create, handler.WithBinders(binder.JSON()), errs))
	r.Get(VerifyPath, handler.Wrap(h.verify, handler.WithBinders(binder.Query()), errs))
}

type CreateRequest struct {
	PriceID  string `json:"priceId"`
	Email    string `json:"email"`
	Quantity int64  `json:"quantity"`
}

type CreateResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

func (h *Handler) create(ctx handler.Context, req CreateRequest) handler.Response {
	if h.billing == nil {
		return handler.JSONError(ErrBillingDisabled)
	}
	r := ctx.Request()

	priceID := strings.TrimSpace(req.PriceID)
	if priceID == "" {
		priceID = h.priceID
	}
	if priceID == "" {
		return handler.JSONError(ErrMissingPrice)
	}

	current := h.redirects.CurrentURL(r)
	params := billing.CheckoutParams{
		PriceID:    priceID,
		Quantity:   req.Quantity,
		SuccessURL: h.redirects.Path(current, h.successPath).String(),
		CancelURL:  h.redirects.Path(current, h.cancelPath).String(),
	}

	if user, ok := h.currentUser(ctx.ResponseWriter(), r); ok {
		params.UserID = user.ID
		params.CustomerEmail = user.Email
		if h.customers != nil {
			id, err := h.customers.EnsureCustomer(ctx, user)
			if err != nil {
				// Checkout can still proceed by email.
				h.log.WarnContext(ctx, "failed to ensure billing customer",
					logger.Component("checkout"),
					logger.UserID(user.ID),
					logger.Error(err),
				)
			}
			params.CustomerID = id
		}
	} else {
		email := normalizeEmail(req.Email)
		if email == "" {
			return handler.JSONError(ErrMissingEmail)
		}
		if h.users != nil {
			existing, err := h.users.ListUsersByEmail(ctx, email)
			switch {
			case err != nil:
				h.log.WarnContext(ctx, "guest checkout account lookup failed",
					logger.Component("checkout"),
					logger.Error(err),
				)
			case len(existing) > 0:
				return handler.JSONError(ErrAccountExists)
			}
		}
		params.CustomerEmail = email
	}

	cs, err := h.billing.CreateCheckoutSession(ctx, params)
	if err != nil {
		h.log.ErrorContext(ctx, "failed to create checkout session",
			logger.Component("checkout"),
			logger.UserID(params.UserID),
			slog.String("price_id", priceID),
			logger.Error(err),
		)
		return handler.JSONError(providerError(err))
	}

	h.log.InfoContext(ctx, "checkout session created",
		logger.Component("checkout"),
		logger.UserID(params.UserID),
		slog.String("session_id", cs.ID),
	)
	return handler.JSON(CreateResponse{SessionID: cs.ID, URL: cs.URL}, handler.WithJSONStatus(http.StatusCreated))
}

type VerifyRequest struct {
	SessionID string `query:"session_id"`
}

type VerifyResponse struct {
	SessionID     string `json:"sessionId"`
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
	Paid          bool   `json:"paid"`
	CustomerID    string `json:"customerId,omitempty"`
	CustomerEmail string `json:"customerEmail,omitempty"`
}

func (h *Handler) verify(ctx handler.Context, req VerifyRequest) handler.Response {
	if h.billing == nil {
		return handler.JSONError(ErrBillingDisabled)
	}
	id := strings.TrimSpace(req.SessionID)
	if id == "" {
		return handler.JSONError(ErrMissingSessionID)
	}

	cs, err := h.billing.GetCheckoutSession(ctx, id)
	if err != nil {
		if errors.Is(err, billing.ErrSessionNotFound) {
			return handler.JSONError(ErrSessionNotFound)
		}
		h.log.ErrorContext(ctx, "failed to fetch checkout session",
			logger.Component("checkout"),
			slog.String("session_id", id),
			logger.Error(err),
		)
		return handler.JSONError(providerError(err))
	}

	return handler.JSON(VerifyResponse{
		SessionID:     cs.ID,
		Status:        cs.Status,
		PaymentStatus: cs.PaymentStatus,
		Paid:          cs.Paid(),
		CustomerID:    cs.CustomerID,
		CustomerEmail: cs.CustomerEmail,
	})
}

func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (*identity.User, bool) {
	if user, ok := authstatus.UserFromContext(r.Context()); ok {
		return user, true
	}
	if h.resolver == nil {
		return nil, false
	}
	st := h.resolver.Resolve(w, r)
	if !st.IsAuthenticated || st.User == nil {
		return nil, false
	}
	return st.User, true
}

func providerError(err error) error {
	switch {
	case errors.Is(err, billing.ErrMissingPrice):
		return ErrMissingPrice
	case errors.Is(err, billing.ErrMissingEmail):
		return ErrMissingEmail
	case errors.Is(err, billing.ErrMissingSessionID):
		return ErrMissingSessionID
	}
	return ErrProviderFailed
}

func normalizeEmail(raw string) string {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return ""
	}
	return strings.ToLower(addr.Address)
}
