package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// Stripe implements Provider with Stripe Checkout in subscription mode.
type Stripe struct {
	sc *client.API
}

var _ Provider = (*Stripe)(nil)

type StripeOption func(*stripeOptions)

type stripeOptions struct {
	backends *stripe.Backends
}

// WithStripeBackends routes API calls through custom backends, for example
// a backend pointed at a local stripe-mock.
func WithStripeBackends(b *stripe.Backends) StripeOption {
	return func(o *stripeOptions) { o.backends = b }
}

// WithStripeURL points every backend at baseURL.
func WithStripeURL(baseURL string, httpClient *http.Client) StripeOption {
	return func(o *stripeOptions) {
		cfg := &stripe.BackendConfig{
			URL:               stripe.String(baseURL),
			HTTPClient:        httpClient,
			MaxNetworkRetries: stripe.Int64(0),
			LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
		}
		b := stripe.GetBackendWithConfig(stripe.APIBackend, cfg)
		o.backends = &stripe.Backends{API: b, Connect: b, Uploads: b}
	}
}

func NewStripe(secretKey string, opts ...StripeOption) (*Stripe, error) {
	if secretKey == "" {
		return nil, ErrMissingAPIKey
	}
	var o stripeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Stripe{sc: client.New(secretKey, o.backends)}, nil
}

// EnsureCustomer looks the customer up by email first so repeated
// provisioning does not create duplicates.
func (s *Stripe) EnsureCustomer(ctx context.Context, email, name string, metadata map[string]string) (*Customer, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrMissingEmail
	}

	list := &stripe.CustomerListParams{Email: stripe.String(email)}
	list.Context = ctx
	list.Limit = stripe.Int64(1)
	it := s.sc.Customers.List(list)
	if it.Next() {
		c := it.Customer()
		return &Customer{ID: c.ID, Email: c.Email}, nil
	}
	if err := it.Err(); err != nil {
		return nil, stripeError("list customers", err)
	}

	params := &stripe.CustomerParams{Email: stripe.String(email), Metadata: metadata}
	params.Context = ctx
	if name != "" {
		params.Name = stripe.String(name)
	}
	c, err := s.sc.Customers.New(params)
	if err != nil {
		return nil, stripeError("create customer", err)
	}
	return &Customer{ID: c.ID, Email: c.Email}, nil
}

func (s *Stripe) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	if p.PriceID == "" {
		return nil, ErrMissingPrice
	}
	if p.CustomerID == "" && p.CustomerEmail == "" {
		return nil, ErrMissingEmail
	}
	qty := p.Quantity
	if qty <= 0 {
		qty = 1
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(p.PriceID),
			Quantity: stripe.Int64(qty),
		}},
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
		Metadata:   p.metadata(),
	}
	params.Context = ctx
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	} else {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}
	if p.UserID != "" {
		params.ClientReferenceID = stripe.String(p.UserID)
	}

	cs, err := s.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, stripeError("create checkout session", err)
	}
	if cs.URL == "" {
		return nil, ErrNoCheckoutURL
	}
	return toCheckoutSession(cs), nil
}

func (s *Stripe) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	if id == "" {
		return nil, ErrMissingSessionID
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	cs, err := s.sc.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, stripeError("get checkout session", err)
	}
	return toCheckoutSession(cs), nil
}

func toCheckoutSession(cs *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:            cs.ID,
		URL:           cs.URL,
		Status:        string(cs.Status),
		PaymentStatus: string(cs.PaymentStatus),
		CustomerEmail: cs.CustomerEmail,
		Metadata:      cs.Metadata,
	}
	if cs.Customer != nil {
		out.CustomerID = cs.Customer.ID
	}
	if out.CustomerEmail == "" && cs.CustomerDetails != nil {
		out.CustomerEmail = cs.CustomerDetails.Email
	}
	return out
}

func stripeError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.HTTPStatusCode == http.StatusNotFound {
		return errors.Join(ErrSessionNotFound, fmt.Errorf("stripe %s: %w", op, err))
	}
	return errors.Join(ErrProvider, fmt.Errorf("stripe %s: %w", op, err))
}
