// Package billing is the boundary to the payment provider. It creates
// customers and hosted checkout sessions; payment capture itself stays with
// the provider.
package billing

import (
	"context"
	"fmt"
	"strings"
)

const (
	ProviderStripe = "stripe"
	ProviderPaddle = "paddle"
)

// Metadata keys written on customers and checkout sessions.
const (
	MetaUserID = "user_id"
	MetaEmail  = "email"
)

type Customer struct {
	ID    string
	Email string
}

type CheckoutSession struct {
	ID            string
	URL           string
	Status        string
	PaymentStatus string
	CustomerID    string
	CustomerEmail string
	Metadata      map[string]string
}

// Paid reports whether the provider considers the session paid.
func (s *CheckoutSession) Paid() bool {
	if s == nil {
		return false
	}
	switch strings.ToLower(s.PaymentStatus) {
	case "paid", "no_payment_required", "completed":
		return true
	}
	return false
}

// CheckoutParams describes a subscription checkout. Either CustomerID or
// CustomerEmail identifies the buyer; guest checkouts carry only the email.
type CheckoutParams struct {
	PriceID       string
	Quantity      int64
	CustomerID    string
	CustomerEmail string
	UserID        string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

func (p CheckoutParams) metadata() map[string]string {
	md := make(map[string]string, len(p.Metadata)+2)
	for k, v := range p.Metadata {
		md[k] = v
	}
	if p.UserID != "" {
		md[MetaUserID] = p.UserID
	}
	if p.CustomerEmail != "" {
		md[MetaEmail] = p.CustomerEmail
	}
	return md
}

// Provider is the payment provider contract.
type Provider interface {
	// EnsureCustomer returns the customer for email, creating it when needed.
	EnsureCustomer(ctx context.Context, email, name string, metadata map[string]string) (*Customer, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
}

// New builds the provider selected by cfg.Provider.
func New(cfg Config, opts ...StripeOption) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderStripe, "":
		return NewStripe(cfg.StripeSecretKey, opts...)
	case ProviderPaddle:
		return NewPaddle(cfg.PaddleAPIKey, cfg.PaddleEnvironment)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
