// Package billingmock provides a testify mock of billing.Provider.
package billingmock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/launchkit/pkg/billing"
)

// Provider is a mock implementation of billing.Provider.
type Provider struct {
	mock.Mock
}

var _ billing.Provider = (*Provider)(nil)

func (m *Provider) EnsureCustomer(ctx context.Context, email, name string, metadata map[string]string) (*billing.Customer, error) {
	args := m.Called(ctx, email, name, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Customer), args.Error(1)
}

func (m *Provider) CreateCheckoutSession(ctx context.Context, params billing.CheckoutParams) (*billing.CheckoutSession, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.CheckoutSession), args.Error(1)
}

func (m *Provider) GetCheckoutSession(ctx context.Context, id string) (*billing.CheckoutSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.CheckoutSession), args.Error(1)
}
