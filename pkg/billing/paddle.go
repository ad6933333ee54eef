package billing

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// Paddle implements Provider with Paddle Billing transactions. A transaction
// with a checkout URL plays the role of a checkout session.
type Paddle struct {
	client *paddle.SDK
}

var _ Provider = (*Paddle)(nil)

// Paddle reports duplicate emails with the id of the existing customer in
// the error detail.
var paddleCustomerID = regexp.MustCompile(`ctm_[a-z0-9]+`)

func NewPaddle(apiKey, environment string) (*Paddle, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	var (
		client *paddle.SDK
		err    error
	)
	switch strings.ToLower(environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(apiKey)
	case "production", "":
		client, err = paddle.New(apiKey)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidEnvironment, environment)
	}
	if err != nil {
		return nil, fmt.Errorf("create paddle client: %w", err)
	}
	return &Paddle{client: client}, nil
}

func (p *Paddle) EnsureCustomer(ctx context.Context, email, name string, metadata map[string]string) (*Customer, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrMissingEmail
	}

	req := &paddle.CreateCustomerRequest{Email: email, CustomData: customData(metadata)}
	if name != "" {
		req.Name = paddle.PtrTo(name)
	}
	c, err := p.client.CustomersClient.CreateCustomer(ctx, req)
	if err != nil {
		if id := paddleCustomerID.FindString(err.Error()); id != "" {
			return &Customer{ID: id, Email: email}, nil
		}
		return nil, errors.Join(ErrProvider, fmt.Errorf("paddle create customer: %w", err))
	}
	return &Customer{ID: c.ID, Email: c.Email}, nil
}

func (p *Paddle) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	if params.PriceID == "" {
		return nil, ErrMissingPrice
	}

	customerID := params.CustomerID
	if customerID == "" {
		c, err := p.EnsureCustomer(ctx, params.CustomerEmail, "", nil)
		if err != nil {
			return nil, err
		}
		customerID = c.ID
	}

	qty := int(params.Quantity)
	if qty <= 0 {
		qty = 1
	}
	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  params.PriceID,
		Quantity: qty,
	})
	req := &paddle.CreateTransactionRequest{
		Items:      []paddle.CreateTransactionItems{*item},
		CustomerID: paddle.PtrTo(customerID),
		CustomData: customData(params.metadata()),
	}
	if params.SuccessURL != "" {
		req.Checkout = &paddle.TransactionCheckout{URL: paddle.PtrTo(params.SuccessURL)}
	}

	tx, err := p.client.TransactionsClient.CreateTransaction(ctx, req)
	if err != nil {
		return nil, errors.Join(ErrProvider, fmt.Errorf("paddle create transaction: %w", err))
	}
	if tx.Checkout == nil || tx.Checkout.URL == nil || *tx.Checkout.URL == "" {
		return nil, ErrNoCheckoutURL
	}
	return toPaddleSession(tx), nil
}

func (p *Paddle) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error) {
	if id == "" {
		return nil, ErrMissingSessionID
	}
	tx, err := p.client.TransactionsClient.GetTransaction(ctx, &paddle.GetTransactionRequest{TransactionID: id})
	if err != nil {
		return nil, errors.Join(ErrProvider, fmt.Errorf("paddle get transaction: %w", err))
	}
	return toPaddleSession(tx), nil
}

func toPaddleSession(tx *paddle.Transaction) *CheckoutSession {
	out := &CheckoutSession{
		ID:       tx.ID,
		Status:   string(tx.Status),
		Metadata: map[string]string{},
	}
	switch out.Status {
	case "paid", "completed":
		out.PaymentStatus = "paid"
	default:
		out.PaymentStatus = "unpaid"
	}
	if tx.Checkout != nil && tx.Checkout.URL != nil {
		out.URL = *tx.Checkout.URL
	}
	if tx.CustomerID != nil {
		out.CustomerID = *tx.CustomerID
	}
	for k, v := range tx.CustomData {
		if s, ok := v.(string); ok {
			out.Metadata[k] = s
		}
	}
	out.CustomerEmail = out.Metadata[MetaEmail]
	return out
}

func customData(md map[string]string) paddle.CustomData {
	if len(md) == 0 {
		return nil
	}
	out := make(paddle.CustomData, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
