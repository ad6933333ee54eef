package provision

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/launchkit/pkg/async"
	"github.com/dmitrymomot/launchkit/pkg/billing"
	"github.com/dmitrymomot/launchkit/pkg/identity"
	"github.com/dmitrymomot/launchkit/pkg/logger"
	"github.com/dmitrymomot/launchkit/pkg/profile"
)

var ErrNoUser = errors.New("provision: user with id and email required")

// ProfileStore is the part of profile.Store provisioning writes to.
type ProfileStore interface {
	Create(ctx context.Context, p profile.Profile) (bool, error)
	SetBillingCustomer(ctx context.Context, id uuid.UUID, customerID string) error
}

// Service provisions users. A nil billing provider or profile store turns
// the corresponding step into a no-op.
type Service struct {
	billing  billing.Provider
	profiles ProfileStore
	runner   *Runner
	log      *slog.Logger
}

type ServiceOption func(*Service)

func WithProfiles(store ProfileStore) ServiceOption {
	return func(s *Service) {
		s.profiles = store
	}
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func NewService(b billing.Provider, runner *Runner, opts ...ServiceOption) *Service {
	if runner == nil {
		runner = NewRunner()
	}
	s := &Service{billing: b, runner: runner, log: logger.Noop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProvisionCustomer ensures a payment customer for user in the background.
func (s *Service) ProvisionCustomer(ctx context.Context, user *identity.User) {
	s.runner.Go(ctx, "provision_customer", func(ctx context.Context) error {
		_, err := s.EnsureCustomer(ctx, user)
		return err
	})
}

// ProvisionAccount ensures a payment customer and a profile for user in the
// background.
func (s *Service) ProvisionAccount(ctx context.Context, user *identity.User) {
	s.runner.Go(ctx, "provision_account", func(ctx context.Context) error {
		return s.EnsureAccount(ctx, user)
	})
}

// EnsureCustomer finds or creates the payment customer of user and returns
// its id. It returns "" without error when billing is disabled.
func (s *Service) EnsureCustomer(ctx context.Context, user *identity.User) (string, error) {
	if user == nil || user.ID == "" || user.Email == "" {
		return "", ErrNoUser
	}
	if s.billing == nil {
		return "", nil
	}

	c, err := s.billing.EnsureCustomer(ctx, user.Email, user.DisplayName(), map[string]string{
		billing.MetaUserID: user.ID,
	})
	if err != nil {
		return "", err
	}
	s.log.InfoContext(ctx, "payment customer ready",
		logger.Component("provision"),
		logger.UserID(user.ID),
		slog.String("customer_id", c.ID),
	)
	return c.ID, nil
}

// EnsureAccount creates the payment customer and the profile concurrently,
// then links the customer to the profile.
func (s *Service) EnsureAccount(ctx context.Context, user *identity.User) error {
	if user == nil || user.ID == "" || user.Email == "" {
		return ErrNoUser
	}
	if s.profiles == nil {
		_, err := s.EnsureCustomer(ctx, user)
		return err
	}

	id, err := profile.ParseID(user.ID)
	if err != nil {
		return err
	}

	customer := async.Go(ctx, func(ctx context.Context) (string, error) {
		return s.EnsureCustomer(ctx, user)
	})
	created := async.Go(ctx, func(ctx context.Context) (bool, error) {
		return s.profiles.Create(ctx, profile.Profile{
			ID:        id,
			Email:     user.Email,
			FullName:  user.DisplayName(),
			AvatarURL: user.AvatarURL(),
		})
	})

	customerID, customerErr := customer.Await()
	isNew, profileErr := created.Await()
	if profileErr != nil || customerErr != nil {
		return errors.Join(customerErr, profileErr)
	}
	if isNew {
		s.log.InfoContext(ctx, "profile created",
			logger.Component("provision"),
			logger.UserID(user.ID),
		)
	}

	if customerID == "" {
		return nil
	}
	return s.profiles.SetBillingCustomer(ctx, id, customerID)
}
