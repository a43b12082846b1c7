package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/sovrhq/clearing/internal/domain"
	"github.com/sovrhq/clearing/internal/infrastructure/metrics"
)

// AccountService handles account provisioning and lookups.
type AccountService struct {
	registry    AccountRegistry
	authority   LedgerAuthority
	provisioner AuthorityProvisioner
	idGen       IDGenerator
	metrics     *metrics.Metrics
}

// NewAccountService creates a new AccountService. provisioner and metrics
// may be nil; without a provisioner the authority is assumed to learn about
// accounts out of band.
func NewAccountService(registry AccountRegistry, authority LedgerAuthority, provisioner AuthorityProvisioner, idGen IDGenerator, m *metrics.Metrics) *AccountService {
	return &AccountService{
		registry:    registry,
		authority:   authority,
		provisioner: provisioner,
		idGen:       idGen,
		metrics:     m,
	}
}

// ProvisionAccountInput represents input for provisioning an account.
type ProvisionAccountInput struct {
	ID            string
	Name          string
	Type          string
	AllowNegative *bool
}

// Provision registers an account in the clearing registry. The id may be
// supplied by the caller (for accounts that already exist at the ledger
// authority) or generated here. AllowNegative defaults per account type
// when not set explicitly.
func (s *AccountService) Provision(ctx context.Context, input ProvisionAccountInput) (*domain.Account, error) {
	accountType, err := domain.ParseAccountType(input.Type)
	if err != nil {
		return nil, err
	}
	if input.Name == "" {
		return nil, fmt.Errorf("%w: name", domain.ErrMissingField)
	}

	id := input.ID
	if id == "" {
		id = s.idGen.Generate()
	} else if err := domain.ValidateIdentifier(id); err != nil {
		return nil, fmt.Errorf("account id: %w", err)
	}

	allowNegative := accountType.DefaultAllowNegative()
	if input.AllowNegative != nil {
		allowNegative = *input.AllowNegative
	}

	now := time.Now().UTC()
	account := &domain.Account{
		ID:            id,
		Name:          input.Name,
		Type:          accountType,
		Active:        true,
		AllowNegative: allowNegative,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// Authority first: its registration is idempotent, so a retry after a
	// registry failure converges instead of stranding the account.
	if s.provisioner != nil {
		if err := s.provisioner.ProvisionAccount(ctx, id, allowNegative); err != nil {
			return nil, fmt.Errorf("provision account at ledger authority: %w", err)
		}
	}
	if err := s.registry.Create(ctx, account); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.AccountsProvisioned.Inc()
	}
	return account, nil
}

// Get retrieves an account by id.
func (s *AccountService) Get(ctx context.Context, id string) (*domain.Account, error) {
	return s.registry.GetByID(ctx, id)
}

// GetBalance reads the account's current balance from the ledger authority.
// The registry itself holds no balances; the authority is the only source.
func (s *AccountService) GetBalance(ctx context.Context, id string) (int64, error) {
	if _, err := s.registry.GetByID(ctx, id); err != nil {
		return 0, err
	}
	return s.authority.GetBalance(ctx, id)
}

// ListAccountsInput represents input for listing accounts.
type ListAccountsInput struct {
	Limit  int
	Offset int
}

// List lists accounts with pagination.
func (s *AccountService) List(ctx context.Context, input ListAccountsInput) ([]*domain.Account, error) {
	if input.Limit <= 0 {
		input.Limit = 20
	}
	if input.Limit > 100 {
		input.Limit = 100
	}
	return s.registry.List(ctx, input.Limit, input.Offset)
}

// SetActive activates or deactivates an account. Deactivated accounts fail
// validation on any new entry that references them; history is untouched.
func (s *AccountService) SetActive(ctx context.Context, id string, active bool) (*domain.Account, error) {
	if err := s.registry.SetActive(ctx, id, active, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.registry.GetByID(ctx, id)
}
