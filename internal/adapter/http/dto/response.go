package dto

import (
	"time"

	"github.com/sovrhq/clearing/internal/domain"
)

// AccountResponse represents an account in API responses.
type AccountResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	Active        bool      `json:"active"`
	AllowNegative bool      `json:"allow_negative"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AccountFromDomain converts a domain account to a response.
func AccountFromDomain(a *domain.Account) *AccountResponse {
	return &AccountResponse{
		ID:            a.ID,
		Name:          a.Name,
		Type:          string(a.Type),
		Active:        a.Active,
		AllowNegative: a.AllowNegative,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

// AccountsFromDomain converts domain accounts to responses.
func AccountsFromDomain(accounts []*domain.Account) []*AccountResponse {
	result := make([]*AccountResponse, len(accounts))
	for i, a := range accounts {
		result[i] = AccountFromDomain(a)
	}
	return result
}

// BalanceResponse is the authority's current view of one account. The
// engine holds no balances of its own.
type BalanceResponse struct {
	AccountID    string `json:"account_id"`
	BalanceMinor int64  `json:"balance_minor"`
}

// ErrorResponse represents an error in API responses. Issues carries the
// itemized validation verdicts on a 422.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message,omitempty"`
	Issues  []domain.Issue `json:"issues,omitempty"`
}
