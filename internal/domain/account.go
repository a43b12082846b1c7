package domain

import "time"

// AccountType classifies an account within the double-entry model.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeIncome    AccountType = "income"
	AccountTypeExpense   AccountType = "expense"
)

// ParseAccountType converts a raw string into an AccountType.
func ParseAccountType(raw string) (AccountType, error) {
	t := AccountType(raw)
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeIncome, AccountTypeExpense:
		return t, nil
	}
	return "", ErrInvalidAccountType
}

// DefaultAllowNegative reports the provisioning default for whether balances
// of this type may drop below zero. Clearing accounts holding real value
// (asset, liability) get a hard floor at zero; the remaining types are
// unbounded unless provisioning overrides.
func (t AccountType) DefaultAllowNegative() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability:
		return false
	default:
		return true
	}
}

// Account represents a ledger account registered with the clearing engine.
// The engine never stores a balance locally; current balance always comes
// from the ledger authority.
type Account struct {
	ID            string
	Name          string
	Type          AccountType
	Active        bool
	AllowNegative bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Referencable reports whether the account may appear on a new entry line.
func (a *Account) Referencable() bool {
	return a.Active
}
