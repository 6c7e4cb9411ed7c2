package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountAttrs is the full attribute set of an account, including the
// resolved owner surrogate key. Accounts are always overwritten on
// reconciliation, so unlike CustomerAttrs this set is never diffed.
type AccountAttrs struct {
	AccountNumber    string
	CustomerID       uuid.UUID
	DateOpened       time.Time
	MajorType        string
	MinorType        string
	Status           string
	AvailableBalance decimal.Decimal
	CurrentBalance   decimal.Decimal
}

// Account maps to table `accounts`
type Account struct {
	ID uuid.UUID
	AccountAttrs
	CreatedAt time.Time
	UpdatedAt time.Time
}
