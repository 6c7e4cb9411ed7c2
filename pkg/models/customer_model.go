package models

import (
	"time"

	"github.com/google/uuid"
)

// CustomerAttrs is the full comparable attribute set of a customer, excluding
// the surrogate key and audit timestamps. Two batch records describe the same
// stored state iff their CustomerAttrs are equal.
type CustomerAttrs struct {
	ExternalID   string
	HolderName   string
	EntityName   string
	OfficeName   string
	Title        string
	AddressLine1 string
	AddressLine2 string
	AddressLine3 string
	City         string
	State        string
	Zip          string
	Country      string
}

// Customer maps to table `customers`
type Customer struct {
	ID uuid.UUID
	CustomerAttrs
	CreatedAt time.Time
	UpdatedAt time.Time
}
