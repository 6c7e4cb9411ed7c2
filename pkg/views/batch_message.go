package views

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BatchMessage is the inbound queue envelope. Payload carries
// base64(nonce||AES-256-GCM ciphertext) of a JSON array of RawRecord.
type BatchMessage struct {
	BatchID    uuid.UUID `json:"batchId" validate:"required"`
	ProducedAt time.Time `json:"producedAt"`
	Payload    string    `json:"payload" validate:"required"`
}

// RawRecord is one flat record as produced by the upstream source system,
// field names included. ACCOUNTNUMBER arrives as either an integer or a
// numeric string.
type RawRecord struct {
	CustomerID        string      `json:"CUSTOMERID" validate:"required"`
	AccountNumber     json.Number `json:"ACCOUNTNUMBER" validate:"required"`
	DateOpened        string      `json:"DATEOPENED" validate:"required"`
	AccountHolderName string      `json:"ACCOUNTHOLDERNAME" validate:"required"`
	EntityName        string      `json:"ENTITYNAME" validate:"required"`
	OfficeName        string      `json:"OFFICENAME" validate:"required"`
	Title3            string      `json:"TITLE3"`
	MajorAccountType  string      `json:"MAJORACCOUNTTYPE" validate:"required"`
	MinorAccountType  string      `json:"MINORACCOUNTTYPE" validate:"required"`
	AccountStatus     string      `json:"ACCOUNTSTATUS" validate:"required"`
	AvailableBalance  string      `json:"AVAILABLEBALANCE" validate:"required"`
	CurrentBalance    string      `json:"CURRENTBALANCE" validate:"required"`
	AddressLine1      string      `json:"ADDRESSLINE1"`
	AddressLine2      string      `json:"ADDRESSLINE2"`
	AddressLine3      string      `json:"ADDRESSLINE3"`
	City              string      `json:"CITY"`
	State             string      `json:"STATE"`
	Zip               string      `json:"ZIP"`
	Country           string      `json:"COUNTRY"`
}

// AccountRecord is the normalized account view of a raw record. The owner is
// still identified by its external customer id; the surrogate key is only
// resolvable after the customer phase commits.
type AccountRecord struct {
	OwnerExternalID  string
	AccountNumber    string
	DateOpened       time.Time
	MajorType        string
	MinorType        string
	Status           string
	AvailableBalance decimal.Decimal
	CurrentBalance   decimal.Decimal
}
