package services

import (
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ledgerline/recon-worker/pkg"
	"github.com/ledgerline/recon-worker/pkg/models"
	"github.com/ledgerline/recon-worker/pkg/views"
	"github.com/shopspring/decimal"
)

const dateOpenedLayout = "2006-01-02"

// Normalizer maps one raw upstream record into its Customer and Account
// views, coercing types on the way. It has no side effects; every failure is
// a VALIDATION_FAILED AppError so callers can tell it apart from store errors.
type Normalizer struct {
	validate *validator.Validate
}

func NewNormalizer() *Normalizer {
	return &Normalizer{validate: validator.New()}
}

func (n *Normalizer) Normalize(rec views.RawRecord) (models.CustomerAttrs, views.AccountRecord, error) {
	var cust models.CustomerAttrs
	var acct views.AccountRecord

	if err := n.validate.Struct(&rec); err != nil {
		return cust, acct, pkg.NewAppError(pkg.ErrValidationCode, "record is missing required fields", err)
	}

	number, err := canonicalAccountNumber(rec.AccountNumber.String())
	if err != nil {
		return cust, acct, pkg.NewAppError(pkg.ErrValidationCode,
			fmt.Sprintf("ACCOUNTNUMBER %q is not numeric", rec.AccountNumber.String()), err)
	}

	opened, err := time.Parse(dateOpenedLayout, rec.DateOpened)
	if err != nil {
		return cust, acct, pkg.NewAppError(pkg.ErrValidationCode,
			fmt.Sprintf("DATEOPENED %q does not match %s", rec.DateOpened, dateOpenedLayout), err)
	}

	available, err := decimal.NewFromString(rec.AvailableBalance)
	if err != nil {
		return cust, acct, pkg.NewAppError(pkg.ErrValidationCode,
			fmt.Sprintf("AVAILABLEBALANCE %q is not numeric", rec.AvailableBalance), err)
	}
	current, err := decimal.NewFromString(rec.CurrentBalance)
	if err != nil {
		return cust, acct, pkg.NewAppError(pkg.ErrValidationCode,
			fmt.Sprintf("CURRENTBALANCE %q is not numeric", rec.CurrentBalance), err)
	}

	cust = models.CustomerAttrs{
		ExternalID:   rec.CustomerID,
		HolderName:   rec.AccountHolderName,
		EntityName:   rec.EntityName,
		OfficeName:   rec.OfficeName,
		Title:        rec.Title3,
		AddressLine1: rec.AddressLine1,
		AddressLine2: rec.AddressLine2,
		AddressLine3: rec.AddressLine3,
		City:         rec.City,
		State:        rec.State,
		Zip:          rec.Zip,
		Country:      rec.Country,
	}
	acct = views.AccountRecord{
		OwnerExternalID:  rec.CustomerID,
		AccountNumber:    number,
		DateOpened:       opened,
		MajorType:        rec.MajorAccountType,
		MinorType:        rec.MinorAccountType,
		Status:           rec.AccountStatus,
		AvailableBalance: available,
		CurrentBalance:   current,
	}
	return cust, acct, nil
}

// canonicalAccountNumber normalizes integer and numeric-string inputs to one
// canonical form, so "0001000000001" and 1000000001 cannot create two rows.
func canonicalAccountNumber(raw string) (string, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(v, 10), nil
}
