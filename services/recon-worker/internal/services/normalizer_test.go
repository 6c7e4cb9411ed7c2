package services

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ledgerline/recon-worker/pkg"
	"github.com/ledgerline/recon-worker/pkg/views"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRawRecord() views.RawRecord {
	return views.RawRecord{
		CustomerID:        "CUST00000001",
		AccountNumber:     json.Number("1000000001"),
		DateOpened:        "2019-04-30",
		AccountHolderName: "Ada Lovelace",
		EntityName:        "Ledgerline Trust",
		OfficeName:        "Office 3",
		Title3:            "Account Holder",
		MajorAccountType:  "DDA",
		MinorAccountType:  "CHK",
		AccountStatus:     "OPEN",
		AvailableBalance:  "1250.75",
		CurrentBalance:    "1300.00",
		AddressLine1:      "42 Main St",
		City:              "Toronto",
		State:             "ON",
		Zip:               "M5V 2T6",
		Country:           "CA",
	}
}

func assertValidationError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var appErr pkg.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, pkg.ErrValidationCode.Code, appErr.Code.Code)
}

func TestNormalize_ValidRecord(t *testing.T) {
	n := NewNormalizer()

	cust, acct, err := n.Normalize(validRawRecord())
	require.NoError(t, err)

	assert.Equal(t, "CUST00000001", cust.ExternalID)
	assert.Equal(t, "Ada Lovelace", cust.HolderName)
	assert.Equal(t, "Account Holder", cust.Title)
	assert.Equal(t, "CA", cust.Country)

	assert.Equal(t, "CUST00000001", acct.OwnerExternalID)
	assert.Equal(t, "1000000001", acct.AccountNumber)
	assert.Equal(t, time.Date(2019, 4, 30, 0, 0, 0, 0, time.UTC), acct.DateOpened)
	assert.True(t, acct.AvailableBalance.Equal(decimal.RequireFromString("1250.75")))
	assert.True(t, acct.CurrentBalance.Equal(decimal.RequireFromString("1300.00")))
}

func TestNormalize_CanonicalizesAccountNumber(t *testing.T) {
	tests := []struct {
		name string
		raw  json.Number
		want string
	}{
		{name: "integer form", raw: json.Number("1000000001"), want: "1000000001"},
		{name: "zero padded string form", raw: json.Number("0001000000001"), want: "1000000001"},
	}
	n := NewNormalizer()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := validRawRecord()
			rec.AccountNumber = tc.raw
			_, acct, err := n.Normalize(rec)
			require.NoError(t, err)
			assert.Equal(t, tc.want, acct.AccountNumber)
		})
	}
}

func TestNormalize_RejectsBadFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*views.RawRecord)
	}{
		{name: "missing customer id", mutate: func(r *views.RawRecord) { r.CustomerID = "" }},
		{name: "missing balance", mutate: func(r *views.RawRecord) { r.AvailableBalance = "" }},
		{name: "non numeric account number", mutate: func(r *views.RawRecord) { r.AccountNumber = json.Number("12-AB") }},
		{name: "bad date", mutate: func(r *views.RawRecord) { r.DateOpened = "30/04/2019" }},
		{name: "non numeric available balance", mutate: func(r *views.RawRecord) { r.AvailableBalance = "12,50" }},
		{name: "non numeric current balance", mutate: func(r *views.RawRecord) { r.CurrentBalance = "abc" }},
	}
	n := NewNormalizer()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := validRawRecord()
			tc.mutate(&rec)
			_, _, err := n.Normalize(rec)
			assertValidationError(t, err)
		})
	}
}

func TestNormalize_OptionalFieldsMayBeEmpty(t *testing.T) {
	n := NewNormalizer()
	rec := validRawRecord()
	rec.Title3 = ""
	rec.AddressLine1 = ""
	rec.City = ""
	rec.State = ""
	rec.Zip = ""
	rec.Country = ""

	cust, _, err := n.Normalize(rec)
	require.NoError(t, err)
	assert.Empty(t, cust.Title)
	assert.Empty(t, cust.City)
}
