package records

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/gobd-ledger/internal/shared"
)

func TestKindDocumentType(t *testing.T) {
	assert.Equal(t, "EI", KindIncome.DocumentType())
	assert.Equal(t, "EA", KindExpense.DocumentType())
	assert.True(t, KindExpense.Valid())
	assert.False(t, Kind("transfer").Valid())
}

func TestInputNormalize(t *testing.T) {
	berlin := time.FixedZone("CET", 3600)
	in := Input{
		Kind:         KindExpense,
		Date:         time.Date(2025, 4, 30, 23, 30, 0, 0, berlin),
		AmountCents:  1299,
		Currency:     " usd ",
		Description:  "  office chair ",
		Counterparty: " Möbel GmbH ",
	}
	got, err := in.Normalize()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC), got.Date)
	assert.Equal(t, "USD", got.Currency)
	assert.Equal(t, "office chair", got.Description)
	assert.Equal(t, "Möbel GmbH", got.Counterparty)

	in.Currency = ""
	got, err = in.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "EUR", got.Currency)
}

func TestInputNormalizeRejects(t *testing.T) {
	valid := Input{Kind: KindIncome, Date: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}

	noKind := valid
	noKind.Kind = ""
	_, err := noKind.Normalize()
	assert.ErrorIs(t, err, shared.ErrValidation)

	noDate := valid
	noDate.Date = time.Time{}
	_, err = noDate.Normalize()
	assert.ErrorIs(t, err, ErrInvalidRecord)

	badCurrency := valid
	badCurrency.Currency = "EURO"
	_, err = badCurrency.Normalize()
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestApplyKeepsIdentity(t *testing.T) {
	now := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	rec := Record{Kind: KindIncome, ReferenceNumber: "EI-2025-004", CreatedAt: now}
	updated := rec.Apply(Input{Kind: KindExpense, Date: now, AmountCents: 5, Currency: "EUR", Description: "fee"})

	assert.Equal(t, KindIncome, updated.Kind)
	assert.Equal(t, "EI-2025-004", updated.ReferenceNumber)
	assert.Equal(t, int64(5), updated.AmountCents)
	assert.Equal(t, "fee", updated.Description)
	assert.False(t, updated.Deleted())
}
