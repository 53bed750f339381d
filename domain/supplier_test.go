package domain

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildLedger(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }
	s := &Supplier{ID: 1, OpeningBalance: dec("100"), CreatedAt: day(1)}
	entries := []LedgerEntry{
		{Date: day(5), Kind: LedgerPayment, ReferenceID: 1, Credit: dec("80")},
		{Date: day(3), Kind: LedgerPurchase, ReferenceID: 10, Debit: dec("250")},
		{Date: day(5), Kind: LedgerPurchase, ReferenceID: 11, Debit: dec("50")},
		{Date: day(6), Kind: LedgerLoss, ReferenceID: 10, Credit: dec("20")},
	}

	got := BuildLedger(s, entries)
	require.Len(t, got, 5)

	type row struct {
		Kind    string
		Ref     int64
		Balance string
	}
	var rows []row
	for _, e := range got {
		rows = append(rows, row{e.Kind, e.ReferenceID, e.Balance.StringFixed(2)})
	}
	want := []row{
		{LedgerOpening, 0, "100.00"},
		{LedgerPurchase, 10, "350.00"},
		{LedgerPurchase, 11, "400.00"},
		{LedgerPayment, 1, "320.00"},
		{LedgerLoss, 10, "300.00"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("ledger mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildLedgerNegativeOpening(t *testing.T) {
	s := &Supplier{OpeningBalance: dec("-30"), CreatedAt: time.Now()}
	got := BuildLedger(s, nil)
	require.Len(t, got, 1)
	assert.Equal(t, "30.00", got[0].Credit.StringFixed(2))
	assert.Equal(t, "-30.00", got[0].Balance.StringFixed(2))

	s.OpeningBalance = dec("0")
	assert.Empty(t, BuildLedger(s, nil))
}

func TestComputeSupplierBalance(t *testing.T) {
	s := &Supplier{ID: 4, OpeningBalance: dec("10")}
	b := ComputeSupplierBalance(s, dec("500"), dec("25"), dec("600"), dec("0"), dec("115"))
	assert.Equal(t, "-115.00", b.Balance.StringFixed(2))
	assert.Equal(t, "115.00", b.Credit.StringFixed(2))
	assert.Equal(t, int64(4), b.SupplierID)
}
