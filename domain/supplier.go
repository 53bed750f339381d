package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type Supplier struct {
	ID                   int64           `db:"id" json:"id"`
	OrganizationID       int64           `db:"organization_id" json:"organization_id"`
	Name                 string          `db:"name" json:"name"`
	Phone                string          `db:"phone" json:"phone"`
	Email                string          `db:"email" json:"email"`
	Address              string          `db:"address" json:"address"`
	LinkedOrganizationID *int64          `db:"linked_organization_id" json:"linked_organization_id,omitempty"`
	OpeningBalance       decimal.Decimal `db:"opening_balance" json:"opening_balance"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
}

// SupplierBalance summarises what is owed to a supplier.
type SupplierBalance struct {
	SupplierID     int64           `json:"supplier_id"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Purchased      decimal.Decimal `json:"purchased"`
	Losses         decimal.Decimal `json:"losses"`
	Paid           decimal.Decimal `json:"paid"`
	Due            decimal.Decimal `json:"due"`
	Credit         decimal.Decimal `json:"credit"`
	Balance        decimal.Decimal `json:"balance"`
}

// Ledger entry kinds.
const (
	LedgerOpening  = "opening_balance"
	LedgerPurchase = "purchase"
	LedgerLoss     = "loss"
	LedgerPayment  = "payment"
)

// LedgerEntry is one line of a supplier statement. Debit raises what is owed,
// credit lowers it.
type LedgerEntry struct {
	Date        time.Time       `json:"date"`
	Kind        string          `json:"kind"`
	ReferenceID int64           `json:"reference_id,omitempty"`
	Description string          `json:"description"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Balance     decimal.Decimal `json:"balance"`
}

var ledgerKindOrder = map[string]int{LedgerOpening: 0, LedgerPurchase: 1, LedgerLoss: 2, LedgerPayment: 3}

// BuildLedger orders entries chronologically and fills in the running
// balance, starting from the supplier's opening balance.
func BuildLedger(s *Supplier, entries []LedgerEntry) []LedgerEntry {
	out := make([]LedgerEntry, 0, len(entries)+1)
	if !s.OpeningBalance.IsZero() {
		opening := LedgerEntry{Date: s.CreatedAt, Kind: LedgerOpening, Description: "Opening balance"}
		if s.OpeningBalance.IsPositive() {
			opening.Debit = s.OpeningBalance
		} else {
			opening.Credit = s.OpeningBalance.Neg()
		}
		out = append(out, opening)
	}
	out = append(out, entries...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return ledgerKindOrder[out[i].Kind] < ledgerKindOrder[out[j].Kind]
	})
	running := decimal.Zero
	for i := range out {
		running = running.Add(out[i].Debit).Sub(out[i].Credit)
		out[i].Balance = RoundMoney(running)
	}
	return out
}

// ComputeSupplierBalance derives the balance from its components. Due is the
// sum of purchase dues, credit the unallocated payment money.
func ComputeSupplierBalance(s *Supplier, purchased, losses, paid, due, credit decimal.Decimal) SupplierBalance {
	return SupplierBalance{
		SupplierID:     s.ID,
		OpeningBalance: s.OpeningBalance,
		Purchased:      RoundMoney(purchased),
		Losses:         RoundMoney(losses),
		Paid:           RoundMoney(paid),
		Due:            RoundMoney(due),
		Credit:         RoundMoney(credit),
		Balance:        RoundMoney(s.OpeningBalance.Add(purchased).Sub(losses).Sub(paid)),
	}
}
