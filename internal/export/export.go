// Package export writes spreadsheets for download and reads inventory
// spreadsheets for import.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"pharmadesk/m/domain"
)

// ContentType is the MIME type of the generated workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const dateLayout = "2006-01-02"

// sheet writes one table into a fresh workbook.
type sheet struct {
	f    *excelize.File
	name string
	row  int
}

func newSheet(name string, headers []string) (*sheet, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", name); err != nil {
		f.Close()
		return nil, fmt.Errorf("unable to name sheet: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"2F6F4E"}, Pattern: 1},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("unable to create header style: %w", err)
	}
	s := &sheet{f: f, name: name}
	if err := s.add(toAny(headers)...); err != nil {
		f.Close()
		return nil, err
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(name, "A1", last, headerStyle); err != nil {
		f.Close()
		return nil, fmt.Errorf("unable to style header: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.SetColWidth(name, "A", lastCol, 16)
	return s, nil
}

func (s *sheet) add(values ...any) error {
	s.row++
	if len(values) == 0 {
		return nil
	}
	cell, _ := excelize.CoordinatesToCellName(1, s.row)
	if err := s.f.SetSheetRow(s.name, cell, &values); err != nil {
		return fmt.Errorf("unable to write row %d: %w", s.row, err)
	}
	return nil
}

func (s *sheet) write(w io.Writer) error {
	defer s.f.Close()
	if err := s.f.Write(w); err != nil {
		return fmt.Errorf("unable to write workbook: %w", err)
	}
	return nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// money keeps the cell numeric.
func money(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

func date(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

// InventoryHeaders are the columns of the inventory export. The import reads
// the same layout.
var InventoryHeaders = []string{"Name", "Generic Name", "SKU", "Batch No", "Expiry Date", "Quantity",
	"Cost Price", "Unit Price", "Units Per Strip", "Units Per Box", "Reorder Level"}

// Inventory writes the items as a workbook.
func Inventory(w io.Writer, items []domain.InventoryItem) error {
	s, err := newSheet("Inventory", InventoryHeaders)
	if err != nil {
		return err
	}
	for _, it := range items {
		if err := s.add(it.Name, it.GenericName, it.SKU, it.BatchNo, date(it.ExpiryDate), it.Quantity,
			money(it.CostPrice), money(it.UnitPrice), it.UnitsPerStrip, it.UnitsPerBox, it.ReorderLevel); err != nil {
			s.f.Close()
			return err
		}
	}
	return s.write(w)
}

// SupplierStatement writes the supplier ledger with its running balance.
func SupplierStatement(w io.Writer, sup *domain.Supplier, entries []domain.LedgerEntry) error {
	s, err := newSheet("Statement", []string{"Date", "Kind", "Description", "Debit", "Credit", "Balance"})
	if err != nil {
		return err
	}
	for _, e := range entries {
		d := e.Date
		if err := s.add(date(&d), e.Kind, e.Description, money(e.Debit), money(e.Credit), money(e.Balance)); err != nil {
			s.f.Close()
			return err
		}
	}
	closing := decimal.Zero
	if len(entries) > 0 {
		closing = entries[len(entries)-1].Balance
	}
	if err := s.add(); err != nil {
		s.f.Close()
		return err
	}
	if err := s.add("", "", "Closing balance for "+sup.Name, "", "", money(closing)); err != nil {
		s.f.Close()
		return err
	}
	return s.write(w)
}

// Expenses writes the expenses followed by per-category totals.
func Expenses(w io.Writer, expenses []domain.Expense, summary domain.ExpenseSummary) error {
	s, err := newSheet("Expenses", []string{"Date", "Category", "Payee", "Note", "Amount"})
	if err != nil {
		return err
	}
	for _, e := range expenses {
		d := e.ExpenseDate
		if err := s.add(date(&d), e.CategoryName, e.Payee, e.Note, money(e.Amount)); err != nil {
			s.f.Close()
			return err
		}
	}
	if err := s.add(); err != nil {
		s.f.Close()
		return err
	}
	for _, c := range summary.Categories {
		if err := s.add("", c.CategoryName, "", fmt.Sprintf("%d expenses", c.Count), money(c.Total)); err != nil {
			s.f.Close()
			return err
		}
	}
	if err := s.add("", "Total", "", "", money(summary.Total)); err != nil {
		s.f.Close()
		return err
	}
	return s.write(w)
}
