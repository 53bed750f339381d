// Package receipt renders sale receipts as PDF.
package receipt

import (
	"fmt"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"

	"pharmadesk/m/domain"
)

const ContentType = "application/pdf"

// Data is everything printed on a receipt. Patient is optional.
type Data struct {
	Organization *domain.Organization
	Branch       *domain.Branch
	Sale         *domain.Sale
	Patient      *domain.Patient
	Currency     string
}

// Render builds the receipt PDF.
func Render(d Data) ([]byte, error) {
	if d.Organization == nil || d.Sale == nil {
		return nil, fmt.Errorf("receipt needs an organization and a sale")
	}
	cfg := config.NewBuilder().
		WithLeftMargin(10).
		WithTopMargin(12).
		WithRightMargin(10).
		Build()
	m := maroto.New(cfg)

	header(m, d)
	m.AddRow(4, line.NewCol(12))
	lines(m, d)
	m.AddRow(4, line.NewCol(12))
	totals(m, d)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("unable to generate receipt: %w", err)
	}
	return doc.GetBytes(), nil
}

func header(m core.Maroto, d Data) {
	left := col.New(7).Add(
		text.New(d.Organization.Name, props.Text{Size: 14, Style: fontstyle.Bold, Align: align.Left}),
	)
	contact := d.Organization.Address
	if d.Branch != nil {
		contact = strings.TrimSpace(d.Branch.Name + "  " + d.Branch.Address)
	}
	if contact != "" {
		left.Add(text.New(contact, props.Text{Top: 7, Size: 8, Align: align.Left}))
	}
	right := col.New(5).Add(
		text.New("RECEIPT", props.Text{Size: 12, Style: fontstyle.Bold, Align: align.Right}),
		text.New("# "+d.Sale.Number, props.Text{Top: 6, Size: 9, Align: align.Right}),
		text.New(d.Sale.CreatedAt.Format("Jan 02, 2006 15:04"), props.Text{Top: 11, Size: 8, Align: align.Right}),
	)
	m.AddRow(20, left, right)

	if d.Patient != nil {
		who := d.Patient.Name
		if d.Patient.Phone != "" {
			who += "  " + d.Patient.Phone
		}
		m.AddRow(7, text.NewCol(12, "Patient: "+who, props.Text{Size: 9, Align: align.Left}))
	}
}

func lines(m core.Maroto, d Data) {
	bold := props.Text{Size: 9, Style: fontstyle.Bold}
	m.AddRow(7,
		text.NewCol(6, "Item", withAlign(bold, align.Left)),
		text.NewCol(2, "Qty", withAlign(bold, align.Center)),
		text.NewCol(2, "Price", withAlign(bold, align.Right)),
		text.NewCol(2, "Total", withAlign(bold, align.Right)),
	)
	plain := props.Text{Size: 9}
	for _, it := range d.Sale.Items {
		name := it.ItemName
		if it.Tier != domain.TierUnit {
			name = fmt.Sprintf("%s (%s of %d)", it.ItemName, it.Tier, it.UnitsPerPackage())
		}
		qty := fmt.Sprintf("%d", it.Quantity)
		if it.ReturnedQuantity > 0 {
			qty = fmt.Sprintf("%d (-%d)", it.Quantity, it.ReturnedQuantity)
		}
		price := it.Subtotal
		if it.Quantity > 0 {
			price = it.Subtotal.Div(decimal.NewFromInt(it.Quantity))
		}
		m.AddRow(6,
			text.NewCol(6, name, withAlign(plain, align.Left)),
			text.NewCol(2, qty, withAlign(plain, align.Center)),
			text.NewCol(2, amount(d.Currency, price), withAlign(plain, align.Right)),
			text.NewCol(2, amount(d.Currency, it.Subtotal), withAlign(plain, align.Right)),
		)
	}
}

func totals(m core.Maroto, d Data) {
	s := d.Sale
	rows := []struct {
		label string
		value decimal.Decimal
		show  bool
	}{
		{"Subtotal", s.Subtotal, true},
		{"Discount", s.Discount, s.Discount.IsPositive()},
		{"Total", s.Total, true},
		{"Paid", s.PaidAmount, true},
		{"Change", s.ChangeReturned, s.ChangeReturned.IsPositive()},
		{"Refunded", s.RefundedAmount, s.RefundedAmount.IsPositive()},
		{"Due", s.DueAmount, s.DueAmount.IsPositive()},
	}
	for _, r := range rows {
		if !r.show {
			continue
		}
		style := props.Text{Size: 9}
		if r.label == "Total" || r.label == "Due" {
			style.Style = fontstyle.Bold
		}
		m.AddRow(6,
			col.New(6),
			text.NewCol(4, r.label, withAlign(style, align.Right)),
			text.NewCol(2, amount(d.Currency, r.value), withAlign(style, align.Right)),
		)
	}
	if s.PaymentMethod != "" {
		m.AddRow(6, col.New(6), text.NewCol(6, "Paid by "+s.PaymentMethod, props.Text{Size: 8, Align: align.Right}))
	}
	m.AddRow(12, text.NewCol(12, "Thank you for your purchase", props.Text{Top: 5, Size: 8, Style: fontstyle.Italic, Align: align.Center}))
}

func withAlign(p props.Text, a align.Type) props.Text {
	p.Align = a
	return p
}

func amount(currency string, v decimal.Decimal) string {
	s := v.StringFixed(2)
	if currency == "" {
		return s
	}
	return strings.ToUpper(currency) + " " + s
}
