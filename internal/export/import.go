package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"pharmadesk/m/internal/store"
)

// MaxImportRows bounds a single inventory import.
const MaxImportRows = 5000

// ParseInventory reads the first sheet of an inventory workbook. Columns are
// matched by header name, case-insensitively, so the export can be edited and
// uploaded again. Rows that cannot be parsed carry an error instead of failing
// the whole file.
func ParseInventory(r io.Reader) ([]store.ImportRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("unable to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("unable to read sheet: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("file must have a header row and at least one data row")
	}
	if len(rows)-1 > MaxImportRows {
		return nil, fmt.Errorf("file has %d rows, the limit is %d", len(rows)-1, MaxImportRows)
	}

	columns := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		columns[normalizeHeader(h)] = i
	}
	if _, ok := columns["name"]; !ok {
		return nil, fmt.Errorf("missing required column Name")
	}

	out := make([]store.ImportRow, 0, len(rows)-1)
	for i, cells := range rows[1:] {
		line := i + 2
		get := func(name string) string {
			idx, ok := columns[name]
			if !ok || idx >= len(cells) {
				return ""
			}
			return strings.TrimSpace(cells[idx])
		}
		if blank(cells) {
			continue
		}
		out = append(out, parseRow(line, get))
	}
	return out, nil
}

func parseRow(line int, get func(string) string) store.ImportRow {
	row := store.ImportRow{
		Line:        line,
		Name:        get("name"),
		GenericName: get("generic_name"),
		SKU:         get("sku"),
		BatchNo:     get("batch_no"),
	}
	fail := func(format string, args ...any) store.ImportRow {
		row.Err = fmt.Sprintf(format, args...)
		return row
	}
	if row.Name == "" {
		return fail("name is required")
	}

	var err error
	if row.Quantity, err = intCell(get("quantity")); err != nil {
		return fail("quantity %q is not a whole number", get("quantity"))
	}
	if row.UnitsPerStrip, err = intCell(get("units_per_strip")); err != nil {
		return fail("units per strip %q is not a whole number", get("units_per_strip"))
	}
	if row.UnitsPerBox, err = intCell(get("units_per_box")); err != nil {
		return fail("units per box %q is not a whole number", get("units_per_box"))
	}
	if row.ReorderLevel, err = intCell(get("reorder_level")); err != nil {
		return fail("reorder level %q is not a whole number", get("reorder_level"))
	}
	if row.CostPrice, err = moneyCell(get("cost_price")); err != nil {
		return fail("cost price %q is not a number", get("cost_price"))
	}
	if row.UnitPrice, err = moneyCell(get("unit_price")); err != nil {
		return fail("unit price %q is not a number", get("unit_price"))
	}
	if v := get("expiry_date"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return fail("expiry date %q must look like 2026-12-31", v)
		}
		row.ExpiryDate = &t
	}
	return row
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimSuffix(h, " *")
	return strings.ReplaceAll(h, " ", "_")
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func intCell(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func moneyCell(v string) (decimal.Decimal, error) {
	if v == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(v)
}
