package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Catalog CSV columns.
const (
	colBrandID      = 0
	colBrandName    = 1
	colType         = 2
	colGeneric      = 5
	colManufacturer = 7
	minColumns      = 9
)

// LoadMedicinesFile ingests the catalog CSV at path.
func LoadMedicinesFile(ctx context.Context, db *sqlx.DB, path string, log *zap.Logger) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("unable to open medicine catalog %s: %w", path, err)
	}
	defer file.Close()
	return LoadMedicines(ctx, db, file, log)
}

// LoadMedicines ingests catalog rows into the medicines table, ignoring
// brands that are already present. It returns the number of rows inserted.
func LoadMedicines(ctx context.Context, db *sqlx.DB, r io.Reader, log *zap.Logger) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	// Skip header
	if _, err := reader.Read(); err != nil {
		return 0, fmt.Errorf("unable to read medicine header: %w", err)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("unable to start medicine transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`INSERT INTO medicines (brand_id, brand_name, type, generic_name, manufacturer)
		VALUES (?, ?, ?, ?, ?) ON CONFLICT (brand_id) DO NOTHING`))
	if err != nil {
		return 0, fmt.Errorf("unable to prepare medicine insert: %w", err)
	}
	defer stmt.Close()

	rows, line := 0, 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			log.Warn("skipping unreadable medicine row", zap.Int("line", line), zap.Error(err))
			continue
		}
		if len(record) < minColumns {
			continue
		}
		brandName := strings.TrimSpace(record[colBrandName])
		if brandName == "" {
			continue
		}
		brandID, err := strconv.ParseInt(strings.TrimSpace(record[colBrandID]), 10, 64)
		if err != nil {
			log.Debug("skipping medicine without numeric brand id", zap.Int("line", line), zap.String("brand", brandName))
			continue
		}

		res, err := stmt.ExecContext(ctx, brandID, brandName,
			strings.TrimSpace(record[colType]),
			strings.TrimSpace(record[colGeneric]),
			strings.TrimSpace(record[colManufacturer]))
		if err != nil {
			return rows, fmt.Errorf("unable to insert medicine %s: %w", brandName, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			rows++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("unable to commit medicine seed: %w", err)
	}
	log.Info("seeded medicine catalog", zap.Int("rows", rows))
	return rows, nil
}
