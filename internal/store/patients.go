package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"pharmadesk/m/domain"
)

const patientColumns = `id, organization_id, name, phone, gender, date_of_birth, address, notes, created_at`

// ListPatients returns patients by name, optionally matching name or phone.
func (s *Store) ListPatients(ctx context.Context, orgID int64, query string, page Page) ([]domain.Patient, error) {
	clauses := []string{"organization_id = ?"}
	args := []any{orgID}
	if q := strings.TrimSpace(query); q != "" {
		like := likePattern(q)
		clauses = append(clauses, "(LOWER(name) LIKE ? OR phone LIKE ?)")
		args = append(args, like, like)
	}
	patients := []domain.Patient{}
	if err := selectAll(ctx, s.db, &patients, `SELECT `+patientColumns+` FROM patients`+where(clauses)+` ORDER BY name, id`+page.clause(), args...); err != nil {
		return nil, fmt.Errorf("unable to list patients: %w", err)
	}
	return patients, nil
}

// GetPatient loads a patient of the organization.
func (s *Store) GetPatient(ctx context.Context, orgID, id int64) (*domain.Patient, error) {
	return getPatient(ctx, s.db, orgID, id)
}

func getPatient(ctx context.Context, q sqlx.ExtContext, orgID, id int64) (*domain.Patient, error) {
	var p domain.Patient
	if err := get(ctx, q, &p, `SELECT `+patientColumns+` FROM patients WHERE id = ? AND organization_id = ?`, id, orgID); err != nil {
		return nil, loadErr(err, "patient")
	}
	return &p, nil
}

func validatePatient(p *domain.Patient) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return domain.Errorf(domain.CodeInvalidInput, "name is required")
	}
	p.Gender = strings.ToLower(strings.TrimSpace(p.Gender))
	if !domain.ValidGender(p.Gender) {
		return domain.Errorf(domain.CodeInvalidInput, "gender must be male, female or other")
	}
	if p.DateOfBirth != nil {
		d := DateOf(*p.DateOfBirth)
		p.DateOfBirth = &d
	}
	return nil
}

// CreatePatient registers a patient.
func (s *Store) CreatePatient(ctx context.Context, p *domain.Patient) (*domain.Patient, error) {
	if err := validatePatient(p); err != nil {
		return nil, err
	}
	p.CreatedAt = s.Now()
	var err error
	p.ID, err = insert(ctx, s.db, `INSERT INTO patients (organization_id, name, phone, gender, date_of_birth, address, notes, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.OrganizationID, p.Name, p.Phone, p.Gender, p.DateOfBirth, p.Address, p.Notes, p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("unable to create patient: %w", err)
	}
	return p, nil
}

// UpdatePatient saves a patient's details.
func (s *Store) UpdatePatient(ctx context.Context, p *domain.Patient) (*domain.Patient, error) {
	if err := validatePatient(p); err != nil {
		return nil, err
	}
	res, err := exec(ctx, s.db, `UPDATE patients SET name = ?, phone = ?, gender = ?, date_of_birth = ?, address = ?, notes = ? WHERE id = ? AND organization_id = ?`,
		p.Name, p.Phone, p.Gender, p.DateOfBirth, p.Address, p.Notes, p.ID, p.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("unable to update patient: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.Errorf(domain.CodeNotFound, "patient not found")
	}
	return s.GetPatient(ctx, p.OrganizationID, p.ID)
}

// DeletePatient removes a patient who has never bought anything.
func (s *Store) DeletePatient(ctx context.Context, orgID, id int64) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := getPatient(ctx, tx, orgID, id); err != nil {
			return err
		}
		n, err := count(ctx, tx, `SELECT COUNT(*) FROM sales WHERE patient_id = ?`, id)
		if err != nil {
			return fmt.Errorf("unable to check patient sales: %w", err)
		}
		if n > 0 {
			return domain.Errorf(domain.CodeInvalidState, "patient has %d sales and cannot be deleted", n)
		}
		if _, err := exec(ctx, tx, `DELETE FROM patients WHERE id = ?`, id); err != nil {
			return fmt.Errorf("unable to delete patient: %w", err)
		}
		return nil
	})
}

// PatientSales returns the patient's purchase history.
func (s *Store) PatientSales(ctx context.Context, orgID, id int64, page Page) ([]domain.Sale, error) {
	if _, err := s.GetPatient(ctx, orgID, id); err != nil {
		return nil, err
	}
	return s.ListSales(ctx, orgID, SaleFilter{PatientID: &id, Page: page})
}
