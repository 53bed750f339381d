package api

import (
	"net/http"
	"strings"

	"pharmadesk/m/domain"
)

// Patient handlers

type patientRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Phone       string `json:"phone" validate:"max=50"`
	Gender      string `json:"gender" validate:"omitempty,oneof=male female other"`
	DateOfBirth *date  `json:"date_of_birth"`
	Address     string `json:"address" validate:"max=500"`
	Notes       string `json:"notes" validate:"max=2000"`
}

func (req patientRequest) patient(orgID int64) *domain.Patient {
	return &domain.Patient{
		OrganizationID: orgID,
		Name:           strings.TrimSpace(req.Name),
		Phone:          strings.TrimSpace(req.Phone),
		Gender:         req.Gender,
		DateOfBirth:    req.DateOfBirth.ptr(),
		Address:        req.Address,
		Notes:          req.Notes,
	}
}

func (h *Handler) listPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := h.store.ListPatients(r.Context(), principalFrom(r).user.OrganizationID,
		r.URL.Query().Get("query"), page(r))
	if err != nil {
		h.respondStoreError(w, r, err, "unable to list patients")
		return
	}
	respondJSON(w, http.StatusOK, patients)
}

func (h *Handler) getPatient(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	patient, err := h.store.GetPatient(r.Context(), principalFrom(r).user.OrganizationID, id)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to load patient")
		return
	}
	respondJSON(w, http.StatusOK, patient)
}

func (h *Handler) patientSales(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	sales, err := h.store.PatientSales(r.Context(), principalFrom(r).user.OrganizationID, id, page(r))
	if err != nil {
		h.respondStoreError(w, r, err, "unable to load patient history")
		return
	}
	respondJSON(w, http.StatusOK, sales)
}

func (h *Handler) createPatient(w http.ResponseWriter, r *http.Request) {
	var req patientRequest
	if !h.decode(w, r, &req) {
		return
	}
	patient, err := h.store.CreatePatient(r.Context(), req.patient(principalFrom(r).user.OrganizationID))
	if err != nil {
		h.respondStoreError(w, r, err, "unable to create patient")
		return
	}
	respondJSON(w, http.StatusCreated, patient)
}

func (h *Handler) updatePatient(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req patientRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := req.patient(principalFrom(r).user.OrganizationID)
	in.ID = id
	patient, err := h.store.UpdatePatient(r.Context(), in)
	if err != nil {
		h.respondStoreError(w, r, err, "unable to update patient")
		return
	}
	respondJSON(w, http.StatusOK, patient)
}

func (h *Handler) deletePatient(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeletePatient(r.Context(), principalFrom(r).user.OrganizationID, id); err != nil {
		h.respondStoreError(w, r, err, "unable to delete patient")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
