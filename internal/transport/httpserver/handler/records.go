package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	continuitydomain "github.com/saulpulido52/litam-sub010/internal/domain/continuity"
	"github.com/saulpulido52/litam-sub010/internal/transport/httpserver/middleware"
)

type createRecordRequest struct {
	PatientID       string     `json:"patient_id" validate:"required,uuid4"`
	RecordDate      *time.Time `json:"record_date"`
	ClinicalContent string     `json:"clinical_content" validate:"required"`
}

func (h *Handlers) CreateRecord(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireRole(w, r, middleware.RoleProfessional)
	if !ok {
		return
	}

	var req createRecordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	recordDate := time.Time{}
	if req.RecordDate != nil {
		recordDate = *req.RecordDate
	}

	record, err := h.Records.CreateRecord(r.Context(), identity.UserID, req.PatientID, recordDate, req.ClinicalContent)
	if err != nil {
		if errors.Is(err, continuitydomain.ErrNotCurrentProfessional) {
			h.log.BusinessError("records.create: not current professional", err, "professional_id", identity.UserID, "patient_id", req.PatientID)
			writeError(w, http.StatusForbidden, "not_current_professional", "caller does not hold the active relation for this patient")
			return
		}
		h.log.InternalError("records.create: create failed", err, "professional_id", identity.UserID)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

func (h *Handlers) ListPatientRecords(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_identity", "missing identity")
		return
	}
	patientID := chi.URLParam(r, "id")

	// Patients read their own chart; professionals read charts they
	// currently hold.
	switch identity.Role {
	case middleware.RolePatient:
		if patientID != identity.UserID {
			writeError(w, http.StatusForbidden, "not_own_account", "patients may only read their own records")
			return
		}
	case middleware.RoleProfessional:
		holds, err := h.Relations.HasActiveRelation(r.Context(), patientID, identity.UserID)
		if err != nil {
			h.log.InternalError("records.list: relation check failed", err, "patient_id", patientID)
			writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
			return
		}
		if !holds {
			writeError(w, http.StatusForbidden, "not_current_professional", "caller does not hold the active relation for this patient")
			return
		}
	default:
		writeError(w, http.StatusForbidden, "wrong_role", "operation not allowed for this role")
		return
	}

	records, err := h.Records.ListPatientRecords(r.Context(), patientID)
	if err != nil {
		h.log.InternalError("records.list: list failed", err, "patient_id", patientID)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"items": records})
}
