package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	relationshipdomain "github.com/saulpulido52/litam-sub010/internal/domain/relationship"
	"github.com/saulpulido52/litam-sub010/internal/transport/httpserver/middleware"
)

type createRelationRequest struct {
	ProfessionalID string `json:"professional_id" validate:"required,uuid4"`
}

type respondRelationRequest struct {
	Accept *bool `json:"accept" validate:"required"`
}

type changeProfessionalRequest struct {
	NewProfessionalID string `json:"new_professional_id" validate:"required,uuid4"`
	Reason            string `json:"reason" validate:"omitempty,max=500"`
}

func (h *Handlers) CreateRelation(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireRole(w, r, middleware.RolePatient)
	if !ok {
		return
	}

	var req createRelationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	relation, err := h.Relations.RequestRelation(r.Context(), identity.UserID, req.ProfessionalID)
	if err != nil {
		switch {
		case errors.Is(err, relationshipdomain.ErrActiveRelationExists):
			h.log.BusinessError("relations.create: active relation exists", err, "patient_id", identity.UserID)
			writeError(w, http.StatusConflict, "active_relation_exists", "patient already has an active professional")
		case errors.Is(err, relationshipdomain.ErrAlreadyRequested):
			h.log.BusinessError("relations.create: already requested", err, "patient_id", identity.UserID)
			writeError(w, http.StatusConflict, "already_requested", "a pending request to this professional already exists")
		default:
			h.log.InternalError("relations.create: request failed", err, "patient_id", identity.UserID)
			writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, relation)
}

func (h *Handlers) RespondRelation(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireRole(w, r, middleware.RoleProfessional)
	if !ok {
		return
	}
	relationID := chi.URLParam(r, "id")

	var req respondRelationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	relation, err := h.Relations.RespondToRequest(r.Context(), relationID, identity.UserID, *req.Accept)
	if err != nil {
		switch {
		case errors.Is(err, relationshipdomain.ErrRelationNotFound):
			writeError(w, http.StatusNotFound, "relation_not_found", "relation not found")
		case errors.Is(err, relationshipdomain.ErrNotTargetProfessional):
			h.log.BusinessError("relations.respond: wrong professional", err, "relation_id", relationID, "caller_id", identity.UserID)
			writeError(w, http.StatusForbidden, "not_target_professional", "request is addressed to another professional")
		case errors.Is(err, relationshipdomain.ErrRelationNotPending):
			writeError(w, http.StatusConflict, "relation_not_pending", "relation has already been responded to")
		case errors.Is(err, relationshipdomain.ErrActiveRelationExists):
			writeError(w, http.StatusConflict, "active_relation_exists", "patient already has an active professional")
		default:
			h.log.InternalError("relations.respond: respond failed", err, "relation_id", relationID)
			writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, relation)
}

func (h *Handlers) MyActiveProfessional(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireRole(w, r, middleware.RolePatient)
	if !ok {
		return
	}

	relation, err := h.Relations.ActiveProfessional(r.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, relationshipdomain.ErrNoActiveRelation) {
			writeError(w, http.StatusNotFound, "no_active_relation", "no active professional")
			return
		}
		h.log.InternalError("relations.active: lookup failed", err, "patient_id", identity.UserID)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, relation)
}

func (h *Handlers) ListMyRelations(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireRole(w, r, middleware.RolePatient)
	if !ok {
		return
	}

	relations, err := h.Relations.ListForPatient(r.Context(), identity.UserID)
	if err != nil {
		h.log.InternalError("relations.list: list failed", err, "patient_id", identity.UserID)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"items": relations})
}

func (h *Handlers) ListPendingRequests(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireRole(w, r, middleware.RoleProfessional)
	if !ok {
		return
	}

	relations, err := h.Relations.ListPendingForProfessional(r.Context(), identity.UserID)
	if err != nil {
		h.log.InternalError("relations.pending: list failed", err, "professional_id", identity.UserID)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"items": relations})
}

func (h *Handlers) ChangeProfessional(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireRole(w, r, middleware.RolePatient)
	if !ok {
		return
	}
	patientID := chi.URLParam(r, "id")
	if patientID != identity.UserID {
		writeError(w, http.StatusForbidden, "not_own_account", "patients may only switch their own professional")
		return
	}

	var req changeProfessionalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := h.Relations.ChangeProfessional(r.Context(), patientID, req.NewProfessionalID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, relationshipdomain.ErrNoActiveRelation):
			h.log.BusinessError("relations.change: no active relation", err, "patient_id", patientID)
			writeError(w, http.StatusNotFound, "no_active_relation", "no active professional to switch from")
		case errors.Is(err, relationshipdomain.ErrSameProfessional):
			writeError(w, http.StatusConflict, "same_professional", "new professional equals current professional")
		case errors.Is(err, relationshipdomain.ErrActiveRelationExists), errors.Is(err, relationshipdomain.ErrConcurrencyConflict):
			h.log.BusinessError("relations.change: concurrent switch", err, "patient_id", patientID)
			writeError(w, http.StatusConflict, "concurrent_change", "another professional change is in progress")
		default:
			h.log.InternalError("relations.change: change failed", err, "patient_id", patientID)
			writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func requireRole(w http.ResponseWriter, r *http.Request, role string) (middleware.Identity, bool) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_identity", "missing identity")
		return middleware.Identity{}, false
	}
	if identity.Role != role {
		writeError(w, http.StatusForbidden, "wrong_role", "operation not allowed for this role")
		return middleware.Identity{}, false
	}
	return identity, true
}
