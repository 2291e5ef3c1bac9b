package relationship

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/saulpulido52/litam-sub010/internal/domain/continuity"
)

// UnitOfWork runs fn against relation and clinical-record repositories
// bound to one shared transaction, so the change-professional composite
// commits or rolls back as a whole.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(relations Repository, records continuity.Repository) error) error
}

type Service struct {
	repo Repository
	uow  UnitOfWork
	now  func() time.Time
}

func NewService(repo Repository, uow UnitOfWork) *Service {
	return &Service{
		repo: repo,
		uow:  uow,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// ChangeResult is the outcome of a patient-initiated professional switch.
type ChangeResult struct {
	Relation *CareRelationship         `json:"relation"`
	Transfer continuity.TransferResult `json:"transfer_result"`
}

// RequestRelation creates a pending request from the patient to the
// professional. A patient with an active relation, or with a pending
// request to the same professional, gets a conflict rather than a
// duplicate row.
func (s *Service) RequestRelation(ctx context.Context, patientID, professionalID string) (*CareRelationship, error) {
	if patientID == "" || professionalID == "" {
		return nil, fmt.Errorf("patient and professional ids are required")
	}
	if patientID == professionalID {
		return nil, fmt.Errorf("patient and professional must differ")
	}

	var result CareRelationship
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		if _, err := tx.GetActiveByPatient(ctx, patientID); err == nil {
			return ErrActiveRelationExists
		} else if !errors.Is(err, ErrNoActiveRelation) {
			return err
		}

		pending, err := tx.HasPendingRequest(ctx, patientID, professionalID)
		if err != nil {
			return err
		}
		if pending {
			return ErrAlreadyRequested
		}

		relation := CareRelationship{
			ID:             uuid.NewString(),
			PatientID:      patientID,
			ProfessionalID: professionalID,
			Status:         StatusPending,
			RequestedAt:    s.now(),
		}
		if err := tx.Create(ctx, &relation); err != nil {
			return err
		}

		result = relation
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// RespondToRequest lets the targeted professional accept or reject a
// pending request. Accepting activates the relation; the partial unique
// index keeps a patient from ending up with two active relations even
// under concurrent accepts.
func (s *Service) RespondToRequest(ctx context.Context, relationID, professionalID string, accept bool) (*CareRelationship, error) {
	var result CareRelationship
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		relation, err := tx.GetByID(ctx, relationID)
		if err != nil {
			return err
		}
		if relation.ProfessionalID != professionalID {
			return ErrNotTargetProfessional
		}
		if relation.Status != StatusPending {
			return ErrRelationNotPending
		}

		now := s.now()
		if accept {
			if err := tx.Accept(ctx, relation.ID, now); err != nil {
				return err
			}
			relation.Status = StatusActive
			relation.AcceptedAt = &now
		} else {
			if err := tx.Reject(ctx, relation.ID, now); err != nil {
				return err
			}
			relation.Status = StatusRejected
			relation.EndedAt = &now
		}

		result = *relation
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ActiveProfessional returns the patient's current active relation.
func (s *Service) ActiveProfessional(ctx context.Context, patientID string) (*CareRelationship, error) {
	return s.repo.GetActiveByPatient(ctx, patientID)
}

// ListForPatient returns the patient's full relationship history,
// newest first.
func (s *Service) ListForPatient(ctx context.Context, patientID string) ([]CareRelationship, error) {
	return s.repo.ListByPatient(ctx, patientID)
}

// ListPendingForProfessional returns the professional's open requests.
func (s *Service) ListPendingForProfessional(ctx context.Context, professionalID string) ([]CareRelationship, error) {
	return s.repo.ListPendingByProfessional(ctx, professionalID)
}

// HasActiveRelation reports whether the professional currently holds the
// active relation for the patient.
func (s *Service) HasActiveRelation(ctx context.Context, patientID, professionalID string) (bool, error) {
	relation, err := s.repo.GetActiveByPatient(ctx, patientID)
	if errors.Is(err, ErrNoActiveRelation) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return relation.ProfessionalID == professionalID, nil
}

// ChangeProfessional ends the patient's current active relation, opens an
// active relation with the new professional and moves every clinical
// record the old professional owns for the patient, all in one
// transaction. The new relation activates immediately; the switch does
// not wait for the new professional's acceptance.
//
// A serialization conflict is retried once before surfacing.
func (s *Service) ChangeProfessional(ctx context.Context, patientID, newProfessionalID, reason string) (*ChangeResult, error) {
	if patientID == "" || newProfessionalID == "" {
		return nil, fmt.Errorf("patient and professional ids are required")
	}

	result, err := s.changeProfessional(ctx, patientID, newProfessionalID, reason)
	if errors.Is(err, ErrConcurrencyConflict) {
		result, err = s.changeProfessional(ctx, patientID, newProfessionalID, reason)
	}
	return result, err
}

func (s *Service) changeProfessional(ctx context.Context, patientID, newProfessionalID, reason string) (*ChangeResult, error) {
	reason = strings.TrimSpace(reason)

	var result ChangeResult
	err := s.uow.Do(ctx, func(relations Repository, records continuity.Repository) error {
		current, err := relations.GetActiveByPatient(ctx, patientID)
		if err != nil {
			return err
		}
		if current.ProfessionalID == newProfessionalID {
			return ErrSameProfessional
		}

		now := s.now()
		var endReason *string
		if reason != "" {
			endReason = &reason
		}
		if err := relations.Deactivate(ctx, current.ID, endReason, now); err != nil {
			// The row was active when read above; losing the guarded
			// update means a concurrent switch committed in between.
			if errors.Is(err, ErrNoActiveRelation) {
				return ErrConcurrencyConflict
			}
			return err
		}

		next := CareRelationship{
			ID:             uuid.NewString(),
			PatientID:      patientID,
			ProfessionalID: newProfessionalID,
			Status:         StatusActive,
			RequestedAt:    now,
			AcceptedAt:     &now,
		}
		if err := relations.Create(ctx, &next); err != nil {
			return err
		}

		transfer, err := continuity.ApplyTransfer(ctx, records, continuity.TransferParams{
			PatientID: patientID,
			From:      current.ProfessionalID,
			To:        newProfessionalID,
			Reason:    reason,
		}, now)
		if err != nil {
			return err
		}

		result = ChangeResult{Relation: &next, Transfer: transfer}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
