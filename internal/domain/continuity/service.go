package continuity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RelationChecker answers whether a professional currently holds the
// active relation for a patient. Implemented by the relationship service.
type RelationChecker interface {
	HasActiveRelation(ctx context.Context, patientID, professionalID string) (bool, error)
}

type Service struct {
	repo      Repository
	relations RelationChecker
	now       func() time.Time
}

func NewService(repo Repository, relations RelationChecker) *Service {
	return &Service{
		repo:      repo,
		relations: relations,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// TransferPatientRecords reassigns every record owned by params.From for
// the patient to params.To inside one transaction. Moving zero records is
// a success, which also makes the operation idempotent.
func (s *Service) TransferPatientRecords(ctx context.Context, params TransferParams) (TransferResult, error) {
	if params.PatientID == "" || params.From == "" || params.To == "" {
		return TransferResult{}, fmt.Errorf("patient, from and to ids are required")
	}
	if params.From == params.To {
		return TransferResult{}, ErrSameOwner
	}

	var result TransferResult
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		transferred, err := ApplyTransfer(ctx, tx, params, s.now())
		if err != nil {
			return err
		}
		result = transferred
		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}
	return result, nil
}

// ApplyTransfer performs the reassignment against the given repository.
// Callers composing the transfer into a wider transaction (the
// change-professional flow) pass their transaction-bound repository.
func ApplyTransfer(ctx context.Context, repo Repository, params TransferParams, at time.Time) (TransferResult, error) {
	annotation := TransferAnnotation(params.From, params.To, at, params.Reason)
	count, err := repo.Reassign(ctx, params.PatientID, params.From, params.To, annotation)
	if err != nil {
		return TransferResult{}, fmt.Errorf("reassign records: %w", err)
	}
	return TransferResult{TransferredCount: count, NewOwnerID: params.To}, nil
}

// TransferAnnotation renders the line appended to each moved record's log.
func TransferAnnotation(from, to string, at time.Time, reason string) string {
	annotation := fmt.Sprintf("TRANSFERRED from %s to %s on %s", from, to, at.UTC().Format(time.RFC3339))
	if reason = strings.TrimSpace(reason); reason != "" {
		annotation += ": " + reason
	}
	return annotation
}

// CreateRecord stores a new clinical entry. Only the professional holding
// the active relation for the patient may write one.
func (s *Service) CreateRecord(ctx context.Context, professionalID, patientID string, recordDate time.Time, content string) (*ClinicalRecord, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("clinical content is required")
	}
	if recordDate.IsZero() {
		recordDate = s.now()
	}

	holds, err := s.relations.HasActiveRelation(ctx, patientID, professionalID)
	if err != nil {
		return nil, err
	}
	if !holds {
		return nil, ErrNotCurrentProfessional
	}

	record := &ClinicalRecord{
		ID:              uuid.NewString(),
		PatientID:       patientID,
		ProfessionalID:  professionalID,
		RecordDate:      recordDate.UTC(),
		ClinicalContent: content,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) ListPatientRecords(ctx context.Context, patientID string) ([]ClinicalRecord, error) {
	return s.repo.ListByPatient(ctx, patientID)
}
