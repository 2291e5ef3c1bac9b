package relationship

import (
	"context"
	"time"
)

type Repository interface {
	Transaction(ctx context.Context, fn func(Repository) error) error
	Create(ctx context.Context, relation *CareRelationship) error
	GetByID(ctx context.Context, id string) (*CareRelationship, error)
	GetActiveByPatient(ctx context.Context, patientID string) (*CareRelationship, error)
	HasPendingRequest(ctx context.Context, patientID, professionalID string) (bool, error)
	ListByPatient(ctx context.Context, patientID string) ([]CareRelationship, error)
	ListPendingByProfessional(ctx context.Context, professionalID string) ([]CareRelationship, error)
	// Accept transitions pending → active. Fails ErrRelationNotPending if
	// the row is no longer pending and ErrActiveRelationExists if the
	// patient acquired another active relation in the meantime.
	Accept(ctx context.Context, id string, at time.Time) error
	// Reject transitions pending → rejected.
	Reject(ctx context.Context, id string, at time.Time) error
	// Deactivate transitions active → inactive. Fails ErrNoActiveRelation
	// if the row is no longer active.
	Deactivate(ctx context.Context, id string, reason *string, at time.Time) error
}
