package continuity

import "context"

type Repository interface {
	Transaction(ctx context.Context, fn func(Repository) error) error
	Create(ctx context.Context, record *ClinicalRecord) error
	ListByPatient(ctx context.Context, patientID string) ([]ClinicalRecord, error)
	// Reassign moves every record owned by fromProfessionalID for the
	// patient to toProfessionalID in one statement, appending annotation
	// to each moved record's log. Returns the number of records moved.
	// Records already owned by toProfessionalID are untouched.
	Reassign(ctx context.Context, patientID, fromProfessionalID, toProfessionalID, annotation string) (int64, error)
}
