package continuity

import (
	"context"

	continuitydomain "github.com/saulpulido52/litam-sub010/internal/domain/continuity"
	"gorm.io/gorm"
)

type PostgresRepository struct {
	db *gorm.DB
}

func NewPostgres(db *gorm.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Transaction(ctx context.Context, fn func(continuitydomain.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&PostgresRepository{db: tx})
	})
}

func (r *PostgresRepository) Create(ctx context.Context, record *continuitydomain.ClinicalRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *PostgresRepository) ListByPatient(ctx context.Context, patientID string) ([]continuitydomain.ClinicalRecord, error) {
	var records []continuitydomain.ClinicalRecord
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("record_date desc").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Reassign moves ownership and appends the annotation in one statement,
// so a mid-operation fault can never leave some records moved and others
// not. The WHERE clause scopes it to records the source still owns, which
// makes a repeat call a no-op.
func (r *PostgresRepository) Reassign(ctx context.Context, patientID, fromProfessionalID, toProfessionalID, annotation string) (int64, error) {
	result := r.db.WithContext(ctx).Exec(`
		UPDATE clinical_records
		SET professional_id = ?,
		    transfer_annotations = CASE
		        WHEN transfer_annotations = '' THEN ?
		        ELSE transfer_annotations || E'\n' || ?
		    END,
		    updated_at = NOW()
		WHERE patient_id = ? AND professional_id = ?`,
		toProfessionalID, annotation, annotation, patientID, fromProfessionalID)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
