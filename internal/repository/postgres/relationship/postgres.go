package relationship

import (
	"context"
	"errors"
	"time"

	relationshipdomain "github.com/saulpulido52/litam-sub010/internal/domain/relationship"
	"github.com/saulpulido52/litam-sub010/internal/repository/postgres/pgerrors"
	"gorm.io/gorm"
)

const (
	oneActiveConstraint  = "uq_care_relationships_one_active"
	onePendingConstraint = "uq_care_relationships_one_pending_pair"
)

type PostgresRepository struct {
	db *gorm.DB
}

func NewPostgres(db *gorm.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Transaction(ctx context.Context, fn func(relationshipdomain.Repository) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&PostgresRepository{db: tx})
	})
	if pgerrors.IsSerializationFailure(err) {
		return relationshipdomain.ErrConcurrencyConflict
	}
	return err
}

func (r *PostgresRepository) Create(ctx context.Context, relation *relationshipdomain.CareRelationship) error {
	err := r.db.WithContext(ctx).Create(relation).Error
	if pgerrors.IsUniqueViolation(err, oneActiveConstraint) {
		return relationshipdomain.ErrActiveRelationExists
	}
	if pgerrors.IsUniqueViolation(err, onePendingConstraint) {
		return relationshipdomain.ErrAlreadyRequested
	}
	return err
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*relationshipdomain.CareRelationship, error) {
	var relation relationshipdomain.CareRelationship
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&relation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, relationshipdomain.ErrRelationNotFound
		}
		return nil, err
	}
	return &relation, nil
}

func (r *PostgresRepository) GetActiveByPatient(ctx context.Context, patientID string) (*relationshipdomain.CareRelationship, error) {
	var relation relationshipdomain.CareRelationship
	err := r.db.WithContext(ctx).
		Where("patient_id = ? AND status = ?", patientID, relationshipdomain.StatusActive).
		First(&relation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, relationshipdomain.ErrNoActiveRelation
	}
	if err != nil {
		return nil, err
	}
	return &relation, nil
}

func (r *PostgresRepository) HasPendingRequest(ctx context.Context, patientID, professionalID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&relationshipdomain.CareRelationship{}).
		Where("patient_id = ? AND professional_id = ? AND status = ?", patientID, professionalID, relationshipdomain.StatusPending).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *PostgresRepository) ListByPatient(ctx context.Context, patientID string) ([]relationshipdomain.CareRelationship, error) {
	var relations []relationshipdomain.CareRelationship
	err := r.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("requested_at desc").
		Find(&relations).Error
	if err != nil {
		return nil, err
	}
	return relations, nil
}

func (r *PostgresRepository) ListPendingByProfessional(ctx context.Context, professionalID string) ([]relationshipdomain.CareRelationship, error) {
	var relations []relationshipdomain.CareRelationship
	err := r.db.WithContext(ctx).
		Where("professional_id = ? AND status = ?", professionalID, relationshipdomain.StatusPending).
		Order("requested_at asc").
		Find(&relations).Error
	if err != nil {
		return nil, err
	}
	return relations, nil
}

func (r *PostgresRepository) Accept(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&relationshipdomain.CareRelationship{}).
		Where("id = ? AND status = ?", id, relationshipdomain.StatusPending).
		Updates(map[string]interface{}{
			"status":      relationshipdomain.StatusActive,
			"accepted_at": at,
			"updated_at":  at,
		})
	if pgerrors.IsUniqueViolation(result.Error, oneActiveConstraint) {
		return relationshipdomain.ErrActiveRelationExists
	}
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return relationshipdomain.ErrRelationNotPending
	}
	return nil
}

func (r *PostgresRepository) Reject(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&relationshipdomain.CareRelationship{}).
		Where("id = ? AND status = ?", id, relationshipdomain.StatusPending).
		Updates(map[string]interface{}{
			"status":     relationshipdomain.StatusRejected,
			"ended_at":   at,
			"updated_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return relationshipdomain.ErrRelationNotPending
	}
	return nil
}

func (r *PostgresRepository) Deactivate(ctx context.Context, id string, reason *string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&relationshipdomain.CareRelationship{}).
		Where("id = ? AND status = ?", id, relationshipdomain.StatusActive).
		Updates(map[string]interface{}{
			"status":     relationshipdomain.StatusInactive,
			"end_reason": reason,
			"ended_at":   at,
			"updated_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return relationshipdomain.ErrNoActiveRelation
	}
	return nil
}
