package entitlement

import (
	"context"
	"errors"
	"time"

	entitlementdomain "github.com/saulpulido52/litam-sub010/internal/domain/entitlement"
	"github.com/saulpulido52/litam-sub010/internal/repository/postgres/pgerrors"
	"gorm.io/gorm"
)

const oneActiveConstraint = "uq_user_subscriptions_one_active"

type PostgresRepository struct {
	db *gorm.DB
}

func NewPostgres(db *gorm.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Transaction(ctx context.Context, fn func(entitlementdomain.Repository) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&PostgresRepository{db: tx})
	})
	if pgerrors.IsSerializationFailure(err) {
		return entitlementdomain.ErrConcurrencyConflict
	}
	return err
}

func (r *PostgresRepository) ListActivePlans(ctx context.Context) ([]entitlementdomain.SubscriptionPlan, error) {
	var plans []entitlementdomain.SubscriptionPlan
	err := r.db.WithContext(ctx).
		Where("status = ?", entitlementdomain.PlanActive).
		Order("price_cents asc").
		Find(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *PostgresRepository) GetPlan(ctx context.Context, id string) (*entitlementdomain.SubscriptionPlan, error) {
	var plan entitlementdomain.SubscriptionPlan
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, entitlementdomain.ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

func (r *PostgresRepository) Create(ctx context.Context, sub *entitlementdomain.UserSubscription) error {
	err := r.db.WithContext(ctx).Omit("Plan").Create(sub).Error
	if pgerrors.IsUniqueViolation(err, oneActiveConstraint) {
		return entitlementdomain.ErrAlreadySubscribed
	}
	return err
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*entitlementdomain.UserSubscription, error) {
	var sub entitlementdomain.UserSubscription
	err := r.db.WithContext(ctx).Preload("Plan").Where("id = ?", id).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, entitlementdomain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *PostgresRepository) GetActiveByUser(ctx context.Context, userID string) (*entitlementdomain.UserSubscription, error) {
	var sub entitlementdomain.UserSubscription
	err := r.db.WithContext(ctx).
		Preload("Plan").
		Where("user_id = ? AND status = ?", userID, entitlementdomain.SubscriptionActive).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, entitlementdomain.ErrNoActiveSubscription
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// IncrementUsage is the quota-critical write: a single conditional UPDATE
// joined against the plan row, so two concurrent calls can never push
// consultations_used past max_consultations.
func (r *PostgresRepository) IncrementUsage(ctx context.Context, userID string) (bool, error) {
	result := r.db.WithContext(ctx).Exec(`
		UPDATE user_subscriptions us
		SET consultations_used = us.consultations_used + 1,
		    updated_at = NOW()
		FROM subscription_plans p
		WHERE us.plan_id = p.id
		  AND us.user_id = ?
		  AND us.status = 'active'
		  AND (p.max_consultations IS NULL OR us.consultations_used < p.max_consultations)`,
		userID)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *PostgresRepository) Activate(ctx context.Context, id string, amountPaidCents int64, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&entitlementdomain.UserSubscription{}).
		Where("id = ? AND status = ?", id, entitlementdomain.SubscriptionPending).
		Updates(map[string]interface{}{
			"status":            entitlementdomain.SubscriptionActive,
			"amount_paid_cents": amountPaidCents,
			"updated_at":        at,
		})
	if pgerrors.IsUniqueViolation(result.Error, oneActiveConstraint) {
		return entitlementdomain.ErrAlreadySubscribed
	}
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return entitlementdomain.ErrSubscriptionNotActive
	}
	return nil
}

func (r *PostgresRepository) Cancel(ctx context.Context, id string, reason *string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&entitlementdomain.UserSubscription{}).
		Where("id = ? AND status = ?", id, entitlementdomain.SubscriptionActive).
		Updates(map[string]interface{}{
			"status":        entitlementdomain.SubscriptionCancelled,
			"cancelled_at":  at,
			"cancel_reason": reason,
			"updated_at":    at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return entitlementdomain.ErrSubscriptionNotActive
	}
	return nil
}

// ExpireBatch touches status only; usage counters stay as they were so a
// sweep can run alongside consultation traffic.
func (r *PostgresRepository) ExpireBatch(ctx context.Context, now time.Time, limit int) (int64, error) {
	result := r.db.WithContext(ctx).Exec(`
		UPDATE user_subscriptions
		SET status = 'expired', updated_at = ?
		WHERE id IN (
			SELECT id FROM user_subscriptions
			WHERE status = 'active' AND end_date < ?
			LIMIT ?
		)`, now, now, limit)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
