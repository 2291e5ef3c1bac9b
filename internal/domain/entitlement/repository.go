package entitlement

import (
	"context"
	"time"
)

type Repository interface {
	Transaction(ctx context.Context, fn func(Repository) error) error
	ListActivePlans(ctx context.Context) ([]SubscriptionPlan, error)
	GetPlan(ctx context.Context, id string) (*SubscriptionPlan, error)
	Create(ctx context.Context, sub *UserSubscription) error
	GetByID(ctx context.Context, id string) (*UserSubscription, error)
	GetActiveByUser(ctx context.Context, userID string) (*UserSubscription, error)
	// IncrementUsage bumps consultations_used by one as a single
	// conditional update: only while the subscription is active and, for
	// capped plans, still below the plan's max_consultations. Reports
	// whether a row was updated.
	IncrementUsage(ctx context.Context, userID string) (bool, error)
	// Activate transitions pending → active and records the paid amount.
	Activate(ctx context.Context, id string, amountPaidCents int64, at time.Time) error
	// Cancel transitions active → cancelled. Fails ErrSubscriptionNotActive
	// if the row is no longer active.
	Cancel(ctx context.Context, id string, reason *string, at time.Time) error
	// ExpireBatch flips up to limit lapsed active subscriptions to
	// expired and returns how many it touched. Only the status field and
	// update timestamp change.
	ExpireBatch(ctx context.Context, now time.Time, limit int) (int64, error)
}
