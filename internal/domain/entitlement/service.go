package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// ListActivePlans returns purchasable plans, cheapest first.
func (s *Service) ListActivePlans(ctx context.Context) ([]SubscriptionPlan, error) {
	return s.repo.ListActivePlans(ctx)
}

// SubscribeParams captures a purchase. PaymentConfirmed activates the
// subscription immediately; otherwise it stays pending until the payment
// webhook confirms. AmountPaidCents overrides the plan price when set
// (discounts, comped accounts).
type SubscribeParams struct {
	UserID           string
	PlanID           string
	PaymentConfirmed bool
	AmountPaidCents  *int64
}

// Subscribe purchases a plan for the user. Fails ErrAlreadySubscribed if
// the user already holds an active subscription; the partial unique index
// backs this up under concurrency.
func (s *Service) Subscribe(ctx context.Context, params SubscribeParams) (*UserSubscription, error) {
	if params.UserID == "" || params.PlanID == "" {
		return nil, fmt.Errorf("user and plan ids are required")
	}

	var result UserSubscription
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		if _, err := tx.GetActiveByUser(ctx, params.UserID); err == nil {
			return ErrAlreadySubscribed
		} else if !errors.Is(err, ErrNoActiveSubscription) {
			return err
		}

		plan, err := tx.GetPlan(ctx, params.PlanID)
		if err != nil {
			return err
		}
		if plan.Status != PlanActive {
			return ErrPlanRetired
		}

		now := s.now()
		status := SubscriptionPending
		if params.PaymentConfirmed {
			status = SubscriptionActive
		}
		amount := plan.PriceCents
		if params.AmountPaidCents != nil {
			amount = *params.AmountPaidCents
		}

		sub := UserSubscription{
			ID:              uuid.NewString(),
			UserID:          params.UserID,
			PlanID:          plan.ID,
			Status:          status,
			StartDate:       now,
			EndDate:         now.AddDate(0, 0, plan.DurationDays),
			AmountPaidCents: amount,
		}
		if err := tx.Create(ctx, &sub); err != nil {
			return err
		}

		sub.Plan = *plan
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// UseConsultation burns one consultation off the user's active
// subscription. The increment is a conditional update in the store, so
// concurrent calls cannot push the counter past the plan cap. When no row
// qualifies, the failure is re-read to tell a missing subscription from
// an exhausted quota.
func (s *Service) UseConsultation(ctx context.Context, userID string) (*UserSubscription, error) {
	updated, err := s.repo.IncrementUsage(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !updated {
		if _, err := s.repo.GetActiveByUser(ctx, userID); err != nil {
			return nil, err
		}
		return nil, ErrQuotaExhausted
	}
	return s.repo.GetActiveByUser(ctx, userID)
}

// Remaining returns the consultations left for the user, or
// UnlimitedConsultations for uncapped plans. Fails ErrNoActiveSubscription
// when the user holds none.
func (s *Service) Remaining(ctx context.Context, userID string) (int, error) {
	sub, err := s.repo.GetActiveByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return sub.Remaining(), nil
}

// GetCurrent returns the user's active subscription with its plan.
func (s *Service) GetCurrent(ctx context.Context, userID string) (*UserSubscription, error) {
	return s.repo.GetActiveByUser(ctx, userID)
}

// Cancel ends the caller's active subscription. The caller must own the
// subscription; cancelling an already-terminal one fails
// ErrNoActiveSubscription.
func (s *Service) Cancel(ctx context.Context, userID, subscriptionID, reason string) (*UserSubscription, error) {
	var result UserSubscription
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		sub, err := tx.GetByID(ctx, subscriptionID)
		if err != nil {
			return err
		}
		if sub.UserID != userID {
			return ErrNotSubscriptionOwner
		}
		if sub.Status != SubscriptionActive {
			return ErrNoActiveSubscription
		}

		now := s.now()
		var cancelReason *string
		if reason != "" {
			cancelReason = &reason
		}
		if err := tx.Cancel(ctx, sub.ID, cancelReason, now); err != nil {
			if errors.Is(err, ErrSubscriptionNotActive) {
				return ErrNoActiveSubscription
			}
			return err
		}

		sub.Status = SubscriptionCancelled
		sub.CancelledAt = &now
		sub.CancelReason = cancelReason
		result = *sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ConfirmPayment applies a provider payment confirmation: a pending
// subscription becomes active and records the paid amount. Re-delivery
// for an already-active subscription is a no-op.
func (s *Service) ConfirmPayment(ctx context.Context, subscriptionID string, amountCents *int64) (*UserSubscription, error) {
	var result UserSubscription
	err := s.repo.Transaction(ctx, func(tx Repository) error {
		sub, err := tx.GetByID(ctx, subscriptionID)
		if err != nil {
			return err
		}
		switch sub.Status {
		case SubscriptionActive:
			result = *sub
			return nil
		case SubscriptionPending:
		default:
			return ErrSubscriptionNotActive
		}

		amount := sub.AmountPaidCents
		if amountCents != nil {
			amount = *amountCents
		}
		if err := tx.Activate(ctx, sub.ID, amount, s.now()); err != nil {
			return err
		}

		sub.Status = SubscriptionActive
		sub.AmountPaidCents = amount
		result = *sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
