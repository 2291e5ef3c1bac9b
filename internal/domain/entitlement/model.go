package entitlement

import (
	"time"

	"github.com/lib/pq"
)

type PlanStatus string

const (
	PlanActive  PlanStatus = "active"
	PlanRetired PlanStatus = "retired"
)

type SubscriptionStatus string

const (
	SubscriptionPending   SubscriptionStatus = "pending"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

// UnlimitedConsultations is the remaining-quota sentinel for plans
// without a consultation cap.
const UnlimitedConsultations = -1

// SubscriptionPlan is a purchasable plan. Plans are effectively immutable
// once a subscription references them; withdrawing one means retiring it,
// not editing it.
type SubscriptionPlan struct {
	ID               string         `gorm:"type:uuid;primaryKey" json:"id"`
	Name             string         `gorm:"not null" json:"name"`
	PriceCents       int64          `gorm:"not null" json:"price_cents"`
	DurationDays     int            `gorm:"not null" json:"duration_days"`
	MaxConsultations *int           `json:"max_consultations"`
	Features         pq.StringArray `gorm:"type:text[]" json:"features"`
	Status           PlanStatus     `gorm:"type:varchar(16);not null" json:"status"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// Unlimited reports whether the plan has no consultation cap.
func (p *SubscriptionPlan) Unlimited() bool {
	return p.MaxConsultations == nil
}

// UserSubscription is one user's purchase of a plan. At most one row per
// user may be active at any instant (partial unique index).
// ConsultationsUsed never exceeds the plan cap; the increment happens as
// a conditional update in the store, never read-modify-write in memory.
type UserSubscription struct {
	ID                string             `gorm:"type:uuid;primaryKey" json:"id"`
	UserID            string             `gorm:"type:uuid;not null;index" json:"user_id"`
	PlanID            string             `gorm:"type:uuid;not null" json:"plan_id"`
	Status            SubscriptionStatus `gorm:"type:varchar(16);not null" json:"status"`
	StartDate         time.Time          `gorm:"not null" json:"start_date"`
	EndDate           time.Time          `gorm:"not null" json:"end_date"`
	ConsultationsUsed int                `gorm:"not null;default:0" json:"consultations_used"`
	AmountPaidCents   int64              `gorm:"not null;default:0" json:"amount_paid_cents"`
	CancelledAt       *time.Time         `json:"cancelled_at,omitempty"`
	CancelReason      *string            `gorm:"type:text" json:"cancel_reason,omitempty"`
	CreatedAt         time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time          `gorm:"autoUpdateTime" json:"updated_at"`

	Plan SubscriptionPlan `gorm:"foreignKey:PlanID" json:"plan"`
}

// Remaining returns the consultations left on the subscription, or
// UnlimitedConsultations for uncapped plans.
func (s *UserSubscription) Remaining() int {
	if s.Plan.Unlimited() {
		return UnlimitedConsultations
	}
	remaining := *s.Plan.MaxConsultations - s.ConsultationsUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
