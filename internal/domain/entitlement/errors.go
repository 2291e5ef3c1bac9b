package entitlement

import "errors"

var (
	ErrPlanNotFound          = errors.New("plan not found")
	ErrPlanRetired           = errors.New("plan is retired")
	ErrSubscriptionNotFound  = errors.New("subscription not found")
	ErrNoActiveSubscription  = errors.New("no active subscription")
	ErrAlreadySubscribed     = errors.New("active subscription already exists")
	ErrQuotaExhausted        = errors.New("consultation quota exhausted")
	ErrNotSubscriptionOwner  = errors.New("subscription belongs to another user")
	ErrSubscriptionNotActive = errors.New("subscription is not active")
	ErrConcurrencyConflict   = errors.New("concurrent subscription update")
)
