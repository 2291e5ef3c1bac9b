package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	entitlementdomain "github.com/saulpulido52/litam-sub010/internal/domain/entitlement"
	"github.com/saulpulido52/litam-sub010/internal/transport/httpserver/middleware"
)

type subscribeRequest struct {
	PlanID           string `json:"plan_id" validate:"required,uuid4"`
	PaymentConfirmed bool   `json:"payment_confirmed"`
	AmountPaidCents  *int64 `json:"amount_paid_cents" validate:"omitempty,min=0"`
}

type cancelSubscriptionRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type paymentWebhookRequest struct {
	Event          string `json:"event"`
	SubscriptionID string `json:"subscription_id"`
	AmountCents    *int64 `json:"amount_cents"`
}

type subscriptionResponse struct {
	*entitlementdomain.UserSubscription
	Remaining int `json:"remaining_consultations"`
}

func toSubscriptionResponse(sub *entitlementdomain.UserSubscription) subscriptionResponse {
	return subscriptionResponse{UserSubscription: sub, Remaining: sub.Remaining()}
}

func (h *Handlers) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.Entitlements.ListActivePlans(r.Context())
	if err != nil {
		h.log.InternalError("subscriptions.plans: list failed", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": plans})
}

func (h *Handlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_identity", "missing identity")
		return
	}

	var req subscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	sub, err := h.Entitlements.Subscribe(r.Context(), entitlementdomain.SubscribeParams{
		UserID:           identity.UserID,
		PlanID:           req.PlanID,
		PaymentConfirmed: req.PaymentConfirmed,
		AmountPaidCents:  req.AmountPaidCents,
	})
	if err != nil {
		switch {
		case errors.Is(err, entitlementdomain.ErrAlreadySubscribed):
			h.log.BusinessError("subscriptions.subscribe: already subscribed", err, "user_id", identity.UserID)
			writeError(w, http.StatusConflict, "already_subscribed", "an active subscription already exists")
		case errors.Is(err, entitlementdomain.ErrPlanNotFound):
			writeError(w, http.StatusNotFound, "plan_not_found", "plan not found")
		case errors.Is(err, entitlementdomain.ErrPlanRetired):
			writeError(w, http.StatusConflict, "plan_retired", "plan is no longer purchasable")
		default:
			h.log.InternalError("subscriptions.subscribe: subscribe failed", err, "user_id", identity.UserID)
			writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, toSubscriptionResponse(sub))
}

func (h *Handlers) MySubscription(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_identity", "missing identity")
		return
	}

	sub, err := h.Entitlements.GetCurrent(r.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, entitlementdomain.ErrNoActiveSubscription) {
			writeJSON(w, http.StatusOK, nil)
			return
		}
		h.log.InternalError("subscriptions.me: lookup failed", err, "user_id", identity.UserID)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

func (h *Handlers) UseConsultation(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_identity", "missing identity")
		return
	}

	sub, err := h.Entitlements.UseConsultation(r.Context(), identity.UserID)
	if err != nil {
		switch {
		case errors.Is(err, entitlementdomain.ErrNoActiveSubscription):
			writeError(w, http.StatusNotFound, "no_active_subscription", "no active subscription")
		case errors.Is(err, entitlementdomain.ErrQuotaExhausted):
			h.log.BusinessError("subscriptions.use: quota exhausted", err, "user_id", identity.UserID)
			writeError(w, http.StatusConflict, "quota_exhausted", "consultation quota exhausted")
		default:
			h.log.InternalError("subscriptions.use: increment failed", err, "user_id", identity.UserID)
			writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

func (h *Handlers) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_identity", "missing identity")
		return
	}
	subscriptionID := chi.URLParam(r, "id")

	var req cancelSubscriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	sub, err := h.Entitlements.Cancel(r.Context(), identity.UserID, subscriptionID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, entitlementdomain.ErrSubscriptionNotFound):
			writeError(w, http.StatusNotFound, "subscription_not_found", "subscription not found")
		case errors.Is(err, entitlementdomain.ErrNotSubscriptionOwner):
			h.log.BusinessError("subscriptions.cancel: not owner", err, "user_id", identity.UserID, "subscription_id", subscriptionID)
			writeError(w, http.StatusForbidden, "not_subscription_owner", "subscription belongs to another user")
		case errors.Is(err, entitlementdomain.ErrNoActiveSubscription):
			writeError(w, http.StatusNotFound, "no_active_subscription", "subscription is not active")
		default:
			h.log.InternalError("subscriptions.cancel: cancel failed", err, "subscription_id", subscriptionID)
			writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

// PaymentWebhook applies payment-provider callbacks. It always answers
// 200: surfacing an error here would only trigger the provider's retry
// storm, so internal failures are logged and swallowed. The payload is
// provider-owned, so unknown fields are tolerated rather than rejected.
func (h *Handlers) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req paymentWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.InternalError("subscriptions.webhook: invalid payload", err)
		writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
		return
	}

	if req.Event != "payment.succeeded" || req.SubscriptionID == "" {
		h.log.Warn("subscriptions.webhook: ignored event", "event", req.Event, "subscription_id", req.SubscriptionID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if _, err := h.Entitlements.ConfirmPayment(r.Context(), req.SubscriptionID, req.AmountCents); err != nil {
		h.log.InternalError("subscriptions.webhook: confirm failed", err, "subscription_id", req.SubscriptionID, "event", req.Event)
		writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

// SweepExpirations lets an external scheduler trigger an expiration
// sweep on demand.
func (h *Handlers) SweepExpirations(w http.ResponseWriter, r *http.Request) {
	expired, err := h.Sweeper.SweepOnce(r.Context())
	if err != nil {
		h.log.InternalError("subscriptions.sweep: sweep failed", err, "expired_before_failure", expired)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"expired": expired})
}
