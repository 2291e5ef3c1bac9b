//go:build e2e
// +build e2e

package e2e_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/saulpulido52/litam-sub010/internal/config"
	"github.com/saulpulido52/litam-sub010/internal/db"
	continuitydomain "github.com/saulpulido52/litam-sub010/internal/domain/continuity"
	entitlementdomain "github.com/saulpulido52/litam-sub010/internal/domain/entitlement"
	relationshipdomain "github.com/saulpulido52/litam-sub010/internal/domain/relationship"
	"github.com/saulpulido52/litam-sub010/internal/repository/postgres/care"
	continuityrepo "github.com/saulpulido52/litam-sub010/internal/repository/postgres/continuity"
	entitlementrepo "github.com/saulpulido52/litam-sub010/internal/repository/postgres/entitlement"
	relationshiprepo "github.com/saulpulido52/litam-sub010/internal/repository/postgres/relationship"
	"github.com/saulpulido52/litam-sub010/internal/transport/httpserver"
	"github.com/saulpulido52/litam-sub010/internal/transport/httpserver/handler"
	"github.com/saulpulido52/litam-sub010/pkg/logger"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	basicPlanID   = "7b8a1f60-1c3e-4a59-9a65-0d2f6a1f0001"
	premiumPlanID = "7b8a1f60-1c3e-4a59-9a65-0d2f6a1f0003"
)

type identity struct {
	userID string
	role   string
}

func patient(id string) identity      { return identity{userID: id, role: "patient"} }
func professional(id string) identity { return identity{userID: id, role: "professional"} }

type testEnv struct {
	server *httptest.Server
	db     *gorm.DB
}

func setupE2E(t *testing.T) *testEnv {
	t.Helper()

	dsn := os.Getenv("E2E_DB_DSN")
	if dsn == "" {
		t.Skip("E2E_DB_DSN not set; skipping e2e tests")
	}

	log := logger.New(io.Discard, slog.LevelError, "text")

	cfg := config.Config{
		DB: config.DBConfig{DSN: dsn},
		Sweeper: config.SweeperConfig{
			Interval:  time.Minute,
			BatchSize: 100,
		},
	}

	dbConn, err := db.NewPostgres(cfg.DB, log)
	if err != nil {
		t.Fatalf("db connect: %v", err)
	}

	if err := db.Migrate(dbConn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if err := cleanDB(dbConn); err != nil {
		t.Fatalf("clean db: %v", err)
	}

	relationRepo := relationshiprepo.NewPostgres(dbConn)
	recordRepo := continuityrepo.NewPostgres(dbConn)
	entitlementRepo := entitlementrepo.NewPostgres(dbConn)
	unitOfWork := care.NewUnitOfWork(dbConn)

	relationService := relationshipdomain.NewService(relationRepo, unitOfWork)
	recordService := continuitydomain.NewService(recordRepo, relationService)
	entitlementService := entitlementdomain.NewService(entitlementRepo)
	sweeper := entitlementdomain.NewSweeper(entitlementRepo, log, cfg.Sweeper.Interval, cfg.Sweeper.BatchSize)

	handlers := handler.New(relationService, recordService, entitlementService, sweeper, log)
	router := httpserver.NewRouter(cfg, handlers)
	server := httptest.NewServer(router)

	return &testEnv{server: server, db: dbConn}
}

func (e *testEnv) Close() {
	e.server.Close()
	sqlDB, err := e.db.DB()
	if err == nil {
		_ = sqlDB.Close()
	}
}

func cleanDB(dbConn *gorm.DB) error {
	return dbConn.WithContext(context.Background()).Exec(
		"TRUNCATE TABLE clinical_records, care_relationships, user_subscriptions RESTART IDENTITY CASCADE",
	).Error
}

func requestJSON(t *testing.T, client *http.Client, method, url string, as identity, payload interface{}) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if as.userID != "" {
		req.Header.Set("X-User-Id", as.userID)
		req.Header.Set("X-User-Role", as.role)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}

	return resp, respBody
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type relationResponse struct {
	ID             string     `json:"id"`
	PatientID      string     `json:"patient_id"`
	ProfessionalID string     `json:"professional_id"`
	Status         string     `json:"status"`
	EndReason      *string    `json:"end_reason"`
	RequestedAt    time.Time  `json:"requested_at"`
	AcceptedAt     *time.Time `json:"accepted_at"`
	EndedAt        *time.Time `json:"ended_at"`
}

type relationListResponse struct {
	Items []relationResponse `json:"items"`
}

type changeProfessionalResponse struct {
	Relation relationResponse `json:"relation"`
	Transfer struct {
		TransferredCount int64  `json:"transferred_count"`
		NewOwnerID       string `json:"new_owner_id"`
	} `json:"transfer_result"`
}

type recordResponse struct {
	ID                  string `json:"id"`
	PatientID           string `json:"patient_id"`
	ProfessionalID      string `json:"professional_id"`
	ClinicalContent     string `json:"clinical_content"`
	TransferAnnotations string `json:"transfer_annotations"`
}

type planResponse struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	PriceCents       int64  `json:"price_cents"`
	MaxConsultations *int   `json:"max_consultations"`
}

type planListResponse struct {
	Items []planResponse `json:"items"`
}

type subscriptionResponse struct {
	ID                string `json:"id"`
	UserID            string `json:"user_id"`
	PlanID            string `json:"plan_id"`
	Status            string `json:"status"`
	ConsultationsUsed int    `json:"consultations_used"`
	AmountPaidCents   int64  `json:"amount_paid_cents"`
	Remaining         int    `json:"remaining_consultations"`
}

func decodeInto(t *testing.T, body []byte, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(body, dst); err != nil {
		t.Fatalf("decode response: %v: %s", err, string(body))
	}
}

func expectStatus(t *testing.T, resp *http.Response, body []byte, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("expected %d, got %d: %s", want, resp.StatusCode, string(body))
	}
}

func expectErrorCode(t *testing.T, body []byte, want string) {
	t.Helper()
	var envelope errorEnvelope
	decodeInto(t, body, &envelope)
	if envelope.Error.Code != want {
		t.Fatalf("expected error code %q, got %q", want, envelope.Error.Code)
	}
}

func TestE2EHealthAndIdentity(t *testing.T) {
	env := setupE2E(t)
	defer env.Close()

	client := &http.Client{Timeout: 5 * time.Second}

	resp, body := requestJSON(t, client, http.MethodGet, env.server.URL+"/api/health", identity{}, nil)
	expectStatus(t, resp, body, http.StatusOK)

	resp, body = requestJSON(t, client, http.MethodGet, env.server.URL+"/api/relations", identity{}, nil)
	expectStatus(t, resp, body, http.StatusUnauthorized)
	expectErrorCode(t, body, "invalid_identity")

	resp, body = requestJSON(t, client, http.MethodGet, env.server.URL+"/api/relations", identity{userID: "u", role: "admin"}, nil)
	expectStatus(t, resp, body, http.StatusUnauthorized)
	expectErrorCode(t, body, "invalid_identity")

	resp, body = requestJSON(t, client, http.MethodGet, env.server.URL+"/api/relations/pending", patient("11111111-1111-4111-8111-111111111111"), nil)
	expectStatus(t, resp, body, http.StatusForbidden)
	expectErrorCode(t, body, "wrong_role")
}

func TestE2ECareRelationshipFlow(t *testing.T) {
	env := setupE2E(t)
	defer env.Close()

	client := &http.Client{Timeout: 5 * time.Second}

	patientA := patient("11111111-1111-4111-8111-111111111111")
	proA := professional("22222222-2222-4222-8222-222222222222")
	proB := professional("33333333-3333-4333-8333-333333333333")

	resp, body := requestJSON(t, client, http.MethodPost, env.server.URL+"/api/relations", patientA, map[string]string{
		"professional_id": proA.userID,
	})
	expectStatus(t, resp, body, http.StatusCreated)
	var pending relationResponse
	decodeInto(t, body, &pending)
	if pending.Status != "pending" {
		t.Fatalf("expected pending relation, got %q", pending.Status)
	}

	resp, body = requestJSON(t, client, http.MethodPost, env.server.URL+"/api/relations", patientA, map[string]string{
		"professional_id": proA.userID,
	})
	expectStatus(t, resp, body, http.StatusConflict)
	expectErrorCode(t, body, "already_requested")

	resp, body = requestJSON(t, client, http.MethodGet, env.server.URL+"/api/relations/pending", proA, nil)
	expectStatus(t, resp, body, http.StatusOK)
	var pendingList relationListResponse
	decodeInto(t, body, &pendingList)
	if len(pendingList.Items) != 1 || pendingList.Items[0].ID != pending.ID {
		t.Fatalf("expected the pending request in proA's inbox: %+v", pendingList.Items)
	}

	accept := true
	resp, body = requestJSON(t, client, http.MethodPatch, env.server.URL+"/api/relations/"+pending.ID, proB, map[string]*bool{
		"accept": &accept,
	})
	expectStatus(t, resp, body, http.StatusForbidden)
	expectErrorCode(t, body, "not_target_professional")

	resp, body = requestJSON(t, client, http.MethodPatch, env.server.URL+"/api/relations/"+pending.ID, proA, map[string]*bool{
		"accept": &accept,
	})
	expectStatus(t, resp, body, http.StatusOK)
	var active relationResponse
	decodeInto(t, body, &active)
	if active.Status != "active" || active.AcceptedAt == nil {
		t.Fatalf("expected accepted relation, got %+v", active)
	}

	resp, body = requestJSON(t, client, http.MethodGet, env.server.URL+"/api/relations/my-active-professional", patientA, nil)
	expectStatus(t, resp, body, http.StatusOK)
	var current relationResponse
	decodeInto(t, body, &current)
	if current.ProfessionalID != proA.userID {
		t.Fatalf("expected proA as active professional, got %q", current.ProfessionalID)
	}

	resp, body = requestJSON(t, client, http.MethodPost, env.server.URL+"/api/records", proB, map[string]string{
		"patient_id":       patientA.userID,
		"clinical_content": "should be refused",
	})
	expectStatus(t, resp, body, http.StatusForbidden)
	expectErrorCode(t, body, "not_current_professional")

	resp, body = requestJSON(t, client, http.MethodPost, env.server.URL+"/api/records", proA, map[string]string{
		"patient_id":       patientA.userID,
		"clinical_content": "initial assessment",
	})
	expectStatus(t, resp, body, http.StatusCreated)

	resp, body = requestJSON(t, client, http.MethodPost, env.server.URL+"/api/patients/"+patientA.userID+"/change-professional", patientA, map[string]string{
		"new_professional_id": proB.userID,
		"reason":              "relocation",
	})
	expectStatus(t, resp, body, http.StatusOK)
	var change changeProfessionalResponse
	decodeInto(t, body, &change)
	if change.Relation.ProfessionalID != proB.userID || change.Relation.Status != "active" {
		t.Fatalf("expected active relation with proB, got %+v", change.Relation)
	}
	if change.Transfer.TransferredCount != 1 || change.Transfer.NewOwnerID != proB.userID {
		t.Fatalf("expected 1 transferred record, got %+v", change.Transfer)
	}

	resp, body = requestJSON(t, client, http.MethodGet, env.server.URL+"/api/patients/"+patientA.userID+"/records", proB, nil)
	expectStatus(t, resp, body, http.StatusOK)
	var records struct {
		Items []recordResponse `json:"items"`
	}
	decodeInto(t, body, &records)
	if len(records.Items) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records.Items))
	}
	record := records.Items[0]
	if record.ProfessionalID != proB.userID {
		t.Fatalf("record still owned by %q", record.ProfessionalID)
	}
	if !strings.Contains(record.TransferAnnotations, "TRANSFERRED") || !strings.Contains(record.TransferAnnotations, "relocation") {
		t.Fatalf("missing transfer annotation: %q", record.TransferAnnotations)
	}

	resp, body = requestJSON(t, client, http.MethodGet, env.server.URL+"/api/relations", patientA, nil)
	expectStatus(t, resp, body, http.StatusOK)
	var history relationListResponse
	decodeInto(t, body, &history)
	activeCount := 0
	for _, relation := range history.Items {
		if relation.Status == "active" {
			activeCount++
		}
	}
	if activeCount != 1 {
		t.Fatalf("expected exactly one active relation, got %d", activeCount)
	}
}

func TestE2EConcurrentChangeProfessional(t *testing.T) {
	env := setupE2E(t)
	defer env.Close()

	client := &http.Client{Timeout: 10 * time.Second}

	patientA := patient("11111111-1111-4111-8111-111111111111")
	proA := professional("22222222-2222-4222-8222-222222222222")
	proB := professional("33333333-3333-4333-8333-333333333333")

	resp, body := requestJSON(t, client, http.MethodPost, env.server.URL+"/api/relations", patientA, map[string]string{
		"professional_id": proA.userID,
	})
	expectStatus(t, resp, body, http.StatusCreated)
	var pending relationResponse
	decodeInto(t, body, &pending)

	accept := true
	resp, body = requestJSON(t, client, http.MethodPatch, env.server.URL+"/api/relations/"+pending.ID, proA, map[string]*bool{
		"accept": &accept,
	})
	expectStatus(t, resp, body, http.StatusOK)

	const attempts = 6
	results := make([]int, attempts)
	var group errgroup.Group
	for i := 0; i < attempts; i++ {
		i := i
		group.Go(func() error {
			resp, _ := requestJSON(t, client, http.MethodPost, env.server.URL+"/api/patients/"+patientA.userID+"/change-professional", patientA, map[string]string{
				"new_professional_id": proB.userID,
			})
			results[i] = resp.StatusCode
			return nil
		})
	}
	_ = group.Wait()

	succeeded, conflicted := 0, 0
	for _, status := range results {
		switch status {
		case http.StatusOK:
			succeeded++
		case http.StatusConflict:
			conflicted++
		default:
			t.Fatalf("unexpected status %d", status)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one winner, got %d (conflicted %d)", succeeded, conflicted)
	}

	var activeCount int64
	if err := env.db.Raw(
		"SELECT COUNT(*) FROM care_relationships WHERE patient_id = ? AND status = 'active'", patientA.userID,
	).Scan(&activeCount).Error; err != nil {
		t.Fatalf("count active: %v", err)
	}
	if activeCount != 1 {
		t.Fatalf("expected one active relation in store, got %d", activeCount)
	}
}

func TestE2ESubscriptionQuota(t *testing.T) {
	env := setupE2E(t)
	defer env.Close()

	client := &http.Client{Timeout: 10 * time.Second}
	user := patient("44444444-4444-4444-8444-444444444444")

	resp, body := requestJSON(t, client, http.MethodGet, env.server.URL+"/api/subscriptions/plans", user, nil)
	expectStatus(t, resp, body, http.StatusOK)
	var plans planListResponse
	decodeInto(t, body, &plans)
	if len(plans.Items) != 3 {
		t.Fatalf("expected 3 seeded plans, got %d", len(plans.Items))
	}

	resp, body = requestJSON(t, client, http.MethodPost, env.server.URL+"/api/subscriptions/subscribe", user, map[string]interface{}{
		"plan_id":           basicPlanID,
		"payment_confirmed": true,
	})
	expectStatus(t, resp, body, http.StatusCreated)
	var sub subscriptionResponse
	decodeInto(t, body, &sub)
	if sub.Status != "active" || sub.Remaining != 2 {
		t.Fatalf("expected active subscription with 2 remaining, got %+v", sub)
	}
	if sub.AmountPaidCents != 2990 {
		t.Fatalf("expected plan price recorded, got %d", sub.AmountPaidCents)
	}

	resp, body = requestJSON(t, client, http.MethodPost, env.server.URL+"/api/subscriptions/subscribe", user, map[string]interface{}{
		"plan_id":           premiumPlanID,
		"payment_confirmed": true,
	})
	expectStatus(t, resp, body, http.StatusConflict)
	expectErrorCode(t, body, "already_subscribed")

	// Burn the 2-consultation quota with more callers than quota.
	const callers = 6
	statuses := make([]int, callers)
	var group errgroup.Group
	for i := 0; i < callers; i++ {
		i := i
		group.Go(func() error {
			resp, _ := requestJSON(t, client, http.MethodPost, env.server.URL+"/api/subscriptions/me/use-consultation", user, nil)
			statuses[i] = resp.StatusCode
			return nil
		})
	}
	_ = group.Wait()

	succeeded, exhausted := 0, 0
	for _, status := range statuses {
		switch status {
		case http.StatusOK:
			succeeded++
		case http.StatusConflict:
			exhausted++
		default:
			t.Fatalf("unexpected status %d", status)
		}
	}
	if succeeded != 2 || exhausted != callers-2 {
		t.Fatalf("expected 2 successes and %d exhausted, got %d/%d", callers-2, succeeded, exhausted)
	}

	resp, body = requestJSON(t, client, http.MethodGet, env.server.URL+"/api/subscriptions/me", user, nil)
	expectStatus(t, resp, body, http.StatusOK)
	decodeInto(t, body, &sub)
	if sub.ConsultationsUsed != 2 || sub.Remaining != 0 {
		t.Fatalf("expected quota fully used, got %+v", sub)
	}

	resp, body = requestJSON(t, client, http.MethodPost, env.server.URL+"/api/subscriptions/"+sub.ID+"/cancel", user, map[string]string{
		"reason": "switching plans",
	})
	expectStatus(t, resp, body, http.StatusOK)
	decodeInto(t, body, &sub)
	if sub.Status != "cancelled" {
		t.Fatalf("expected cancelled, got %q", sub.Status)
	}

	resp, body = requestJSON(t, client, http.MethodGet, env.server.URL+"/api/subscriptions/me", user, nil)
	expectStatus(t, resp, body, http.StatusOK)
	if strings.TrimSpace(string(body)) != "null" {
		t.Fatalf("expected null body after cancel, got %s", string(body))
	}
}

func TestE2EPaymentWebhook(t *testing.T) {
	env := setupE2E(t)
	defer env.Close()

	client := &http.Client{Timeout: 5 * time.Second}
	user := patient("55555555-5555-4555-8555-555555555555")

	resp, body := requestJSON(t, client, http.MethodPost, env.server.URL+"/api/subscriptions/subscribe", user, map[string]interface{}{
		"plan_id": basicPlanID,
	})
	expectStatus(t, resp, body, http.StatusCreated)
	var sub subscriptionResponse
	decodeInto(t, body, &sub)
	if sub.Status != "pending" {
		t.Fatalf("expected pending before webhook, got %q", sub.Status)
	}

	resp, body = requestJSON(t, client, http.MethodGet, env.server.URL+"/api/subscriptions/me", user, nil)
	expectStatus(t, resp, body, http.StatusOK)
	if strings.TrimSpace(string(body)) != "null" {
		t.Fatalf("pending subscription must not be current, got %s", string(body))
	}

	webhook := func(payload interface{}) map[string]string {
		resp, body := requestJSON(t, client, http.MethodPost, env.server.URL+"/api/subscriptions/webhook", identity{}, payload)
		expectStatus(t, resp, body, http.StatusOK)
		var ack map[string]string
		decodeInto(t, body, &ack)
		return ack
	}

	if ack := webhook(map[string]string{"event": "payment.failed", "subscription_id": sub.ID}); ack["status"] != "ignored" {
		t.Fatalf("expected ignored, got %+v", ack)
	}
	if ack := webhook(map[string]interface{}{
		"event":           "payment.succeeded",
		"subscription_id": sub.ID,
		"amount_cents":    2790,
	}); ack["status"] != "processed" {
		t.Fatalf("expected processed, got %+v", ack)
	}

	resp, body = requestJSON(t, client, http.MethodGet, env.server.URL+"/api/subscriptions/me", user, nil)
	expectStatus(t, resp, body, http.StatusOK)
	decodeInto(t, body, &sub)
	if sub.Status != "active" || sub.AmountPaidCents != 2790 {
		t.Fatalf("expected active with webhook amount, got %+v", sub)
	}

	// Redelivery of the same confirmation must not change anything.
	if ack := webhook(map[string]interface{}{
		"event":           "payment.succeeded",
		"subscription_id": sub.ID,
		"amount_cents":    1,
	}); ack["status"] != "processed" {
		t.Fatalf("expected processed on redelivery, got %+v", ack)
	}
	resp, body = requestJSON(t, client, http.MethodGet, env.server.URL+"/api/subscriptions/me", user, nil)
	expectStatus(t, resp, body, http.StatusOK)
	decodeInto(t, body, &sub)
	if sub.AmountPaidCents != 2790 {
		t.Fatalf("redelivery changed the amount: %d", sub.AmountPaidCents)
	}

	// Unknown subscription and malformed payload are still acknowledged.
	if ack := webhook(map[string]string{
		"event":           "payment.succeeded",
		"subscription_id": "66666666-6666-4666-8666-666666666666",
	}); ack["status"] != "received" {
		t.Fatalf("expected received for unknown subscription, got %+v", ack)
	}
	resp, body = requestJSON(t, client, http.MethodPost, env.server.URL+"/api/subscriptions/webhook", identity{}, "not-an-object")
	expectStatus(t, resp, body, http.StatusOK)
}

func TestE2EExpirationSweep(t *testing.T) {
	env := setupE2E(t)
	defer env.Close()

	client := &http.Client{Timeout: 5 * time.Second}
	user := patient("77777777-7777-4777-8777-777777777777")

	resp, body := requestJSON(t, client, http.MethodPost, env.server.URL+"/api/subscriptions/subscribe", user, map[string]interface{}{
		"plan_id":           basicPlanID,
		"payment_confirmed": true,
	})
	expectStatus(t, resp, body, http.StatusCreated)
	var sub subscriptionResponse
	decodeInto(t, body, &sub)

	if err := env.db.Exec(
		"UPDATE user_subscriptions SET end_date = NOW() - INTERVAL '1 day' WHERE id = ?", sub.ID,
	).Error; err != nil {
		t.Fatalf("backdate subscription: %v", err)
	}

	resp, body = requestJSON(t, client, http.MethodPost, env.server.URL+"/api/internal/expirations/sweep", identity{}, nil)
	expectStatus(t, resp, body, http.StatusOK)
	var sweep map[string]int64
	decodeInto(t, body, &sweep)
	if sweep["expired"] != 1 {
		t.Fatalf("expected 1 expired, got %d", sweep["expired"])
	}

	resp, body = requestJSON(t, client, http.MethodGet, env.server.URL+"/api/subscriptions/me", user, nil)
	expectStatus(t, resp, body, http.StatusOK)
	if strings.TrimSpace(string(body)) != "null" {
		t.Fatalf("expired subscription must not be current, got %s", string(body))
	}

	resp, body = requestJSON(t, client, http.MethodPost, env.server.URL+"/api/subscriptions/me/use-consultation", user, nil)
	expectStatus(t, resp, body, http.StatusNotFound)
	expectErrorCode(t, body, "no_active_subscription")

	// Re-running the sweep over already-expired rows is a no-op.
	resp, body = requestJSON(t, client, http.MethodPost, env.server.URL+"/api/internal/expirations/sweep", identity{}, nil)
	expectStatus(t, resp, body, http.StatusOK)
	decodeInto(t, body, &sweep)
	if sweep["expired"] != 0 {
		t.Fatalf("expected idempotent sweep, got %d", sweep["expired"])
	}
}
