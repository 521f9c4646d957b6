package api_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ayo6706/campus-courier/internal/api"
	"github.com/ayo6706/campus-courier/internal/api/middleware"
	"github.com/ayo6706/campus-courier/internal/config"
	"github.com/ayo6706/campus-courier/internal/domain"
	"github.com/ayo6706/campus-courier/internal/gateway"
	"github.com/ayo6706/campus-courier/internal/idempotency"
	"github.com/ayo6706/campus-courier/internal/models"
	"github.com/ayo6706/campus-courier/internal/repository"
	"github.com/ayo6706/campus-courier/internal/service"
	"github.com/ayo6706/campus-courier/internal/testutil/memstore"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testJWTSecret     = "test-secret-0123456789-test-secret"
	testJWTIssuer     = "campus-courier-test"
	testJWTAudience   = "campus-courier-api-test"
	testWebhookSecret = "whsec_api_test"
)

func init() {
	middleware.SetJWTSecret(testJWTSecret)
	middleware.SetJWTValidation(testJWTIssuer, testJWTAudience)
}

type fakeGateway struct {
	mu        sync.Mutex
	transfers int
	failWith  error
}

func (g *fakeGateway) RegisterPayee(ctx context.Context, accountNumber, bankCode string) (string, error) {
	return "RCP_" + bankCode + accountNumber[6:], nil
}

func (g *fakeGateway) InitiateTransfer(ctx context.Context, recipientCode string, amount int64, reference string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transfers++
	if g.failWith != nil {
		return "", g.failWith
	}
	return fmt.Sprintf("TRF_%d", g.transfers), nil
}

func (g *fakeGateway) transferCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.transfers
}

type testAPI struct {
	router  chi.Router
	store   *memstore.Store
	gateway *fakeGateway
	redis   *miniredis.Miniredis
}

func setupAPI(t *testing.T) *testAPI {
	t.Helper()
	store := memstore.New()
	gw := &fakeGateway{}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.Config{
		HTTPPort:           "0",
		JWTSecret:          testJWTSecret,
		JWTIssuer:          testJWTIssuer,
		JWTAudience:        testJWTAudience,
		WebhookSecret:      testWebhookSecret,
		PublicRateLimitRPS: 1000,
		AuthRateLimitRPS:   1000,
		IdempotencyTTL:     time.Hour,
	}

	payouts := service.NewPayoutService(store, gw, time.Second)
	services := api.Services{
		Orders:      service.NewOrderService(store),
		Assignments: service.NewAssignmentService(store, 15*time.Second),
		Wallets:     service.NewWalletService(store),
		Payouts:     payouts,
		Webhooks:    service.NewWebhookService(store, payouts, testWebhookSecret, false),
	}
	idemStore := idempotency.NewStore(client, store.Queries(), cfg.IdempotencyTTL)
	router := api.NewRouter(cfg, zap.NewNop(), nil, idemStore, client, services)

	return &testAPI{router: router.Routes(), store: store, gateway: gw, redis: mr}
}

func tokenFor(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID.String(),
		"role": role,
		"iss":  testJWTIssuer,
		"aud":  testJWTAudience,
		"iat":  now.Unix(),
		"nbf":  now.Add(-30 * time.Second).Unix(),
		"exp":  now.Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(middleware.JWTSecret())
	require.NoError(t, err)
	return signed
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

type agentActor struct {
	agent models.DeliveryAgent
	token string
}

func (a *testAPI) newAgent(t *testing.T, available bool) agentActor {
	t.Helper()
	userID := uuid.New()
	agent, err := a.store.Queries().CreateDeliveryAgent(context.Background(), repository.CreateDeliveryAgentParams{
		ID:          uuid.New(),
		UserID:      userID,
		IsAvailable: available,
		VehicleType: domain.VehicleMotorcycle,
	})
	require.NoError(t, err)
	return agentActor{agent: agent, token: tokenFor(t, userID, domain.RoleAgent)}
}

func (a *testAPI) createOrder(t *testing.T, total, fee int64) models.Order {
	t.Helper()
	w := a.do(t, http.MethodPost, "/v1/orders", tokenFor(t, uuid.New(), domain.RoleService), map[string]any{
		"customer_id":      uuid.NewString(),
		"seller_id":        uuid.NewString(),
		"seller_type":      domain.SellerTypeVendor,
		"total":            total,
		"delivery_fee":     fee,
		"delivery_address": "Faculty of Engineering, Block B",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var order models.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &order))
	return order
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	require.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRFC7807ProblemDetails(t *testing.T) {
	a := setupAPI(t)

	w := a.do(t, http.MethodGet, "/v1/agents/me", "", nil)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	body := decodeProblem(t, w)
	assert.NotEmpty(t, body["type"])
	assert.Equal(t, float64(http.StatusUnauthorized), body["status"])
	assert.NotEmpty(t, body["title"])
	assert.NotEmpty(t, body["detail"])
	assert.Equal(t, "/v1/agents/me", body["instance"])
	assert.NotEmpty(t, body["request_id"])
}

func TestHealthEndpoints(t *testing.T) {
	a := setupAPI(t)

	w := a.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	a.redis.SetError("ERR server unavailable")
	w = a.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCreateOrderRequiresServiceRole(t *testing.T) {
	a := setupAPI(t)
	agent := a.newAgent(t, true)

	w := a.do(t, http.MethodPost, "/v1/orders", agent.token, map[string]any{
		"customer_id":      uuid.NewString(),
		"seller_id":        uuid.NewString(),
		"seller_type":      domain.SellerTypeRestaurant,
		"total":            5000,
		"delivery_fee":     500,
		"delivery_address": "Hall 1",
	})

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreateOrderValidation(t *testing.T) {
	a := setupAPI(t)
	token := tokenFor(t, uuid.New(), domain.RoleService)

	w := a.do(t, http.MethodPost, "/v1/orders", token, map[string]any{
		"customer_id":      "not-a-uuid",
		"seller_id":        uuid.NewString(),
		"seller_type":      "kiosk",
		"total":            5000,
		"delivery_fee":     500,
		"delivery_address": "Hall 1",
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeProblem(t, w)
	assert.Contains(t, body["detail"], "customer_id")
}

func TestClaimAdvanceAndDeliverCreditsEarnings(t *testing.T) {
	a := setupAPI(t)
	agent := a.newAgent(t, true)
	order := a.createOrder(t, 7500, 600)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Regexp(t, `^CC-\d{8}-[0-9A-F]{6}$`, order.OrderNumber)

	w := a.do(t, http.MethodGet, "/v1/orders/claimable", agent.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), order.ID.String())

	w = a.do(t, http.MethodPost, "/v1/orders/"+order.ID.String()+"/claim", agent.token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var claimed models.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &claimed))
	assert.Equal(t, domain.OrderStatusAccepted, claimed.Status)
	require.NotNil(t, claimed.DeliveryAgentID)
	assert.Equal(t, agent.agent.ID, *claimed.DeliveryAgentID)

	for _, status := range []string{domain.OrderStatusPreparing, domain.OrderStatusReady, domain.OrderStatusPickedUp, domain.OrderStatusDelivered} {
		w = a.do(t, http.MethodPost, "/v1/orders/"+order.ID.String()+"/status", agent.token, map[string]string{"status": status})
		require.Equal(t, http.StatusOK, w.Code, "advance to %s: %s", status, w.Body.String())
	}

	w = a.do(t, http.MethodGet, "/v1/agents/me/wallet", agent.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var wallet map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wallet))
	assert.Equal(t, float64(600), wallet["delivery_earnings"])
	assert.Equal(t, float64(0), wallet["customer_funds"])
	assert.Equal(t, "NGN", wallet["currency"])
}

func TestClaimConflicts(t *testing.T) {
	a := setupAPI(t)
	first := a.newAgent(t, true)
	second := a.newAgent(t, true)
	order := a.createOrder(t, 4000, 300)

	w := a.do(t, http.MethodPost, "/v1/orders/"+order.ID.String()+"/claim", first.token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodPost, "/v1/orders/"+order.ID.String()+"/claim", second.token, nil)
	require.Equal(t, http.StatusConflict, w.Code)
	body := decodeProblem(t, w)
	assert.Contains(t, body["type"], "already-claimed")

	w = a.do(t, http.MethodPost, "/v1/orders/"+uuid.NewString()+"/claim", second.token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClaimCapacityExceeded(t *testing.T) {
	a := setupAPI(t)
	agent := a.newAgent(t, true)

	for i := 0; i < domain.MaxActiveOrdersPerAgent; i++ {
		order := a.createOrder(t, 3000, 200)
		w := a.do(t, http.MethodPost, "/v1/orders/"+order.ID.String()+"/claim", agent.token, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	order := a.createOrder(t, 3000, 200)
	w := a.do(t, http.MethodPost, "/v1/orders/"+order.ID.String()+"/claim", agent.token, nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, decodeProblem(t, w)["type"], "capacity-exceeded")
}

func TestAgentRoleWithoutRecordIsForbidden(t *testing.T) {
	a := setupAPI(t)
	order := a.createOrder(t, 3000, 200)
	token := tokenFor(t, uuid.New(), domain.RoleAgent)

	w := a.do(t, http.MethodPost, "/v1/orders/"+order.ID.String()+"/claim", token, nil)

	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, decodeProblem(t, w)["type"], "not-a-delivery-agent")
}

func TestAdvanceRejectsSkippedStep(t *testing.T) {
	a := setupAPI(t)
	agent := a.newAgent(t, true)
	order := a.createOrder(t, 3000, 200)
	w := a.do(t, http.MethodPost, "/v1/orders/"+order.ID.String()+"/claim", agent.token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodPost, "/v1/orders/"+order.ID.String()+"/status", agent.token, map[string]string{"status": domain.OrderStatusDelivered})

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, decodeProblem(t, w)["type"], "invalid-transition")
}

func TestGetOrderVisibility(t *testing.T) {
	a := setupAPI(t)
	owner := a.newAgent(t, true)
	other := a.newAgent(t, true)
	order := a.createOrder(t, 3000, 200)
	w := a.do(t, http.MethodPost, "/v1/orders/"+order.ID.String()+"/claim", owner.token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodGet, "/v1/orders/"+order.ID.String(), owner.token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodGet, "/v1/orders/"+order.ID.String(), other.token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, http.MethodGet, "/v1/orders/"+order.ID.String(), tokenFor(t, uuid.New(), domain.RoleAdmin), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCancelOnlyWhileUnclaimed(t *testing.T) {
	a := setupAPI(t)
	agent := a.newAgent(t, true)
	svcToken := tokenFor(t, uuid.New(), domain.RoleService)

	open := a.createOrder(t, 3000, 200)
	w := a.do(t, http.MethodPost, "/v1/orders/"+open.ID.String()+"/cancel", svcToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	claimed := a.createOrder(t, 3000, 200)
	w = a.do(t, http.MethodPost, "/v1/orders/"+claimed.ID.String()+"/claim", agent.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = a.do(t, http.MethodPost, "/v1/orders/"+claimed.ID.String()+"/cancel", svcToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAvailabilityToggle(t *testing.T) {
	a := setupAPI(t)
	agent := a.newAgent(t, true)

	w := a.do(t, http.MethodPut, "/v1/agents/me/availability", agent.token, map[string]bool{"available": false})
	require.Equal(t, http.StatusOK, w.Code)

	order := a.createOrder(t, 3000, 200)
	w = a.do(t, http.MethodPost, "/v1/orders/"+order.ID.String()+"/claim", agent.token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, http.MethodPut, "/v1/agents/me/availability", agent.token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// verifyBank walks the agent through bank details and payee registration.
func (a *testAPI) verifyBank(t *testing.T, agent agentActor) {
	t.Helper()
	w := a.do(t, http.MethodPut, "/v1/agents/me/payout-profile", agent.token, map[string]string{
		"account_number": "0123456789",
		"bank_code":      "058",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "0123456789")

	w = a.do(t, http.MethodPost, "/v1/agents/me/payee", agent.token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func (a *testAPI) credit(t *testing.T, agentID uuid.UUID, pool, amount string) {
	t.Helper()
	w := a.do(t, http.MethodPost, "/v1/admin/agents/"+agentID.String()+"/wallet/credits", tokenFor(t, uuid.New(), domain.RoleAdmin), map[string]string{
		"pool":      pool,
		"amount":    amount,
		"reference": uuid.NewString(),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestAdminCreditWallet(t *testing.T) {
	a := setupAPI(t)
	agent := a.newAgent(t, true)

	a.credit(t, agent.agent.ID, domain.PoolCustomerFunds, "150.50")

	w := a.do(t, http.MethodGet, "/v1/agents/me/wallet", agent.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var wallet map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wallet))
	assert.Equal(t, float64(15050), wallet["customer_funds"])
	assert.Equal(t, "NGN 150.50", wallet["display_total"])

	w = a.do(t, http.MethodPost, "/v1/admin/agents/"+agent.agent.ID.String()+"/wallet/credits", tokenFor(t, uuid.New(), domain.RoleAdmin), map[string]string{
		"pool":      domain.PoolCustomerFunds,
		"amount":    "1.005",
		"reference": "ref-1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPost, "/v1/admin/agents/"+agent.agent.ID.String()+"/wallet/credits", agent.token, map[string]string{
		"pool":      domain.PoolCustomerFunds,
		"amount":    "10.00",
		"reference": "ref-2",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWithdrawalRequiresIdempotencyKey(t *testing.T) {
	a := setupAPI(t)
	agent := a.newAgent(t, true)

	w := a.do(t, http.MethodPost, "/v1/withdrawals", agent.token, map[string]any{"pool": domain.PoolDeliveryEarnings, "amount": 100})

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeProblem(t, w)["type"], "idempotency/missing-key")
}

func TestWithdrawalIdempotentReplay(t *testing.T) {
	a := setupAPI(t)
	agent := a.newAgent(t, true)
	a.verifyBank(t, agent)
	a.credit(t, agent.agent.ID, domain.PoolDeliveryEarnings, "50.00")

	key := uuid.NewString()
	payload := map[string]any{"pool": domain.PoolDeliveryEarnings, "amount": 2000}

	first := a.do(t, http.MethodPost, "/v1/withdrawals", agent.token, payload, "Idempotency-Key", key)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	var w1 models.WithdrawalRequest
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &w1))
	assert.Equal(t, domain.WithdrawalStatusCompleted, w1.Status)

	second := a.do(t, http.MethodPost, "/v1/withdrawals", agent.token, payload, "Idempotency-Key", key)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.NotEmpty(t, second.Header().Get("X-Idempotent-Replay"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, a.gateway.transferCount())
	assert.Equal(t, 1, a.store.WithdrawalCount())

	conflict := a.do(t, http.MethodPost, "/v1/withdrawals", agent.token, map[string]any{"pool": domain.PoolDeliveryEarnings, "amount": 1000}, "Idempotency-Key", key)
	assert.Equal(t, http.StatusConflict, conflict.Code)

	w := a.do(t, http.MethodGet, "/v1/agents/me/wallet", agent.token, nil)
	var wallet map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wallet))
	assert.Equal(t, float64(3000), wallet["delivery_earnings"])
}

func TestWithdrawalGatewayFailureReturnsFailedWithdrawal(t *testing.T) {
	a := setupAPI(t)
	agent := a.newAgent(t, true)
	a.verifyBank(t, agent)
	a.credit(t, agent.agent.ID, domain.PoolCustomerFunds, "20.00")
	a.gateway.failWith = fmt.Errorf("%w: insufficient gateway balance", gateway.ErrRejected)

	w := a.do(t, http.MethodPost, "/v1/withdrawals", agent.token, map[string]any{"pool": domain.PoolCustomerFunds, "amount": 1500}, "Idempotency-Key", uuid.NewString())

	require.Equal(t, http.StatusBadGateway, w.Code, w.Body.String())
	var failed models.WithdrawalRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &failed))
	assert.Equal(t, domain.WithdrawalStatusFailed, failed.Status)

	w = a.do(t, http.MethodGet, "/v1/agents/me/wallet", agent.token, nil)
	var wallet map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wallet))
	assert.Equal(t, float64(2000), wallet["customer_funds"])
}

func TestWithdrawalWithoutVerifiedBank(t *testing.T) {
	a := setupAPI(t)
	agent := a.newAgent(t, true)
	a.credit(t, agent.agent.ID, domain.PoolCustomerFunds, "20.00")

	w := a.do(t, http.MethodPost, "/v1/withdrawals", agent.token, map[string]any{"pool": domain.PoolCustomerFunds, "amount": 500}, "Idempotency-Key", uuid.NewString())

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, decodeProblem(t, w)["type"], "bank-not-verified")
}

func TestGetWithdrawalOwnership(t *testing.T) {
	a := setupAPI(t)
	owner := a.newAgent(t, true)
	other := a.newAgent(t, true)
	a.verifyBank(t, owner)
	a.credit(t, owner.agent.ID, domain.PoolDeliveryEarnings, "10.00")

	w := a.do(t, http.MethodPost, "/v1/withdrawals", owner.token, map[string]any{"pool": domain.PoolDeliveryEarnings, "amount": 500}, "Idempotency-Key", uuid.NewString())
	require.Equal(t, http.StatusCreated, w.Code)
	var created models.WithdrawalRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = a.do(t, http.MethodGet, "/v1/withdrawals/"+created.ID.String(), owner.token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = a.do(t, http.MethodGet, "/v1/withdrawals/"+created.ID.String(), other.token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(t, http.MethodGet, "/v1/agents/me/withdrawals", owner.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), created.ID.String())
}

func signWebhook(body []byte) string {
	mac := hmac.New(sha512.New, []byte(testWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookSignature(t *testing.T) {
	a := setupAPI(t)
	body := []byte(`{"event":"charge.success","data":{"reference":"x"}}`)

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/payout-gateway", bytes.NewReader(body))
	req.Header.Set("X-Paystack-Signature", "deadbeef")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/webhooks/payout-gateway", bytes.NewReader(body))
	req.Header.Set("X-Paystack-Signature", signWebhook(body))
	w = httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var result map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, service.WebhookIgnored, result["outcome"])
}

func TestWebhookConfirmsCompletedWithdrawal(t *testing.T) {
	a := setupAPI(t)
	agent := a.newAgent(t, true)
	a.verifyBank(t, agent)
	a.credit(t, agent.agent.ID, domain.PoolDeliveryEarnings, "10.00")

	w := a.do(t, http.MethodPost, "/v1/withdrawals", agent.token, map[string]any{"pool": domain.PoolDeliveryEarnings, "amount": 500}, "Idempotency-Key", uuid.NewString())
	require.Equal(t, http.StatusCreated, w.Code)
	var created models.WithdrawalRequest
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	body := []byte(fmt.Sprintf(`{"event":"transfer.reversed","data":{"reference":%q,"reason":"bank reversed"}}`, created.ID.String()))
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/payout-gateway", bytes.NewReader(body))
	req.Header.Set("X-Paystack-Signature", signWebhook(body))
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, service.WebhookManualReconciliation, result["outcome"])
	assert.Equal(t, domain.WithdrawalStatusCompleted, result["status"])
}

func TestOpenAPISpecServed(t *testing.T) {
	a := setupAPI(t)

	w := a.do(t, http.MethodGet, "/openapi.yaml", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/v1/orders/{id}/claim")
}
