package routes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/inkroute/inkroute-backend/internal/orders"
	"github.com/inkroute/inkroute-backend/internal/providers"
	"github.com/inkroute/inkroute-backend/internal/quota"
	"github.com/inkroute/inkroute-backend/internal/webhooks"
	pkgAuth "github.com/inkroute/inkroute-backend/pkg/auth"
	"github.com/inkroute/inkroute-backend/pkg/config"
	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/enums"
	pkgerrors "github.com/inkroute/inkroute-backend/pkg/errors"
	"github.com/inkroute/inkroute-backend/pkg/logger"
	"github.com/inkroute/inkroute-backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type memoryCache struct {
	mu       sync.Mutex
	values   map[string]string
	counters map[string]int64
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string]string{}, counters: map[string]int64{}}
}

func (m *memoryCache) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[scope]++
	return m.counters[scope] <= limit, m.counters[scope], nil
}

func (m *memoryCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *memoryCache) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryCache) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func (m *memoryCache) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *memoryCache) Ping(context.Context) error {
	return nil
}

type stubSessions struct{}

func (stubSessions) HasSession(context.Context, string) (bool, error) {
	return true, nil
}

type stubStores struct {
	store models.Store
	key   string
}

func (s stubStores) Authenticate(_ context.Context, rawKey string) (*models.Store, error) {
	if rawKey != s.key {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid api key")
	}
	store := s.store
	return &store, nil
}

func (s stubStores) ForOwner(context.Context, uuid.UUID) ([]models.Store, error) {
	return []models.Store{s.store}, nil
}

func (s stubStores) Owned(_ context.Context, ownerID, storeID uuid.UUID) (*models.Store, error) {
	if ownerID != s.store.OwnerUserID || storeID != s.store.ID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
	}
	store := s.store
	return &store, nil
}

func (s stubStores) RotateAPIKey(context.Context, uuid.UUID, uuid.UUID) (string, error) {
	return "ink_new_secret", nil
}

type stubQuota struct {
	mu       sync.Mutex
	reserved int
}

func (q *stubQuota) ForStore(_ context.Context, storeID uuid.UUID) (models.Subscription, error) {
	return models.Subscription{ID: storeID}, nil
}

func (q *stubQuota) Reserve(context.Context, uuid.UUID, enums.QuotaResource, int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reserved++
	return nil
}

func (q *stubQuota) Report(context.Context, uuid.UUID) (models.Subscription, []quota.Usage, error) {
	return models.Subscription{}, nil, nil
}

func (q *stubQuota) Reconcile(context.Context, uuid.UUID) (models.Subscription, error) {
	return models.Subscription{}, nil
}

type stubOrders struct {
	mu     sync.Mutex
	ingest int
}

func (s *stubOrders) Ingest(context.Context, orders.Submission, orders.Mode) (*orders.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ingest++
	return &orders.Result{OrderID: uuid.New(), Created: true}, nil
}

func (s *stubOrders) List(context.Context, uuid.UUID, pagination.Params) (*orders.OrderList, error) {
	return &orders.OrderList{}, nil
}

func (s *stubOrders) ListAll(context.Context, orders.Filters, pagination.Params) (*orders.OrderList, error) {
	return &orders.OrderList{}, nil
}

func (s *stubOrders) Get(context.Context, uuid.UUID, uuid.UUID) (*models.Order, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func (s *stubOrders) Find(context.Context, uuid.UUID) (*models.Order, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

type stubReceiver struct {
	calls int
}

func (s *stubReceiver) Receive(context.Context, webhooks.Delivery) (*webhooks.Outcome, error) {
	s.calls++
	return &webhooks.Outcome{}, nil
}

type stubProviders struct{}

func (stubProviders) List(context.Context) ([]models.Provider, error) {
	return []models.Provider{{ID: uuid.New(), Name: "PrintCo", Country: "US", Status: enums.ProviderStatusActive}}, nil
}

func (stubProviders) Get(context.Context, uuid.UUID) (*models.Provider, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "provider not found")
}

func (stubProviders) Create(context.Context, providers.CreateInput) (*models.Provider, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

func (stubProviders) UpdateStatus(context.Context, uuid.UUID, enums.ProviderStatus) error {
	return nil
}

type fixture struct {
	handler http.Handler
	cfg     *config.Config
	orders  *stubOrders
	quota   *stubQuota
	hooks   *stubReceiver
	store   models.Store
	apiKey  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "router-test-secret", Issuer: "inkroute", ExpirationMinutes: 15},
		HTTP: config.HTTPConfig{
			CORSOrigins:       []string{"http://localhost:3000"},
			LoginWindow:       time.Minute,
			LoginIPLimit:      10,
			LoginEmailLimit:   5,
			RequestsPerMinute: 100,
		},
		Webhooks: config.WebhookConfig{MaxBodyBytes: 1 << 20},
	}
	store := models.Store{ID: uuid.New(), OwnerUserID: uuid.New(), Name: "Ink Shop", Platform: enums.PlatformAPI}
	f := &fixture{
		cfg:    cfg,
		orders: &stubOrders{},
		quota:  &stubQuota{},
		hooks:  &stubReceiver{},
		store:  store,
		apiKey: "ink_abcd1234_secret",
	}
	f.handler = NewRouter(cfg, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}), Dependencies{
		DB:        stubPinger{},
		Cache:     newMemoryCache(),
		Sessions:  stubSessions{},
		Gatherer:  prometheus.NewRegistry(),
		Stores:    stubStores{store: store, key: f.apiKey},
		Orders:    f.orders,
		Providers: stubProviders{},
		Quota:     f.quota,
		Webhooks:  f.hooks,
	})
	return f
}

func (f *fixture) token(t *testing.T, role enums.UserRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(f.cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
		JTI:    uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func (f *fixture) do(method, target, auth, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if auth != "" {
		req.Header.Set("Authorization", "Bearer "+auth)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	f.handler.ServeHTTP(resp, req)
	return resp
}

func TestHealthAndMetricsAreOpen(t *testing.T) {
	f := newFixture(t)
	if resp := f.do(http.MethodGet, "/health/live", "", "", nil); resp.Code != http.StatusOK {
		t.Fatalf("live: expected 200 got %d", resp.Code)
	}
	if resp := f.do(http.MethodGet, "/health/ready", "", "", nil); resp.Code != http.StatusOK {
		t.Fatalf("ready: expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if resp := f.do(http.MethodGet, "/metrics", "", "", nil); resp.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200 got %d", resp.Code)
	}
}

func TestDashboardRoutesRequireToken(t *testing.T) {
	f := newFixture(t)
	for _, target := range []string{"/api/orders", "/api/notifications", "/api/subscription/usage", "/api/stores"} {
		if resp := f.do(http.MethodGet, target, "", "", nil); resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 got %d", target, resp.Code)
		}
	}
	if resp := f.do(http.MethodGet, "/api/orders", "not-a-jwt", "", nil); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a malformed token got %d", resp.Code)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	f := newFixture(t)

	resp := f.do(http.MethodGet, "/api/admin/providers", f.token(t, enums.UserRoleMerchant), "", nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("merchant: expected 403 got %d", resp.Code)
	}

	resp = f.do(http.MethodGet, "/api/admin/providers", f.token(t, enums.UserRoleAdmin), "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("admin: expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), "PrintCo") {
		t.Fatalf("expected provider list, got %s", resp.Body.String())
	}
}

func TestPublicAPIRequiresStoreKey(t *testing.T) {
	f := newFixture(t)

	if resp := f.do(http.MethodGet, "/api/v1/orders", "", "", nil); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a key got %d", resp.Code)
	}
	if resp := f.do(http.MethodGet, "/api/v1/orders", "ink_wrong_key", "", nil); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a wrong key got %d", resp.Code)
	}

	resp := f.do(http.MethodGet, "/api/v1/orders", f.apiKey, "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), `"success":true`) {
		t.Fatalf("expected public envelope, got %s", resp.Body.String())
	}
	if f.quota.reserved != 1 {
		t.Fatalf("expected one api call reserved, got %d", f.quota.reserved)
	}
}

func TestPublicCreateReplaysIdempotentRequests(t *testing.T) {
	f := newFixture(t)
	body := fmt.Sprintf(`{"external_order_id":"ext-1","shipping_address":{"line1":"1 Main St","city":"Austin","postal_code":"78701","country":"US"},"customer":{"email":"buyer@example.com","name":"Buyer"},"items":[{"product_id":%q,"quantity":2}]}`, uuid.NewString())
	headers := map[string]string{"Idempotency-Key": "create-ext-1", "Content-Type": "application/json"}

	first := f.do(http.MethodPost, "/api/v1/orders", f.apiKey, body, headers)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", first.Code, first.Body.String())
	}
	second := f.do(http.MethodPost, "/api/v1/orders", f.apiKey, body, headers)
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201 got %d", second.Code)
	}
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatal("expected replay header on the second call")
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replayed body differs: %s vs %s", second.Body.String(), first.Body.String())
	}
	if f.orders.ingest != 1 {
		t.Fatalf("expected one ingest, got %d", f.orders.ingest)
	}
}

func TestShopifyWebhookRouteRejectsMissingHeaders(t *testing.T) {
	f := newFixture(t)
	resp := f.do(http.MethodPost, "/api/shopify/webhooks/orders/create", "", `{"id":1}`, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if f.hooks.calls != 0 {
		t.Fatalf("rejected deliveries must not reach the receiver, got %d", f.hooks.calls)
	}
}

func TestShopifyWebhookRouteForwardsSignedDelivery(t *testing.T) {
	f := newFixture(t)
	resp := f.do(http.MethodPost, "/api/shopify/webhooks/orders/create", "", `{"id":1}`, map[string]string{
		"X-Shopify-Hmac-Sha256": "c2lnbmF0dXJl",
		"X-Shopify-Shop-Domain": "ink.myshopify.com",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
	if f.hooks.calls != 1 {
		t.Fatalf("expected one delivery, got %d", f.hooks.calls)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	f := newFixture(t)
	if resp := f.do(http.MethodGet, "/api/nope", f.token(t, enums.UserRoleMerchant), "", nil); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}
