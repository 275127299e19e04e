package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/inkroute/inkroute-backend/pkg/auth"
	"github.com/inkroute/inkroute-backend/pkg/config"
	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/enums"
	pkgerrors "github.com/inkroute/inkroute-backend/pkg/errors"
)

func testJWT() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "inkroute", ExpirationMinutes: 10}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(testJWT(), stubSessionVerifier{ok: true}, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	handler := Auth(testJWT(), stubSessionVerifier{ok: true}, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsRevokedSession(t *testing.T) {
	cfg := testJWT()
	token, _ := mintTestToken(t, cfg, enums.UserRoleMerchant)
	handler := Auth(cfg, stubSessionVerifier{ok: false}, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthSessionStoreDown(t *testing.T) {
	cfg := testJWT()
	token, _ := mintTestToken(t, cfg, enums.UserRoleMerchant)
	handler := Auth(cfg, stubSessionVerifier{err: errors.New("redis down")}, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestAuthAllowsValidToken(t *testing.T) {
	cfg := testJWT()
	token, userID := mintTestToken(t, cfg, enums.UserRoleAdmin)

	var captured struct {
		user  string
		role  string
		store string
		jti   string
	}
	handler := Auth(cfg, stubSessionVerifier{ok: true}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.user = UserIDFromContext(r.Context())
		captured.role = RoleFromContext(r.Context())
		captured.store = StoreIDFromContext(r.Context())
		captured.jti = TokenIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.user != userID.String() {
		t.Fatalf("expected user %s got %s", userID, captured.user)
	}
	if captured.role != string(enums.UserRoleAdmin) {
		t.Fatalf("expected role admin got %s", captured.role)
	}
	if captured.store != "" {
		t.Fatalf("dashboard tokens carry no store, got %s", captured.store)
	}
	if captured.jti == "" {
		t.Fatal("expected token id in context")
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(string(enums.UserRoleAdmin), nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithRole(req.Context(), string(enums.UserRoleMerchant)))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithRole(req.Context(), string(enums.UserRoleAdmin)))
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestAPIKeyAuthenticatesAndMeters(t *testing.T) {
	store := &models.Store{ID: uuid.New(), OwnerUserID: uuid.New()}
	stores := &stubStores{store: store, key: "ink_abc_secret"}
	meter := &stubMeter{limit: 1}

	var gotStore, gotUser string
	handler := APIKey(stores, meter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotStore = StoreIDFromContext(r.Context())
		gotUser = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	call := func(key string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
		if key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
		}
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		return resp.Code
	}

	if code := call(""); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key got %d", code)
	}
	if code := call("ink_abc_wrong"); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad key got %d", code)
	}
	if meter.reserved != 0 {
		t.Fatalf("rejected keys must not consume quota")
	}
	if code := call("ink_abc_secret"); code != http.StatusOK {
		t.Fatalf("expected 200 got %d", code)
	}
	if gotStore != store.ID.String() || gotUser != store.OwnerUserID.String() {
		t.Fatalf("unexpected context store=%s user=%s", gotStore, gotUser)
	}
	if code := call("ink_abc_secret"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once api_calls exhausted got %d", code)
	}
}

func TestRateLimitPerCaller(t *testing.T) {
	limiter := newFakeRateStore()
	handler := RateLimit(limiter, 1, time.Minute, nil)(okHandler())

	call := func(userID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithUserID(req.Context(), userID))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		return resp
	}

	if resp := call("u1"); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	resp := call("u1")
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", resp.Code)
	}
	if resp.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After 60 got %q", resp.Header().Get("Retry-After"))
	}
	if resp := call("u2"); resp.Code != http.StatusOK {
		t.Fatalf("other callers keep their own window, got %d", resp.Code)
	}
}

func mintTestToken(t *testing.T, cfg config.JWTConfig, role enums.UserRole) (string, uuid.UUID) {
	t.Helper()
	userID := uuid.New()
	token, err := auth.MintAccessToken(cfg, time.Now(), auth.AccessTokenPayload{
		UserID: userID,
		Role:   role,
		JTI:    uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token, userID
}

type stubSessionVerifier struct {
	ok  bool
	err error
}

func (s stubSessionVerifier) HasSession(ctx context.Context, accessID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.ok, nil
}

type stubStores struct {
	store *models.Store
	key   string
}

func (s *stubStores) Authenticate(_ context.Context, rawKey string) (*models.Store, error) {
	if rawKey != s.key {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid api key")
	}
	return s.store, nil
}

type stubMeter struct {
	limit    int64
	reserved int64
}

func (m *stubMeter) ForStore(_ context.Context, storeID uuid.UUID) (models.Subscription, error) {
	return models.Subscription{ID: uuid.New(), StoreID: storeID}, nil
}

func (m *stubMeter) Reserve(_ context.Context, _ uuid.UUID, resource enums.QuotaResource, delta int64) error {
	if resource != enums.ResourceAPICalls {
		return pkgerrors.New(pkgerrors.CodeValidation, "unexpected resource")
	}
	if m.reserved+delta > m.limit {
		return pkgerrors.New(pkgerrors.CodeLimitReached, "api_calls limit reached")
	}
	m.reserved += delta
	return nil
}
