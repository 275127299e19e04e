package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/inkroute/inkroute-backend/api/middleware"
	"github.com/inkroute/inkroute-backend/internal/fulfillment"
	internalorders "github.com/inkroute/inkroute-backend/internal/orders"
	"github.com/inkroute/inkroute-backend/pkg/db/models"
	"github.com/inkroute/inkroute-backend/pkg/enums"
	pkgerrors "github.com/inkroute/inkroute-backend/pkg/errors"
	"github.com/inkroute/inkroute-backend/pkg/logger"
	"github.com/inkroute/inkroute-backend/pkg/pagination"
)

type stubOrdersService struct {
	ingest  func(ctx context.Context, sub internalorders.Submission, mode internalorders.Mode) (*internalorders.Result, error)
	list    func(ctx context.Context, storeID uuid.UUID, params pagination.Params) (*internalorders.OrderList, error)
	listAll func(ctx context.Context, filters internalorders.Filters, params pagination.Params) (*internalorders.OrderList, error)
	find    func(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

func (s *stubOrdersService) Ingest(ctx context.Context, sub internalorders.Submission, mode internalorders.Mode) (*internalorders.Result, error) {
	return s.ingest(ctx, sub, mode)
}

func (s *stubOrdersService) List(ctx context.Context, storeID uuid.UUID, params pagination.Params) (*internalorders.OrderList, error) {
	return s.list(ctx, storeID, params)
}

func (s *stubOrdersService) ListAll(ctx context.Context, filters internalorders.Filters, params pagination.Params) (*internalorders.OrderList, error) {
	return s.listAll(ctx, filters, params)
}

func (s *stubOrdersService) Get(ctx context.Context, storeID, orderID uuid.UUID) (*models.Order, error) {
	panic("not used by controllers")
}

func (s *stubOrdersService) Find(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.find(ctx, orderID)
}

type stubStores struct {
	owned map[uuid.UUID][]models.Store
}

func (s *stubStores) ForOwner(_ context.Context, ownerID uuid.UUID) ([]models.Store, error) {
	return s.owned[ownerID], nil
}

func (s *stubStores) Owned(_ context.Context, ownerID, storeID uuid.UUID) (*models.Store, error) {
	for _, st := range s.owned[ownerID] {
		if st.ID == storeID {
			return &st, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeForbidden, "store belongs to another merchant")
}

type stubFulfillment struct {
	cancel   func(ctx context.Context, actor fulfillment.Actor, orderID uuid.UUID, reason string) (*models.Order, error)
	tracking func(ctx context.Context, actor fulfillment.Actor, orderID uuid.UUID, t fulfillment.Tracking) (*models.Order, error)
	status   func(ctx context.Context, actor fulfillment.Actor, orderID uuid.UUID, status enums.OrderStatus) (*models.Order, error)
	assign   func(ctx context.Context, actor fulfillment.Actor, orderID, providerID uuid.UUID) (*models.Order, error)
}

func (s *stubFulfillment) Cancel(ctx context.Context, actor fulfillment.Actor, orderID uuid.UUID, reason string) (*models.Order, error) {
	return s.cancel(ctx, actor, orderID, reason)
}

func (s *stubFulfillment) UpdateTracking(ctx context.Context, actor fulfillment.Actor, orderID uuid.UUID, t fulfillment.Tracking) (*models.Order, error) {
	return s.tracking(ctx, actor, orderID, t)
}

func (s *stubFulfillment) UpdateStatus(ctx context.Context, actor fulfillment.Actor, orderID uuid.UUID, status enums.OrderStatus) (*models.Order, error) {
	return s.status(ctx, actor, orderID, status)
}

func (s *stubFulfillment) AssignProvider(ctx context.Context, actor fulfillment.Actor, orderID, providerID uuid.UUID) (*models.Order, error) {
	return s.assign(ctx, actor, orderID, providerID)
}

func dashboardRequest(method, target, body string, userID uuid.UUID, role enums.UserRole, params map[string]string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	ctx := middleware.WithUserID(req.Context(), userID.String())
	ctx = middleware.WithRole(ctx, string(role))
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rc)
	return req.WithContext(ctx)
}

func publicRequest(method, target, body string, storeID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return req.WithContext(middleware.WithStoreID(req.Context(), storeID.String()))
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, resp.Body.String())
	}
	return payload.Error.Code
}

func TestListScopesMerchantToOwnedStores(t *testing.T) {
	userID := uuid.New()
	storeA, storeB := uuid.New(), uuid.New()
	stores := &stubStores{owned: map[uuid.UUID][]models.Store{userID: {{ID: storeA}, {ID: storeB}}}}

	var got internalorders.Filters
	svc := &stubOrdersService{listAll: func(_ context.Context, filters internalorders.Filters, params pagination.Params) (*internalorders.OrderList, error) {
		got = filters
		if params.Limit != 10 {
			t.Fatalf("expected limit 10 got %d", params.Limit)
		}
		return &internalorders.OrderList{Orders: []models.Order{{ID: uuid.New(), StoreID: storeA, Status: enums.OrderStatusCreated}}, NextCursor: "next"}, nil
	}}

	req := dashboardRequest(http.MethodGet, "/api/orders?limit=10&status=created", "", userID, enums.UserRoleMerchant, nil)
	resp := httptest.NewRecorder()
	List(svc, stores, logger.Nop())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if len(got.StoreIDs) != 2 || got.Status == nil || *got.Status != enums.OrderStatusCreated {
		t.Fatalf("unexpected filters %+v", got)
	}
	var envelope struct {
		Data struct {
			Orders     []map[string]any `json:"orders"`
			NextCursor string           `json:"next_cursor"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(envelope.Data.Orders) != 1 || envelope.Data.NextCursor != "next" {
		t.Fatalf("unexpected payload %s", resp.Body.String())
	}
	if envelope.Data.Orders[0]["status"] != "created" {
		t.Fatalf("expected snake_case order json, got %v", envelope.Data.Orders[0])
	}
}

func TestListRejectsForeignStoreFilter(t *testing.T) {
	userID := uuid.New()
	stores := &stubStores{owned: map[uuid.UUID][]models.Store{}}
	svc := &stubOrdersService{listAll: func(context.Context, internalorders.Filters, pagination.Params) (*internalorders.OrderList, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}

	req := dashboardRequest(http.MethodGet, "/api/orders?store_id="+uuid.NewString(), "", userID, enums.UserRoleMerchant, nil)
	resp := httptest.NewRecorder()
	List(svc, stores, logger.Nop())(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestListAdminSeesEveryStore(t *testing.T) {
	var got internalorders.Filters
	svc := &stubOrdersService{listAll: func(_ context.Context, filters internalorders.Filters, _ pagination.Params) (*internalorders.OrderList, error) {
		got = filters
		return &internalorders.OrderList{}, nil
	}}
	req := dashboardRequest(http.MethodGet, "/api/orders", "", uuid.New(), enums.UserRoleAdmin, nil)
	resp := httptest.NewRecorder()
	List(svc, &stubStores{}, logger.Nop())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if len(got.StoreIDs) != 0 {
		t.Fatalf("admin listing must not be store scoped: %+v", got)
	}
}

func TestDetailHidesForeignOrders(t *testing.T) {
	userID := uuid.New()
	orderID := uuid.New()
	svc := &stubOrdersService{find: func(_ context.Context, id uuid.UUID) (*models.Order, error) {
		return &models.Order{ID: id, StoreID: uuid.New()}, nil
	}}
	req := dashboardRequest(http.MethodGet, "/api/orders/"+orderID.String(), "", userID, enums.UserRoleMerchant, map[string]string{"orderId": orderID.String()})
	resp := httptest.NewRecorder()
	Detail(svc, &stubStores{owned: map[uuid.UUID][]models.Store{}}, logger.Nop())(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestDetailInvalidOrderID(t *testing.T) {
	req := dashboardRequest(http.MethodGet, "/api/orders/nope", "", uuid.New(), enums.UserRoleMerchant, map[string]string{"orderId": "nope"})
	resp := httptest.NewRecorder()
	Detail(&stubOrdersService{}, &stubStores{}, logger.Nop())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCancelPassesActorAndReason(t *testing.T) {
	userID := uuid.New()
	orderID := uuid.New()
	svc := &stubFulfillment{cancel: func(_ context.Context, actor fulfillment.Actor, id uuid.UUID, reason string) (*models.Order, error) {
		if actor.UserID != userID || actor.Role != enums.UserRoleMerchant {
			t.Fatalf("unexpected actor %+v", actor)
		}
		if id != orderID || reason != "customer changed mind" {
			t.Fatalf("unexpected cancel args %s %q", id, reason)
		}
		return &models.Order{ID: id, Status: enums.OrderStatusCancelled}, nil
	}}

	req := dashboardRequest(http.MethodPost, "/api/orders/"+orderID.String()+"/cancel", `{"reason":"  customer changed mind "}`, userID, enums.UserRoleMerchant, map[string]string{"orderId": orderID.String()})
	resp := httptest.NewRecorder()
	Cancel(svc, logger.Nop())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestCancelWithoutBody(t *testing.T) {
	orderID := uuid.New()
	called := false
	svc := &stubFulfillment{cancel: func(_ context.Context, _ fulfillment.Actor, id uuid.UUID, reason string) (*models.Order, error) {
		called = true
		if reason != "" {
			t.Fatalf("expected empty reason got %q", reason)
		}
		return &models.Order{ID: id, Status: enums.OrderStatusCancelled}, nil
	}}
	req := dashboardRequest(http.MethodPost, "/api/orders/x/cancel", "", uuid.New(), enums.UserRoleMerchant, map[string]string{"orderId": orderID.String()})
	resp := httptest.NewRecorder()
	Cancel(svc, logger.Nop())(resp, req)
	if resp.Code != http.StatusOK || !called {
		t.Fatalf("expected cancel to run, status %d", resp.Code)
	}
}

func TestCancelSurfacesInvalidStatus(t *testing.T) {
	orderID := uuid.New()
	svc := &stubFulfillment{cancel: func(context.Context, fulfillment.Actor, uuid.UUID, string) (*models.Order, error) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidStatus, "cannot cancel a shipped order")
	}}
	req := dashboardRequest(http.MethodPost, "/api/orders/x/cancel", "", uuid.New(), enums.UserRoleMerchant, map[string]string{"orderId": orderID.String()})
	resp := httptest.NewRecorder()
	Cancel(svc, logger.Nop())(resp, req)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
	if code := decodeError(t, resp); code != string(pkgerrors.CodeInvalidStatus) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestTrackingRequiresNumber(t *testing.T) {
	orderID := uuid.New()
	svc := &stubFulfillment{tracking: func(context.Context, fulfillment.Actor, uuid.UUID, fulfillment.Tracking) (*models.Order, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}
	req := dashboardRequest(http.MethodPost, "/api/orders/x/tracking", `{"carrier":"UPS"}`, uuid.New(), enums.UserRoleMerchant, map[string]string{"orderId": orderID.String()})
	resp := httptest.NewRecorder()
	Tracking(svc, logger.Nop())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestTrackingShipsOrder(t *testing.T) {
	orderID := uuid.New()
	number := "1Z999"
	svc := &stubFulfillment{tracking: func(_ context.Context, _ fulfillment.Actor, id uuid.UUID, tr fulfillment.Tracking) (*models.Order, error) {
		if tr.Number != number || tr.Carrier != "UPS" {
			t.Fatalf("unexpected tracking %+v", tr)
		}
		return &models.Order{ID: id, Status: enums.OrderStatusShipped, TrackingNumber: &number}, nil
	}}
	req := dashboardRequest(http.MethodPost, "/api/orders/x/tracking", `{"tracking_number":"1Z999","carrier":"UPS"}`, uuid.New(), enums.UserRoleMerchant, map[string]string{"orderId": orderID.String()})
	resp := httptest.NewRecorder()
	Tracking(svc, logger.Nop())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), `"tracking_number":"1Z999"`) {
		t.Fatalf("expected tracking in body: %s", resp.Body.String())
	}
}

func TestPublicCreateReturns201(t *testing.T) {
	storeID := uuid.New()
	productID := uuid.New()
	providerID := uuid.New()
	orderID := uuid.New()
	svc := &stubOrdersService{ingest: func(_ context.Context, sub internalorders.Submission, mode internalorders.Mode) (*internalorders.Result, error) {
		if mode != internalorders.ModeCreate {
			t.Fatalf("expected create mode got %s", mode)
		}
		if sub.StoreID != storeID || sub.Platform != enums.PlatformAPI || sub.ExternalOrderID != "ext-1" {
			t.Fatalf("unexpected submission %+v", sub)
		}
		if len(sub.Items) != 1 || *sub.Items[0].ProductID != productID || sub.Items[0].Quantity != 2 || sub.Items[0].VariantID != "L" {
			t.Fatalf("unexpected items %+v", sub.Items)
		}
		return &internalorders.Result{OrderID: orderID, AssignedProviderID: &providerID, Created: true}, nil
	}}

	body := `{
		"external_order_id":"ext-1",
		"shipping_address":{"line1":"1 Main St","city":"Austin","postal_code":"78701","country":"US"},
		"customer":{"email":"buyer@example.com","name":"Buyer"},
		"items":[{"product_id":"` + productID.String() + `","variant_id":"L","quantity":2}]
	}`
	resp := httptest.NewRecorder()
	PublicCreate(svc, logger.Nop())(resp, publicRequest(http.MethodPost, "/api/v1/orders", body, storeID))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Success bool `json:"success"`
		Data    struct {
			OrderID          string `json:"order_id"`
			AssignedProvider string `json:"assigned_provider"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !envelope.Success || envelope.Data.OrderID != orderID.String() || envelope.Data.AssignedProvider != providerID.String() {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestPublicCreateValidation(t *testing.T) {
	svc := &stubOrdersService{ingest: func(context.Context, internalorders.Submission, internalorders.Mode) (*internalorders.Result, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}
	cases := map[string]string{
		"missing external id": `{"shipping_address":{"line1":"a","city":"b","postal_code":"c","country":"US"},"customer":{"email":"a@b.co","name":"n"},"items":[{"product_id":"` + uuid.NewString() + `","quantity":1}]}`,
		"missing customer":    `{"external_order_id":"x","shipping_address":{"line1":"a","city":"b","postal_code":"c","country":"US"},"items":[{"product_id":"` + uuid.NewString() + `","quantity":1}]}`,
		"no items":            `{"external_order_id":"x","shipping_address":{"line1":"a","city":"b","postal_code":"c","country":"US"},"customer":{"email":"a@b.co","name":"n"},"items":[]}`,
		"zero quantity":       `{"external_order_id":"x","shipping_address":{"line1":"a","city":"b","postal_code":"c","country":"US"},"customer":{"email":"a@b.co","name":"n"},"items":[{"product_id":"` + uuid.NewString() + `","quantity":0}]}`,
		"bad product id":      `{"external_order_id":"x","shipping_address":{"line1":"a","city":"b","postal_code":"c","country":"US"},"customer":{"email":"a@b.co","name":"n"},"items":[{"product_id":"abc","quantity":1}]}`,
	}
	for name, body := range cases {
		resp := httptest.NewRecorder()
		PublicCreate(svc, logger.Nop())(resp, publicRequest(http.MethodPost, "/api/v1/orders", body, uuid.New()))
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", name, resp.Code)
		}
	}
}

func TestPublicCreateMapsDomainErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{pkgerrors.New(pkgerrors.CodeDuplicate, "order ext-1 already exists"), http.StatusConflict},
		{pkgerrors.New(pkgerrors.CodeNotFound, "product not found"), http.StatusNotFound},
		{pkgerrors.New(pkgerrors.CodeForbidden, "product does not belong to this store"), http.StatusForbidden},
		{pkgerrors.New(pkgerrors.CodeLimitReached, "orders limit reached"), http.StatusTooManyRequests},
	}
	body := `{"external_order_id":"ext-1","shipping_address":{"line1":"a","city":"b","postal_code":"c","country":"US"},"customer":{"email":"a@b.co","name":"n"},"items":[{"product_id":"` + uuid.NewString() + `","quantity":1}]}`
	for _, tc := range cases {
		svc := &stubOrdersService{ingest: func(context.Context, internalorders.Submission, internalorders.Mode) (*internalorders.Result, error) {
			return nil, tc.err
		}}
		resp := httptest.NewRecorder()
		PublicCreate(svc, logger.Nop())(resp, publicRequest(http.MethodPost, "/api/v1/orders", body, uuid.New()))
		if resp.Code != tc.status {
			t.Fatalf("%v: expected %d got %d", tc.err, tc.status, resp.Code)
		}
	}
}

func TestPublicListShape(t *testing.T) {
	storeID := uuid.New()
	svc := &stubOrdersService{list: func(_ context.Context, id uuid.UUID, _ pagination.Params) (*internalorders.OrderList, error) {
		if id != storeID {
			t.Fatalf("unexpected store %s", id)
		}
		return &internalorders.OrderList{Orders: []models.Order{{ID: uuid.New(), StoreID: storeID}}}, nil
	}}
	resp := httptest.NewRecorder()
	PublicList(svc, logger.Nop())(resp, publicRequest(http.MethodGet, "/api/v1/orders", "", storeID))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Success bool             `json:"success"`
		Data    []map[string]any `json:"data"`
		Meta    struct {
			Count int `json:"count"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !envelope.Success || len(envelope.Data) != 1 || envelope.Meta.Count != 1 {
		t.Fatalf("unexpected list body %s", resp.Body.String())
	}
}

func TestAdminUpdateStatus(t *testing.T) {
	orderID := uuid.New()
	svc := &stubFulfillment{status: func(_ context.Context, actor fulfillment.Actor, id uuid.UUID, status enums.OrderStatus) (*models.Order, error) {
		if !actor.IsAdmin() || status != enums.OrderStatusFulfilled {
			t.Fatalf("unexpected args %+v %s", actor, status)
		}
		return &models.Order{ID: id, Status: status}, nil
	}}
	req := dashboardRequest(http.MethodPatch, "/api/admin/orders/x/status", `{"status":"fulfilled"}`, uuid.New(), enums.UserRoleAdmin, map[string]string{"orderId": orderID.String()})
	resp := httptest.NewRecorder()
	AdminUpdateStatus(svc, logger.Nop())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}

	req = dashboardRequest(http.MethodPatch, "/api/admin/orders/x/status", `{"status":"lost"}`, uuid.New(), enums.UserRoleAdmin, map[string]string{"orderId": orderID.String()})
	resp = httptest.NewRecorder()
	AdminUpdateStatus(svc, logger.Nop())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status got %d", resp.Code)
	}
}

func TestAdminAssignProvider(t *testing.T) {
	orderID := uuid.New()
	providerID := uuid.New()
	svc := &stubFulfillment{assign: func(_ context.Context, _ fulfillment.Actor, id, pid uuid.UUID) (*models.Order, error) {
		if pid != providerID {
			t.Fatalf("unexpected provider %s", pid)
		}
		method := enums.AssignmentManual
		return &models.Order{ID: id, AssignedProviderID: &pid, AssignmentMethod: &method}, nil
	}}
	req := dashboardRequest(http.MethodPost, "/api/admin/orders/x/provider", `{"provider_id":"`+providerID.String()+`"}`, uuid.New(), enums.UserRoleAdmin, map[string]string{"orderId": orderID.String()})
	resp := httptest.NewRecorder()
	AdminAssignProvider(svc, logger.Nop())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), `"assignment_method":"manual"`) {
		t.Fatalf("expected manual assignment in body: %s", resp.Body.String())
	}
}
