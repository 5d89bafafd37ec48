package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/aura-apparel/api/internal/domain"
	"github.com/aura-apparel/api/internal/platform/auth"
	"github.com/aura-apparel/api/internal/services"
)

type stubTokenVerifier struct {
	identities map[string]*auth.Identity
}

func (s *stubTokenVerifier) Verify(token string) (*auth.Identity, error) {
	if identity, ok := s.identities[token]; ok {
		return identity, nil
	}
	return nil, auth.ErrTokenInvalid
}

func testAuthenticator() *auth.Authenticator {
	return auth.NewAuthenticator(&stubTokenVerifier{identities: map[string]*auth.Identity{
		"customer-token": {UserID: "user_1", Roles: []string{auth.RoleCustomer}},
		"staff-token":    {UserID: "staff_1", Roles: []string{auth.RoleStaff}},
	}})
}

type stubOrderService struct {
	orders      map[string]domain.Order
	listResult  domain.CursorPage[domain.Order]
	listErr     error
	transitions []services.OrderTransitionCommand
	err         error
}

func (s *stubOrderService) CreateOrder(_ context.Context, cmd services.CreateOrderCommand) (domain.Order, error) {
	return domain.Order{}, s.err
}

func (s *stubOrderService) GetOrder(_ context.Context, cmd services.OrderReadCommand) (domain.Order, error) {
	if s.err != nil {
		return domain.Order{}, s.err
	}
	order, ok := s.orders[cmd.OrderID]
	if !ok || order.UserID != cmd.UserID {
		return domain.Order{}, services.ErrOrderNotFound
	}
	return order, nil
}

func (s *stubOrderService) ListOrders(_ context.Context, cmd services.OrderListCommand) (domain.CursorPage[domain.Order], error) {
	if s.listErr != nil {
		return domain.CursorPage[domain.Order]{}, s.listErr
	}
	return s.listResult, nil
}

func (s *stubOrderService) Transition(_ context.Context, cmd services.OrderTransitionCommand) (domain.Order, error) {
	s.transitions = append(s.transitions, cmd)
	if s.err != nil {
		return domain.Order{}, s.err
	}
	order, ok := s.orders[cmd.OrderID]
	if !ok {
		return domain.Order{}, services.ErrOrderNotFound
	}
	order.State = cmd.Target
	return order, nil
}

func (s *stubOrderService) MarkPaymentSucceeded(_ context.Context, cmd services.PaymentConfirmationCommand) (domain.Order, error) {
	return domain.Order{}, s.err
}

func (s *stubOrderService) MarkPaymentFailed(_ context.Context, cmd services.PaymentFailureCommand) (domain.Order, error) {
	return domain.Order{}, s.err
}

func sampleOrder(id, userID string) domain.Order {
	created := time.Date(2025, time.April, 2, 10, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:          id,
		OrderNumber: "AURA-1743588000000-ABCDEF123",
		UserID:      userID,
		State:       domain.OrderState{Status: domain.OrderStatusPending, Payment: domain.PaymentStatusPending},
		Currency:    "INR",
		Totals:      domain.OrderTotals{Subtotal: 99800, Shipping: 4900, Total: 104700},
		ShippingAddress: domain.Address{
			Recipient:  "A Shopper",
			Line1:      "12 Marine Drive",
			City:       "Mumbai",
			PostalCode: "400001",
			Country:    "IN",
		},
		Items: []domain.OrderItem{{
			ID:        "itm_1",
			OrderID:   id,
			ProductID: "prod_1",
			Title:     "Socks",
			UnitPrice: 49900,
			Quantity:  2,
			CreatedAt: created,
		}},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func newOrdersRouter(svc services.OrderService) chi.Router {
	r := chi.NewRouter()
	NewOrderHandlers(testAuthenticator(), svc).Routes(r)
	return r
}

func TestListOrdersRequiresAuthentication(t *testing.T) {
	router := newOrdersRouter(&stubOrderService{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestListOrdersReturnsPage(t *testing.T) {
	svc := &stubOrderService{listResult: domain.CursorPage[domain.Order]{
		Items:         []domain.Order{sampleOrder("ord_1", "user_1")},
		NextPageToken: "next-token",
	}}
	router := newOrdersRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/?pageSize=10", nil)
	req.Header.Set("Authorization", "Bearer customer-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var payload orderListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(payload.Orders))
	}
	if payload.Orders[0].ID != "ord_1" || payload.Orders[0].Total != 104700 {
		t.Fatalf("unexpected order payload %+v", payload.Orders[0])
	}
	if payload.NextPageToken != "next-token" {
		t.Fatalf("expected next page token, got %q", payload.NextPageToken)
	}
}

func TestListOrdersRejectsInvalidPageSize(t *testing.T) {
	router := newOrdersRouter(&stubOrderService{})

	req := httptest.NewRequest(http.MethodGet, "/?pageSize=abc", nil)
	req.Header.Set("Authorization", "Bearer customer-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListOrdersRejectsUnknownStatus(t *testing.T) {
	router := newOrdersRouter(&stubOrderService{})

	req := httptest.NewRequest(http.MethodGet, "/?status=sideways", nil)
	req.Header.Set("Authorization", "Bearer customer-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetOrderReturnsOwnOrder(t *testing.T) {
	svc := &stubOrderService{orders: map[string]domain.Order{"ord_1": sampleOrder("ord_1", "user_1")}}
	router := newOrdersRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/ord_1", nil)
	req.Header.Set("Authorization", "Bearer customer-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var payload orderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.OrderNumber != "AURA-1743588000000-ABCDEF123" {
		t.Fatalf("unexpected order number %q", payload.OrderNumber)
	}
	if payload.Status != "pending" || payload.PaymentStatus != "pending" {
		t.Fatalf("unexpected state %s/%s", payload.Status, payload.PaymentStatus)
	}
}

func TestGetOrderHidesForeignOrders(t *testing.T) {
	svc := &stubOrderService{orders: map[string]domain.Order{"ord_2": sampleOrder("ord_2", "someone_else")}}
	router := newOrdersRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/ord_2", nil)
	req.Header.Set("Authorization", "Bearer customer-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestTransitionOrderRequiresStaffRole(t *testing.T) {
	router := newOrdersRouter(&stubOrderService{})

	req := httptest.NewRequest(http.MethodPost, "/ord_1/transition", strings.NewReader(`{"status":"processing"}`))
	req.Header.Set("Authorization", "Bearer customer-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestTransitionOrderAsStaff(t *testing.T) {
	order := sampleOrder("ord_1", "user_1")
	order.State = domain.OrderState{Status: domain.OrderStatusPending, Payment: domain.PaymentStatusPaid}
	svc := &stubOrderService{orders: map[string]domain.Order{"ord_1": order}}
	router := newOrdersRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/ord_1/transition", strings.NewReader(`{"status":"processing","paymentStatus":"paid"}`))
	req.Header.Set("Authorization", "Bearer staff-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.transitions) != 1 {
		t.Fatalf("expected one transition call, got %d", len(svc.transitions))
	}
	target := svc.transitions[0].Target
	if target.Status != domain.OrderStatusProcessing || target.Payment != domain.PaymentStatusPaid {
		t.Fatalf("unexpected target state %+v", target)
	}
}

func TestTransitionOrderRejectsUnknownStatus(t *testing.T) {
	router := newOrdersRouter(&stubOrderService{})

	req := httptest.NewRequest(http.MethodPost, "/ord_1/transition", strings.NewReader(`{"status":"teleported"}`))
	req.Header.Set("Authorization", "Bearer staff-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestTransitionOrderInvalidStateConflict(t *testing.T) {
	svc := &stubOrderService{err: services.ErrOrderInvalidState}
	router := newOrdersRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/ord_1/transition", strings.NewReader(`{"status":"delivered","paymentStatus":"paid"}`))
	req.Header.Set("Authorization", "Bearer staff-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}
