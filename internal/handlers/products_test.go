package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/aura-apparel/api/internal/catalog"
	domain "github.com/aura-apparel/api/internal/domain"
)

type stubCatalogService struct {
	product domain.Product
	cart    catalog.HostedCart
	err     error

	lastLines []catalog.CartLine
}

func (s *stubCatalogService) GetProduct(context.Context, string) (domain.Product, error) {
	if s.err != nil {
		return domain.Product{}, s.err
	}
	return s.product, nil
}

func (s *stubCatalogService) CreateCart(_ context.Context, lines []catalog.CartLine) (catalog.HostedCart, error) {
	s.lastLines = lines
	if s.err != nil {
		return catalog.HostedCart{}, s.err
	}
	return s.cart, nil
}

func TestGetProductHandler(t *testing.T) {
	svc := &stubCatalogService{product: domain.Product{Handle: "linen-shirt", Title: "Linen Shirt", Price: 249900, Currency: "INR", Available: true}}
	r := chi.NewRouter()
	NewProductHandlers(svc).Routes(r)

	req := httptest.NewRequest(http.MethodGet, "/linen-shirt", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload productResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Title != "Linen Shirt" || !payload.Available {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestGetProductHandlerNotFound(t *testing.T) {
	r := chi.NewRouter()
	NewProductHandlers(&stubCatalogService{err: catalog.ErrProductNotFound}).Routes(r)

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetProductHandlerUpstreamDown(t *testing.T) {
	r := chi.NewRouter()
	NewProductHandlers(&stubCatalogService{err: catalog.ErrCatalogUnavailable}).Routes(r)

	req := httptest.NewRequest(http.MethodGet, "/linen-shirt", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestCreateCartHandler(t *testing.T) {
	svc := &stubCatalogService{cart: catalog.HostedCart{ID: "cart_1", CheckoutURL: "https://shop.example/checkout/cart_1"}}
	r := chi.NewRouter()
	NewProductHandlers(svc).CartRoutes(r)

	body := `{"lines":[{"merchandiseId":"gid://merch/1","quantity":2}]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload createCartResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.CheckoutURL != "https://shop.example/checkout/cart_1" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if len(svc.lastLines) != 1 || svc.lastLines[0].MerchandiseID != "gid://merch/1" || svc.lastLines[0].Quantity != 2 {
		t.Fatalf("unexpected lines forwarded %+v", svc.lastLines)
	}
}

func TestCreateCartHandlerRejectsEmptyLines(t *testing.T) {
	r := chi.NewRouter()
	NewProductHandlers(&stubCatalogService{}).CartRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"lines":[]}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateCartHandlerUpstreamDown(t *testing.T) {
	r := chi.NewRouter()
	NewProductHandlers(&stubCatalogService{err: catalog.ErrCatalogUnavailable}).CartRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"lines":[{"merchandiseId":"gid://merch/1","quantity":1}]}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
