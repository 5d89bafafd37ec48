package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(Config{BaseURL: baseURL, AuthToken: "token-123"})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return client
}

func TestGetProduct(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products/linen-shirt" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-123" {
			t.Fatalf("unexpected authorization header %q", got)
		}
		_ = json.NewEncoder(w).Encode(productPayload{
			Handle:    "linen-shirt",
			Title:     "Linen Shirt",
			Price:     249900,
			Currency:  "inr",
			Available: true,
		})
	}))
	defer server.Close()

	product, err := newTestClient(t, server.URL).GetProduct(context.Background(), "linen-shirt")
	if err != nil {
		t.Fatalf("GetProduct returned error: %v", err)
	}
	if product.Title != "Linen Shirt" || product.Price != 249900 {
		t.Fatalf("unexpected product %+v", product)
	}
	if product.Currency != "INR" {
		t.Fatalf("expected currency uppercased, got %q", product.Currency)
	}
}

func TestGetProductNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	if _, err := newTestClient(t, server.URL).GetProduct(context.Background(), "missing"); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestGetProductUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	if _, err := newTestClient(t, server.URL).GetProduct(context.Background(), "linen-shirt"); !errors.Is(err, ErrCatalogUnavailable) {
		t.Fatalf("expected ErrCatalogUnavailable, got %v", err)
	}
}

func TestGetProductBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	for i := 0; i < 5; i++ {
		if _, err := client.GetProduct(context.Background(), "linen-shirt"); err == nil {
			t.Fatal("expected upstream failure")
		}
	}

	before := hits
	if _, err := client.GetProduct(context.Background(), "linen-shirt"); !errors.Is(err, ErrCatalogUnavailable) {
		t.Fatalf("expected ErrCatalogUnavailable with open breaker, got %v", err)
	}
	if hits != before {
		t.Fatalf("expected open breaker to short-circuit, upstream saw %d extra calls", hits-before)
	}
}

func TestGetProductEmptyHandle(t *testing.T) {
	if _, err := newTestClient(t, "http://127.0.0.1:0").GetProduct(context.Background(), "  "); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestCreateCart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/carts" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Lines []CartLine `json:"lines"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		if len(body.Lines) != 1 || body.Lines[0].MerchandiseID != "var_1" || body.Lines[0].Quantity != 2 {
			t.Fatalf("unexpected lines %+v", body.Lines)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(HostedCart{ID: "cart_1", CheckoutURL: "https://shop.example/checkout/cart_1"})
	}))
	defer server.Close()

	cart, err := newTestClient(t, server.URL).CreateCart(context.Background(), []CartLine{{MerchandiseID: "var_1", Quantity: 2}})
	if err != nil {
		t.Fatalf("CreateCart returned error: %v", err)
	}
	if cart.CheckoutURL != "https://shop.example/checkout/cart_1" {
		t.Fatalf("unexpected checkout url %q", cart.CheckoutURL)
	}
}

func TestCreateCartRejectsEmptyLines(t *testing.T) {
	if _, err := newTestClient(t, "http://127.0.0.1:0").CreateCart(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty lines")
	}
	if _, err := newTestClient(t, "http://127.0.0.1:0").CreateCart(context.Background(), []CartLine{{MerchandiseID: "var_1"}}); err == nil {
		t.Fatal("expected error for non-positive quantity")
	}
}

func TestCreateCartUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	if _, err := newTestClient(t, server.URL).CreateCart(context.Background(), []CartLine{{MerchandiseID: "var_1", Quantity: 1}}); !errors.Is(err, ErrCatalogUnavailable) {
		t.Fatalf("expected ErrCatalogUnavailable, got %v", err)
	}
}
