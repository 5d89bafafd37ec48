package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/aura-apparel/api/internal/payments"
	"github.com/aura-apparel/api/internal/services"
)

type stubWebhookParser struct {
	event payments.WebhookEvent
	err   error

	lastProvider  string
	lastSignature string
}

func (s *stubWebhookParser) ParseWebhook(provider string, payload []byte, signature string) (payments.WebhookEvent, error) {
	s.lastProvider = provider
	s.lastSignature = signature
	if s.err != nil {
		return payments.WebhookEvent{}, s.err
	}
	return s.event, nil
}

func newWebhookRouter(parser webhookParser, checkout services.CheckoutService) chi.Router {
	r := chi.NewRouter()
	NewWebhookHandlers(parser, checkout).Routes(r)
	return r
}

func TestHandleWebhookProcessed(t *testing.T) {
	parser := &stubWebhookParser{event: payments.WebhookEvent{
		Provider:       payments.ProviderRazorpay,
		PaymentID:      "pay_1",
		GatewayOrderID: "gw_order_1",
		Amount:         104700,
		Currency:       "INR",
		Succeeded:      true,
	}}
	checkout := &stubCheckoutService{}
	router := newWebhookRouter(parser, checkout)

	req := httptest.NewRequest(http.MethodPost, "/razorpay", strings.NewReader(`{"event":"payment.captured"}`))
	req.Header.Set("X-Razorpay-Signature", "deadbeef")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if parser.lastProvider != payments.ProviderRazorpay || parser.lastSignature != "deadbeef" {
		t.Fatalf("unexpected parse call %q %q", parser.lastProvider, parser.lastSignature)
	}
	if checkout.lastWebhook.GatewayOrder != "gw_order_1" || !checkout.lastWebhook.Succeeded {
		t.Fatalf("unexpected webhook command %+v", checkout.lastWebhook)
	}
	if checkout.lastWebhook.EchoedAmount != 104700 {
		t.Fatalf("expected echoed amount forwarded, got %d", checkout.lastWebhook.EchoedAmount)
	}
}

func TestHandleWebhookUnknownProvider(t *testing.T) {
	router := newWebhookRouter(&stubWebhookParser{}, &stubCheckoutService{})

	req := httptest.NewRequest(http.MethodPost, "/paypal", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleWebhookInvalidSignatureAcknowledgedWithoutMutation(t *testing.T) {
	parser := &stubWebhookParser{err: payments.ErrInvalidWebhook}
	checkout := &stubCheckoutService{}
	router := newWebhookRouter(parser, checkout)

	req := httptest.NewRequest(http.MethodPost, "/stripe", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=bad")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for unverifiable payload, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ignored") {
		t.Fatalf("expected ignored status, got %s", rec.Body.String())
	}
	if checkout.lastWebhook != (services.WebhookConfirmationCommand{}) {
		t.Fatalf("expected no confirmation dispatched, got %+v", checkout.lastWebhook)
	}
}

func TestHandleWebhookForwardsOrderIDForPaymentFailures(t *testing.T) {
	parser := &stubWebhookParser{event: payments.WebhookEvent{
		Provider:  payments.ProviderStripe,
		PaymentID: "pi_1",
		OrderID:   "ord_1",
		Succeeded: false,
	}}
	checkout := &stubCheckoutService{}
	router := newWebhookRouter(parser, checkout)

	req := httptest.NewRequest(http.MethodPost, "/stripe", strings.NewReader(`{"type":"payment_intent.payment_failed"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=good")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if checkout.lastWebhook.OrderID != "ord_1" || checkout.lastWebhook.GatewayOrder != "" {
		t.Fatalf("unexpected webhook command %+v", checkout.lastWebhook)
	}
	if checkout.lastWebhook.Succeeded {
		t.Fatalf("expected failure event forwarded, got %+v", checkout.lastWebhook)
	}
}

func TestHandleWebhookUnknownOrderAcknowledged(t *testing.T) {
	parser := &stubWebhookParser{event: payments.WebhookEvent{Provider: payments.ProviderRazorpay, GatewayOrderID: "gw_missing", Succeeded: true}}
	checkout := &stubCheckoutService{webhookErr: services.ErrCheckoutOrderNotFound}
	router := newWebhookRouter(parser, checkout)

	req := httptest.NewRequest(http.MethodPost, "/razorpay", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for unknown order, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ignored") {
		t.Fatalf("expected ignored status, got %s", rec.Body.String())
	}
}

func TestHandleWebhookDuplicateAcknowledged(t *testing.T) {
	parser := &stubWebhookParser{event: payments.WebhookEvent{Provider: payments.ProviderRazorpay, GatewayOrderID: "gw_order_1", Succeeded: true}}
	checkout := &stubCheckoutService{webhookErr: services.ErrOrderInvalidState}
	router := newWebhookRouter(parser, checkout)

	req := httptest.NewRequest(http.MethodPost, "/razorpay", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for stale event, got %d", rec.Code)
	}
}

func TestHandleWebhookStorageDownRetries(t *testing.T) {
	parser := &stubWebhookParser{event: payments.WebhookEvent{Provider: payments.ProviderRazorpay, GatewayOrderID: "gw_order_1", Succeeded: true}}
	checkout := &stubCheckoutService{webhookErr: services.ErrCheckoutUnavailable}
	router := newWebhookRouter(parser, checkout)

	req := httptest.NewRequest(http.MethodPost, "/razorpay", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 so the gateway retries, got %d", rec.Code)
	}
}
