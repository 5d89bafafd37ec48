package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type stubStripeSessions struct {
	params  *stripe.CheckoutSessionParams
	session *stripe.CheckoutSession
	err     error
}

func (s *stubStripeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	s.params = params
	if s.err != nil {
		return nil, s.err
	}
	return s.session, nil
}

func newTestStripeProvider(t *testing.T, sessions *stubStripeSessions) *StripeProvider {
	t.Helper()
	provider, err := NewStripeProvider(StripeProviderConfig{
		WebhookSecret: "whsec_stripe_test",
		SuccessURL:    "https://shop.example/checkout/success",
		CancelURL:     "https://shop.example/checkout/cancel",
		Sessions:      sessions,
		Clock:         func() time.Time { return time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewStripeProvider returned error: %v", err)
	}
	return provider
}

func stripeSignature(secret string, payload []byte, at time.Time) string {
	signed := fmt.Sprintf("%d.%s", at.Unix(), payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signed))
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeCreateSession(t *testing.T) {
	sessions := &stubStripeSessions{
		session: &stripe.CheckoutSession{
			ID:        "cs_test_123",
			URL:       "https://checkout.stripe.com/c/pay/cs_test_123",
			Currency:  "inr",
			ExpiresAt: time.Date(2025, 4, 2, 10, 30, 0, 0, time.UTC).Unix(),
		},
	}
	provider := newTestStripeProvider(t, sessions)

	session, err := provider.CreateSession(context.Background(), SessionRequest{
		OrderID:       "ord_01",
		OrderNumber:   "AURA-1743588000000-ABCDEF123",
		Amount:        759700,
		Currency:      "INR",
		CustomerEmail: "asha@example.com",
		Items: []LineItem{
			{Name: "Linen Shirt", SKU: "LS-01", Quantity: 2, UnitPrice: 249900},
			{Name: "Canvas Tote", SKU: "CT-09", Quantity: 1, UnitPrice: 259900},
		},
	})
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	if session.ID != "cs_test_123" {
		t.Fatalf("unexpected session id %q", session.ID)
	}
	if session.RedirectURL != "https://checkout.stripe.com/c/pay/cs_test_123" {
		t.Fatalf("unexpected redirect url %q", session.RedirectURL)
	}
	if !session.ExpiresAt.Equal(time.Date(2025, 4, 2, 10, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected expiry %v", session.ExpiresAt)
	}

	params := sessions.params
	if params == nil {
		t.Fatal("expected session params to be captured")
	}
	if got := stripe.StringValue(params.SuccessURL); got != "https://shop.example/checkout/success" {
		t.Fatalf("unexpected success url %q", got)
	}
	if params.Metadata["order_id"] != "ord_01" {
		t.Fatalf("expected order id metadata, got %q", params.Metadata["order_id"])
	}
	if params.PaymentIntentData == nil || params.PaymentIntentData.Metadata["order_id"] != "ord_01" {
		t.Fatal("expected order id propagated to payment intent metadata")
	}
	if len(params.LineItems) != 2 {
		t.Fatalf("expected 2 line items, got %d", len(params.LineItems))
	}
	first := params.LineItems[0]
	if got := stripe.Int64Value(first.PriceData.UnitAmount); got != 249900 {
		t.Fatalf("unexpected unit amount %d", got)
	}
	if got := stripe.StringValue(first.PriceData.Currency); got != "inr" {
		t.Fatalf("expected lowercase currency, got %q", got)
	}
	if first.PriceData.ProductData.Metadata["sku"] != "LS-01" {
		t.Fatalf("expected sku metadata, got %q", first.PriceData.ProductData.Metadata["sku"])
	}
}

func TestStripeCreateSessionFallbackLineItem(t *testing.T) {
	sessions := &stubStripeSessions{session: &stripe.CheckoutSession{ID: "cs_test_456"}}
	provider := newTestStripeProvider(t, sessions)

	if _, err := provider.CreateSession(context.Background(), SessionRequest{
		OrderID:     "ord_02",
		OrderNumber: "AURA-1743588000000-XYZ",
		Amount:      5000,
		Currency:    "INR",
	}); err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}

	if len(sessions.params.LineItems) != 1 {
		t.Fatalf("expected single fallback line item, got %d", len(sessions.params.LineItems))
	}
	if got := stripe.Int64Value(sessions.params.LineItems[0].PriceData.UnitAmount); got != 5000 {
		t.Fatalf("expected order total as unit amount, got %d", got)
	}
}

func TestStripeCreateSessionGatewayError(t *testing.T) {
	sessions := &stubStripeSessions{err: errors.New("connection reset")}
	provider := newTestStripeProvider(t, sessions)

	_, err := provider.CreateSession(context.Background(), SessionRequest{OrderID: "ord_03", Amount: 1000, Currency: "INR"})
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}

func TestStripeParseWebhookSessionCompleted(t *testing.T) {
	provider := newTestStripeProvider(t, &stubStripeSessions{})

	payload := []byte(`{
		"id": "evt_1",
		"api_version": "2024-04-10",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_test_123",
				"payment_intent": {"id": "pi_test_789"},
				"payment_status": "paid",
				"amount_total": 759700,
				"currency": "inr",
				"metadata": {"order_id": "ord_01"}
			}
		}
	}`)

	event, err := provider.ParseWebhook(payload, stripeSignature("whsec_stripe_test", payload, time.Now()))
	if err != nil {
		t.Fatalf("ParseWebhook returned error: %v", err)
	}
	if !event.Succeeded {
		t.Fatal("expected paid session to succeed")
	}
	if event.PaymentID != "pi_test_789" || event.GatewayOrderID != "cs_test_123" {
		t.Fatalf("unexpected identifiers %q %q", event.PaymentID, event.GatewayOrderID)
	}
	if event.OrderID != "ord_01" {
		t.Fatalf("expected order id metadata, got %q", event.OrderID)
	}
	if event.Amount != 759700 || event.Currency != "INR" {
		t.Fatalf("unexpected echoed amount %d %s", event.Amount, event.Currency)
	}
}

func TestStripeParseWebhookPaymentFailed(t *testing.T) {
	provider := newTestStripeProvider(t, &stubStripeSessions{})

	payload := []byte(`{
		"id": "evt_2",
		"api_version": "2024-04-10",
		"type": "payment_intent.payment_failed",
		"data": {
			"object": {
				"id": "pi_test_789",
				"amount": 759700,
				"currency": "inr",
				"metadata": {"order_id": "ord_01"}
			}
		}
	}`)

	event, err := provider.ParseWebhook(payload, stripeSignature("whsec_stripe_test", payload, time.Now()))
	if err != nil {
		t.Fatalf("ParseWebhook returned error: %v", err)
	}
	if event.Succeeded {
		t.Fatal("expected failed event")
	}
	if event.PaymentID != "pi_test_789" || event.OrderID != "ord_01" {
		t.Fatalf("unexpected identifiers %q %q", event.PaymentID, event.OrderID)
	}
}

func TestStripeParseWebhookRejectsBadSignature(t *testing.T) {
	provider := newTestStripeProvider(t, &stubStripeSessions{})

	payload := []byte(`{"id":"evt_3","type":"checkout.session.completed"}`)
	if _, err := provider.ParseWebhook(payload, stripeSignature("whsec_wrong", payload, time.Now())); !errors.Is(err, ErrInvalidWebhook) {
		t.Fatalf("expected ErrInvalidWebhook, got %v", err)
	}
}

func TestStripeParseWebhookRejectsUnknownEvent(t *testing.T) {
	provider := newTestStripeProvider(t, &stubStripeSessions{})

	payload := []byte(`{"id":"evt_4","api_version":"2024-04-10","type":"invoice.created","data":{"object":{}}}`)
	if _, err := provider.ParseWebhook(payload, stripeSignature("whsec_stripe_test", payload, time.Now())); !errors.Is(err, ErrInvalidWebhook) {
		t.Fatalf("expected ErrInvalidWebhook, got %v", err)
	}
}
