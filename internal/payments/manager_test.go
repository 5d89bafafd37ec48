package payments

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	name    string
	lastOp  string
	session Session
	event   WebhookEvent
	err     error
	sigOK   bool
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	f.lastOp = "create"
	return f.session, f.err
}

func (f *fakeProvider) ParseWebhook(payload []byte, signature string) (WebhookEvent, error) {
	f.lastOp = "webhook"
	return f.event, f.err
}

type fakeVerifyingProvider struct {
	fakeProvider
}

func (f *fakeVerifyingProvider) VerifyPaymentSignature(gatewayOrderID, paymentID, signature string) bool {
	f.lastOp = "verify"
	return f.sigOK
}

func TestNewManagerRequiresProviders(t *testing.T) {
	if _, err := NewManager(nil); err == nil {
		t.Fatal("expected error for empty provider list")
	}
}

func TestManagerDefaultsToRazorpay(t *testing.T) {
	razorpay := &fakeProvider{name: ProviderRazorpay}
	stripe := &fakeProvider{name: ProviderStripe}
	manager, err := NewManager([]Provider{stripe, razorpay})
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	provider, err := manager.Provider("")
	if err != nil {
		t.Fatalf("Provider returned error: %v", err)
	}
	if provider.Name() != ProviderRazorpay {
		t.Fatalf("expected default razorpay, got %s", provider.Name())
	}
}

func TestManagerRejectsUnknownProvider(t *testing.T) {
	manager, err := NewManager([]Provider{&fakeProvider{name: ProviderRazorpay}})
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	if _, err := manager.Provider("paypal"); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestManagerWithDefaultProviderOption(t *testing.T) {
	stripe := &fakeProvider{name: ProviderStripe}
	razorpay := &fakeProvider{name: ProviderRazorpay}
	manager, err := NewManager([]Provider{stripe, razorpay}, WithDefaultProvider(ProviderStripe))
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	provider, err := manager.Provider("")
	if err != nil {
		t.Fatalf("Provider returned error: %v", err)
	}
	if provider.Name() != ProviderStripe {
		t.Fatalf("expected stripe default, got %s", provider.Name())
	}

	if _, err := NewManager([]Provider{razorpay}, WithDefaultProvider("paypal")); err == nil {
		t.Fatal("expected error for unregistered default provider")
	}
}

func TestManagerCreateSessionStampsProvider(t *testing.T) {
	razorpay := &fakeProvider{name: ProviderRazorpay, session: Session{ID: "order_abc"}}
	manager, err := NewManager([]Provider{razorpay})
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	session, err := manager.CreateSession(context.Background(), ProviderRazorpay, SessionRequest{OrderID: "ord_1", Amount: 1000, Currency: "INR"})
	if err != nil {
		t.Fatalf("CreateSession returned error: %v", err)
	}
	if session.Provider != ProviderRazorpay {
		t.Fatalf("expected provider stamped on session, got %q", session.Provider)
	}
	if razorpay.lastOp != "create" {
		t.Fatalf("expected create call, got %q", razorpay.lastOp)
	}
}

func TestManagerParseWebhookRoutesByProvider(t *testing.T) {
	stripe := &fakeProvider{name: ProviderStripe, event: WebhookEvent{PaymentID: "pi_1", Succeeded: true}}
	manager, err := NewManager([]Provider{&fakeProvider{name: ProviderRazorpay}, stripe})
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	event, err := manager.ParseWebhook(ProviderStripe, []byte(`{}`), "sig")
	if err != nil {
		t.Fatalf("ParseWebhook returned error: %v", err)
	}
	if event.Provider != ProviderStripe {
		t.Fatalf("expected provider stamped on event, got %q", event.Provider)
	}
	if stripe.lastOp != "webhook" {
		t.Fatalf("expected webhook call, got %q", stripe.lastOp)
	}
}

func TestManagerVerifyPaymentSignature(t *testing.T) {
	verifier := &fakeVerifyingProvider{fakeProvider: fakeProvider{name: ProviderRazorpay, sigOK: true}}
	plain := &fakeProvider{name: ProviderStripe}
	manager, err := NewManager([]Provider{verifier, plain})
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	ok, err := manager.VerifyPaymentSignature(ProviderRazorpay, "order_1", "pay_1", "sig")
	if err != nil {
		t.Fatalf("VerifyPaymentSignature returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected signature to verify")
	}

	if _, err := manager.VerifyPaymentSignature(ProviderStripe, "cs_1", "pi_1", "sig"); err == nil {
		t.Fatal("expected error for provider without signature support")
	}
}
