package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider name constants for the supported gateways.
const (
	ProviderRazorpay = "razorpay"
	ProviderStripe   = "stripe"
)

var (
	// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrGatewayUnavailable indicates the gateway could not be reached or timed out.
	ErrGatewayUnavailable = errors.New("payments: gateway unavailable")
	// ErrInvalidWebhook indicates a webhook payload failed signature verification or parsing.
	ErrInvalidWebhook = errors.New("payments: invalid webhook payload")
)

// LineItem describes a single order line presented to the gateway.
type LineItem struct {
	Name      string
	SKU       string
	Quantity  int64
	UnitPrice int64
	Currency  string
	ImageURL  string
}

// SessionRequest captures the payload required to initiate a gateway payment.
// Amount is the locally computed order total in minor units and is always
// authoritative over anything the gateway echoes back.
type SessionRequest struct {
	OrderID       string
	OrderNumber   string
	Amount        int64
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
	Items         []LineItem
}

// Session represents the gateway-side payment initiation returned to the client.
type Session struct {
	ID          string
	Provider    string
	RedirectURL string
	Amount      int64
	Currency    string
	ExpiresAt   time.Time
}

// WebhookEvent is the normalised, signature-verified view of an asynchronous
// gateway notification.
type WebhookEvent struct {
	Provider       string
	Type           string
	PaymentID      string
	GatewayOrderID string
	OrderID        string
	Amount         int64
	Currency       string
	Succeeded      bool
}

// Provider defines the contract gateway adapters implement.
type Provider interface {
	Name() string
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
	ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
}

// SignatureVerifier is implemented by providers that support synchronous
// client-side confirmation in addition to webhooks.
type SignatureVerifier interface {
	VerifyPaymentSignature(gatewayOrderID, paymentID, signature string) bool
}

// Manager coordinates provider selection and exposes the aggregated interface.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the provider used when the caller does not name one.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = strings.ToLower(strings.TrimSpace(provider))
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers []Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}

	registry := make(map[string]Provider, len(providers))
	for _, p := range providers {
		if p == nil {
			return nil, errors.New("payments: nil provider registration")
		}
		key := strings.ToLower(strings.TrimSpace(p.Name()))
		if key == "" {
			return nil, errors.New("payments: provider with empty name")
		}
		if _, exists := registry[key]; exists {
			return nil, fmt.Errorf("payments: duplicate provider registration %q", key)
		}
		registry[key] = p
	}

	m := &Manager{providers: registry}
	if _, ok := registry[ProviderRazorpay]; ok {
		m.defaultProvider = ProviderRazorpay
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if m.defaultProvider != "" {
		if _, ok := registry[m.defaultProvider]; !ok {
			return nil, fmt.Errorf("%w: default %q not registered", ErrUnsupportedProvider, m.defaultProvider)
		}
	}
	return m, nil
}

// Provider resolves a provider by name, falling back to the default when name is empty.
func (m *Manager) Provider(name string) (Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return nil, errors.New("payments: no providers registered")
	}

	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = m.defaultProvider
	}
	if key == "" && len(m.providers) == 1 {
		for _, p := range m.providers {
			return p, nil
		}
	}
	p, ok := m.providers[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, name)
	}
	return p, nil
}

// CreateSession delegates to the resolved provider.
func (m *Manager) CreateSession(ctx context.Context, providerName string, req SessionRequest) (Session, error) {
	provider, err := m.Provider(providerName)
	if err != nil {
		return Session{}, err
	}
	session, err := provider.CreateSession(ctx, req)
	if err != nil {
		return Session{}, err
	}
	session.Provider = provider.Name()
	return session, nil
}

// ParseWebhook verifies and normalises a webhook payload for the named provider.
func (m *Manager) ParseWebhook(providerName string, payload []byte, signature string) (WebhookEvent, error) {
	provider, err := m.Provider(providerName)
	if err != nil {
		return WebhookEvent{}, err
	}
	event, err := provider.ParseWebhook(payload, signature)
	if err != nil {
		return WebhookEvent{}, err
	}
	event.Provider = provider.Name()
	return event, nil
}

// VerifyPaymentSignature performs synchronous confirmation when the provider supports it.
func (m *Manager) VerifyPaymentSignature(providerName, gatewayOrderID, paymentID, signature string) (bool, error) {
	provider, err := m.Provider(providerName)
	if err != nil {
		return false, err
	}
	verifier, ok := provider.(SignatureVerifier)
	if !ok {
		return false, fmt.Errorf("%w: %q does not support signature verification", ErrUnsupportedProvider, provider.Name())
	}
	return verifier.VerifyPaymentSignature(gatewayOrderID, paymentID, signature), nil
}
