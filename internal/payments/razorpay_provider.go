package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultRazorpayBaseURL = "https://api.razorpay.com/v1"
	defaultRazorpayTimeout = 10 * time.Second

	razorpaySessionTTL = 30 * time.Minute
)

// RazorpayLogger defines the logging contract for Razorpay provider operations.
type RazorpayLogger func(ctx context.Context, event string, fields map[string]any)

// RazorpayProviderConfig configures the RazorpayProvider.
type RazorpayProviderConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string
	HTTPClient    *http.Client
	Logger        RazorpayLogger
	Clock         func() time.Time
}

// RazorpayProvider implements the Provider interface against the Razorpay Orders API.
// Payment confirmation arrives either as a client-side signature (VerifyPaymentSignature)
// or as a signed webhook.
type RazorpayProvider struct {
	keyID         string
	keySecret     string
	webhookSecret string
	baseURL       string
	client        *http.Client
	clock         func() time.Time
	logger        RazorpayLogger
}

// NewRazorpayProvider constructs a Razorpay Provider using the given configuration.
func NewRazorpayProvider(cfg RazorpayProviderConfig) (*RazorpayProvider, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keyID == "" || keySecret == "" {
		return nil, errors.New("razorpay: key id and secret are required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultRazorpayBaseURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultRazorpayTimeout}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &RazorpayProvider{
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		baseURL:       baseURL,
		client:        client,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Name identifies this provider in the manager registry.
func (p *RazorpayProvider) Name() string { return ProviderRazorpay }

type razorpayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type razorpayErrorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateSession creates a Razorpay order for the locally computed total. The
// returned session id is the gateway order id the client hands to Checkout.
func (p *RazorpayProvider) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	if p == nil {
		return Session{}, errors.New("razorpay: provider is nil")
	}
	if req.Amount <= 0 {
		return Session{}, fmt.Errorf("razorpay: non-positive amount %d", req.Amount)
	}

	receipt := strings.TrimSpace(req.OrderNumber)
	if receipt == "" {
		receipt = uuid.NewString()
	}

	notes := map[string]string{"order_id": req.OrderID}
	for k, v := range req.Metadata {
		notes[k] = v
	}

	body, err := json.Marshal(razorpayOrderRequest{
		Amount:   req.Amount,
		Currency: strings.ToUpper(strings.TrimSpace(req.Currency)),
		Receipt:  receipt,
		Notes:    notes,
	})
	if err != nil {
		return Session{}, fmt.Errorf("razorpay: marshal order: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return Session{}, fmt.Errorf("razorpay: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(p.keyID, p.keySecret)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Session{}, fmt.Errorf("%w: read response: %v", ErrGatewayUnavailable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return Session{}, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		var gwErr razorpayErrorResponse
		_ = json.Unmarshal(payload, &gwErr)
		return Session{}, fmt.Errorf("razorpay: create order failed: status %d code %s: %s",
			resp.StatusCode, gwErr.Error.Code, gwErr.Error.Description)
	}

	var order razorpayOrderResponse
	if err := json.Unmarshal(payload, &order); err != nil {
		return Session{}, fmt.Errorf("razorpay: decode order: %w", err)
	}
	if order.ID == "" {
		return Session{}, errors.New("razorpay: order response missing id")
	}

	p.logger(ctx, "payments.razorpay.order.created", map[string]any{
		"gateway_order_id": order.ID,
		"receipt":          receipt,
		"amount":           req.Amount,
	})

	return Session{
		ID:        order.ID,
		Provider:  ProviderRazorpay,
		Amount:    req.Amount,
		Currency:  strings.ToUpper(strings.TrimSpace(req.Currency)),
		ExpiresAt: p.clock().Add(razorpaySessionTTL),
	}, nil
}

// VerifyPaymentSignature checks the client-side confirmation signature:
// HMAC-SHA256(secret, gatewayOrderID + "|" + paymentID) hex-encoded, compared
// constant-time. Malformed input returns false, never an error.
func (p *RazorpayProvider) VerifyPaymentSignature(gatewayOrderID, paymentID, signature string) bool {
	if p == nil {
		return false
	}
	gatewayOrderID = strings.TrimSpace(gatewayOrderID)
	paymentID = strings.TrimSpace(paymentID)
	signature = strings.TrimSpace(signature)
	if gatewayOrderID == "" || paymentID == "" || signature == "" {
		return false
	}

	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(p.keySecret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hmac.Equal(mac.Sum(nil), expected)
}

type razorpayWebhookPayload struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID       string `json:"id"`
				OrderID  string `json:"order_id"`
				Amount   int64  `json:"amount"`
				Currency string `json:"currency"`
				Status   string `json:"status"`
				Notes    struct {
					OrderID string `json:"order_id"`
				} `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// ParseWebhook authenticates the X-Razorpay-Signature header (HMAC-SHA256 of
// the raw body with the webhook secret) and normalises the event.
func (p *RazorpayProvider) ParseWebhook(payload []byte, signature string) (WebhookEvent, error) {
	if p == nil || p.webhookSecret == "" {
		return WebhookEvent{}, fmt.Errorf("%w: webhook secret not configured", ErrInvalidWebhook)
	}

	expected, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(expected) == 0 {
		return WebhookEvent{}, fmt.Errorf("%w: malformed signature", ErrInvalidWebhook)
	}

	mac := hmac.New(sha256.New, []byte(p.webhookSecret))
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), expected) {
		return WebhookEvent{}, fmt.Errorf("%w: signature mismatch", ErrInvalidWebhook)
	}

	var event razorpayWebhookPayload
	if err := json.Unmarshal(payload, &event); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}

	entity := event.Payload.Payment.Entity
	normalised := WebhookEvent{
		Provider:       ProviderRazorpay,
		Type:           event.Event,
		PaymentID:      entity.ID,
		GatewayOrderID: entity.OrderID,
		OrderID:        entity.Notes.OrderID,
		Amount:         entity.Amount,
		Currency:       strings.ToUpper(entity.Currency),
	}

	switch event.Event {
	case "payment.captured", "order.paid":
		normalised.Succeeded = true
	case "payment.failed":
		normalised.Succeeded = false
	default:
		return WebhookEvent{}, fmt.Errorf("%w: unhandled event %q", ErrInvalidWebhook, event.Event)
	}
	return normalised, nil
}
