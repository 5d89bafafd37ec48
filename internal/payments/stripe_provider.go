package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey        string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	Backends      *stripe.Backends
	Logger        StripeLogger
	Clock         func() time.Time
	Sessions      stripeSessionAPI
}

// StripeProvider implements the Provider interface over Stripe hosted Checkout.
// Payment confirmation arrives exclusively through signed webhooks; Stripe has
// no client-side signature scheme, so the provider does not implement
// SignatureVerifier.
type StripeProvider struct {
	sessions      stripeSessionAPI
	webhookSecret string
	successURL    string
	cancelURL     string
	clock         func() time.Time
	logger        StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Sessions == nil {
		return nil, errors.New("stripe: api key is required")
	}

	sessions := cfg.Sessions
	if sessions == nil {
		sc := client.New(apiKey, cfg.Backends)
		sessions = sc.CheckoutSessions
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		sessions:      sessions,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		successURL:    strings.TrimSpace(cfg.SuccessURL),
		cancelURL:     strings.TrimSpace(cfg.CancelURL),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Name identifies this provider in the manager registry.
func (p *StripeProvider) Name() string { return ProviderStripe }

// CreateSession creates a hosted Checkout session. Line items carry the
// server-side unit prices; Stripe computes the same total the ledger holds.
func (p *StripeProvider) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	if p == nil {
		return Session{}, errors.New("stripe: provider is nil")
	}
	if req.Amount <= 0 {
		return Session{}, fmt.Errorf("stripe: non-positive amount %d", req.Amount)
	}

	successURL := defaultString(req.SuccessURL, p.successURL)
	cancelURL := defaultString(req.CancelURL, p.cancelURL)
	if successURL == "" || cancelURL == "" {
		return Session{}, errors.New("stripe: success and cancel urls are required")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.OrderID); key != "" {
		params.SetIdempotencyKey("checkout-" + key)
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}

	metadata := map[string]string{"order_id": req.OrderID}
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	params.Metadata = metadata
	params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
		Metadata: metadata,
	}

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items))
	for _, item := range req.Items {
		line := &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(max64(item.Quantity, 1)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(defaultString(item.Currency, req.Currency))),
				UnitAmount: stripe.Int64(item.UnitPrice),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
		}
		if item.SKU != "" {
			line.PriceData.ProductData.Metadata = map[string]string{"sku": item.SKU}
		}
		if item.ImageURL != "" {
			line.PriceData.ProductData.Images = stripe.StringSlice([]string{item.ImageURL})
		}
		lineItems = append(lineItems, line)
	}
	if len(lineItems) == 0 {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				UnitAmount: stripe.Int64(req.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Order " + req.OrderNumber),
				},
			},
		})
	}
	params.LineItems = lineItems

	session, err := p.sessions.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("%w: create checkout session: %v", ErrGatewayUnavailable, err)
	}

	p.logger(ctx, "payments.stripe.session.created", map[string]any{
		"session_id": session.ID,
		"order_id":   req.OrderID,
		"currency":   session.Currency,
	})

	expiresAt := p.clock().Add(30 * time.Minute)
	if session.ExpiresAt != 0 {
		expiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}

	return Session{
		ID:          session.ID,
		Provider:    ProviderStripe,
		RedirectURL: session.URL,
		Amount:      req.Amount,
		Currency:    strings.ToUpper(strings.TrimSpace(req.Currency)),
		ExpiresAt:   expiresAt,
	}, nil
}

// ParseWebhook authenticates the Stripe-Signature header and normalises
// checkout.session.completed and payment_intent.payment_failed events.
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (WebhookEvent, error) {
	if p == nil || p.webhookSecret == "" {
		return WebhookEvent{}, fmt.Errorf("%w: webhook secret not configured", ErrInvalidWebhook)
	}

	event, err := webhook.ConstructEvent(payload, signature, p.webhookSecret)
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return WebhookEvent{}, fmt.Errorf("%w: decode session: %v", ErrInvalidWebhook, err)
		}
		paymentID := ""
		if session.PaymentIntent != nil {
			paymentID = session.PaymentIntent.ID
		}
		return WebhookEvent{
			Provider:       ProviderStripe,
			Type:           string(event.Type),
			PaymentID:      paymentID,
			GatewayOrderID: session.ID,
			OrderID:        session.Metadata["order_id"],
			Amount:         session.AmountTotal,
			Currency:       strings.ToUpper(string(session.Currency)),
			Succeeded:      session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		}, nil

	case "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return WebhookEvent{}, fmt.Errorf("%w: decode payment intent: %v", ErrInvalidWebhook, err)
		}
		return WebhookEvent{
			Provider:  ProviderStripe,
			Type:      string(event.Type),
			PaymentID: intent.ID,
			OrderID:   intent.Metadata["order_id"],
			Amount:    intent.Amount,
			Currency:  strings.ToUpper(string(intent.Currency)),
			Succeeded: false,
		}, nil

	default:
		return WebhookEvent{}, fmt.Errorf("%w: unhandled event %q", ErrInvalidWebhook, event.Type)
	}
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
