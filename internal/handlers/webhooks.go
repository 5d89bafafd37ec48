package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aura-apparel/api/internal/payments"
	"github.com/aura-apparel/api/internal/platform/httpx"
	"github.com/aura-apparel/api/internal/services"
)

const maxWebhookBody = 256 * 1024

var webhookSignatureHeaders = map[string]string{
	payments.ProviderRazorpay: "X-Razorpay-Signature",
	payments.ProviderStripe:   "Stripe-Signature",
}

// webhookParser abstracts payments.Manager webhook verification for testing.
type webhookParser interface {
	ParseWebhook(provider string, payload []byte, signature string) (payments.WebhookEvent, error)
}

// WebhookHandlers receives asynchronous gateway notifications.
type WebhookHandlers struct {
	parser   webhookParser
	checkout services.CheckoutService
}

// NewWebhookHandlers constructs webhook handlers over the payment manager.
func NewWebhookHandlers(parser webhookParser, checkout services.CheckoutService) *WebhookHandlers {
	return &WebhookHandlers{
		parser:   parser,
		checkout: checkout,
	}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/{provider}", h.handleWebhook)
}

// handleWebhook verifies and applies one gateway event. Duplicate or stale
// events acknowledge with 200 so the gateway stops retrying; transient
// storage failures return 503 to request a retry.
func (h *WebhookHandlers) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.parser == nil || h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhooks_unavailable", "webhook processing unavailable", http.StatusServiceUnavailable))
		return
	}

	provider := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))
	header, known := webhookSignatureHeaders[provider]
	if !known {
		httpx.WriteError(ctx, w, httpx.NewError("unknown_provider", "unknown webhook provider", http.StatusNotFound))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	event, err := h.parser.ParseWebhook(provider, body, r.Header.Get(header))
	if err != nil {
		if errors.Is(err, payments.ErrUnsupportedProvider) {
			httpx.WriteError(ctx, w, httpx.NewError("unknown_provider", "unknown webhook provider", http.StatusNotFound))
			return
		}
		// Signature or payload failures acknowledge with 200 so the gateway
		// does not retry a request that will never verify. Nothing is mutated.
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	_, err = h.checkout.HandleWebhookConfirmation(ctx, services.WebhookConfirmationCommand{
		Provider:       event.Provider,
		PaymentRef:     event.PaymentID,
		GatewayOrder:   event.GatewayOrderID,
		OrderID:        event.OrderID,
		Succeeded:      event.Succeeded,
		EchoedAmount:   event.Amount,
		EchoedCurrency: event.Currency,
	})
	switch {
	case err == nil:
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "processed"})
	case errors.Is(err, services.ErrCheckoutOrderNotFound),
		errors.Is(err, services.ErrOrderInvalidState),
		errors.Is(err, services.ErrOrderConflict):
		// Unknown or already-settled orders are acknowledged, not retried.
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ignored"})
	case errors.Is(err, services.ErrOrderAmountMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("amount_mismatch", "payment amount does not match order total", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("webhooks_unavailable", "webhook processing unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "failed to process webhook", http.StatusInternalServerError))
	}
}
