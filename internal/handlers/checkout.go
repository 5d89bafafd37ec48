package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/aura-apparel/api/internal/domain"
	"github.com/aura-apparel/api/internal/platform/auth"
	"github.com/aura-apparel/api/internal/platform/httpx"
	"github.com/aura-apparel/api/internal/services"
)

const maxCheckoutRequestBody = 32 * 1024

// CheckoutHandlers exposes checkout session and payment verification endpoints.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs checkout handlers guarded by bearer authentication.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
	}
}

// Routes registers the /checkout endpoints.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := chi.Router(r)
	if h.authn != nil {
		group = group.With(h.authn.RequireAuth())
	}
	group.Post("/session", h.createSession)
}

// PaymentRoutes registers the /payments endpoints.
func (h *CheckoutHandlers) PaymentRoutes(r chi.Router) {
	if r == nil {
		return
	}
	group := chi.Router(r)
	if h.authn != nil {
		group = group.With(h.authn.RequireAuth())
	}
	group.Post("/verify", h.verifyPayment)
}

type checkoutCartItemRequest struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId"`
	Title     string `json:"title"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	ImageURL  string `json:"imageUrl"`
}

type checkoutAddressRequest struct {
	Recipient  string `json:"recipient"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

type checkoutSessionRequest struct {
	Items           []checkoutCartItemRequest `json:"items"`
	Currency        string                    `json:"currency"`
	ShippingAddress checkoutAddressRequest    `json:"shippingAddress"`
	PromoCode       string                    `json:"promoCode"`
	Provider        string                    `json:"provider"`
}

type checkoutSessionResponse struct {
	OrderID     string `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
	Provider    string `json:"provider"`
	SessionID   string `json:"sessionId"`
	URL         string `json:"url,omitempty"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}

type verifyPaymentRequest struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
}

func (h *CheckoutHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UserID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req checkoutSessionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	cart := domain.Cart{Currency: strings.TrimSpace(req.Currency)}
	for _, item := range req.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: strings.TrimSpace(item.ProductID),
			VariantID: strings.TrimSpace(item.VariantID),
			Title:     strings.TrimSpace(item.Title),
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Size:      strings.TrimSpace(item.Size),
			Color:     strings.TrimSpace(item.Color),
			ImageURL:  strings.TrimSpace(item.ImageURL),
		})
	}

	session, err := h.checkout.CreateSession(ctx, services.CreateCheckoutSessionCommand{
		UserID: identity.UserID,
		Cart:   cart,
		ShippingAddress: domain.Address{
			Recipient:  strings.TrimSpace(req.ShippingAddress.Recipient),
			Line1:      strings.TrimSpace(req.ShippingAddress.Line1),
			Line2:      strings.TrimSpace(req.ShippingAddress.Line2),
			City:       strings.TrimSpace(req.ShippingAddress.City),
			State:      strings.TrimSpace(req.ShippingAddress.State),
			PostalCode: strings.TrimSpace(req.ShippingAddress.PostalCode),
			Country:    strings.TrimSpace(req.ShippingAddress.Country),
			Phone:      strings.TrimSpace(req.ShippingAddress.Phone),
		},
		PromoCode: strings.TrimSpace(req.PromoCode),
		Provider:  strings.TrimSpace(req.Provider),
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, checkoutSessionResponse{
		OrderID:     session.OrderID,
		OrderNumber: session.OrderNumber,
		Provider:    session.Provider,
		SessionID:   session.SessionID,
		URL:         session.RedirectURL,
		Amount:      session.Amount,
		Currency:    session.Currency,
	})
}

func (h *CheckoutHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UserID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req verifyPaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	order, err := h.checkout.VerifyPayment(ctx, services.VerifyPaymentCommand{
		OrderID:   strings.TrimSpace(req.OrderID),
		PaymentID: strings.TrimSpace(req.PaymentID),
		Signature: strings.TrimSpace(req.Signature),
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, toOrderResponse(order))
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput), errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("empty_cart", "cart has no purchasable items", http.StatusBadRequest))
	case errors.Is(err, services.ErrPromotionInvalidCode):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_promo", "promo code is invalid", http.StatusBadRequest))
	case errors.Is(err, services.ErrPromotionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("promo_not_found", "promo code not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPromotionBelowMinimum):
		httpx.WriteError(ctx, w, httpx.NewError("promo_below_minimum", "cart total is below the promo minimum", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutSignatureInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("signature_invalid", "payment signature verification failed", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutOrderNotFound), errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderAmountMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("amount_mismatch", "payment amount does not match order total", http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", "order state does not allow this operation", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutConflict), errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_conflict", "order changed concurrently; retry", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutPaymentUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("payment_gateway_unavailable", "payment gateway unavailable", http.StatusBadGateway))
	case errors.Is(err, services.ErrCheckoutUnavailable), errors.Is(err, services.ErrPromotionUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to process checkout request", http.StatusInternalServerError))
	}
}
