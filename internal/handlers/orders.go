package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/aura-apparel/api/internal/domain"
	"github.com/aura-apparel/api/internal/platform/auth"
	"github.com/aura-apparel/api/internal/platform/httpx"
	"github.com/aura-apparel/api/internal/platform/pagination"
	"github.com/aura-apparel/api/internal/repositories"
	"github.com/aura-apparel/api/internal/services"
)

const (
	defaultOrderPageSize     = 20
	maxOrderPageSize         = 100
	maxTransitionRequestBody = 4 * 1024
)

var validOrderStatuses = map[domain.OrderStatus]struct{}{
	domain.OrderStatusPending:    {},
	domain.OrderStatusProcessing: {},
	domain.OrderStatusShipped:    {},
	domain.OrderStatusDelivered:  {},
	domain.OrderStatusCancelled:  {},
	domain.OrderStatusRefunded:   {},
}

var validPaymentStatuses = map[domain.PaymentStatus]struct{}{
	domain.PaymentStatusPending:  {},
	domain.PaymentStatusPaid:     {},
	domain.PaymentStatusFailed:   {},
	domain.PaymentStatusRefunded: {},
}

// OrderHandlers exposes order endpoints for authenticated users and staff.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /orders endpoints. Customers read their own orders;
// fulfilment transitions require a staff or admin role.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireAuth())
		}
		g.Get("/", h.listOrders)
		g.Get("/{orderID}", h.getOrder)
	})
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireAuth(auth.RoleStaff, auth.RoleAdmin))
		}
		g.Post("/{orderID}/transition", h.transitionOrder)
	})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UserID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	params, err := pagination.ParseParams(r,
		pagination.WithDefaultPageSize(defaultOrderPageSize),
		pagination.WithMaxPageSize(maxOrderPageSize),
	)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := repositories.OrderListFilter{
		PageSize:        params.PageSize,
		CursorCreatedAt: params.Cursor.CreatedAt,
		CursorID:        params.Cursor.ID,
		SortAsc:         !params.Order.Desc,
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := domain.OrderStatus(strings.ToLower(raw))
		if _, known := validOrderStatuses[status]; !known {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown status filter", http.StatusBadRequest))
			return
		}
		filter.Status = status
	}

	page, err := h.orders.ListOrders(ctx, services.OrderListCommand{
		UserID: identity.UserID,
		Filter: filter,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderResponse, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, toOrderResponse(order))
	}

	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Orders:        items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UserID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, services.OrderReadCommand{
		UserID:  identity.UserID,
		OrderID: orderID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, toOrderResponse(order))
}

type transitionOrderRequest struct {
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
}

func (h *OrderHandlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxTransitionRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req transitionOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	status := domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if _, known := validOrderStatuses[status]; !known {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown target status", http.StatusBadRequest))
		return
	}
	payment := domain.PaymentStatus(strings.ToLower(strings.TrimSpace(req.PaymentStatus)))
	if payment == "" {
		payment = domain.PaymentStatusPaid
	}
	if _, known := validPaymentStatuses[payment]; !known {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown target payment status", http.StatusBadRequest))
		return
	}

	order, err := h.orders.Transition(ctx, services.OrderTransitionCommand{
		OrderID: orderID,
		Target:  domain.OrderState{Status: status, Payment: payment},
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, toOrderResponse(order))
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	var repoErr repositories.RepositoryError
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", "order state does not allow this transition", http.StatusConflict))
	case errors.Is(err, services.ErrOrderAmountMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("amount_mismatch", "payment amount does not match order total", http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order changed concurrently; retry", http.StatusConflict))
	case errors.As(err, &repoErr) && repoErr.IsUnavailable():
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

// Response payloads --------------------------------------------------------

type orderListResponse struct {
	Orders        []orderResponse `json:"orders"`
	NextPageToken string          `json:"nextPageToken,omitempty"`
}

type orderAddressResponse struct {
	Recipient  string `json:"recipient"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

type orderItemResponse struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	VariantID string `json:"variantId,omitempty"`
	Title     string `json:"title"`
	UnitPrice int64  `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
	ImageURL  string `json:"imageUrl,omitempty"`
}

type orderResponse struct {
	ID              string               `json:"id"`
	OrderNumber     string               `json:"orderNumber"`
	Status          string               `json:"status"`
	PaymentStatus   string               `json:"paymentStatus"`
	Currency        string               `json:"currency"`
	Subtotal        int64                `json:"subtotal"`
	Discount        int64                `json:"discount"`
	Shipping        int64                `json:"shipping"`
	Total           int64                `json:"total"`
	PromoCode       string               `json:"promoCode,omitempty"`
	PaymentMethod   string               `json:"paymentMethod,omitempty"`
	ShippingAddress orderAddressResponse `json:"shippingAddress"`
	Items           []orderItemResponse  `json:"items"`
	CreatedAt       string               `json:"createdAt"`
	UpdatedAt       string               `json:"updatedAt"`
	PaidAt          string               `json:"paidAt,omitempty"`
	CancelledAt     string               `json:"cancelledAt,omitempty"`
}

func toOrderResponse(order domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ID:        item.ID,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Title:     item.Title,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Size:      item.Size,
			Color:     item.Color,
			ImageURL:  item.ImageURL,
		})
	}

	resp := orderResponse{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        string(order.State.Status),
		PaymentStatus: string(order.State.Payment),
		Currency:      order.Currency,
		Subtotal:      order.Totals.Subtotal,
		Discount:      order.Totals.Discount,
		Shipping:      order.Totals.Shipping,
		Total:         order.Totals.Total,
		PromoCode:     order.PromoCode,
		PaymentMethod: order.PaymentMethod,
		ShippingAddress: orderAddressResponse{
			Recipient:  order.ShippingAddress.Recipient,
			Line1:      order.ShippingAddress.Line1,
			Line2:      order.ShippingAddress.Line2,
			City:       order.ShippingAddress.City,
			State:      order.ShippingAddress.State,
			PostalCode: order.ShippingAddress.PostalCode,
			Country:    order.ShippingAddress.Country,
			Phone:      order.ShippingAddress.Phone,
		},
		Items:     items,
		CreatedAt: order.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: order.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if order.PaidAt != nil {
		resp.PaidAt = order.PaidAt.UTC().Format(time.RFC3339Nano)
	}
	if order.CancelledAt != nil {
		resp.CancelledAt = order.CancelledAt.UTC().Format(time.RFC3339Nano)
	}
	return resp
}
