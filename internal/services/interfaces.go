package services

import (
	"context"

	"github.com/aura-apparel/api/internal/catalog"
	domain "github.com/aura-apparel/api/internal/domain"
	"github.com/aura-apparel/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Cart         = domain.Cart
	CartItem     = domain.CartItem
	PromoCode    = domain.PromoCode
	Order        = domain.Order
	OrderItem    = domain.OrderItem
	OrderState   = domain.OrderState
	OrderTotals  = domain.OrderTotals
	Address      = domain.Address
	Product      = domain.Product
	CursorOrders = domain.CursorPage[domain.Order]
)

// PromotionService validates promo codes against a cart total and computes discounts.
type PromotionService interface {
	Validate(ctx context.Context, code string, cartTotal int64) (PromoCode, error)
	CalculateDiscount(promo PromoCode, cartTotal int64) int64
	GetPublicPromotion(ctx context.Context, code string) (PromotionPublic, error)
}

// OrderService owns the durable order ledger: creation, reads, and state transitions.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, cmd OrderReadCommand) (Order, error)
	ListOrders(ctx context.Context, cmd OrderListCommand) (CursorOrders, error)
	Transition(ctx context.Context, cmd OrderTransitionCommand) (Order, error)
	MarkPaymentSucceeded(ctx context.Context, cmd PaymentConfirmationCommand) (Order, error)
	MarkPaymentFailed(ctx context.Context, cmd PaymentFailureCommand) (Order, error)
}

// CheckoutService coordinates promo validation, order creation, and gateway session setup.
type CheckoutService interface {
	CreateSession(ctx context.Context, cmd CreateCheckoutSessionCommand) (CheckoutSession, error)
	VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (Order, error)
	HandleWebhookConfirmation(ctx context.Context, cmd WebhookConfirmationCommand) (Order, error)
}

// CatalogService exposes the product data this storefront depends on and the
// provider-hosted cart handoff for purchases that bypass the local gateways.
type CatalogService interface {
	GetProduct(ctx context.Context, handle string) (Product, error)
	CreateCart(ctx context.Context, lines []catalog.CartLine) (catalog.HostedCart, error)
}

// PromotionPublic is the unauthenticated view of a promo code.
type PromotionPublic struct {
	Code          string
	Type          domain.DiscountType
	Value         int64
	MinOrderValue int64
}

// Command and DTO definitions ------------------------------------------------

// CreateOrderCommand carries everything needed to persist a new order.
type CreateOrderCommand struct {
	UserID          string
	Cart            Cart
	ShippingAddress Address
	PromoCode       string
	Discount        int64
	Shipping        int64
	PaymentMethod   string
}

// OrderReadCommand scopes a single-order read to its owner.
type OrderReadCommand struct {
	UserID  string
	OrderID string
}

// OrderListCommand pages an owner's orders.
type OrderListCommand struct {
	UserID string
	Filter repositories.OrderListFilter
}

// OrderTransitionCommand requests a fulfilment status change.
type OrderTransitionCommand struct {
	OrderID string
	Target  OrderState
}

// PaymentConfirmationCommand records a gateway-confirmed payment.
type PaymentConfirmationCommand struct {
	OrderID   string
	PaymentID string
	Amount    int64
	Currency  string
}

// PaymentFailureCommand records a declined or abandoned payment.
type PaymentFailureCommand struct {
	OrderID   string
	PaymentID string
	Cancel    bool
}

// CreateCheckoutSessionCommand starts a checkout for the supplied cart.
type CreateCheckoutSessionCommand struct {
	UserID          string
	Cart            Cart
	ShippingAddress Address
	PromoCode       string
	Provider        string
}

// CheckoutSession is the client handoff returned after session creation.
type CheckoutSession struct {
	OrderID     string
	OrderNumber string
	Provider    string
	SessionID   string
	RedirectURL string
	Amount      int64
	Currency    string
}

// VerifyPaymentCommand carries the client-side confirmation handshake used by Razorpay checkouts.
type VerifyPaymentCommand struct {
	OrderID   string
	PaymentID string
	Signature string
}

// WebhookConfirmationCommand is the verified payload of an asynchronous gateway
// event. GatewayOrder is the provider-side session reference; OrderID is the
// local order id echoed back through provider metadata. Events that carry no
// session reference (Stripe payment-intent failures) resolve by OrderID.
type WebhookConfirmationCommand struct {
	Provider       string
	PaymentRef     string
	GatewayOrder   string
	OrderID        string
	Succeeded      bool
	EchoedAmount   int64
	EchoedCurrency string
}
