package domain

import (
	"time"
)

// CartItem is a single client-held line prior to order creation. Unit prices
// are in the smallest currency unit.
type CartItem struct {
	ProductID string
	VariantID string
	Title     string
	UnitPrice int64
	Quantity  int
	Size      string
	Color     string
	ImageURL  string
}

// Cart aggregates the transient client-held selection submitted at checkout.
type Cart struct {
	Items    []CartItem
	Currency string
}

// Subtotal returns the sum of line subtotals, skipping non-positive lines.
func (c Cart) Subtotal() int64 {
	var total int64
	for _, item := range c.Items {
		if item.Quantity <= 0 || item.UnitPrice <= 0 {
			continue
		}
		total += item.UnitPrice * int64(item.Quantity)
	}
	return total
}

// DiscountType enumerates supported promo discount kinds.
type DiscountType string

const (
	// DiscountPercentage applies a percentage of the cart total.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed subtracts a fixed amount in minor currency units.
	DiscountFixed DiscountType = "fixed"
)

// PromoCode is immutable reference data describing a checkout discount rule.
// Value is a whole percentage for DiscountPercentage and minor currency units
// for DiscountFixed. MinOrderValue of zero means no minimum.
type PromoCode struct {
	Code          string
	Type          DiscountType
	Value         int64
	MinOrderValue int64
}

// OrderStatus enumerates fulfilment lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order awaits payment confirmation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing indicates payment succeeded and fulfilment started.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order has been handed to the carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the order reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled before fulfilment.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded indicates the paid amount was returned.
	OrderStatusRefunded OrderStatus = "refunded"
)

// PaymentStatus enumerates payment lifecycle states tracked alongside the
// order status.
type PaymentStatus string

const (
	// PaymentStatusPending indicates no confirmation has been received.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid indicates the gateway confirmed the payment.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed indicates the gateway declined the payment.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded indicates the payment was refunded.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// OrderState is the joint (status, payment status) pair. Modelling both as a
// single machine keeps illegal combinations unrepresentable in transitions.
type OrderState struct {
	Status  OrderStatus
	Payment PaymentStatus
}

// Terminal reports whether no further transitions are allowed from the state.
func (s OrderState) Terminal() bool {
	switch {
	case s.Status == OrderStatusDelivered && s.Payment == PaymentStatusPaid:
		return true
	case s.Status == OrderStatusCancelled:
		return true
	case s.Status == OrderStatusRefunded && s.Payment == PaymentStatusRefunded:
		return true
	}
	return false
}

// OrderTotals holds rolled-up monetary fields in the smallest currency unit.
// Total = Subtotal - Discount + Shipping, never negative.
type OrderTotals struct {
	Subtotal int64
	Discount int64
	Shipping int64
	Total    int64
}

// Address represents the structured shipping address captured at checkout.
type Address struct {
	Recipient  string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
}

// Order is the durable record of a purchase intent. Status and payment status
// are mutated only through the order service transitions.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	State           OrderState
	Currency        string
	Totals          OrderTotals
	PromoCode       string
	PaymentMethod   string
	PaymentOrderRef string
	PaymentID       string
	ShippingAddress Address
	Items           []OrderItem
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PaidAt          *time.Time
	CancelledAt     *time.Time
}

// OrderItem snapshots one cart line at order creation time. Title, price, and
// image are denormalised so later catalog edits never alter historical orders.
type OrderItem struct {
	ID        string
	OrderID   string
	ProductID string
	VariantID string
	Title     string
	UnitPrice int64
	Quantity  int
	Size      string
	Color     string
	ImageURL  string
	CreatedAt time.Time
}

// Product is the subset of catalog provider data this service depends on.
type Product struct {
	Handle      string
	Title       string
	Description string
	Price       int64
	Currency    string
	ImageURL    string
	Available   bool
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
