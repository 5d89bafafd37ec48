package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aura-apparel/api/internal/payments"
	"github.com/aura-apparel/api/internal/repositories"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutEmptyCart indicates the submitted cart has no purchasable lines.
	ErrCheckoutEmptyCart = errors.New("checkout: empty cart")
	// ErrCheckoutOrderNotFound indicates no order matches the supplied reference.
	ErrCheckoutOrderNotFound = errors.New("checkout: order not found")
	// ErrCheckoutSignatureInvalid indicates client-side payment confirmation failed verification.
	ErrCheckoutSignatureInvalid = errors.New("checkout: payment signature invalid")
	// ErrCheckoutPaymentUnavailable indicates the gateway session could not be created.
	ErrCheckoutPaymentUnavailable = errors.New("checkout: payment gateway unavailable")
	// ErrCheckoutConflict indicates a concurrent modification prevented completing checkout.
	ErrCheckoutConflict = errors.New("checkout: conflict")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
)

// checkoutPaymentManager abstracts payments.Manager for easier testing.
type checkoutPaymentManager interface {
	CreateSession(ctx context.Context, provider string, req payments.SessionRequest) (payments.Session, error)
	VerifyPaymentSignature(provider, gatewayOrderID, paymentID, signature string) (bool, error)
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Orders           OrderService
	Promotions       PromotionService
	OrderStore       repositories.OrderRepository
	Payments         checkoutPaymentManager
	Currency         string
	ShippingFlatFee  int64
	FreeShippingOver int64
	Clock            func() time.Time
	Logger           func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	orders           OrderService
	promotions       PromotionService
	store            repositories.OrderRepository
	payments         checkoutPaymentManager
	currency         string
	shippingFlatFee  int64
	freeShippingOver int64
	now              func() time.Time
	logger           func(ctx context.Context, event string, fields map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order service is required")
	}
	if deps.Promotions == nil {
		return nil, errors.New("checkout service: promotion service is required")
	}
	if deps.OrderStore == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment manager is required")
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "INR"
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		orders:           deps.Orders,
		promotions:       deps.Promotions,
		store:            deps.OrderStore,
		payments:         deps.Payments,
		currency:         currency,
		shippingFlatFee:  deps.ShippingFlatFee,
		freeShippingOver: deps.FreeShippingOver,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateSession prices the cart, persists the order, and opens a gateway
// session for the locally computed total.
func (s *checkoutService) CreateSession(ctx context.Context, cmd CreateCheckoutSessionCommand) (CheckoutSession, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return CheckoutSession{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}

	subtotal := cmd.Cart.Subtotal()
	if len(cmd.Cart.Items) == 0 || subtotal <= 0 {
		return CheckoutSession{}, ErrCheckoutEmptyCart
	}

	currency := strings.ToUpper(strings.TrimSpace(cmd.Cart.Currency))
	if currency == "" {
		currency = s.currency
	}

	var discount int64
	promoCode := strings.ToUpper(strings.TrimSpace(cmd.PromoCode))
	if promoCode != "" {
		promo, err := s.promotions.Validate(ctx, promoCode, subtotal)
		if err != nil {
			return CheckoutSession{}, err
		}
		discount = s.promotions.CalculateDiscount(promo, subtotal)
		promoCode = promo.Code
	}

	shipping := s.shippingFee(subtotal - discount)

	order, err := s.orders.CreateOrder(ctx, CreateOrderCommand{
		UserID:          userID,
		Cart:            cmd.Cart,
		ShippingAddress: cmd.ShippingAddress,
		PromoCode:       promoCode,
		Discount:        discount,
		Shipping:        shipping,
		PaymentMethod:   strings.ToLower(strings.TrimSpace(cmd.Provider)),
	})
	if err != nil {
		return CheckoutSession{}, err
	}

	session, err := s.payments.CreateSession(ctx, cmd.Provider, payments.SessionRequest{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Amount:      order.Totals.Total,
		Currency:    currency,
		Metadata:    map[string]string{"order_number": order.OrderNumber},
		Items:       checkoutLineItems(order.Items, currency),
	})
	if err != nil {
		s.logger(ctx, "checkout.session.gateway_failed", map[string]any{
			"order_id": order.ID,
			"provider": cmd.Provider,
			"error":    err.Error(),
		})
		if _, failErr := s.orders.MarkPaymentFailed(ctx, PaymentFailureCommand{OrderID: order.ID, Cancel: true}); failErr != nil {
			s.logger(ctx, "checkout.session.cancel_failed", map[string]any{
				"order_id": order.ID,
				"error":    failErr.Error(),
			})
		}
		if errors.Is(err, payments.ErrUnsupportedProvider) {
			return CheckoutSession{}, fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
		}
		return CheckoutSession{}, fmt.Errorf("%w: %v", ErrCheckoutPaymentUnavailable, err)
	}

	if err := s.store.SetPaymentOrderRef(ctx, order.ID, session.Provider, session.ID); err != nil {
		return CheckoutSession{}, s.mapRepositoryError(ctx, "checkout.session.persist_ref", err)
	}

	s.logger(ctx, "checkout.session.created", map[string]any{
		"order_id":   order.ID,
		"provider":   session.Provider,
		"session_id": session.ID,
		"amount":     order.Totals.Total,
	})

	return CheckoutSession{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Provider:    session.Provider,
		SessionID:   session.ID,
		RedirectURL: session.RedirectURL,
		Amount:      order.Totals.Total,
		Currency:    currency,
	}, nil
}

// VerifyPayment confirms a client-side gateway signature and marks the order paid.
// An invalid signature never mutates order state.
func (s *checkoutService) VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	paymentID := strings.TrimSpace(cmd.PaymentID)
	signature := strings.TrimSpace(cmd.Signature)
	if orderID == "" || paymentID == "" || signature == "" {
		return Order{}, fmt.Errorf("%w: order id, payment id, and signature are required", ErrCheckoutInvalidInput)
	}

	order, err := s.store.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(ctx, "checkout.verify.load", err)
	}
	if order.PaymentOrderRef == "" {
		return Order{}, fmt.Errorf("%w: order has no gateway session", ErrCheckoutInvalidInput)
	}

	ok, err := s.payments.VerifyPaymentSignature(order.PaymentMethod, order.PaymentOrderRef, paymentID, signature)
	if err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
	}
	if !ok {
		s.logger(ctx, "checkout.verify.signature_rejected", map[string]any{
			"order_id":   order.ID,
			"payment_id": paymentID,
		})
		return Order{}, ErrCheckoutSignatureInvalid
	}

	return s.orders.MarkPaymentSucceeded(ctx, PaymentConfirmationCommand{
		OrderID:   order.ID,
		PaymentID: paymentID,
	})
}

// HandleWebhookConfirmation applies a verified asynchronous gateway event to
// the order it references.
func (s *checkoutService) HandleWebhookConfirmation(ctx context.Context, cmd WebhookConfirmationCommand) (Order, error) {
	gatewayOrder := strings.TrimSpace(cmd.GatewayOrder)
	orderID := strings.TrimSpace(cmd.OrderID)
	if gatewayOrder == "" && orderID == "" {
		return Order{}, fmt.Errorf("%w: gateway order reference or order id is required", ErrCheckoutInvalidInput)
	}

	var (
		order Order
		err   error
	)
	if gatewayOrder != "" {
		order, err = s.store.FindByPaymentOrderRef(ctx, cmd.Provider, gatewayOrder)
	} else {
		// Stripe payment-intent events carry only the order id from metadata.
		order, err = s.store.FindByID(ctx, orderID)
	}
	if err != nil {
		return Order{}, s.mapRepositoryError(ctx, "checkout.webhook.resolve", err)
	}
	if gatewayOrder == "" && order.PaymentMethod != cmd.Provider {
		return Order{}, ErrCheckoutOrderNotFound
	}

	if cmd.Succeeded {
		return s.orders.MarkPaymentSucceeded(ctx, PaymentConfirmationCommand{
			OrderID:   order.ID,
			PaymentID: cmd.PaymentRef,
			Amount:    cmd.EchoedAmount,
			Currency:  cmd.EchoedCurrency,
		})
	}
	return s.orders.MarkPaymentFailed(ctx, PaymentFailureCommand{
		OrderID:   order.ID,
		PaymentID: cmd.PaymentRef,
		Cancel:    true,
	})
}

func (s *checkoutService) shippingFee(discountedSubtotal int64) int64 {
	if s.freeShippingOver > 0 && discountedSubtotal >= s.freeShippingOver {
		return 0
	}
	return s.shippingFlatFee
}

func checkoutLineItems(items []OrderItem, currency string) []payments.LineItem {
	lines := make([]payments.LineItem, 0, len(items))
	for _, item := range items {
		lines = append(lines, payments.LineItem{
			Name:      item.Title,
			SKU:       item.VariantID,
			Quantity:  int64(item.Quantity),
			UnitPrice: item.UnitPrice,
			Currency:  currency,
			ImageURL:  item.ImageURL,
		})
	}
	return lines
}

func (s *checkoutService) mapRepositoryError(ctx context.Context, event string, err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCheckoutOrderNotFound
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCheckoutConflict, err)
		case repoErr.IsUnavailable():
			s.logger(ctx, event, map[string]any{"error": err.Error()})
			return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
		}
	}
	return err
}
