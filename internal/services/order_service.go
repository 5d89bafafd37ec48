package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/aura-apparel/api/internal/domain"
	"github.com/aura-apparel/api/internal/repositories"
)

var (
	// ErrOrderInvalidInput indicates the create command failed validation.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates no order matched the lookup.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates the requested transition is not allowed from the current state.
	ErrOrderInvalidState = errors.New("order: invalid state transition")
	// ErrOrderConflict indicates a concurrent write won the race.
	ErrOrderConflict = errors.New("order: conflicting update")
	// ErrOrderAmountMismatch indicates a gateway-echoed amount disagreed with the ledger.
	ErrOrderAmountMismatch = errors.New("order: confirmed amount does not match ledger total")
)

const (
	orderIDPrefix     = "ord_"
	orderItemIDPrefix = "itm_"

	orderNumberRandomLen = 9
)

// stateKey flattens the joint (status, payment) pair for transition lookups.
func stateKey(s domain.OrderState) string {
	return string(s.Status) + "/" + string(s.Payment)
}

// orderStateTransitions is the joint machine over (status, payment_status).
// Keeping both dimensions in one table makes illegal combinations unreachable.
var orderStateTransitions = map[string][]string{
	"pending/pending": {
		"pending/paid",
		"pending/failed",
		"cancelled/failed",
	},
	"pending/paid": {
		"processing/paid",
		"refunded/refunded",
	},
	"pending/failed": {
		"cancelled/failed",
	},
	"processing/paid": {
		"shipped/paid",
		"refunded/refunded",
	},
	"shipped/paid": {
		"delivered/paid",
	},
}

func canTransition(current, target domain.OrderState) bool {
	if current == target {
		return true
	}
	next, ok := orderStateTransitions[stateKey(current)]
	if !ok {
		return false
	}
	targetKey := stateKey(target)
	for _, candidate := range next {
		if candidate == targetKey {
			return true
		}
	}
	return false
}

// OrderServiceDeps bundles dependencies required to construct an OrderService implementation.
type OrderServiceDeps struct {
	Orders            repositories.OrderRepository
	UnitOfWork        repositories.UnitOfWork
	Clock             func() time.Time
	IDGenerator       func() string
	OrderNumberPrefix string
	Logger            func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders       repositories.OrderRepository
	unitOfWork   repositories.UnitOfWork
	clock        func() time.Time
	newID        func() string
	numberPrefix string
	logger       func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	prefix := strings.TrimSpace(deps.OrderNumberPrefix)
	if prefix == "" {
		prefix = "AURA"
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:        idGen,
		numberPrefix: prefix,
		logger:       logger,
	}, nil
}

// CreateOrder persists the order and its item snapshots atomically. The order
// starts in pending/pending; item snapshots are never rewritten afterwards.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Cart.Items) == 0 {
		return Order{}, fmt.Errorf("%w: cart must contain at least one item", ErrOrderInvalidInput)
	}
	for i, item := range cmd.Cart.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return Order{}, fmt.Errorf("%w: item %d missing product id", ErrOrderInvalidInput, i)
		}
		if item.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: item %d has non-positive quantity", ErrOrderInvalidInput, i)
		}
		if item.UnitPrice <= 0 {
			return Order{}, fmt.Errorf("%w: item %d has non-positive unit price", ErrOrderInvalidInput, i)
		}
	}
	if err := validateAddress(cmd.ShippingAddress); err != nil {
		return Order{}, err
	}
	if cmd.Discount < 0 || cmd.Shipping < 0 {
		return Order{}, fmt.Errorf("%w: negative pricing component", ErrOrderInvalidInput)
	}

	now := s.clock()
	subtotal := cmd.Cart.Subtotal()
	discount := cmd.Discount
	if discount > subtotal {
		discount = subtotal
	}
	total := subtotal - discount + cmd.Shipping

	order := Order{
		ID:          orderIDPrefix + s.newID(),
		OrderNumber: s.generateOrderNumber(now),
		UserID:      userID,
		State: domain.OrderState{
			Status:  domain.OrderStatusPending,
			Payment: domain.PaymentStatusPending,
		},
		Currency: strings.ToUpper(strings.TrimSpace(cmd.Cart.Currency)),
		Totals: domain.OrderTotals{
			Subtotal: subtotal,
			Discount: discount,
			Shipping: cmd.Shipping,
			Total:    total,
		},
		PromoCode:       strings.ToUpper(strings.TrimSpace(cmd.PromoCode)),
		PaymentMethod:   strings.TrimSpace(cmd.PaymentMethod),
		ShippingAddress: cmd.ShippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	order.Items = make([]OrderItem, 0, len(cmd.Cart.Items))
	for _, item := range cmd.Cart.Items {
		order.Items = append(order.Items, OrderItem{
			ID:        orderItemIDPrefix + s.newID(),
			OrderID:   order.ID,
			ProductID: strings.TrimSpace(item.ProductID),
			VariantID: strings.TrimSpace(item.VariantID),
			Title:     strings.TrimSpace(item.Title),
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Size:      strings.TrimSpace(item.Size),
			Color:     strings.TrimSpace(item.Color),
			ImageURL:  strings.TrimSpace(item.ImageURL),
			CreatedAt: now,
		})
	}

	err := s.runInTx(ctx, func(ctx context.Context) error {
		return s.orders.Insert(ctx, order)
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "order.created", map[string]any{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"total":        order.Totals.Total,
		"items":        len(order.Items),
	})
	return order, nil
}

// GetOrder loads a single order, enforcing ownership.
func (s *orderService) GetOrder(ctx context.Context, cmd OrderReadCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if userID := strings.TrimSpace(cmd.UserID); userID != "" && order.UserID != userID {
		// Ownership failures read as absence to avoid leaking order ids.
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

// ListOrders pages the owner's orders.
func (s *orderService) ListOrders(ctx context.Context, cmd OrderListCommand) (CursorOrders, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return CursorOrders{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}

	page, err := s.orders.ListByUser(ctx, userID, cmd.Filter)
	if err != nil {
		return CursorOrders{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// Transition applies a fulfilment state change through the joint machine.
func (s *orderService) Transition(ctx context.Context, cmd OrderTransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if order.State == cmd.Target {
		return order, nil
	}
	if !canTransition(order.State, cmd.Target) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrOrderInvalidState, stateKey(order.State), stateKey(cmd.Target))
	}

	update := repositories.OrderStateUpdate{}
	now := s.clock()
	if cmd.Target.Status == domain.OrderStatusCancelled {
		update.CancelledAt = &now
	}

	updated, err := s.orders.UpdateState(ctx, orderID, order.State, cmd.Target, update)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "order.transitioned", map[string]any{
		"order_id": updated.ID,
		"from":     stateKey(order.State),
		"to":       stateKey(updated.State),
	})
	return updated, nil
}

// MarkPaymentSucceeded records a gateway-confirmed payment. Confirmations for
// orders already outside pending/pending are no-ops returning the stored
// order, which makes duplicate and out-of-order webhook delivery safe.
func (s *orderService) MarkPaymentSucceeded(ctx context.Context, cmd PaymentConfirmationCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	paymentID := strings.TrimSpace(cmd.PaymentID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if paymentID == "" {
		return Order{}, fmt.Errorf("%w: payment id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	pendingState := domain.OrderState{Status: domain.OrderStatusPending, Payment: domain.PaymentStatusPending}
	if order.State != pendingState {
		// Any order already settled, failed, or cancelled keeps its state;
		// late or duplicate confirmations acknowledge without mutating.
		if order.PaymentID != paymentID {
			s.logger(ctx, "order.payment.stale_ignored", map[string]any{
				"order_id":   order.ID,
				"payment_id": paymentID,
				"state":      stateKey(order.State),
			})
		}
		return order, nil
	}

	// The ledger total is authoritative; a gateway echoing a different amount
	// is either a bug or tampering.
	if cmd.Amount != 0 && cmd.Amount != order.Totals.Total {
		s.logger(ctx, "order.payment.amount_mismatch", map[string]any{
			"order_id": order.ID,
			"expected": order.Totals.Total,
			"echoed":   cmd.Amount,
		})
		return Order{}, ErrOrderAmountMismatch
	}
	if cmd.Currency != "" && !strings.EqualFold(cmd.Currency, order.Currency) {
		return Order{}, fmt.Errorf("%w: currency %s", ErrOrderAmountMismatch, cmd.Currency)
	}

	now := s.clock()
	target := domain.OrderState{Status: domain.OrderStatusPending, Payment: domain.PaymentStatusPaid}
	updated, err := s.orders.UpdateState(ctx, orderID, pendingState, target, repositories.OrderStateUpdate{
		PaymentID: &paymentID,
		PaidAt:    &now,
	})
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			// A concurrent confirmation won; re-read and treat as idempotent success.
			current, readErr := s.orders.FindByID(ctx, orderID)
			if readErr == nil && current.State.Payment == domain.PaymentStatusPaid {
				return current, nil
			}
		}
		return Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "order.payment.confirmed", map[string]any{
		"order_id":   updated.ID,
		"payment_id": paymentID,
		"amount":     updated.Totals.Total,
	})
	return updated, nil
}

// MarkPaymentFailed records a declined payment, optionally cancelling the order.
func (s *orderService) MarkPaymentFailed(ctx context.Context, cmd PaymentFailureCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	pendingState := domain.OrderState{Status: domain.OrderStatusPending, Payment: domain.PaymentStatusPending}
	if order.State != pendingState {
		// Failure notifications after a confirmed payment are stale; ignore them.
		return order, nil
	}

	target := domain.OrderState{Status: domain.OrderStatusPending, Payment: domain.PaymentStatusFailed}
	update := repositories.OrderStateUpdate{}
	now := s.clock()
	if cmd.Cancel {
		target = domain.OrderState{Status: domain.OrderStatusCancelled, Payment: domain.PaymentStatusFailed}
		update.CancelledAt = &now
	}
	if paymentID := strings.TrimSpace(cmd.PaymentID); paymentID != "" {
		update.PaymentID = &paymentID
	}

	updated, err := s.orders.UpdateState(ctx, orderID, pendingState, target, update)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "order.payment.failed", map[string]any{
		"order_id":  updated.ID,
		"cancelled": cmd.Cancel,
	})
	return updated, nil
}

func validateAddress(addr Address) error {
	switch {
	case strings.TrimSpace(addr.Recipient) == "":
		return fmt.Errorf("%w: shipping recipient is required", ErrOrderInvalidInput)
	case strings.TrimSpace(addr.Line1) == "":
		return fmt.Errorf("%w: shipping address line is required", ErrOrderInvalidInput)
	case strings.TrimSpace(addr.City) == "":
		return fmt.Errorf("%w: shipping city is required", ErrOrderInvalidInput)
	case strings.TrimSpace(addr.PostalCode) == "":
		return fmt.Errorf("%w: shipping postal code is required", ErrOrderInvalidInput)
	case strings.TrimSpace(addr.Country) == "":
		return fmt.Errorf("%w: shipping country is required", ErrOrderInvalidInput)
	}
	return nil
}

const base36Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// generateOrderNumber builds PREFIX-<unix millis>-<random base36>. The random
// suffix keeps numbers unguessable; uniqueness is enforced by the database.
func (s *orderService) generateOrderNumber(now time.Time) string {
	suffix := make([]byte, orderNumberRandomLen)
	alphabetLen := big.NewInt(int64(len(base36Alphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			// crypto/rand failures are effectively fatal; fall back to a ULID chunk.
			fallback := ulid.Make().String()
			copy(suffix, fallback[len(fallback)-orderNumberRandomLen:])
			break
		}
		suffix[i] = base36Alphabet[n.Int64()]
	}
	return fmt.Sprintf("%s-%d-%s", s.numberPrefix, now.UnixMilli(), string(suffix))
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
