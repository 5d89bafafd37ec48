package repositories

import (
	"context"
	"time"

	domain "github.com/aura-apparel/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Promotions() PromotionRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderListFilter narrows and pages order list queries using a keyset cursor.
type OrderListFilter struct {
	PageSize        int
	CursorCreatedAt time.Time
	CursorID        string
	SortAsc         bool
	Status          domain.OrderStatus
}

// OrderStateUpdate carries optional fields applied alongside a state transition.
type OrderStateUpdate struct {
	PaymentID   *string
	PaidAt      *time.Time
	CancelledAt *time.Time
}

// OrderRepository persists orders together with their immutable item snapshots.
// Insert must write the order header and all items atomically; a duplicate
// order number or id should surface as a RepositoryError with IsConflict.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByPaymentOrderRef(ctx context.Context, provider, ref string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	UpdateState(ctx context.Context, orderID string, from, to domain.OrderState, update OrderStateUpdate) (domain.Order, error)
	SetPaymentOrderRef(ctx context.Context, orderID, provider, ref string) error
}

// PromotionRepository reads promo code reference data. Lookups are
// case-insensitive on the code.
type PromotionRepository interface {
	GetByCode(ctx context.Context, code string) (domain.PromoCode, error)
	Upsert(ctx context.Context, promo domain.PromoCode) error
}

// HealthRepository verifies that the persistence layer is reachable.
type HealthRepository interface {
	CheckReadiness(ctx context.Context) error
}
