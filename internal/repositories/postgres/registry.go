package postgres

import (
	"context"
	"errors"

	pg "github.com/aura-apparel/api/internal/platform/postgres"
	"github.com/aura-apparel/api/internal/repositories"
)

// Registry wires the Postgres-backed repositories behind the repositories.Registry interface.
type Registry struct {
	provider *pg.Provider
	uow      *pg.UnitOfWork

	orders     *OrderRepository
	promotions *PromotionRepository
	health     *HealthRepository
}

// NewRegistry constructs the repository registry on top of the shared provider.
func NewRegistry(provider *pg.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("postgres: provider is required")
	}
	db, err := provider.DB()
	if err != nil {
		return nil, err
	}

	uow, err := pg.NewUnitOfWork(db)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(db)
	if err != nil {
		return nil, err
	}
	promotions, err := NewPromotionRepository(db)
	if err != nil {
		return nil, err
	}
	health, err := NewHealthRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:   provider,
		uow:        uow,
		orders:     orders,
		promotions: promotions,
		health:     health,
	}, nil
}

// Close releases the underlying connection pool.
func (r *Registry) Close(context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close()
}

// Orders returns the order repository.
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

// Promotions returns the promotion repository.
func (r *Registry) Promotions() repositories.PromotionRepository { return r.promotions }

// Health returns the readiness checker.
func (r *Registry) Health() repositories.HealthRepository { return r.health }

// RunInTx groups repository calls into a single database transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.uow.RunInTx(ctx, fn)
}

// HealthRepository verifies database connectivity for readiness probes.
type HealthRepository struct {
	provider *pg.Provider
}

// NewHealthRepository constructs a HealthRepository.
func NewHealthRepository(provider *pg.Provider) (*HealthRepository, error) {
	if provider == nil {
		return nil, errors.New("postgres: provider is required")
	}
	return &HealthRepository{provider: provider}, nil
}

// CheckReadiness pings the database.
func (h *HealthRepository) CheckReadiness(ctx context.Context) error {
	if err := h.provider.Ping(ctx); err != nil {
		return pg.WrapError("health.readiness", err)
	}
	return nil
}
