package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/aura-apparel/api/internal/domain"
	"github.com/aura-apparel/api/internal/repositories"
)

var (
	// ErrPromotionRepositoryMissing indicates the service was constructed or invoked without a repository.
	ErrPromotionRepositoryMissing = errors.New("promotion: repository is required")
	// ErrPromotionInvalidCode indicates the supplied code was empty or malformed.
	ErrPromotionInvalidCode = errors.New("promotion: invalid code")
	// ErrPromotionNotFound indicates no promo code matched the lookup.
	ErrPromotionNotFound = errors.New("promotion: code not found")
	// ErrPromotionBelowMinimum indicates the cart total does not meet the code's minimum order value.
	ErrPromotionBelowMinimum = errors.New("promotion: cart total below minimum order value")
	// ErrPromotionUnavailable indicates the promotion backend could not be reached.
	ErrPromotionUnavailable = errors.New("promotion: backend unavailable")
)

// PromotionServiceDeps bundles dependencies required to construct a PromotionService implementation.
type PromotionServiceDeps struct {
	Promotions repositories.PromotionRepository
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type promotionService struct {
	repo   repositories.PromotionRepository
	logger func(context.Context, string, map[string]any)
}

// NewPromotionService wires a PromotionService backed by the provided repositories.
func NewPromotionService(deps PromotionServiceDeps) (PromotionService, error) {
	if deps.Promotions == nil {
		return nil, ErrPromotionRepositoryMissing
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &promotionService{
		repo:   deps.Promotions,
		logger: logger,
	}, nil
}

// Validate looks up the code case-insensitively and checks the minimum order value
// against the supplied cart total.
func (s *promotionService) Validate(ctx context.Context, code string, cartTotal int64) (PromoCode, error) {
	if s == nil || s.repo == nil {
		return PromoCode{}, ErrPromotionRepositoryMissing
	}

	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return PromoCode{}, ErrPromotionInvalidCode
	}
	if cartTotal < 0 {
		return PromoCode{}, fmt.Errorf("%w: negative cart total", ErrPromotionInvalidCode)
	}

	promo, err := s.repo.GetByCode(ctx, normalized)
	if err != nil {
		return PromoCode{}, s.mapRepositoryError(ctx, err)
	}

	if promo.MinOrderValue > 0 && cartTotal < promo.MinOrderValue {
		return PromoCode{}, fmt.Errorf("%w: requires at least %d", ErrPromotionBelowMinimum, promo.MinOrderValue)
	}

	promo.Code = normalized
	return promo, nil
}

// CalculateDiscount computes the discount in minor currency units. Percentage
// discounts round half-up; fixed discounts clamp to the cart total. The result
// never exceeds cartTotal and never goes negative.
func (s *promotionService) CalculateDiscount(promo PromoCode, cartTotal int64) int64 {
	if cartTotal <= 0 || promo.Value <= 0 {
		return 0
	}

	var discount int64
	switch promo.Type {
	case domain.DiscountPercentage:
		discount = (cartTotal*promo.Value + 50) / 100
	case domain.DiscountFixed:
		discount = promo.Value
	default:
		return 0
	}

	if discount > cartTotal {
		discount = cartTotal
	}
	return discount
}

// GetPublicPromotion returns the unauthenticated view of a promo code.
func (s *promotionService) GetPublicPromotion(ctx context.Context, code string) (PromotionPublic, error) {
	if s == nil || s.repo == nil {
		return PromotionPublic{}, ErrPromotionRepositoryMissing
	}

	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return PromotionPublic{}, ErrPromotionInvalidCode
	}

	promo, err := s.repo.GetByCode(ctx, normalized)
	if err != nil {
		return PromotionPublic{}, s.mapRepositoryError(ctx, err)
	}

	return PromotionPublic{
		Code:          normalized,
		Type:          promo.Type,
		Value:         promo.Value,
		MinOrderValue: promo.MinOrderValue,
	}, nil
}

func (s *promotionService) mapRepositoryError(ctx context.Context, err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrPromotionNotFound
		case repoErr.IsUnavailable():
			s.logger(ctx, "promotion.repository.unavailable", map[string]any{"error": err.Error()})
			return fmt.Errorf("%w: %v", ErrPromotionUnavailable, err)
		}
	}
	return err
}
