package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/aura-apparel/api/internal/domain"
)

type stubPromotionRepo struct {
	promos map[string]domain.PromoCode
	err    error
}

func (s *stubPromotionRepo) GetByCode(_ context.Context, code string) (domain.PromoCode, error) {
	if s.err != nil {
		return domain.PromoCode{}, s.err
	}
	promo, ok := s.promos[code]
	if !ok {
		return domain.PromoCode{}, stubRepoError{notFound: true}
	}
	return promo, nil
}

func (s *stubPromotionRepo) Upsert(context.Context, domain.PromoCode) error { return nil }

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e stubRepoError) Error() string       { return "stub repository error" }
func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return e.conflict }
func (e stubRepoError) IsUnavailable() bool { return e.unavailable }

func newPromotionService(t *testing.T, repo *stubPromotionRepo) PromotionService {
	t.Helper()
	svc, err := NewPromotionService(PromotionServiceDeps{Promotions: repo})
	if err != nil {
		t.Fatalf("new promotion service: %v", err)
	}
	return svc
}

func TestValidateNormalisesCode(t *testing.T) {
	repo := &stubPromotionRepo{promos: map[string]domain.PromoCode{
		"SUMMER10": {Code: "SUMMER10", Type: domain.DiscountPercentage, Value: 10},
	}}
	svc := newPromotionService(t, repo)

	promo, err := svc.Validate(context.Background(), "  summer10 ", 10000)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if promo.Code != "SUMMER10" {
		t.Fatalf("expected normalised code, got %s", promo.Code)
	}
}

func TestValidateNotFound(t *testing.T) {
	svc := newPromotionService(t, &stubPromotionRepo{promos: map[string]domain.PromoCode{}})

	if _, err := svc.Validate(context.Background(), "NOPE", 10000); !errors.Is(err, ErrPromotionNotFound) {
		t.Fatalf("expected ErrPromotionNotFound, got %v", err)
	}
}

func TestValidateBelowMinimum(t *testing.T) {
	repo := &stubPromotionRepo{promos: map[string]domain.PromoCode{
		"BIGSPEND": {Code: "BIGSPEND", Type: domain.DiscountFixed, Value: 50000, MinOrderValue: 200000},
	}}
	svc := newPromotionService(t, repo)

	if _, err := svc.Validate(context.Background(), "BIGSPEND", 199999); !errors.Is(err, ErrPromotionBelowMinimum) {
		t.Fatalf("expected ErrPromotionBelowMinimum, got %v", err)
	}

	// Exactly at the minimum qualifies.
	if _, err := svc.Validate(context.Background(), "BIGSPEND", 200000); err != nil {
		t.Fatalf("expected success at minimum, got %v", err)
	}
}

func TestValidateEmptyCode(t *testing.T) {
	svc := newPromotionService(t, &stubPromotionRepo{})

	if _, err := svc.Validate(context.Background(), "   ", 1000); !errors.Is(err, ErrPromotionInvalidCode) {
		t.Fatalf("expected ErrPromotionInvalidCode, got %v", err)
	}
}

func TestValidateRepositoryUnavailable(t *testing.T) {
	svc := newPromotionService(t, &stubPromotionRepo{err: stubRepoError{unavailable: true}})

	if _, err := svc.Validate(context.Background(), "SUMMER10", 1000); !errors.Is(err, ErrPromotionUnavailable) {
		t.Fatalf("expected ErrPromotionUnavailable, got %v", err)
	}
}

func TestCalculateDiscountPercentageRoundsHalfUp(t *testing.T) {
	svc := newPromotionService(t, &stubPromotionRepo{})

	cases := []struct {
		name   string
		total  int64
		value  int64
		expect int64
	}{
		{"exact", 10000, 10, 1000},
		{"rounds up at half", 1050, 10, 105},
		{"rounds half up odd", 999, 10, 100},
		{"small total", 5, 10, 1},
		{"full percent", 8000, 100, 8000},
	}
	for _, tc := range cases {
		promo := PromoCode{Type: domain.DiscountPercentage, Value: tc.value}
		if got := svc.CalculateDiscount(promo, tc.total); got != tc.expect {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.expect, got)
		}
	}
}

func TestCalculateDiscountFixedClampsToTotal(t *testing.T) {
	svc := newPromotionService(t, &stubPromotionRepo{})

	promo := PromoCode{Type: domain.DiscountFixed, Value: 5000}
	if got := svc.CalculateDiscount(promo, 3000); got != 3000 {
		t.Fatalf("expected clamp to 3000, got %d", got)
	}
	if got := svc.CalculateDiscount(promo, 10000); got != 5000 {
		t.Fatalf("expected 5000, got %d", got)
	}
}

func TestCalculateDiscountDegenerateInputs(t *testing.T) {
	svc := newPromotionService(t, &stubPromotionRepo{})

	if got := svc.CalculateDiscount(PromoCode{Type: domain.DiscountPercentage, Value: 10}, 0); got != 0 {
		t.Fatalf("expected 0 for empty total, got %d", got)
	}
	if got := svc.CalculateDiscount(PromoCode{Type: domain.DiscountFixed, Value: 0}, 1000); got != 0 {
		t.Fatalf("expected 0 for zero value, got %d", got)
	}
	if got := svc.CalculateDiscount(PromoCode{Type: "unknown", Value: 10}, 1000); got != 0 {
		t.Fatalf("expected 0 for unknown type, got %d", got)
	}
}
