package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aura-apparel/api/internal/platform/httpx"
	"github.com/aura-apparel/api/internal/services"
)

// PromotionHandlers exposes public promo code lookups.
type PromotionHandlers struct {
	promotions services.PromotionService
}

// NewPromotionHandlers constructs a new PromotionHandlers instance.
func NewPromotionHandlers(promotions services.PromotionService) *PromotionHandlers {
	return &PromotionHandlers{promotions: promotions}
}

// Routes registers the /promotions endpoints.
func (h *PromotionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{code}", h.getPromotion)
}

type promotionResponse struct {
	Code          string `json:"code"`
	Type          string `json:"type"`
	Value         int64  `json:"value"`
	MinOrderValue int64  `json:"minOrderValue,omitempty"`
}

func (h *PromotionHandlers) getPromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.promotions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("promotions_unavailable", "promotions unavailable", http.StatusServiceUnavailable))
		return
	}

	code := strings.TrimSpace(chi.URLParam(r, "code"))
	promo, err := h.promotions.GetPublicPromotion(ctx, code)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPromotionInvalidCode):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_promo", "promo code is invalid", http.StatusBadRequest))
		case errors.Is(err, services.ErrPromotionNotFound):
			httpx.WriteError(ctx, w, httpx.NewError("promo_not_found", "promo code not found", http.StatusNotFound))
		case errors.Is(err, services.ErrPromotionUnavailable):
			httpx.WriteError(ctx, w, httpx.NewError("promotions_unavailable", "promotions unavailable", http.StatusServiceUnavailable))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("promotion_error", "failed to load promotion", http.StatusInternalServerError))
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, promotionResponse{
		Code:          promo.Code,
		Type:          string(promo.Type),
		Value:         promo.Value,
		MinOrderValue: promo.MinOrderValue,
	})
}
