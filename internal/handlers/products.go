package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aura-apparel/api/internal/catalog"
	"github.com/aura-apparel/api/internal/platform/httpx"
	"github.com/aura-apparel/api/internal/services"
)

// ProductHandlers exposes public product reads backed by the upstream catalog.
type ProductHandlers struct {
	catalog services.CatalogService
}

// NewProductHandlers constructs a new ProductHandlers instance.
func NewProductHandlers(catalogSvc services.CatalogService) *ProductHandlers {
	return &ProductHandlers{catalog: catalogSvc}
}

// Routes registers the /products endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{handle}", h.getProduct)
}

// CartRoutes registers the /carts endpoints for the provider-hosted checkout handoff.
func (h *ProductHandlers) CartRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createCart)
}

type productResponse struct {
	Handle      string `json:"handle"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Price       int64  `json:"price"`
	Currency    string `json:"currency"`
	ImageURL    string `json:"imageUrl,omitempty"`
	Available   bool   `json:"available"`
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog unavailable", http.StatusServiceUnavailable))
		return
	}

	handle := strings.TrimSpace(chi.URLParam(r, "handle"))
	product, err := h.catalog.GetProduct(ctx, handle)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrProductNotFound):
			httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
		case errors.Is(err, catalog.ErrCatalogUnavailable):
			httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog unavailable", http.StatusServiceUnavailable))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to load product", http.StatusInternalServerError))
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, productResponse{
		Handle:      product.Handle,
		Title:       product.Title,
		Description: product.Description,
		Price:       product.Price,
		Currency:    product.Currency,
		ImageURL:    product.ImageURL,
		Available:   product.Available,
	})
}

type cartLineRequest struct {
	MerchandiseID string `json:"merchandiseId"`
	Quantity      int    `json:"quantity"`
}

type createCartRequest struct {
	Lines []cartLineRequest `json:"lines"`
}

type createCartResponse struct {
	CartID      string `json:"cartId"`
	CheckoutURL string `json:"checkoutUrl"`
}

func (h *ProductHandlers) createCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req createCartRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if len(req.Lines) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "at least one cart line is required", http.StatusBadRequest))
		return
	}

	lines := make([]catalog.CartLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		id := strings.TrimSpace(line.MerchandiseID)
		if id == "" || line.Quantity <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "cart lines need a merchandise id and positive quantity", http.StatusBadRequest))
			return
		}
		lines = append(lines, catalog.CartLine{MerchandiseID: id, Quantity: line.Quantity})
	}

	cart, err := h.catalog.CreateCart(ctx, lines)
	if err != nil {
		if errors.Is(err, catalog.ErrCatalogUnavailable) {
			httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to create cart", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusCreated, createCartResponse{
		CartID:      cart.ID,
		CheckoutURL: cart.CheckoutURL,
	})
}
