package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/aura-apparel/api/internal/domain"
)

const (
	defaultTimeout     = 5 * time.Second
	breakerMaxRequests = 3
	breakerInterval    = time.Minute
	breakerTimeout     = 30 * time.Second
)

var (
	// ErrProductNotFound is returned when the catalog has no product with the handle.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrCatalogUnavailable indicates the upstream catalog could not serve the request.
	ErrCatalogUnavailable = errors.New("catalog: upstream unavailable")
)

// Logger defines the logging contract for catalog client operations.
type Logger func(ctx context.Context, event string, fields map[string]any)

// Config configures the catalog Client.
type Config struct {
	BaseURL    string
	AuthToken  string
	HTTPClient *http.Client
	Logger     Logger
}

// Client reads product data from the upstream catalog service. Calls run
// through a circuit breaker so a degraded catalog cannot stall checkout
// request handling.
type Client struct {
	baseURL   string
	authToken string
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker[domain.Product]
	logger    Logger
}

// NewClient constructs a catalog client for the given upstream.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("catalog: base url is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	client := &Client{
		baseURL:   baseURL,
		authToken: strings.TrimSpace(cfg.AuthToken),
		http:      httpClient,
		logger:    logger,
	}
	client.breaker = gobreaker.NewCircuitBreaker[domain.Product](gobreaker.Settings{
		Name:        "catalog",
		MaxRequests: breakerMaxRequests,
		Interval:    breakerInterval,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger(context.Background(), "catalog.breaker.state_changed", map[string]any{
				"from": from.String(),
				"to":   to.String(),
			})
		},
		IsSuccessful: func(err error) bool {
			// Not-found is a valid answer, not an upstream failure.
			return err == nil || errors.Is(err, ErrProductNotFound)
		},
	})
	return client, nil
}

type productPayload struct {
	Handle      string `json:"handle"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Currency    string `json:"currency"`
	ImageURL    string `json:"imageUrl"`
	Available   bool   `json:"available"`
}

// GetProduct fetches a single product by its URL handle.
func (c *Client) GetProduct(ctx context.Context, handle string) (domain.Product, error) {
	if c == nil {
		return domain.Product{}, errors.New("catalog: client is nil")
	}
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return domain.Product{}, fmt.Errorf("%w: empty handle", ErrProductNotFound)
	}

	product, err := c.breaker.Execute(func() (domain.Product, error) {
		return c.fetchProduct(ctx, handle)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger(ctx, "catalog.breaker.rejected", map[string]any{"handle": handle})
			return domain.Product{}, fmt.Errorf("%w: circuit open", ErrCatalogUnavailable)
		}
		return domain.Product{}, err
	}
	return product, nil
}

func (c *Client) fetchProduct(ctx context.Context, handle string) (domain.Product, error) {
	endpoint, err := url.JoinPath(c.baseURL, "products", handle)
	if err != nil {
		return domain.Product{}, fmt.Errorf("catalog: build url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Product{}, fmt.Errorf("catalog: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Product{}, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.Product{}, fmt.Errorf("%w: %q", ErrProductNotFound, handle)
	case resp.StatusCode >= http.StatusInternalServerError:
		return domain.Product{}, fmt.Errorf("%w: status %d", ErrCatalogUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return domain.Product{}, fmt.Errorf("catalog: unexpected status %d: %s", resp.StatusCode, drainBody(resp.Body))
	}

	var payload productPayload
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return domain.Product{}, fmt.Errorf("catalog: decode product: %w", err)
	}

	return domain.Product{
		Handle:      payload.Handle,
		Title:       payload.Title,
		Description: payload.Description,
		Price:       payload.Price,
		Currency:    strings.ToUpper(payload.Currency),
		ImageURL:    payload.ImageURL,
		Available:   payload.Available,
	}, nil
}

// CartLine is one line forwarded to the provider's hosted cart.
type CartLine struct {
	MerchandiseID string `json:"merchandiseId"`
	Quantity      int    `json:"quantity"`
}

// HostedCart is the provider-side cart handle used for hosted checkout flows.
type HostedCart struct {
	ID          string `json:"id"`
	CheckoutURL string `json:"checkoutUrl"`
}

// CreateCart opens a provider-hosted cart for the given lines and returns its
// checkout URL. Used when the storefront hands the purchase off to the catalog
// provider's own checkout instead of the local payment flow.
func (c *Client) CreateCart(ctx context.Context, lines []CartLine) (HostedCart, error) {
	if c == nil {
		return HostedCart{}, errors.New("catalog: client is nil")
	}
	if len(lines) == 0 {
		return HostedCart{}, errors.New("catalog: cart lines are required")
	}
	for _, line := range lines {
		if strings.TrimSpace(line.MerchandiseID) == "" || line.Quantity <= 0 {
			return HostedCart{}, errors.New("catalog: cart lines need a merchandise id and positive quantity")
		}
	}

	endpoint, err := url.JoinPath(c.baseURL, "carts")
	if err != nil {
		return HostedCart{}, fmt.Errorf("catalog: build url: %w", err)
	}

	body, err := json.Marshal(struct {
		Lines []CartLine `json:"lines"`
	}{Lines: lines})
	if err != nil {
		return HostedCart{}, fmt.Errorf("catalog: encode cart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return HostedCart{}, fmt.Errorf("catalog: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return HostedCart{}, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return HostedCart{}, fmt.Errorf("%w: status %d", ErrCatalogUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return HostedCart{}, fmt.Errorf("catalog: unexpected status %d: %s", resp.StatusCode, drainBody(resp.Body))
	}

	var cart HostedCart
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&cart); err != nil {
		return HostedCart{}, fmt.Errorf("catalog: decode cart: %w", err)
	}
	if cart.CheckoutURL == "" {
		return HostedCart{}, errors.New("catalog: cart response missing checkout url")
	}

	c.logger(ctx, "catalog.cart.created", map[string]any{
		"cartId": cart.ID,
		"lines":  len(lines),
	})
	return cart, nil
}

func drainBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(b))
}
