package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aura-apparel/api/internal/catalog"
	"github.com/aura-apparel/api/internal/payments"
	"github.com/aura-apparel/api/internal/platform/config"
	"github.com/aura-apparel/api/internal/repositories"
	"github.com/aura-apparel/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Promotions services.PromotionService
	Orders     services.OrderService
	Checkout   services.CheckoutService
	Catalog    services.CatalogService
}

// ContainerDeps carries the externally owned dependencies for container construction.
type ContainerDeps struct {
	Config       config.Config
	Repositories repositories.Registry
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories, payment providers, and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Payments     *payments.Manager
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides the
// Postgres-backed registry; tests can supply in-memory registries.
func NewContainer(deps ContainerDeps) (*Container, error) {
	reg := deps.Repositories
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	cfg := deps.Config

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	manager, err := buildPaymentManager(cfg, logger)
	if err != nil {
		return nil, err
	}

	svc, err := buildServices(cfg, reg, manager, logger)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Payments:     manager,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildPaymentManager(cfg config.Config, logger func(ctx context.Context, event string, fields map[string]any)) (*payments.Manager, error) {
	var providers []payments.Provider

	if cfg.PSP.RazorpayKeyID != "" {
		razorpay, err := payments.NewRazorpayProvider(payments.RazorpayProviderConfig{
			KeyID:         cfg.PSP.RazorpayKeyID,
			KeySecret:     cfg.PSP.RazorpayKeySecret,
			WebhookSecret: cfg.PSP.RazorpayWebhookSecret,
			Logger:        payments.RazorpayLogger(logger),
		})
		if err != nil {
			return nil, fmt.Errorf("build razorpay provider: %w", err)
		}
		providers = append(providers, razorpay)
	}

	if cfg.PSP.StripeAPIKey != "" {
		stripe, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:        cfg.PSP.StripeAPIKey,
			WebhookSecret: cfg.PSP.StripeWebhookSecret,
			SuccessURL:    cfg.PSP.StripeSuccessURL,
			CancelURL:     cfg.PSP.StripeCancelURL,
			Logger:        payments.StripeLogger(logger),
		})
		if err != nil {
			return nil, fmt.Errorf("build stripe provider: %w", err)
		}
		providers = append(providers, stripe)
	}

	if len(providers) == 0 {
		return nil, errors.New("at least one payment gateway must be configured")
	}

	manager, err := payments.NewManager(providers)
	if err != nil {
		return nil, fmt.Errorf("build payment manager: %w", err)
	}
	return manager, nil
}

func buildServices(cfg config.Config, reg repositories.Registry, manager *payments.Manager, logger func(ctx context.Context, event string, fields map[string]any)) (Services, error) {
	var svc Services

	promotionSvc, err := services.NewPromotionService(services.PromotionServiceDeps{
		Promotions: reg.Promotions(),
		Logger:     logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build promotion service: %w", err)
	}
	svc.Promotions = promotionSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:            reg.Orders(),
		UnitOfWork:        reg,
		Clock:             time.Now,
		OrderNumberPrefix: cfg.Checkout.OrderNumberPrefix,
		Logger:            logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Orders:           orderSvc,
		Promotions:       promotionSvc,
		OrderStore:       reg.Orders(),
		Payments:         manager,
		Currency:         cfg.Checkout.Currency,
		ShippingFlatFee:  cfg.Checkout.ShippingFlatFee,
		FreeShippingOver: cfg.Checkout.FreeShippingOver,
		Clock:            time.Now,
		Logger:           logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkoutSvc

	if cfg.Catalog.BaseURL != "" {
		catalogClient, err := catalog.NewClient(catalog.Config{
			BaseURL:    cfg.Catalog.BaseURL,
			AuthToken:  cfg.Catalog.AuthToken,
			HTTPClient: &http.Client{Timeout: cfg.Catalog.Timeout},
			Logger:     catalog.Logger(logger),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build catalog client: %w", err)
		}
		svc.Catalog = catalogClient
	}

	return svc, nil
}
