package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq"

	"github.com/aura-apparel/api/internal/platform/config"
)

const defaultPingTimeout = 10 * time.Second

// ErrProviderClosed is returned once Close has been invoked.
var ErrProviderClosed = errors.New("postgres: provider is closed")

// Provider owns the shared database handle and its pool settings.
type Provider struct {
	cfg config.DatabaseConfig
	db  *sql.DB

	pingTimeout time.Duration
	closed      atomic.Bool
}

// ProviderOption customises the Provider behaviour.
type ProviderOption func(*Provider)

// WithPingTimeout overrides the timeout used when verifying connectivity.
func WithPingTimeout(timeout time.Duration) ProviderOption {
	return func(p *Provider) {
		if timeout > 0 {
			p.pingTimeout = timeout
		}
	}
}

// NewProvider opens the database handle and verifies connectivity.
func NewProvider(ctx context.Context, cfg config.DatabaseConfig, opts ...ProviderOption) (*Provider, error) {
	if cfg.URL == "" {
		return nil, errors.New("postgres: database url is required")
	}

	provider := &Provider{
		cfg:         cfg,
		pingTimeout: defaultPingTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(provider)
		}
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, provider.pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	provider.db = db
	return provider, nil
}

// DB returns the shared database handle.
func (p *Provider) DB() (*sql.DB, error) {
	if p == nil || p.db == nil {
		return nil, errors.New("postgres: provider not initialised")
	}
	if p.closed.Load() {
		return nil, ErrProviderClosed
	}
	return p.db, nil
}

// Ping verifies the database is reachable, bounded by the provider's ping timeout.
func (p *Provider) Ping(ctx context.Context) error {
	db, err := p.DB()
	if err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(ctx, p.pingTimeout)
	defer cancel()
	return db.PingContext(pingCtx)
}

// Close releases the underlying connection pool.
func (p *Provider) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	if p.closed.Swap(true) {
		return nil
	}
	return p.db.Close()
}
