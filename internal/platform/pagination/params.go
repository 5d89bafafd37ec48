package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultPageSize defines the fallback number of items returned when the client omits pageSize.
	DefaultPageSize = 20
	// DefaultMaxPageSize caps the supported pageSize to prevent unbounded queries.
	DefaultMaxPageSize = 100
)

var (
	// ErrInvalidPageSize indicates the pageSize query parameter could not be used.
	ErrInvalidPageSize = errors.New("pagination: invalid page size")
	// ErrInvalidPageToken indicates the pageToken query parameter could not be decoded.
	ErrInvalidPageToken = errors.New("pagination: invalid page token")
	// ErrInvalidSort indicates an unsupported sort expression.
	ErrInvalidSort = errors.New("pagination: invalid sort")
)

// Cursor marks the position of the last row on the previous page of a keyset scan.
type Cursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

// IsZero reports whether the cursor carries no position.
func (c Cursor) IsZero() bool {
	return c.CreatedAt.IsZero() && c.ID == ""
}

// Order describes the sort direction applied to the created_at keyset.
type Order struct {
	Field string
	Desc  bool
}

// Params carries the pagination inputs parsed from a list request.
type Params struct {
	PageSize int
	Cursor   Cursor
	Order    Order
}

// Option customises parsing behaviour.
type Option func(*parseConfig)

type parseConfig struct {
	defaultPageSize int
	maxPageSize     int
	sortFields      map[string]string
	defaultOrder    Order
}

// WithDefaultPageSize overrides the page size applied when the client omits pageSize.
func WithDefaultPageSize(size int) Option {
	return func(cfg *parseConfig) {
		if size > 0 {
			cfg.defaultPageSize = size
		}
	}
}

// WithMaxPageSize overrides the upper bound enforced on pageSize.
func WithMaxPageSize(size int) Option {
	return func(cfg *parseConfig) {
		if size > 0 {
			cfg.maxPageSize = size
		}
	}
}

// WithSortFields declares the API-facing sort names mapped to their column names.
func WithSortFields(fields map[string]string) Option {
	return func(cfg *parseConfig) {
		if len(fields) == 0 {
			return
		}
		cfg.sortFields = make(map[string]string, len(fields))
		for name, column := range fields {
			name = strings.ToLower(strings.TrimSpace(name))
			column = strings.TrimSpace(column)
			if name == "" || column == "" {
				continue
			}
			cfg.sortFields[name] = column
		}
	}
}

// WithDefaultOrder sets the order applied when the client omits sort.
func WithDefaultOrder(order Order) Option {
	return func(cfg *parseConfig) {
		if order.Field != "" {
			cfg.defaultOrder = order
		}
	}
}

// ParseParams extracts pageSize, pageToken, and sort from the request query string.
func ParseParams(r *http.Request, opts ...Option) (Params, error) {
	cfg := parseConfig{
		defaultPageSize: DefaultPageSize,
		maxPageSize:     DefaultMaxPageSize,
		sortFields:      map[string]string{"createdat": "created_at"},
		defaultOrder:    Order{Field: "created_at", Desc: true},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	params := Params{
		PageSize: cfg.defaultPageSize,
		Order:    cfg.defaultOrder,
	}

	query := r.URL.Query()

	if raw := strings.TrimSpace(query.Get("pageSize")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			return Params{}, fmt.Errorf("%w: %q", ErrInvalidPageSize, raw)
		}
		if size > cfg.maxPageSize {
			size = cfg.maxPageSize
		}
		params.PageSize = size
	}

	if raw := strings.TrimSpace(query.Get("pageToken")); raw != "" {
		cursor, err := DecodeToken(raw)
		if err != nil {
			return Params{}, err
		}
		params.Cursor = cursor
	}

	if raw := strings.TrimSpace(query.Get("sort")); raw != "" {
		order, err := parseSort(raw, cfg.sortFields)
		if err != nil {
			return Params{}, err
		}
		params.Order = order
	}

	return params, nil
}

func parseSort(raw string, fields map[string]string) (Order, error) {
	desc := false
	name := raw
	if strings.HasPrefix(raw, "-") {
		desc = true
		name = raw[1:]
	}
	name = strings.ToLower(strings.TrimSpace(name))
	column, ok := fields[name]
	if !ok {
		return Order{}, fmt.Errorf("%w: %q", ErrInvalidSort, raw)
	}
	return Order{Field: column, Desc: desc}, nil
}
