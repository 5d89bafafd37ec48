package pagination

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseParamsDefaults(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/orders", nil)

	params, err := ParseParams(req)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if params.PageSize != DefaultPageSize {
		t.Errorf("expected default page size %d, got %d", DefaultPageSize, params.PageSize)
	}
	if !params.Cursor.IsZero() {
		t.Errorf("expected empty cursor, got %+v", params.Cursor)
	}
	if params.Order.Field != "created_at" || !params.Order.Desc {
		t.Errorf("expected default order created_at desc, got %+v", params.Order)
	}
}

func TestParseParamsClampsPageSize(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/orders?pageSize=500", nil)

	params, err := ParseParams(req)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if params.PageSize != DefaultMaxPageSize {
		t.Errorf("expected page size clamped to %d, got %d", DefaultMaxPageSize, params.PageSize)
	}
}

func TestParseParamsRejectsInvalidPageSize(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-5"} {
		req := httptest.NewRequest("GET", "/api/v1/orders?pageSize="+raw, nil)
		if _, err := ParseParams(req); !errors.Is(err, ErrInvalidPageSize) {
			t.Errorf("pageSize=%s: expected ErrInvalidPageSize, got %v", raw, err)
		}
	}
}

func TestParseParamsSort(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/orders?sort=-createdAt", nil)

	params, err := ParseParams(req)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if params.Order.Field != "created_at" || !params.Order.Desc {
		t.Errorf("unexpected order %+v", params.Order)
	}

	req = httptest.NewRequest("GET", "/api/v1/orders?sort=createdAt", nil)
	params, err = ParseParams(req)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if params.Order.Desc {
		t.Error("expected ascending order")
	}
}

func TestParseParamsRejectsUnknownSortField(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/orders?sort=total", nil)
	if _, err := ParseParams(req); !errors.Is(err, ErrInvalidSort) {
		t.Fatalf("expected ErrInvalidSort, got %v", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	cursor := Cursor{
		CreatedAt: time.Date(2025, time.February, 10, 9, 30, 0, 0, time.UTC),
		ID:        "ord_01HV5TZ5J0",
	}

	token, err := EncodeToken(cursor)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	decoded, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.CreatedAt.Equal(cursor.CreatedAt) || decoded.ID != cursor.ID {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
}

func TestDecodeTokenRejectsGarbage(t *testing.T) {
	if _, err := DecodeToken("!!not-base64!!"); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
	if _, err := DecodeToken("bm90LWpzb24"); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken for non-json payload, got %v", err)
	}
}

func TestEncodeTokenEmptyCursor(t *testing.T) {
	token, err := EncodeToken(Cursor{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if token != "" {
		t.Fatalf("expected empty token for zero cursor, got %q", token)
	}
}
