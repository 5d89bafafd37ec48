package idempotency

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lib/pq"
)

// PostgresStore persists idempotency records in the idempotency_keys table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a store backed by the shared database handle.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("idempotency: database handle is required")
	}
	return &PostgresStore{db: db}, nil
}

// Reserve attempts to claim the key for the given fingerprint, returning any stored response.
func (s *PostgresStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	expiresAt := now.Add(ttl)

	const insert = `
		INSERT INTO idempotency_keys (key, fingerprint, status, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $4, $5)`

	_, err := s.db.ExecContext(ctx, insert, compositeKey(key, fingerprint), fingerprint, string(StatusPending), now, expiresAt)
	if err == nil {
		return Reservation{State: ReservationStateNew}, nil
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return Reservation{}, fmt.Errorf("idempotency: reserve: %w", err)
	}

	record, err := s.get(ctx, compositeKey(key, fingerprint))
	if err != nil {
		return Reservation{}, err
	}

	if !record.ExpiresAt.IsZero() && !record.ExpiresAt.After(now) {
		// Stale reservation: replace it and continue as a fresh request.
		if err := s.replaceExpired(ctx, compositeKey(key, fingerprint), fingerprint, now, expiresAt); err != nil {
			return Reservation{}, err
		}
		return Reservation{State: ReservationStateNew}, nil
	}

	if record.Fingerprint != fingerprint {
		return Reservation{}, ErrFingerprintMismatch
	}

	if record.Status == StatusCompleted {
		return Reservation{State: ReservationStateCompleted, Record: record}, nil
	}
	return Reservation{State: ReservationStatePending, Record: record}, nil
}

// SaveResponse stores the completed response payload for later replays.
func (s *PostgresStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()

	headers, err := json.Marshal(resp.Headers)
	if err != nil {
		return fmt.Errorf("idempotency: marshal headers: %w", err)
	}

	const update = `
		UPDATE idempotency_keys
		SET status = $2, response_status = $3, response_headers = $4, response_body = $5, updated_at = $6, expires_at = $7
		WHERE key = $1 AND fingerprint = $8`

	result, err := s.db.ExecContext(ctx, update,
		compositeKey(key, fingerprint), string(StatusCompleted), resp.Status, headers, resp.Body, now, now.Add(ttl), fingerprint)
	if err != nil {
		return fmt.Errorf("idempotency: save response: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("idempotency: save response: %w", err)
	}
	if affected == 0 {
		return ErrFingerprintMismatch
	}
	return nil
}

// Release removes a pending reservation so the key can be retried.
func (s *PostgresStore) Release(ctx context.Context, key, fingerprint string) error {
	const del = `
		DELETE FROM idempotency_keys
		WHERE key = $1 AND fingerprint = $2 AND status = $3`

	if _, err := s.db.ExecContext(ctx, del, compositeKey(key, fingerprint), fingerprint, string(StatusPending)); err != nil {
		return fmt.Errorf("idempotency: release: %w", err)
	}
	return nil
}

// CleanupExpired deletes up to limit expired records, returning the number removed.
func (s *PostgresStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	const del = `
		DELETE FROM idempotency_keys
		WHERE key IN (
			SELECT key FROM idempotency_keys
			WHERE expires_at <= $1
			ORDER BY expires_at
			LIMIT $2
		)`

	result, err := s.db.ExecContext(ctx, del, now.UTC(), limit)
	if err != nil {
		return 0, fmt.Errorf("idempotency: cleanup: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("idempotency: cleanup: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresStore) get(ctx context.Context, key string) (Record, error) {
	const query = `
		SELECT key, fingerprint, status, COALESCE(response_status, 0), response_headers, response_body, created_at, updated_at, expires_at
		FROM idempotency_keys
		WHERE key = $1`

	var (
		record     Record
		status     string
		rawHeaders []byte
	)
	err := s.db.QueryRowContext(ctx, query, key).Scan(
		&record.Key, &record.Fingerprint, &status, &record.ResponseStatus,
		&rawHeaders, &record.ResponseBody, &record.CreatedAt, &record.UpdatedAt, &record.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("idempotency: reservation vanished for key %s", key)
	}
	if err != nil {
		return Record{}, fmt.Errorf("idempotency: get: %w", err)
	}

	record.Status = Status(status)
	if len(rawHeaders) > 0 {
		headers := http.Header{}
		if err := json.Unmarshal(rawHeaders, &headers); err == nil {
			record.ResponseHeaders = headers
		}
	}
	return record, nil
}

func (s *PostgresStore) replaceExpired(ctx context.Context, key, fingerprint string, now, expiresAt time.Time) error {
	const update = `
		UPDATE idempotency_keys
		SET fingerprint = $2, status = $3, response_status = NULL, response_headers = NULL, response_body = NULL,
		    created_at = $4, updated_at = $4, expires_at = $5
		WHERE key = $1 AND expires_at <= $4`

	if _, err := s.db.ExecContext(ctx, update, key, fingerprint, string(StatusPending), now, expiresAt); err != nil {
		return fmt.Errorf("idempotency: replace expired: %w", err)
	}
	return nil
}
