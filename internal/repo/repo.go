package repo

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"strings"

	"hireline/internal/domain"
)

// Querier is satisfied by *sql.DB and *sql.Tx. Inside a transaction always pass the tx:
// the pool has a single connection.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = domain.ErrNotFound

// on returns q, or the pool when q is nil.
func (r Repo) on(q Querier) Querier {
	if q == nil {
		return r.DB
	}
	return q
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func ptr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func affected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// EncodeCursor packs a (created_at,id) pair into an opaque page token.
func EncodeCursor(createdAt, id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(createdAt + "|" + id))
}

func DecodeCursor(cursor string) (createdAt, id string, err error) {
	if cursor == "" {
		return "", "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", "", &domain.ValidationError{Field: "cursor", Message: "invalid cursor"}
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", &domain.ValidationError{Field: "cursor", Message: "invalid cursor"}
	}
	return parts[0], parts[1], nil
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
