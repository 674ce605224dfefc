package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/example/room-booking/internal/persistence"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "no rows", err: pgx.ErrNoRows, want: persistence.ErrNotFound},
		{name: "unique", err: &pgconn.PgError{Code: "23505"}, want: persistence.ErrDuplicate},
		{name: "foreign key", err: &pgconn.PgError{Code: "23503"}, want: persistence.ErrForeignKeyViolation},
		{name: "check", err: &pgconn.PgError{Code: "23514"}, want: persistence.ErrConstraintViolation},
		{name: "serialization", err: fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"}), want: persistence.ErrBusy},
		{name: "lock not available", err: &pgconn.PgError{Code: "55P03"}, want: persistence.ErrBusy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapError(tt.err); !errors.Is(got, tt.want) {
				t.Fatalf("mapError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestForUpdateOnlyInsideTransactions(t *testing.T) {
	if got := (&repos{}).forUpdate(); got != "" {
		t.Fatalf("expected no lock clause outside a transaction, got %q", got)
	}
	if got := (&repos{inTx: true}).forUpdate(); got != " FOR UPDATE" {
		t.Fatalf("expected FOR UPDATE inside a transaction, got %q", got)
	}
}
