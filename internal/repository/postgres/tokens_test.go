package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/quindo/portal-auth/internal/core/domain"
	"github.com/quindo/portal-auth/internal/repository"
)

func tokenColumns() []string {
	return []string{"id", "user_id", "kind", "code_hash", "issued_at", "expires_at", "consumed"}
}

func TestTokenRepository_LatestPendingForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewTokenRepository(mock)

	now := time.Now().UTC()
	rows := pgxmock.NewRows(tokenColumns()).
		AddRow("token-2", "user-123", domain.TokenKindSecondFactor, "digest", now, now.Add(5*time.Minute), false)

	// Eq keys are emitted in sorted order: consumed, kind, user_id.
	mock.ExpectQuery(`SELECT .+ FROM portal\.tokens WHERE .+ ORDER BY issued_at DESC LIMIT 1 FOR UPDATE`).
		WithArgs(false, domain.TokenKindSecondFactor, "user-123", now).
		WillReturnRows(rows)

	token, err := repo.LatestPendingForUpdate(context.Background(), "user-123", domain.TokenKindSecondFactor, now)
	if err != nil {
		t.Fatalf("LatestPendingForUpdate returned error: %v", err)
	}
	if token.ID != "token-2" || token.Consumed {
		t.Errorf("unexpected token: %+v", token)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenRepository_LatestPendingNone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewTokenRepository(mock)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT .+ FROM portal\.tokens`).
		WithArgs(false, domain.TokenKindReset, "user-123", now).
		WillReturnRows(pgxmock.NewRows(tokenColumns()))

	if _, err := repo.LatestPendingForUpdate(context.Background(), "user-123", domain.TokenKindReset, now); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestTokenRepository_Consume(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewTokenRepository(mock)

	mock.ExpectExec(`UPDATE portal\.tokens SET consumed = \$1 WHERE`).
		WithArgs(true, false, "token-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.Consume(context.Background(), "token-1"); err != nil {
		t.Fatalf("Consume returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenRepository_ConsumeAlreadyUsed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewTokenRepository(mock)

	mock.ExpectExec(`UPDATE portal\.tokens SET consumed = \$1 WHERE`).
		WithArgs(true, false, "token-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.Consume(context.Background(), "token-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
