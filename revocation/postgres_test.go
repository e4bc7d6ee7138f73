package revocation

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPostgresLedgerRevoke(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	ledger := NewPostgresLedger(db)

	expiry := time.Now().Add(time.Hour)
	mock.ExpectExec(regexp.QuoteMeta(
		`INSERT INTO revoked_tokens (jti, expires_at, reason, user_id) VALUES ($1, $2, $3, $4)`,
	)).WithArgs("jti-1", expiry.UTC(), "logout", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ledger.Revoke(context.Background(), Entry{
		JTI: "jti-1", ExpiresAt: expiry, Reason: "logout", UserID: "user-1",
	})
	if err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresLedgerRevokeRecordsExpiredForAudit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	ledger := NewPostgresLedger(db)

	// An already-expired token still gets a row; the sweep removes it.
	expiry := time.Now().Add(-time.Minute)
	mock.ExpectExec(regexp.QuoteMeta(
		`INSERT INTO revoked_tokens (jti, expires_at, reason, user_id) VALUES ($1, $2, $3, $4)`,
	)).WithArgs("jti-1", expiry.UTC(), "logout", "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = ledger.Revoke(context.Background(), Entry{JTI: "jti-1", ExpiresAt: expiry, Reason: "logout"})
	if err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresLedgerIsRevoked(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	ledger := NewPostgresLedger(db)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = $1 AND expires_at > now())`,
	)).WithArgs("jti-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	revoked, err := ledger.IsRevoked(context.Background(), "jti-1")
	if err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if !revoked {
		t.Fatalf("expected revoked")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresLedgerSweepExpired(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	ledger := NewPostgresLedger(db)

	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta(
		`DELETE FROM revoked_tokens WHERE expires_at <= $1`,
	)).WithArgs(now.UTC()).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := ledger.SweepExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 swept, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
