package services

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/proposta360/proposal-analytics/models"
)

var visitorColumns = []string{
	"id", "proposal_id", "full_name", "national_id", "position", "company",
	"access_token", "device_type", "country", "region", "first_visit_at", "last_activity_at",
}

func TestRegisterVisitor_CreatesNewVisitor(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	defer db.Close()

	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM proposal_visitors").
		WithArgs("111", int64(7)).
		WillReturnError(sql.ErrNoRows)

	mock.ExpectQuery("INSERT INTO proposal_visitors").
		WillReturnRows(sqlmock.NewRows(visitorColumns).
			AddRow(1, 7, "Ana", "111", "CTO", "Acme", "token-1", "Desktop", "Italy", "Lombardy", now, now))

	visitor, created, err := RegisterVisitor(db, models.VisitorReceiver{
		ProposalID: 7,
		FullName:   "Ana",
		NationalID: "111",
		Position:   "CTO",
		Company:    "Acme",
	}, "Desktop", "Italy", "Lombardy")
	if err != nil {
		t.Fatalf("RegisterVisitor() error: %v", err)
	}

	if !created {
		t.Error("expected a new visitor to be created")
	}
	if visitor.AccessToken != "token-1" {
		t.Errorf("AccessToken = %q, want token-1", visitor.AccessToken)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRegisterVisitor_ReturningVisitorKeepsToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	defer db.Close()

	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM proposal_visitors").
		WithArgs("111", int64(7)).
		WillReturnRows(sqlmock.NewRows(visitorColumns).
			AddRow(1, 7, "Ana", "111", "CTO", "Acme", "original-token", "Desktop", "Italy", "Lombardy", now, now))

	mock.ExpectQuery("UPDATE proposal_visitors").
		WithArgs(int64(1), "Ana", "CTO", "NewCorp").
		WillReturnRows(sqlmock.NewRows(visitorColumns).
			AddRow(1, 7, "Ana", "111", "CTO", "NewCorp", "original-token", "Desktop", "Italy", "Lombardy", now, now))

	visitor, created, err := RegisterVisitor(db, models.VisitorReceiver{
		ProposalID: 7,
		FullName:   "Ana",
		NationalID: "111",
		Position:   "CTO",
		Company:    "NewCorp",
	}, "Desktop", "Italy", "Lombardy")
	if err != nil {
		t.Fatalf("RegisterVisitor() error: %v", err)
	}

	if created {
		t.Error("returning visitor must not create a new row")
	}
	if visitor.AccessToken != "original-token" {
		t.Errorf("AccessToken = %q, want the original token", visitor.AccessToken)
	}
	if visitor.Company != "NewCorp" {
		t.Errorf("Company = %q, want NewCorp", visitor.Company)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestFindVisitorByToken_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM proposal_visitors pv").
		WithArgs("no-such-token").
		WillReturnError(sql.ErrNoRows)

	_, err = FindVisitorByToken(db, "no-such-token")
	if err != ErrVisitorNotFound {
		t.Errorf("FindVisitorByToken() error = %v, want ErrVisitorNotFound", err)
	}
}

func TestTouchVisitor(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE proposal_visitors").
		WithArgs("token-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := TouchVisitor(db, "token-1"); err != nil {
		t.Errorf("TouchVisitor() error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
