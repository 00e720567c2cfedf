package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/proposta360/proposal-analytics/models"
)

var dueColumns = []string{
	"id", "proposal_id", "follow_up_type", "message", "attempts",
	"title", "user_id", "name", "email", "whatsapp_number",
}

func newTestScheduler(t *testing.T) (*FollowUpScheduler, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := NewFollowUpScheduler(db, nil)
	s.pollInterval = time.Hour
	return s, mock
}

func expectDueRow(mock sqlmock.Sqlmock, channel string, attempts int) {
	mock.ExpectQuery("SELECT (.+) FROM follow_up_schedule fs").
		WithArgs(models.MaxFollowUpAttempts, BatchLimit).
		WillReturnRows(sqlmock.NewRows(dueColumns).
			AddRow(1, 7, channel, "Automatic follow-up: no interaction in 24h", attempts,
				"Website redesign", 3, "Marco", "marco@example.com", "+5511999999999"))
}

func TestProcessDueFollowUps_SendsAndMarksSent(t *testing.T) {
	s, mock := newTestScheduler(t)

	var sentTo string
	s.sendEmail = func(to, subject, body string) error {
		sentTo = to
		return nil
	}
	s.sendWhatsApp = func(to, message string) error {
		t.Error("whatsapp channel used for an email task")
		return nil
	}

	expectDueRow(mock, models.ChannelEmail, 0)
	mock.ExpectExec("UPDATE follow_up_schedule").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE follow_up_schedule").
		WithArgs(models.FollowUpSent, "", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s.ProcessDueFollowUps()

	if sentTo != "marco@example.com" {
		t.Errorf("sent to %q, want the owner's email", sentTo)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestProcessDueFollowUps_FailureRecordsError(t *testing.T) {
	s, mock := newTestScheduler(t)

	s.sendWhatsApp = func(to, message string) error {
		return errors.New("gateway timeout")
	}

	expectDueRow(mock, models.ChannelWhatsApp, 2)
	mock.ExpectExec("UPDATE follow_up_schedule").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE follow_up_schedule").
		WithArgs(models.FollowUpFailed, "gateway timeout", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s.ProcessDueFollowUps()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestProcessDueFollowUps_AttemptRecordFailureLeavesTaskPending(t *testing.T) {
	s, mock := newTestScheduler(t)

	s.sendEmail = func(to, subject, body string) error {
		t.Error("dispatched without recording the attempt first")
		return nil
	}

	expectDueRow(mock, models.ChannelEmail, 0)
	// The attempt update fails: no dispatch, no outcome update, the task is
	// left pending for the next tick.
	mock.ExpectExec("UPDATE follow_up_schedule").
		WithArgs(int64(1)).
		WillReturnError(errors.New("connection reset"))

	s.ProcessDueFollowUps()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestProcessDueFollowUps_EmptyBatch(t *testing.T) {
	s, mock := newTestScheduler(t)

	mock.ExpectQuery("SELECT (.+) FROM follow_up_schedule fs").
		WithArgs(models.MaxFollowUpAttempts, BatchLimit).
		WillReturnRows(sqlmock.NewRows(dueColumns))

	s.ProcessDueFollowUps()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestProcessDueFollowUps_SkipsOverlappingTick(t *testing.T) {
	s, mock := newTestScheduler(t)

	s.mu.Lock()
	s.processing = true
	s.mu.Unlock()

	// A tick while another is in flight must not touch the database.
	s.ProcessDueFollowUps()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected database activity: %v", err)
	}
}

func TestStartStop(t *testing.T) {
	s, mock := newTestScheduler(t)

	// The loop processes once immediately on startup.
	mock.ExpectQuery("SELECT (.+) FROM follow_up_schedule fs").
		WithArgs(models.MaxFollowUpAttempts, BatchLimit).
		WillReturnRows(sqlmock.NewRows(dueColumns))

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("second Start() must fail while running")
	}

	s.Stop()
	s.Stop() // stopping twice is a no-op

	// Restartable after a clean stop.
	mock.ExpectQuery("SELECT (.+) FROM follow_up_schedule fs").
		WithArgs(models.MaxFollowUpAttempts, BatchLimit).
		WillReturnRows(sqlmock.NewRows(dueColumns))

	if err := s.Start(); err != nil {
		t.Fatalf("restart error: %v", err)
	}
	s.Stop()
}
