package services

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/proposta360/proposal-analytics/models"
)

func TestLogInteraction_AppendsEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	defer db.Close()

	now := time.Now()
	duration := 42

	mock.ExpectQuery("INSERT INTO proposal_visitor_interactions").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(99, now))

	event, err := LogInteraction(db, models.InteractionInsert{
		VisitorID:  1,
		ProposalID: 7,
		EventType:  models.EventSectionView,
		EventData:  map[string]interface{}{"section": "pricing"},
		TimeSpent:  &duration,
	})
	if err != nil {
		t.Fatalf("LogInteraction() error: %v", err)
	}

	if event.ID != 99 {
		t.Errorf("ID = %d, want 99", event.ID)
	}
	if event.EventType != models.EventSectionView {
		t.Errorf("EventType = %q, want section_view", event.EventType)
	}
	if event.TimeSpent == nil || *event.TimeSpent != 42 {
		t.Errorf("TimeSpent = %v, want 42", event.TimeSpent)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetProposalOverview_NoEventsReturnsZeroes(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	defer db.Close()

	// COALESCE turns absent duration/scroll averages into 0 and MAX over no
	// rows into NULL; the zero-event case must never error.
	mock.ExpectQuery("SELECT (.+) FROM proposal_visitors pv").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"count", "count", "avg", "avg", "max"}).
			AddRow(0, 0, 0.0, 0.0, nil))

	overview, err := GetProposalOverview(db, 7)
	if err != nil {
		t.Fatalf("GetProposalOverview() error: %v", err)
	}

	if overview.UniqueVisitors != 0 || overview.TotalInteractions != 0 {
		t.Errorf("counts = %d/%d, want zeroes", overview.UniqueVisitors, overview.TotalInteractions)
	}
	if overview.AvgTimeSpent != 0 || overview.AvgScrollPercentage != 0 {
		t.Errorf("averages = %v/%v, want zeroes", overview.AvgTimeSpent, overview.AvgScrollPercentage)
	}
	if overview.LastVisitAt != nil {
		t.Errorf("LastVisitAt = %v, want nil", overview.LastVisitAt)
	}
}

func TestGetTimeline_JoinsVisitorFields(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	defer db.Close()

	now := time.Now()
	columns := []string{
		"id", "visitor_id", "proposal_id", "event_type", "event_data",
		"section_id", "time_spent", "scroll_percentage", "created_at",
		"full_name", "company",
	}

	mock.ExpectQuery("SELECT (.+) FROM proposal_visitor_interactions pi").
		WithArgs(int64(7), TimelineLimit).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(2, 1, 7, "scroll", []byte(`{"scroll_percentage":80}`), nil, nil, 80.0, now, "Ana", "Acme").
			AddRow(1, 1, 7, "page_view", []byte(`{"page":"proposal_main"}`), nil, nil, nil, now.Add(-time.Minute), "Ana", "Acme"))

	timeline, err := GetTimeline(db, 7)
	if err != nil {
		t.Fatalf("GetTimeline() error: %v", err)
	}

	if len(timeline) != 2 {
		t.Fatalf("len(timeline) = %d, want 2", len(timeline))
	}
	if timeline[0].VisitorName != "Ana" {
		t.Errorf("VisitorName = %q, want Ana", timeline[0].VisitorName)
	}
	if timeline[0].ScrollPercentage == nil || *timeline[0].ScrollPercentage != 80 {
		t.Errorf("ScrollPercentage = %v, want 80", timeline[0].ScrollPercentage)
	}
	if timeline[1].TimeSpent != nil {
		t.Errorf("TimeSpent = %v, want nil for an event without a duration", timeline[1].TimeSpent)
	}
}

func TestGetRealtimeVisitors(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	defer db.Close()

	now := time.Now()
	columns := []string{
		"id", "proposal_id", "full_name", "national_id", "position", "company",
		"device_type", "country", "region", "first_visit_at", "last_activity_at", "max",
	}

	mock.ExpectQuery("SELECT (.+) FROM proposal_visitors pv").
		WithArgs(int64(7), DefaultRealtimeWindow.Seconds()).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(1, 7, "Ana", "111", "CTO", "Acme", "Desktop", "Italy", "Lombardy", now, now, now))

	visitors, err := GetRealtimeVisitors(db, 7, DefaultRealtimeWindow)
	if err != nil {
		t.Fatalf("GetRealtimeVisitors() error: %v", err)
	}

	if len(visitors) != 1 {
		t.Fatalf("len(visitors) = %d, want 1", len(visitors))
	}
	if visitors[0].FullName != "Ana" {
		t.Errorf("FullName = %q, want Ana", visitors[0].FullName)
	}
}
