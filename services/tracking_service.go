package services

import (
	"database/sql"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/proposta360/proposal-analytics/models"
)

// DefaultRealtimeWindow bounds the "who is here now" query. Override with
// REALTIME_WINDOW_MINUTES.
const DefaultRealtimeWindow = 5 * time.Minute

// TimelineLimit caps the live activity feed.
const TimelineLimit = 50

func RealtimeWindow() time.Duration {
	if v := os.Getenv("REALTIME_WINDOW_MINUTES"); v != "" {
		if minutes, err := strconv.Atoi(v); err == nil && minutes > 0 {
			return time.Duration(minutes) * time.Minute
		}
	}
	return DefaultRealtimeWindow
}

// LogInteraction appends one event. Events are immutable once written.
func LogInteraction(db *sql.DB, insert models.InteractionInsert) (*models.InteractionEvent, error) {
	eventData := insert.EventData
	if eventData == nil {
		eventData = map[string]interface{}{}
	}
	dataJSON, err := json.Marshal(eventData)
	if err != nil {
		return nil, err
	}

	event := models.InteractionEvent{
		VisitorID:        insert.VisitorID,
		ProposalID:       insert.ProposalID,
		EventType:        insert.EventType,
		EventData:        eventData,
		SectionID:        insert.SectionID,
		TimeSpent:        insert.TimeSpent,
		ScrollPercentage: insert.ScrollPercentage,
	}

	err = db.QueryRow(`
		INSERT INTO proposal_visitor_interactions
			(visitor_id, proposal_id, event_type, event_data, section_id, time_spent, scroll_percentage)
		VALUES
			($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		insert.VisitorID, insert.ProposalID, insert.EventType, dataJSON,
		nullInt64(insert.SectionID), nullInt(insert.TimeSpent), nullFloat64(insert.ScrollPercentage),
	).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return nil, err
	}

	return &event, nil
}

// GetProposalOverview returns the headline aggregates for one proposal.
// AVG ignores NULL time/scroll values so sparse events do not skew the
// averages; a proposal with no events comes back all zeroes.
func GetProposalOverview(db *sql.DB, proposalID int64) (*models.ProposalOverview, error) {
	var overview models.ProposalOverview
	var lastVisit sql.NullTime
	err := db.QueryRow(`
		SELECT
			COUNT(DISTINCT pv.id),
			COUNT(pi.id),
			COALESCE(AVG(pi.time_spent), 0),
			COALESCE(AVG(pi.scroll_percentage), 0),
			MAX(pv.last_activity_at)
		FROM proposal_visitors pv
		LEFT JOIN proposal_visitor_interactions pi ON pv.id = pi.visitor_id
		WHERE pv.proposal_id = $1`,
		proposalID,
	).Scan(
		&overview.UniqueVisitors, &overview.TotalInteractions,
		&overview.AvgTimeSpent, &overview.AvgScrollPercentage, &lastVisit,
	)
	if err != nil {
		return nil, err
	}
	if lastVisit.Valid {
		overview.LastVisitAt = &lastVisit.Time
	}
	return &overview, nil
}

// GetVisitorRollups returns per-visitor engagement, newest visitors first.
func GetVisitorRollups(db *sql.DB, proposalID int64) ([]models.VisitorRollup, error) {
	rows, err := db.Query(`
		SELECT
			pv.id, pv.proposal_id, pv.full_name, pv.national_id, pv.position, pv.company,
			pv.device_type, pv.country, pv.region, pv.first_visit_at, pv.last_activity_at,
			COUNT(pi.id),
			COALESCE(SUM(pi.time_spent), 0),
			COALESCE(MAX(pi.scroll_percentage), 0),
			MIN(pi.created_at),
			MAX(pi.created_at)
		FROM proposal_visitors pv
		LEFT JOIN proposal_visitor_interactions pi ON pv.id = pi.visitor_id
		WHERE pv.proposal_id = $1
		GROUP BY pv.id
		ORDER BY pv.first_visit_at DESC`,
		proposalID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rollups := []models.VisitorRollup{}
	for rows.Next() {
		var r models.VisitorRollup
		var first, last sql.NullTime
		err = rows.Scan(
			&r.ID, &r.ProposalID, &r.FullName, &r.NationalID, &r.Position, &r.Company,
			&r.DeviceType, &r.Country, &r.Region, &r.FirstVisitAt, &r.LastActivityAt,
			&r.InteractionCount, &r.TotalTimeSpent, &r.MaxScrollPercentage,
			&first, &last,
		)
		if err != nil {
			return nil, err
		}
		if first.Valid {
			r.FirstInteractionAt = &first.Time
		}
		if last.Valid {
			r.LastInteractionAt = &last.Time
		}
		rollups = append(rollups, r)
	}
	return rollups, rows.Err()
}

// GetSectionRollups returns engagement per referenced section, most viewed
// first. Events without a section are left out entirely.
func GetSectionRollups(db *sql.DB, proposalID int64) ([]models.SectionRollup, error) {
	rows, err := db.Query(`
		SELECT
			pi.section_id,
			COUNT(pi.id),
			COALESCE(AVG(pi.time_spent), 0),
			COALESCE(AVG(pi.scroll_percentage), 0)
		FROM proposal_visitor_interactions pi
		WHERE pi.proposal_id = $1 AND pi.section_id IS NOT NULL
		GROUP BY pi.section_id
		ORDER BY COUNT(pi.id) DESC`,
		proposalID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sections := []models.SectionRollup{}
	for rows.Next() {
		var s models.SectionRollup
		err = rows.Scan(&s.SectionID, &s.ViewCount, &s.AvgTimeSpent, &s.AvgScrollPercentage)
		if err != nil {
			return nil, err
		}
		sections = append(sections, s)
	}
	return sections, rows.Err()
}

// GetTimeline returns the most recent events joined with visitor display
// fields, newest first, for the live activity feed.
func GetTimeline(db *sql.DB, proposalID int64) ([]models.TimelineEntry, error) {
	rows, err := db.Query(`
		SELECT
			pi.id, pi.visitor_id, pi.proposal_id, pi.event_type, pi.event_data,
			pi.section_id, pi.time_spent, pi.scroll_percentage, pi.created_at,
			pv.full_name, pv.company
		FROM proposal_visitor_interactions pi
		INNER JOIN proposal_visitors pv ON pi.visitor_id = pv.id
		WHERE pi.proposal_id = $1
		ORDER BY pi.created_at DESC, pi.id DESC
		LIMIT $2`,
		proposalID, TimelineLimit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	timeline := []models.TimelineEntry{}
	for rows.Next() {
		var entry models.TimelineEntry
		var dataJSON []byte
		var sectionID sql.NullInt64
		var timeSpent sql.NullInt64
		var scrollPct sql.NullFloat64
		err = rows.Scan(
			&entry.ID, &entry.VisitorID, &entry.ProposalID, &entry.EventType, &dataJSON,
			&sectionID, &timeSpent, &scrollPct, &entry.CreatedAt,
			&entry.VisitorName, &entry.VisitorCompany,
		)
		if err != nil {
			return nil, err
		}
		if len(dataJSON) > 0 {
			if err := json.Unmarshal(dataJSON, &entry.EventData); err != nil {
				entry.EventData = map[string]interface{}{}
			}
		}
		if sectionID.Valid {
			entry.SectionID = &sectionID.Int64
		}
		if timeSpent.Valid {
			v := int(timeSpent.Int64)
			entry.TimeSpent = &v
		}
		if scrollPct.Valid {
			entry.ScrollPercentage = &scrollPct.Float64
		}
		timeline = append(timeline, entry)
	}
	return timeline, rows.Err()
}

// GetRealtimeVisitors returns visitors with at least one event inside the
// trailing window, most recent activity first.
func GetRealtimeVisitors(db *sql.DB, proposalID int64, window time.Duration) ([]models.RealtimeVisitor, error) {
	rows, err := db.Query(`
		SELECT
			pv.id, pv.proposal_id, pv.full_name, pv.national_id, pv.position, pv.company,
			pv.device_type, pv.country, pv.region, pv.first_visit_at, pv.last_activity_at,
			MAX(pi.created_at)
		FROM proposal_visitors pv
		INNER JOIN proposal_visitor_interactions pi ON pv.id = pi.visitor_id
		WHERE pv.proposal_id = $1 AND pi.created_at > NOW() - make_interval(secs => $2)
		GROUP BY pv.id
		ORDER BY MAX(pi.created_at) DESC`,
		proposalID, window.Seconds(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	visitors := []models.RealtimeVisitor{}
	for rows.Next() {
		var v models.RealtimeVisitor
		err = rows.Scan(
			&v.ID, &v.ProposalID, &v.FullName, &v.NationalID, &v.Position, &v.Company,
			&v.DeviceType, &v.Country, &v.Region, &v.FirstVisitAt, &v.LastActivityAt,
			&v.LastInteractionAt,
		)
		if err != nil {
			return nil, err
		}
		visitors = append(visitors, v)
	}
	return visitors, rows.Err()
}

// GetProposalAnalytics bundles the dashboard queries into one response.
func GetProposalAnalytics(db *sql.DB, proposalID int64) (*models.ProposalAnalytics, error) {
	overview, err := GetProposalOverview(db, proposalID)
	if err != nil {
		return nil, err
	}
	visitors, err := GetVisitorRollups(db, proposalID)
	if err != nil {
		return nil, err
	}
	sections, err := GetSectionRollups(db, proposalID)
	if err != nil {
		return nil, err
	}
	timeline, err := GetTimeline(db, proposalID)
	if err != nil {
		return nil, err
	}

	return &models.ProposalAnalytics{
		Stats:    *overview,
		Visitors: visitors,
		Sections: sections,
		Timeline: timeline,
	}, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat64(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
