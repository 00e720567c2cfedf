package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/proposta360/proposal-analytics/models"
)

// ErrUnknownTrigger rejects schedule requests with a trigger name outside
// the fixed catalogue.
var ErrUnknownTrigger = errors.New("unknown follow-up trigger")

// ScheduleFollowUp derives channel, delay and message from a named trigger
// condition and persists a pending task. Unknown trigger names are rejected
// without creating anything.
func ScheduleFollowUp(db *sql.DB, proposalID int64, trigger string) (*models.FollowUpTask, error) {
	var channel, message string
	var delay time.Duration

	switch trigger {
	case models.TriggerNoInteraction24h:
		channel = models.ChannelEmail
		delay = 24 * time.Hour
		message = "Automatic follow-up: no interaction in 24h"
	case models.TriggerViewedNoAction3d:
		channel = models.ChannelEmail
		delay = 3 * 24 * time.Hour
		message = "Automatic follow-up: viewed but no action"
	case models.TriggerHighEngagement:
		channel = models.ChannelWhatsApp
		delay = time.Hour
		message = "Automatic follow-up: high engagement without conversion"
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownTrigger, trigger)
	}

	conditions := map[string]interface{}{"trigger": trigger}
	conditionsJSON, err := json.Marshal(conditions)
	if err != nil {
		return nil, err
	}

	scheduledFor := time.Now().Add(delay)

	var task models.FollowUpTask
	err = db.QueryRow(`
		INSERT INTO follow_up_schedule
			(proposal_id, follow_up_type, scheduled_for, message, trigger_conditions, status)
		VALUES
			($1, $2, $3, $4, $5, 'pending')
		RETURNING id, status, attempts, created_at, updated_at`,
		proposalID, channel, scheduledFor, message, conditionsJSON,
	).Scan(&task.ID, &task.Status, &task.Attempts, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}

	task.ProposalID = proposalID
	task.Channel = channel
	task.ScheduledFor = scheduledFor
	task.Message = message
	task.TriggerConditions = conditions
	return &task, nil
}

// ListFollowUps returns all follow-up tasks for one proposal, newest first.
func ListFollowUps(db *sql.DB, proposalID int64) ([]models.FollowUpTask, error) {
	rows, err := db.Query(`
		SELECT id, proposal_id, follow_up_type, scheduled_for, trigger_conditions, status,
		       attempts, last_attempt_at, message, COALESCE(error_message, ''), created_at, updated_at
		FROM follow_up_schedule
		WHERE proposal_id = $1
		ORDER BY created_at DESC`,
		proposalID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []models.FollowUpTask{}
	for rows.Next() {
		task, err := scanFollowUpTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// CancelPendingFollowUps cancels every pending task for a proposal, or only
// those on one channel when channel is non-empty. Returns how many tasks
// were cancelled. Used when the recipient acts and further nudges are moot.
func CancelPendingFollowUps(db *sql.DB, proposalID int64, channel string) (int64, error) {
	var result sql.Result
	var err error
	if channel != "" {
		result, err = db.Exec(`
			UPDATE follow_up_schedule
			SET status = 'cancelled', updated_at = NOW()
			WHERE proposal_id = $1 AND status = 'pending' AND follow_up_type = $2`,
			proposalID, channel)
	} else {
		result, err = db.Exec(`
			UPDATE follow_up_schedule
			SET status = 'cancelled', updated_at = NOW()
			WHERE proposal_id = $1 AND status = 'pending'`,
			proposalID)
	}
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// GetFollowUpStats rolls up an owner's follow-up outcomes by channel and
// status over a trailing number of days.
func GetFollowUpStats(db *sql.DB, userID int64, days int) ([]models.FollowUpStat, error) {
	if days <= 0 {
		days = 30
	}

	rows, err := db.Query(`
		SELECT fs.follow_up_type, fs.status, COUNT(*), COALESCE(AVG(fs.attempts), 0)
		FROM follow_up_schedule fs
		INNER JOIN proposals p ON fs.proposal_id = p.id
		WHERE p.user_id = $1 AND fs.created_at >= NOW() - make_interval(days => $2)
		GROUP BY fs.follow_up_type, fs.status
		ORDER BY COUNT(*) DESC`,
		userID, days,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []models.FollowUpStat{}
	for rows.Next() {
		var s models.FollowUpStat
		err = rows.Scan(&s.Channel, &s.Status, &s.Count, &s.AvgAttempts)
		if err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func scanFollowUpTask(rows *sql.Rows) (*models.FollowUpTask, error) {
	var task models.FollowUpTask
	var conditionsJSON []byte
	var lastAttempt sql.NullTime
	err := rows.Scan(
		&task.ID, &task.ProposalID, &task.Channel, &task.ScheduledFor, &conditionsJSON,
		&task.Status, &task.Attempts, &lastAttempt, &task.Message, &task.ErrorMessage,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastAttempt.Valid {
		task.LastAttemptAt = &lastAttempt.Time
	}
	if len(conditionsJSON) > 0 {
		if err := json.Unmarshal(conditionsJSON, &task.TriggerConditions); err != nil {
			task.TriggerConditions = map[string]interface{}{}
		}
	}
	return &task, nil
}
