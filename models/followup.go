package models

import "time"

// Follow-up task statuses. pending is the only non-terminal state.
const (
	FollowUpPending   = "pending"
	FollowUpSent      = "sent"
	FollowUpFailed    = "failed"
	FollowUpCancelled = "cancelled"
)

// Delivery channels a follow-up can use. reminder stays inside the system
// and just creates a dashboard notification.
const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
	ChannelReminder = "reminder"
)

// Named trigger conditions accepted by the schedule endpoint. Anything else
// is rejected without creating a task.
const (
	TriggerNoInteraction24h = "no_interaction_24h"
	TriggerViewedNoAction3d = "viewed_but_no_action_3d"
	TriggerHighEngagement   = "high_engagement_no_conversion"
)

// MaxFollowUpAttempts caps delivery retries. A task that has burned all
// attempts is never picked up again, whatever its status.
const MaxFollowUpAttempts = 3

type FollowUpTask struct {
	ID                int64                  `json:"id"`
	ProposalID        int64                  `json:"proposalId"`
	Channel           string                 `json:"channel"`
	ScheduledFor      time.Time              `json:"scheduledFor"`
	TriggerConditions map[string]interface{} `json:"triggerConditions"`
	Status            string                 `json:"status"`
	Attempts          int                    `json:"attempts"`
	LastAttemptAt     *time.Time             `json:"lastAttemptAt,omitempty"`
	Message           string                 `json:"message"`
	ErrorMessage      string                 `json:"errorMessage,omitempty"`
	CreatedAt         time.Time              `json:"createdAt"`
	UpdatedAt         time.Time              `json:"updatedAt"`
}

// FollowUpStat is one row of the per-owner stats rollup.
type FollowUpStat struct {
	Channel     string  `json:"channel"`
	Status      string  `json:"status"`
	Count       int     `json:"count"`
	AvgAttempts float64 `json:"avgAttempts"`
}
