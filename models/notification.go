package models

import "time"

// Notification types raised by the tracking triggers and the scheduler.
const (
	NotificationNewVisitor   = "new_visitor"
	NotificationProposalView = "proposal_view"
	NotificationSectionView  = "section_view"
	NotificationFileDownload = "file_download"
	NotificationApproved     = "approved"
	NotificationRejected     = "rejected"
	NotificationReminder     = "follow_up_reminder"
)

// Notification is a durable record of something worth telling the proposal
// owner. The read flag only ever goes from false to true; the per-channel
// sent flags record best-effort external delivery outcomes.
type Notification struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"userId"`
	ProposalID    *int64    `json:"proposalId,omitempty"`
	Type          string    `json:"type"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	Read          bool      `json:"read"`
	SentEmail     bool      `json:"sentEmail"`
	SentWhatsApp  bool      `json:"sentWhatsApp"`
	CreatedAt     time.Time `json:"createdAt"`
	ProposalTitle string    `json:"proposalTitle,omitempty"` // joined, not stored
}

type NotificationInsert struct {
	UserID     int64
	ProposalID *int64
	Type       string
	Title      string
	Message    string
}
