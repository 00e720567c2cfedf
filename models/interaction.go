package models

import (
	"fmt"
	"time"
)

// Interaction event types accepted by the ingestion endpoint.
const (
	EventPageView    = "page_view"
	EventSectionView = "section_view"
	EventScroll      = "scroll"
	EventClick       = "click"
	EventDownload    = "download"
	EventFormSubmit  = "form_submit"
	EventApproval    = "approval"
	EventRejection   = "rejection"
	EventHeartbeat   = "heartbeat"
	EventCustom      = "custom"
)

func ValidEventType(t string) bool {
	switch t {
	case EventPageView, EventSectionView, EventScroll, EventClick,
		EventDownload, EventFormSubmit, EventApproval, EventRejection,
		EventHeartbeat, EventCustom:
		return true
	}
	return false
}

// InteractionEvent is one immutable engagement fact. Rows are append-only;
// nothing in this codebase updates or deletes them.
type InteractionEvent struct {
	ID               int64                  `json:"id"`
	VisitorID        int64                  `json:"visitorId"` // Foreign key to Visitor model
	ProposalID       int64                  `json:"proposalId"`
	EventType        string                 `json:"eventType"`
	EventData        map[string]interface{} `json:"eventData"`
	SectionID        *int64                 `json:"sectionId,omitempty"`
	TimeSpent        *int                   `json:"durationSeconds,omitempty"`
	ScrollPercentage *float64               `json:"scrollPercentage,omitempty"`
	CreatedAt        time.Time              `json:"createdAt"`
}

type InteractionReceiver struct {
	AccessToken      string                 `json:"accessToken"`
	EventType        string                 `json:"eventType"`
	EventData        map[string]interface{} `json:"eventData"`
	SectionID        *int64                 `json:"sectionId"`
	TimeSpent        *int                   `json:"durationSeconds"`
	ScrollPercentage *float64               `json:"scrollPercentage"`
}

func (i *InteractionReceiver) Validate() error {
	if i.AccessToken == "" {
		return errRequired("accessToken")
	}
	if !ValidEventType(i.EventType) {
		return fmt.Errorf("unknown event type %q", i.EventType)
	}
	if i.ScrollPercentage != nil && (*i.ScrollPercentage < 0 || *i.ScrollPercentage > 100) {
		return fmt.Errorf("scrollPercentage must be between 0 and 100")
	}
	return nil
}

type InteractionInsert struct {
	VisitorID        int64
	ProposalID       int64
	EventType        string
	EventData        map[string]interface{}
	SectionID        *int64
	TimeSpent        *int
	ScrollPercentage *float64
}

// ProposalOverview holds the headline numbers for one proposal. A proposal
// with no events yields the zero value, never an error.
type ProposalOverview struct {
	UniqueVisitors      int        `json:"uniqueVisitors"`
	TotalInteractions   int        `json:"totalInteractions"`
	AvgTimeSpent        float64    `json:"avgTimeSpentSeconds"`
	AvgScrollPercentage float64    `json:"avgScrollPercentage"`
	LastVisitAt         *time.Time `json:"lastVisitAt"`
}

type VisitorRollup struct {
	Visitor
	InteractionCount    int        `json:"interactionCount"`
	TotalTimeSpent      int        `json:"totalTimeSpentSeconds"`
	MaxScrollPercentage float64    `json:"maxScrollPercentage"`
	FirstInteractionAt  *time.Time `json:"firstInteractionAt"`
	LastInteractionAt   *time.Time `json:"lastInteractionAt"`
}

type SectionRollup struct {
	SectionID           int64   `json:"sectionId"`
	ViewCount           int     `json:"viewCount"`
	AvgTimeSpent        float64 `json:"avgTimeSpentSeconds"`
	AvgScrollPercentage float64 `json:"avgScrollPercentage"`
}

type TimelineEntry struct {
	InteractionEvent
	VisitorName    string `json:"visitorName"`
	VisitorCompany string `json:"visitorCompany"`
}

type RealtimeVisitor struct {
	Visitor
	LastInteractionAt time.Time `json:"lastInteractionAt"`
}

type ProposalAnalytics struct {
	Stats    ProposalOverview `json:"stats"`
	Visitors []VisitorRollup  `json:"visitors"`
	Sections []SectionRollup  `json:"sections"`
	Timeline []TimelineEntry  `json:"timeline"`
}
