package models

import (
	"fmt"
	"time"
)

func errRequired(field string) error {
	return fmt.Errorf("%s is required", field)
}

// Visitor represents one recipient identity, scoped to a single proposal.
// The access token is the only credential the viewing client ever holds.
type Visitor struct {
	ID             int64     `json:"id"`
	ProposalID     int64     `json:"proposalId"` // Foreign key to Proposal model
	FullName       string    `json:"fullName"`
	NationalID     string    `json:"nationalId"`
	Position       string    `json:"position"`
	Company        string    `json:"company"`
	AccessToken    string    `json:"-"`
	DeviceType     string    `json:"deviceType"`
	Country        string    `json:"country"`
	Region         string    `json:"region"`
	FirstVisitAt   time.Time `json:"firstVisitAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

type VisitorReceiver struct {
	ProposalID int64  `json:"proposalId"`
	FullName   string `json:"fullName"`
	NationalID string `json:"nationalId"`
	Position   string `json:"position"`
	Company    string `json:"company"`
	UserAgent  string `json:"userAgent"`
}

func (v *VisitorReceiver) Validate() error {
	if v.ProposalID <= 0 {
		return errRequired("proposalId")
	}
	if v.FullName == "" {
		return errRequired("fullName")
	}
	if v.NationalID == "" {
		return errRequired("nationalId")
	}
	return nil
}

// VisitorSession is a Visitor joined with its owning proposal, as loaded on
// every tracking call so triggers know who to notify.
type VisitorSession struct {
	Visitor
	ProposalTitle string `json:"proposalTitle"`
	OwnerID       int64  `json:"ownerId"`
}
