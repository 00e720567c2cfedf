package services

import (
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/proposta360/proposal-analytics/models"
)

// ErrVisitorNotFound is returned when an access token resolves to nothing.
var ErrVisitorNotFound = errors.New("visitor not found")

// RegisterVisitor creates or refreshes the Visitor row for one
// (nationalId, proposalId) pair. A returning visitor keeps the access token
// issued on the first visit; only name/position/company and the activity
// timestamp are updated. The boolean reports whether a new row was created.
func RegisterVisitor(db *sql.DB, recv models.VisitorReceiver, deviceType, country, region string) (*models.Visitor, bool, error) {
	existing, err := findExistingVisitor(db, recv.NationalID, recv.ProposalID)
	if err != nil && err != ErrVisitorNotFound {
		return nil, false, err
	}

	if existing != nil {
		visitor, err := updateExistingVisitor(db, existing.ID, recv)
		if err != nil {
			return nil, false, err
		}
		return visitor, false, nil
	}

	token := uuid.NewString()

	var visitor models.Visitor
	err = db.QueryRow(`
		INSERT INTO proposal_visitors
			(proposal_id, full_name, national_id, position, company, access_token, device_type, country, region, first_visit_at, last_activity_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		RETURNING id, proposal_id, full_name, national_id, position, company, access_token, device_type, country, region, first_visit_at, last_activity_at`,
		recv.ProposalID, recv.FullName, recv.NationalID, recv.Position, recv.Company,
		token, deviceType, country, region,
	).Scan(
		&visitor.ID, &visitor.ProposalID, &visitor.FullName, &visitor.NationalID,
		&visitor.Position, &visitor.Company, &visitor.AccessToken, &visitor.DeviceType,
		&visitor.Country, &visitor.Region, &visitor.FirstVisitAt, &visitor.LastActivityAt,
	)
	if err != nil {
		return nil, false, err
	}

	return &visitor, true, nil
}

func findExistingVisitor(db *sql.DB, nationalID string, proposalID int64) (*models.Visitor, error) {
	var visitor models.Visitor
	err := db.QueryRow(`
		SELECT id, proposal_id, full_name, national_id, position, company, access_token, device_type, country, region, first_visit_at, last_activity_at
		FROM proposal_visitors
		WHERE national_id = $1 AND proposal_id = $2`,
		nationalID, proposalID,
	).Scan(
		&visitor.ID, &visitor.ProposalID, &visitor.FullName, &visitor.NationalID,
		&visitor.Position, &visitor.Company, &visitor.AccessToken, &visitor.DeviceType,
		&visitor.Country, &visitor.Region, &visitor.FirstVisitAt, &visitor.LastActivityAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrVisitorNotFound
	}
	if err != nil {
		return nil, err
	}
	return &visitor, nil
}

func updateExistingVisitor(db *sql.DB, id int64, recv models.VisitorReceiver) (*models.Visitor, error) {
	var visitor models.Visitor
	err := db.QueryRow(`
		UPDATE proposal_visitors
		SET full_name = $2, position = $3, company = $4, last_activity_at = NOW()
		WHERE id = $1
		RETURNING id, proposal_id, full_name, national_id, position, company, access_token, device_type, country, region, first_visit_at, last_activity_at`,
		id, recv.FullName, recv.Position, recv.Company,
	).Scan(
		&visitor.ID, &visitor.ProposalID, &visitor.FullName, &visitor.NationalID,
		&visitor.Position, &visitor.Company, &visitor.AccessToken, &visitor.DeviceType,
		&visitor.Country, &visitor.Region, &visitor.FirstVisitAt, &visitor.LastActivityAt,
	)
	if err != nil {
		return nil, err
	}
	return &visitor, nil
}

// FindVisitorByToken authenticates a tracking call. The joined proposal
// fields let trigger code notify the owner without a second lookup.
func FindVisitorByToken(db *sql.DB, token string) (*models.VisitorSession, error) {
	var session models.VisitorSession
	err := db.QueryRow(`
		SELECT pv.id, pv.proposal_id, pv.full_name, pv.national_id, pv.position, pv.company,
		       pv.access_token, pv.device_type, pv.country, pv.region, pv.first_visit_at, pv.last_activity_at,
		       p.title, p.user_id
		FROM proposal_visitors pv
		INNER JOIN proposals p ON pv.proposal_id = p.id
		WHERE pv.access_token = $1`,
		token,
	).Scan(
		&session.ID, &session.ProposalID, &session.FullName, &session.NationalID,
		&session.Position, &session.Company, &session.AccessToken, &session.DeviceType,
		&session.Country, &session.Region, &session.FirstVisitAt, &session.LastActivityAt,
		&session.ProposalTitle, &session.OwnerID,
	)
	if err == sql.ErrNoRows {
		return nil, ErrVisitorNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// TouchVisitor refreshes last_activity_at so idle-vs-active state can be
// derived without scanning the event log.
func TouchVisitor(db *sql.DB, token string) error {
	_, err := db.Exec(`
		UPDATE proposal_visitors
		SET last_activity_at = NOW()
		WHERE access_token = $1`,
		token,
	)
	return err
}

// GetProposal reads the collaborator-owned proposal row.
func GetProposal(db *sql.DB, proposalID int64) (*models.Proposal, error) {
	var proposal models.Proposal
	err := db.QueryRow("SELECT id, user_id, title FROM proposals WHERE id = $1", proposalID).
		Scan(&proposal.ID, &proposal.UserID, &proposal.Title)
	if err == sql.ErrNoRows {
		return nil, errors.New("proposal not found")
	}
	if err != nil {
		return nil, err
	}
	return &proposal, nil
}

// GetUser reads the owner's contact details for channel sends.
func GetUser(db *sql.DB, userID int64) (*models.User, error) {
	var user models.User
	err := db.QueryRow("SELECT id, name, email, COALESCE(whatsapp_number, '') FROM users WHERE id = $1", userID).
		Scan(&user.ID, &user.Name, &user.Email, &user.WhatsAppNumber)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
