package services

import (
	"database/sql"
	"errors"
	"log"

	"github.com/proposta360/proposal-analytics/models"
	"github.com/proposta360/proposal-analytics/realtime"
	"github.com/proposta360/proposal-analytics/utils"
)

// ErrNotificationNotFound covers both missing ids and ids owned by another
// user, so existence never leaks across owners.
var ErrNotificationNotFound = errors.New("notification not found")

// Channel senders are variables so tests can intercept external delivery.
var (
	sendEmail    = utils.SendEmail
	sendWhatsApp = utils.SendWhatsAppMessage
)

// CreateNotification persists a notification, pushes it to the owner's open
// dashboard connections, and attempts each configured external channel. A
// channel failure is recorded on the row and logged; the notification is
// created either way and always visible in-app.
func CreateNotification(db *sql.DB, hub *realtime.Hub, insert models.NotificationInsert) (*models.Notification, error) {
	var n models.Notification
	var proposalID sql.NullInt64
	err := db.QueryRow(`
		INSERT INTO notifications (user_id, proposal_id, type, title, message)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, user_id, proposal_id, type, title, message, read, sent_email, sent_whatsapp, created_at`,
		insert.UserID, nullInt64(insert.ProposalID), insert.Type, insert.Title, insert.Message,
	).Scan(&n.ID, &n.UserID, &proposalID, &n.Type, &n.Title, &n.Message,
		&n.Read, &n.SentEmail, &n.SentWhatsApp, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	if proposalID.Valid {
		n.ProposalID = &proposalID.Int64
	}

	if hub != nil {
		hub.PushNotification(n.UserID, &n)
	}

	dispatchChannels(db, &n)

	return &n, nil
}

// dispatchChannels attempts external delivery and records the per-channel
// outcome on the row. Failures never propagate to the triggering request.
func dispatchChannels(db *sql.DB, n *models.Notification) {
	owner, err := GetUser(db, n.UserID)
	if err != nil {
		log.Println("Error loading notification recipient:", err)
		return
	}

	if err := sendEmail(owner.Email, n.Title, n.Message); err != nil {
		log.Printf("Email channel failed for notification %d: %v", n.ID, err)
	} else {
		n.SentEmail = true
	}

	if owner.WhatsAppNumber != "" {
		if err := sendWhatsApp(owner.WhatsAppNumber, n.Title+"\n\n"+n.Message); err != nil {
			log.Printf("WhatsApp channel failed for notification %d: %v", n.ID, err)
		} else {
			n.SentWhatsApp = true
		}
	}

	_, err = db.Exec("UPDATE notifications SET sent_email = $1, sent_whatsapp = $2 WHERE id = $3",
		n.SentEmail, n.SentWhatsApp, n.ID)
	if err != nil {
		log.Println("Error recording channel outcome:", err)
	}
}

// GetNotifications pages through a user's notifications, newest first, with
// the proposal title joined in when there is one.
func GetNotifications(db *sql.DB, userID int64, page, limit int) ([]models.Notification, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := (page - 1) * limit

	rows, err := db.Query(`
		SELECT n.id, n.user_id, n.proposal_id, n.type, n.title, n.message,
		       n.read, n.sent_email, n.sent_whatsapp, n.created_at, COALESCE(p.title, '')
		FROM notifications n
		LEFT JOIN proposals p ON n.proposal_id = p.id
		WHERE n.user_id = $1
		ORDER BY n.created_at DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		var proposalID sql.NullInt64
		err = rows.Scan(&n.ID, &n.UserID, &proposalID, &n.Type, &n.Title, &n.Message,
			&n.Read, &n.SentEmail, &n.SentWhatsApp, &n.CreatedAt, &n.ProposalTitle)
		if err != nil {
			return nil, err
		}
		if proposalID.Valid {
			n.ProposalID = &proposalID.Int64
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkNotificationRead flips the read flag. Read state is monotonic; there
// is no way back to unread.
func MarkNotificationRead(db *sql.DB, id, userID int64) error {
	result, err := db.Exec("UPDATE notifications SET read = true WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkAllNotificationsRead is idempotent; a second call affects no rows.
func MarkAllNotificationsRead(db *sql.DB, userID int64) (int64, error) {
	result, err := db.Exec("UPDATE notifications SET read = true WHERE user_id = $1 AND read = false", userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func DeleteNotification(db *sql.DB, id, userID int64) error {
	result, err := db.Exec("DELETE FROM notifications WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func GetUnreadCount(db *sql.DB, userID int64) (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = false", userID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// NotifyProposalOwner builds the dashboard notification for one tracking
// trigger and creates it, best effort. Unknown trigger types are ignored.
func NotifyProposalOwner(db *sql.DB, hub *realtime.Hub, session *models.VisitorSession, notificationType string) {
	visitorLabel := session.FullName
	if session.Company != "" {
		visitorLabel += " from " + session.Company
	}

	var title, message string
	switch notificationType {
	case models.NotificationNewVisitor:
		title = "New visitor on your proposal!"
		message = visitorLabel + " accessed the proposal \"" + session.ProposalTitle + "\""
	case models.NotificationProposalView:
		title = "Proposal being viewed!"
		message = visitorLabel + " is viewing the proposal \"" + session.ProposalTitle + "\""
	case models.NotificationSectionView:
		title = "Section viewed"
		message = visitorLabel + " is reading a section of \"" + session.ProposalTitle + "\""
	case models.NotificationFileDownload:
		title = "File downloaded"
		message = visitorLabel + " downloaded a file from \"" + session.ProposalTitle + "\""
	case models.NotificationApproved:
		title = "Proposal approved!"
		message = "Congratulations! \"" + session.ProposalTitle + "\" was approved by " + visitorLabel
	case models.NotificationRejected:
		title = "Proposal rejected"
		message = "\"" + session.ProposalTitle + "\" was rejected by " + visitorLabel
	default:
		return
	}

	proposalID := session.ProposalID
	_, err := CreateNotification(db, hub, models.NotificationInsert{
		UserID:     session.OwnerID,
		ProposalID: &proposalID,
		Type:       notificationType,
		Title:      title,
		Message:    message,
	})
	if err != nil {
		log.Println("Error notifying proposal owner:", err)
	}
}
