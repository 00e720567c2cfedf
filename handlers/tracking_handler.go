package handlers

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"os"

	"github.com/mileusna/useragent"
	"github.com/oschwald/geoip2-golang"

	"github.com/proposta360/proposal-analytics/models"
	"github.com/proposta360/proposal-analytics/realtime"
	"github.com/proposta360/proposal-analytics/services"
	"github.com/proposta360/proposal-analytics/utils"
)

// RegisterVisitor handles the recipient's identification form. A repeat
// registration for the same (nationalId, proposal) pair refreshes the
// existing row and hands back the original token; only a true first visit
// raises the "new visitor" trigger.
func RegisterVisitor(db *sql.DB, geoipDB *geoip2.Reader, hub *realtime.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var receiver models.VisitorReceiver
		err := json.NewDecoder(r.Body).Decode(&receiver)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := receiver.Validate(); err != nil {
			utils.WriteErrorResponse(w, http.StatusBadRequest, err)
			return
		}

		proposal, err := services.GetProposal(db, receiver.ProposalID)
		if err != nil {
			http.Error(w, "Proposal not found", http.StatusNotFound)
			return
		}

		if receiver.UserAgent == "" {
			receiver.UserAgent = r.UserAgent()
		}
		ua := useragent.Parse(receiver.UserAgent)

		var location utils.Location
		if os.Getenv("ENV") == "production" {
			location = utils.LookupLocation(geoipDB, utils.GetIPAddress(r))
		} else {
			location = utils.LookupLocation(geoipDB, "151.30.13.167") // test IP
		}

		visitor, created, err := services.RegisterVisitor(db, receiver, utils.GetDeviceType(&ua), location.Country, location.Region)
		if err != nil {
			log.Println("Error registering visitor:", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		session := &models.VisitorSession{
			Visitor:       *visitor,
			ProposalTitle: proposal.Title,
			OwnerID:       proposal.UserID,
		}

		if created {
			services.NotifyProposalOwner(db, hub, session, models.NotificationNewVisitor)
		}

		// First interaction: the welcome page view. Best effort, like all
		// event appends.
		_, err = services.LogInteraction(db, models.InteractionInsert{
			VisitorID:  visitor.ID,
			ProposalID: visitor.ProposalID,
			EventType:  models.EventPageView,
			EventData:  map[string]interface{}{"page": "welcome_page"},
		})
		if err != nil {
			log.Println("Error logging welcome page view:", err)
		}

		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"token":   visitor.AccessToken,
			"message": "Visitor registered successfully",
		})
	}
}

// LogInteraction is the fire-and-forget ingestion endpoint. A bad token or
// malformed event is the caller's error; a failed append is logged and
// swallowed so tracking never degrades the viewing experience.
func LogInteraction(db *sql.DB, hub *realtime.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var receiver models.InteractionReceiver
		err := json.NewDecoder(r.Body).Decode(&receiver)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := receiver.Validate(); err != nil {
			utils.WriteErrorResponse(w, http.StatusBadRequest, err)
			return
		}

		session, err := services.FindVisitorByToken(db, receiver.AccessToken)
		if err == services.ErrVisitorNotFound {
			http.Error(w, "Visitor not found", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Println("Error resolving visitor token:", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		if err := services.TouchVisitor(db, receiver.AccessToken); err != nil {
			log.Println("Error updating visitor activity:", err)
		}

		event, err := services.LogInteraction(db, models.InteractionInsert{
			VisitorID:        session.ID,
			ProposalID:       session.ProposalID,
			EventType:        receiver.EventType,
			EventData:        receiver.EventData,
			SectionID:        receiver.SectionID,
			TimeSpent:        receiver.TimeSpent,
			ScrollPercentage: receiver.ScrollPercentage,
		})
		if err != nil {
			log.Println("Error logging interaction:", err)
			utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true})
			return
		}

		if hub != nil {
			hub.PushInteraction(session.OwnerID, event, session.FullName)
		}

		fireTriggers(db, hub, session, &receiver)

		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	}
}

// fireTriggers maps interaction types to owner notifications. All of this
// is best effort; a failed trigger never bubbles up to the recipient.
func fireTriggers(db *sql.DB, hub *realtime.Hub, session *models.VisitorSession, receiver *models.InteractionReceiver) {
	switch receiver.EventType {
	case models.EventPageView:
		if page, ok := receiver.EventData["page"].(string); ok && page == "proposal_main" {
			services.NotifyProposalOwner(db, hub, session, models.NotificationProposalView)
		}
	case models.EventSectionView:
		services.NotifyProposalOwner(db, hub, session, models.NotificationSectionView)
	case models.EventDownload:
		services.NotifyProposalOwner(db, hub, session, models.NotificationFileDownload)
	case models.EventApproval:
		services.NotifyProposalOwner(db, hub, session, models.NotificationApproved)
		// The recipient acted; pending nudges are moot.
		if count, err := services.CancelPendingFollowUps(db, session.ProposalID, ""); err != nil {
			log.Println("Error cancelling follow-ups after approval:", err)
		} else if count > 0 {
			log.Printf("Cancelled %d pending follow-ups for proposal %d", count, session.ProposalID)
		}
	case models.EventRejection:
		services.NotifyProposalOwner(db, hub, session, models.NotificationRejected)
	}
}

// GetProposalAnalytics returns the full dashboard bundle for one proposal.
// Ownership is enforced by the middleware chain.
func GetProposalAnalytics(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		proposalId, err := utils.ExtractIDFromURL(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		analytics, err := services.GetProposalAnalytics(db, proposalId)
		if err != nil {
			log.Println("Error getting proposal analytics:", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		utils.WriteJSON(w, http.StatusOK, analytics)
	}
}

// GetRealtimeVisitors returns who is on the proposal right now, based on
// the trailing activity window.
func GetRealtimeVisitors(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		proposalId, err := utils.ExtractIDFromURL(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		visitors, err := services.GetRealtimeVisitors(db, proposalId, services.RealtimeWindow())
		if err != nil {
			log.Println("Error getting realtime visitors:", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		utils.WriteJSON(w, http.StatusOK, visitors)
	}
}
