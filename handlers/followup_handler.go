package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/proposta360/proposal-analytics/middleware"
	"github.com/proposta360/proposal-analytics/services"
	"github.com/proposta360/proposal-analytics/utils"
)

type followUpRequest struct {
	Trigger string `json:"trigger"`
}

// ScheduleFollowUp creates a pending follow-up task for a proposal from a
// named trigger condition. Unknown triggers are a 400, nothing is created.
func ScheduleFollowUp(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		proposalId, err := utils.ExtractIDFromURL(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var req followUpRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		task, err := services.ScheduleFollowUp(db, proposalId, req.Trigger)
		if err != nil {
			if errors.Is(err, services.ErrUnknownTrigger) {
				utils.WriteErrorResponse(w, http.StatusBadRequest, err)
				return
			}
			log.Println("Error scheduling follow-up:", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		utils.WriteJSON(w, http.StatusCreated, task)
	}
}

func GetFollowUps(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		proposalId, err := utils.ExtractIDFromURL(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		tasks, err := services.ListFollowUps(db, proposalId)
		if err != nil {
			log.Println("Error listing follow-ups:", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		utils.WriteJSON(w, http.StatusOK, tasks)
	}
}

// CancelFollowUps cancels a proposal's pending follow-ups, optionally
// narrowed to one channel with ?channel=.
func CancelFollowUps(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		proposalId, err := utils.ExtractIDFromURL(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		channel := r.URL.Query().Get("channel")

		count, err := services.CancelPendingFollowUps(db, proposalId, channel)
		if err != nil {
			log.Println("Error cancelling follow-ups:", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		utils.WriteJSON(w, http.StatusOK, map[string]int64{"cancelled": count})
	}
}

func GetFollowUpStats(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userId := middleware.UserIDFromContext(r.Context())

		days, _ := strconv.Atoi(r.URL.Query().Get("days"))

		stats, err := services.GetFollowUpStats(db, userId, days)
		if err != nil {
			log.Println("Error getting follow-up stats:", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		utils.WriteJSON(w, http.StatusOK, stats)
	}
}
