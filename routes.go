package main

import (
	"database/sql"

	"github.com/gorilla/mux"
	"github.com/oschwald/geoip2-golang"

	"github.com/proposta360/proposal-analytics/handlers"
	"github.com/proposta360/proposal-analytics/middleware"
	"github.com/proposta360/proposal-analytics/realtime"
)

func SetupRouter(db *sql.DB, geoipDB *geoip2.Reader, hub *realtime.Hub) *mux.Router {

	router := mux.NewRouter()

	// ingestion routes (public, consumed by the proposal-viewing client)
	router.HandleFunc("/api/tracking/register", handlers.RegisterVisitor(db, geoipDB, hub)).Methods("POST")
	router.HandleFunc("/api/tracking/interaction", handlers.LogInteraction(db, hub)).Methods("POST")

	// analytics routes (owner dashboard)
	router.Handle("/api/analytics/proposal/{id}", middleware.AuthMiddleware(middleware.ProposalOwnerMiddleware(db)(handlers.GetProposalAnalytics(db)))).Methods("GET")
	router.Handle("/api/analytics/proposal/{id}/realtime", middleware.AuthMiddleware(middleware.ProposalOwnerMiddleware(db)(handlers.GetRealtimeVisitors(db)))).Methods("GET")

	// notification routes
	router.Handle("/api/notifications", middleware.AuthMiddleware(handlers.GetNotifications(db))).Methods("GET")
	router.Handle("/api/notifications/unread-count", middleware.AuthMiddleware(handlers.GetUnreadCount(db))).Methods("GET")
	router.Handle("/api/notifications/mark-all-read", middleware.AuthMiddleware(handlers.MarkAllNotificationsRead(db))).Methods("PUT")
	router.Handle("/api/notifications/{id}/read", middleware.AuthMiddleware(handlers.MarkNotificationRead(db))).Methods("PUT")
	router.Handle("/api/notifications/{id}", middleware.AuthMiddleware(handlers.DeleteNotification(db))).Methods("DELETE")
	router.Handle("/api/notifications/stream", middleware.AuthMiddleware(handlers.StreamNotifications(hub))).Methods("GET")
	router.Handle("/api/notifications/connection-stats", middleware.AuthMiddleware(handlers.GetConnectionStats(hub))).Methods("GET")

	// follow-up routes
	router.Handle("/api/proposal/{id}/follow-ups", middleware.AuthMiddleware(middleware.ProposalOwnerMiddleware(db)(handlers.ScheduleFollowUp(db)))).Methods("POST")
	router.Handle("/api/proposal/{id}/follow-ups", middleware.AuthMiddleware(middleware.ProposalOwnerMiddleware(db)(handlers.GetFollowUps(db)))).Methods("GET")
	router.Handle("/api/proposal/{id}/follow-ups", middleware.AuthMiddleware(middleware.ProposalOwnerMiddleware(db)(handlers.CancelFollowUps(db)))).Methods("DELETE")
	router.Handle("/api/follow-ups/stats", middleware.AuthMiddleware(handlers.GetFollowUpStats(db))).Methods("GET")

	return router
}
