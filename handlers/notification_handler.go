package handlers

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/proposta360/proposal-analytics/middleware"
	"github.com/proposta360/proposal-analytics/realtime"
	"github.com/proposta360/proposal-analytics/services"
	"github.com/proposta360/proposal-analytics/utils"
)

func GetNotifications(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userId := middleware.UserIDFromContext(r.Context())

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		notifications, err := services.GetNotifications(db, userId, page, limit)
		if err != nil {
			log.Println("Error getting notifications:", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		unreadCount, err := services.GetUnreadCount(db, userId)
		if err != nil {
			log.Println("Error getting unread count:", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"notifications": notifications,
			"unreadCount":   unreadCount,
		})
	}
}

func GetUnreadCount(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userId := middleware.UserIDFromContext(r.Context())

		count, err := services.GetUnreadCount(db, userId)
		if err != nil {
			log.Println("Error getting unread count:", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		utils.WriteJSON(w, http.StatusOK, map[string]int{"unreadCount": count})
	}
}

func MarkNotificationRead(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userId := middleware.UserIDFromContext(r.Context())

		id, err := utils.ExtractIDFromURL(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		err = services.MarkNotificationRead(db, id, userId)
		if err == services.ErrNotificationNotFound {
			http.Error(w, "Notification not found", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Println("Error marking notification read:", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		utils.WriteJSON(w, http.StatusOK, map[string]string{"message": "Notification marked as read"})
	}
}

func MarkAllNotificationsRead(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userId := middleware.UserIDFromContext(r.Context())

		updated, err := services.MarkAllNotificationsRead(db, userId)
		if err != nil {
			log.Println("Error marking all notifications read:", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"message": "All notifications marked as read",
			"updated": updated,
		})
	}
}

func DeleteNotification(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userId := middleware.UserIDFromContext(r.Context())

		id, err := utils.ExtractIDFromURL(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		err = services.DeleteNotification(db, id, userId)
		if err == services.ErrNotificationNotFound {
			http.Error(w, "Notification not found", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Println("Error deleting notification:", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		utils.WriteJSON(w, http.StatusOK, map[string]string{"message": "Notification deleted"})
	}
}

// StreamNotifications opens the long-lived push channel as a Server-Sent
// Events stream. The connection stays registered with the hub until the
// client goes away or the hub prunes it.
func StreamNotifications(hub *realtime.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userId := middleware.UserIDFromContext(r.Context())

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		conn := hub.Connect(userId)
		defer hub.Disconnect(userId, conn)

		for {
			select {
			case <-r.Context().Done():
				return
			case <-conn.Done():
				return
			case data := <-conn.Messages():
				if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

// GetConnectionStats reports hub registry size, for diagnostics.
func GetConnectionStats(hub *realtime.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, connections := hub.ConnectionStats()
		utils.WriteJSON(w, http.StatusOK, map[string]int{
			"connectedUsers":   users,
			"totalConnections": connections,
		})
	}
}
