package middleware

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/proposta360/proposal-analytics/utils"
)

// added because of type complains
type contextKey string

const UserIdKey contextKey = "userId"

// UserIDFromContext returns the authenticated owner's id, or 0 when the
// request skipped AuthMiddleware.
func UserIDFromContext(ctx context.Context) int64 {
	if id, ok := ctx.Value(UserIdKey).(int64); ok {
		return id
	}
	return 0
}

func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(tokenString, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header", http.StatusUnauthorized)
			return
		}

		token, err := utils.ValidateToken(parts[1])
		if err != nil {
			log.Println(err.Error())
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		if !token.Valid {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		claims := token.Claims.(jwt.MapClaims)
		userId, ok := claims["userId"].(float64)
		if !ok {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		// Add the userId to the context so the next handler can access it
		ctx := context.WithValue(r.Context(), UserIdKey, int64(userId))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ProposalOwnerMiddleware checks that the {id} proposal in the URL belongs
// to the authenticated user. A proposal owned by someone else reads as
// not-found so ids of other owners' proposals do not leak.
func ProposalOwnerMiddleware(db *sql.DB) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userId := UserIDFromContext(r.Context())
			if userId == 0 {
				http.Error(w, "Authorization required", http.StatusUnauthorized)
				return
			}

			proposalId, err := utils.ExtractIDFromURL(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			var exists bool
			err = db.QueryRow("SELECT EXISTS(SELECT 1 FROM proposals WHERE id = $1 AND user_id = $2)", proposalId, userId).Scan(&exists)
			if err != nil {
				log.Println("Error checking proposal ownership:", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			if !exists {
				http.Error(w, "Proposal not found", http.StatusNotFound)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
