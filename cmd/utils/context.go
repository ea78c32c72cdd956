package utils

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/klinikgo/clinic-server/cmd/models"
)

type contextKey string

const ActorKey contextKey = "actor"

// Claims is the access-token payload: the registered subject carries the
// user id, Role carries the scheduling role.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func GetActorFromContext(r *http.Request) (models.Actor, error) {
	actor, ok := r.Context().Value(ActorKey).(models.Actor)
	if !ok {
		return models.Actor{}, errors.New("actor not found in context")
	}
	return actor, nil
}

// AuthMiddleware validates the Bearer token and stores the resulting Actor
// on the request context. Every protected service reads the actor from
// here; role strings in request bodies are never trusted.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.Replace(authHeader, "Bearer ", "", 1)

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(os.Getenv("SECRET_KEY")), nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		userID, err := strconv.ParseUint(claims.Subject, 10, 64)
		if err != nil {
			http.Error(w, "Invalid user ID in token", http.StatusUnauthorized)
			return
		}

		actor := models.Actor{UserID: uint(userID), Role: claims.Role}
		ctx := context.WithValue(r.Context(), ActorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
