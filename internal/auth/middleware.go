package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"tracker-api/internal/authz"
)

type contextKey string

const actorContextKey contextKey = "actor"

// Middleware validates the bearer token and stores the authenticated
// actor in the request context for downstream handlers.
func Middleware(jwtSecret string, next http.Handler) http.Handler {
	secret := []byte(jwtSecret)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeError(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		tokenStr := strings.TrimSpace(parts[1])
		if tokenStr == "" {
			writeError(w, http.StatusUnauthorized, "invalid authorization token")
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		if tokenType, _ := claims["typ"].(string); tokenType != "access" {
			writeError(w, http.StatusUnauthorized, "invalid token type")
			return
		}

		actor, ok := actorFromClaims(claims)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid token claims")
			return
		}

		ctx := context.WithValue(r.Context(), actorContextKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin gates a handler behind the admin role. Must run inside
// Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFrom(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}
		if !actor.IsAdmin() {
			writeError(w, http.StatusForbidden, "administrator access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ActorFrom returns the authenticated actor stored by Middleware.
func ActorFrom(r *http.Request) (authz.Actor, bool) {
	actor, ok := r.Context().Value(actorContextKey).(authz.Actor)
	return actor, ok
}

// WithActor injects an actor into a request context; test helper for
// handlers that run below the middleware.
func WithActor(r *http.Request, actor authz.Actor) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), actorContextKey, actor))
}

func actorFromClaims(claims jwt.MapClaims) (authz.Actor, bool) {
	id, _ := claims["sub"].(string)
	name, _ := claims["name"].(string)
	email, _ := claims["email"].(string)
	roleStr, _ := claims["role"].(string)
	role := authz.Role(roleStr)

	if id == "" || !role.Valid() {
		return authz.Actor{}, false
	}

	return authz.Actor{ID: id, Name: name, Email: email, Role: role}, true
}
