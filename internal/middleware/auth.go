package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated caller attached to request contexts and
// websocket sessions.
type Identity struct {
	UserID  uuid.UUID
	Name    string
	Role    string // "student" | "lecturer"
	GroupID *int64
}

type JWTAuth struct {
	Secret []byte
}

func NewJWTAuth(secret string) *JWTAuth {
	return &JWTAuth{Secret: []byte(secret)}
}

// GenerateAccessToken creates a JWT with 12 hour expiry carrying the role and
// group claims the hub and handlers authorize against.
func (j *JWTAuth) GenerateAccessToken(id Identity, email string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": id.UserID.String(),
		"email":   email,
		"name":    id.Name,
		"role":    id.Role,
		"exp":     time.Now().Add(12 * time.Hour).Unix(),
		"iat":     time.Now().Unix(),
	}
	if id.GroupID != nil {
		claims["group_id"] = *id.GroupID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.Secret)
}

// ParseToken validates a raw token string and extracts the caller identity.
// Used by the HTTP middleware and by the websocket endpoint, which carries the
// token as a query parameter instead of a header.
func (j *JWTAuth) ParseToken(tokenStr string) (Identity, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return j.Secret, nil
	})
	if err != nil {
		return Identity{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, fmt.Errorf("invalid token claims")
	}

	userIDStr, ok := claims["user_id"].(string)
	if !ok {
		return Identity{}, fmt.Errorf("missing user_id claim")
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid user_id claim: %w", err)
	}

	name, _ := claims["name"].(string)
	role, _ := claims["role"].(string)
	if role != "student" && role != "lecturer" {
		return Identity{}, fmt.Errorf("invalid role claim %q", role)
	}

	id := Identity{UserID: userID, Name: name, Role: role}
	if g, ok := claims["group_id"].(float64); ok {
		groupID := int64(g)
		id.GroupID = &groupID
	}
	return id, nil
}

// Middleware validates the bearer token and attaches the identity to context.
func (j *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing authorization header", r)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid authorization format", r)
			return
		}

		id, err := j.ParseToken(parts[1])
		if err != nil {
			if strings.Contains(err.Error(), "expired") {
				writeError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired", r)
			} else {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token", r)
			}
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole wraps a route group with a role check on top of Middleware.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetIdentity(r.Context()).Role != role {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Insufficient role", r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetIdentity extracts the caller identity from a request context.
func GetIdentity(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey).(Identity)
	return id
}

func writeError(w http.ResponseWriter, status int, code, message string, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":       code,
			"message":    message,
			"request_id": requestID,
		},
	})
}
