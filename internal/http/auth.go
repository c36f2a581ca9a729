package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/shuttle-tracking/internal/models"
)

// Claims is the bearer credential payload issued by the auth collaborator:
// identity plus role, HMAC-signed.
type Claims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller placed in the request context.
type Identity struct {
	UserID int64
	Role   models.Role
}

type identityKeyType struct{}

var identityKey identityKeyType

func identityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// auth wraps a handler with bearer validation and a role allow-list.
func (s *Server) auth(next http.HandlerFunc, roles ...models.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := s.authenticate(r)
		if err != nil {
			s.writeDetail(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		allowed := false
		for _, role := range roles {
			if id.Role == role {
				allowed = true
				break
			}
		}
		if !allowed {
			s.writeDetail(w, http.StatusForbidden, "access denied for role "+string(id.Role))
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
	}
}

func (s *Server) authenticate(r *http.Request) (Identity, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return Identity{}, fmt.Errorf("missing bearer token")
	}
	raw := strings.TrimPrefix(header, "Bearer ")

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return Identity{}, err
	}
	if !token.Valid {
		return Identity{}, fmt.Errorf("invalid token")
	}
	return Identity{UserID: claims.UserID, Role: models.Role(claims.Role)}, nil
}
