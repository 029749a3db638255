package dashboard

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// claims is the dashboard's bearer-token payload. Grounded on
// adred-codev-ws_poc/go-server/internal/auth/jwt.go::Claims, trimmed to the
// one role this surface needs (an operator allowed to issue control verbs).
type claims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

// jwtManager issues and verifies the dashboard's optional bearer tokens.
// Authentication is only enforced for control verbs, not the read-only
// views, matching spec.md §6's "external, read-only surface onto core
// state" framing for GET endpoints while still gating mutation.
type jwtManager struct {
	secret   []byte
	duration time.Duration
}

func newJWTManager(secret string, duration time.Duration) *jwtManager {
	return &jwtManager{secret: []byte(secret), duration: duration}
}

func (m *jwtManager) generate(subject string) (string, error) {
	c := claims{
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.duration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "pumpguard-dashboard",
			Subject:   subject,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(m.secret)
}

func (m *jwtManager) verify(tokenString string) (*claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return c, nil
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", errors.New("missing bearer token")
	}
	return strings.TrimPrefix(header, prefix), nil
}

// requireAuth wraps a control-verb handler so it 401s unless m is nil
// (auth disabled, the default — DASHBOARD_AUTH_SECRET unset) or the request
// carries a valid bearer token.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	if s.jwt == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			http.Error(w, "unauthorized: "+err.Error(), http.StatusUnauthorized)
			return
		}
		if _, err := s.jwt.verify(token); err != nil {
			http.Error(w, "unauthorized: "+err.Error(), http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
