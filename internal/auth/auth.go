package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"studymate/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const principalKey contextKey = "principal"

type Claims struct {
	Department  string `json:"department"`
	YearOfStudy int    `json:"year_of_study"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for a principal. Exposed for the auth
// service sitting in front of this API and for tests.
func IssueToken(secret string, p models.Principal, ttl time.Duration) (string, error) {
	claims := Claims{
		Department:  p.Department,
		YearOfStudy: p.YearOfStudy,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func ParseToken(secret, tokenString string) (models.Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return models.Principal{}, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return models.Principal{}, fmt.Errorf("invalid token")
	}
	return models.Principal{
		ID:          claims.Subject,
		Department:  claims.Department,
		YearOfStudy: claims.YearOfStudy,
	}, nil
}

// Middleware authenticates every request unconditionally. There is no
// placeholder identity: a missing or invalid bearer token is a 401.
func Middleware(secret string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			http.Error(w, `{"error":"missing bearer token"}`, http.StatusUnauthorized)
			return
		}
		p, err := ParseToken(secret, strings.TrimSpace(raw))
		if err != nil {
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFrom(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalKey).(models.Principal)
	return p, ok
}
