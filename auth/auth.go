// Package auth guards the API with a static bearer token and issues
// short-lived HS256 service tokens for machine callers.
package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ServiceClaims are the claims carried by a machine-caller token.
type ServiceClaims struct {
	Service string `json:"service"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	apiToken  string
	jwtSecret []byte
}

func New(apiToken, jwtSecret string) *Authenticator {
	return &Authenticator{apiToken: apiToken, jwtSecret: []byte(jwtSecret)}
}

// IssueServiceToken mints a token a CI runner or bot can present on
// webhook and API calls.
func (a *Authenticator) IssueServiceToken(service string, ttl time.Duration) (string, error) {
	if len(a.jwtSecret) == 0 {
		return "", fmt.Errorf("no JWT secret configured")
	}
	now := time.Now()
	claims := ServiceClaims{
		Service: service,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "conductor",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.jwtSecret)
}

// ValidateServiceToken parses and verifies a service token.
func (a *Authenticator) ValidateServiceToken(tokenString string) (*ServiceClaims, error) {
	claims := &ServiceClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	}, jwt.WithIssuer("conductor"), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Middleware accepts either the static API token or a valid service
// JWT as a bearer credential. With no API token configured, auth is
// open (local development).
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.apiToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := bearerToken(r)
		if token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(a.apiToken)) == 1 {
			next.ServeHTTP(w, r)
			return
		}
		if len(a.jwtSecret) > 0 {
			if _, err := a.ValidateServiceToken(token); err == nil {
				next.ServeHTTP(w, r)
				return
			}
		}
		http.Error(w, "invalid token", http.StatusUnauthorized)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
