package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LearnerClaims are the bearer-token claims for learner routes; Subject is the profile id
type LearnerClaims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// LearnerAuth verifies HS256 learner tokens
type LearnerAuth struct {
	secret []byte
	issuer string
}

// NewLearnerAuth creates a verifier for tokens signed with secret
func NewLearnerAuth(secret, issuer string) *LearnerAuth {
	return &LearnerAuth{secret: []byte(secret), issuer: issuer}
}

// IssueToken signs a token for profileID
func (a *LearnerAuth) IssueToken(profileID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &LearnerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   profileID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse validates a token and returns its claims
func (a *LearnerAuth) Parse(tokenStr string) (*LearnerClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &LearnerClaims{}, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*LearnerClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}

// Authenticate requires a valid learner token. Websocket clients that cannot
// set headers may pass it as the access_token query parameter.
func (a *LearnerAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := ""
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			tokenStr = strings.TrimPrefix(h, "Bearer ")
		} else {
			tokenStr = r.URL.Query().Get("access_token")
		}
		if tokenStr == "" {
			writeAuthError(w, http.StatusUnauthorized, "missing_token", "provide Authorization header with Bearer token")
			return
		}

		claims, err := a.Parse(tokenStr)
		if err != nil {
			slog.Warn("invalid learner token", "error", err, "remote_addr", r.RemoteAddr)
			writeAuthError(w, http.StatusUnauthorized, "invalid_token", "the provided token is not valid")
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithLearner(r.Context(), claims.Subject)))
	})
}
