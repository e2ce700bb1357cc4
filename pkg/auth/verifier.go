// Package auth verifies recruiter bearer tokens and the job scope they carry.
package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AllJobs in the jobs claim grants access to every job of the organization.
const AllJobs = "*"

// RecruiterClaims is the token body recruiters authenticate with.
type RecruiterClaims struct {
	Email          string   `json:"email,omitempty"`
	Role           string   `json:"role,omitempty"`
	OrganizationID string   `json:"org,omitempty"`
	Jobs           []string `json:"jobs,omitempty"`
	jwt.RegisteredClaims
}

// CanAccessJob reports whether the token is scoped to jobID.
func (c *RecruiterClaims) CanAccessJob(jobID int64) bool {
	want := fmt.Sprintf("%d", jobID)
	return slices.Contains(c.Jobs, AllJobs) || slices.Contains(c.Jobs, want)
}

// Verifier accepts HS256 tokens signed with the shared secret, and RS256 tokens
// from the identity provider when a key set is configured.
type Verifier struct {
	secret []byte
	keys   *KeySet
}

func NewVerifier(secret string, keys *KeySet) *Verifier {
	return &Verifier{secret: []byte(secret), keys: keys}
}

func (v *Verifier) Verify(ctx context.Context, tokenString string) (*RecruiterClaims, error) {
	claims := &RecruiterClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
			if len(v.secret) == 0 {
				return nil, fmt.Errorf("HS256 token received but JWT_SECRET is not configured")
			}
			return v.secret, nil
		}
		if _, ok := token.Method.(*jwt.SigningMethodRSA); ok && v.keys != nil {
			return v.keys.Keyfunc(ctx)(token)
		}
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// Issue signs an HS256 recruiter token. Used by local tooling and tests.
func Issue(secret string, claims RecruiterClaims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
