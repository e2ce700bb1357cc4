// Package token signs the links handed to candidates: the per-conversation
// verification link and the per-job application link.
package token

import (
	"errors"
	"fmt"
	"time"

	"go-screening-backend/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	audienceVerix       = "verix"
	audienceApplication = "application"
)

type VerixClaims struct {
	Version int `json:"ver"`
	jwt.RegisteredClaims
}

type ApplicationClaims struct {
	JobID int64 `json:"job_id"`
	jwt.RegisteredClaims
}

type Manager struct {
	verixSecret []byte
	appSecret   []byte
	now         func() time.Time
}

func NewManager(verixSecret, applicationSecret string) *Manager {
	return &Manager{
		verixSecret: []byte(verixSecret),
		appSecret:   []byte(applicationSecret),
		now:         time.Now,
	}
}

// IssueVerix binds a link to one conversation and one token version. Bumping
// the version on retry invalidates earlier links.
func (m *Manager) IssueVerix(conversationID uuid.UUID, version int, expiresAt time.Time) (string, error) {
	claims := VerixClaims{
		Version: version,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   conversationID.String(),
			Audience:  jwt.ClaimStrings{audienceVerix},
			IssuedAt:  jwt.NewNumericDate(m.now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return m.sign(claims, m.verixSecret)
}

// ParseVerix returns the conversation and token version. An expired link
// still yields its claims together with domain.ErrTokenExpired so callers can
// move the conversation to expired.
func (m *Manager) ParseVerix(tokenString string) (uuid.UUID, int, error) {
	claims := &VerixClaims{}
	err := m.parse(tokenString, claims, m.verixSecret, audienceVerix)
	if err != nil && !errors.Is(err, domain.ErrTokenExpired) {
		return uuid.Nil, 0, err
	}
	id, perr := uuid.Parse(claims.Subject)
	if perr != nil {
		return uuid.Nil, 0, fmt.Errorf("%w: bad subject", domain.ErrTokenInvalid)
	}
	return id, claims.Version, err
}

func (m *Manager) IssueApplication(jobID int64, expiresAt time.Time) (string, error) {
	claims := ApplicationClaims{
		JobID: jobID,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{audienceApplication},
			IssuedAt:  jwt.NewNumericDate(m.now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return m.sign(claims, m.appSecret)
}

func (m *Manager) ParseApplication(tokenString string) (int64, error) {
	claims := &ApplicationClaims{}
	if err := m.parse(tokenString, claims, m.appSecret, audienceApplication); err != nil {
		return 0, err
	}
	if claims.JobID <= 0 {
		return 0, fmt.Errorf("%w: missing job", domain.ErrTokenInvalid)
	}
	return claims.JobID, nil
}

func (m *Manager) sign(claims jwt.Claims, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("token secret not configured")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (m *Manager) parse(tokenString string, claims jwt.Claims, secret []byte, audience string) error {
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(m.now),
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", domain.ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
	}
}
