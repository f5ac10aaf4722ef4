package tokens

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sealflow/sealflow/backend/go-services/internal/config"
	"github.com/sealflow/sealflow/backend/go-services/internal/models"
)

// GenerateAccessToken creates a signed JWT access token for the user
func GenerateAccessToken(cfg *config.Config, u *models.User, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":   u.Sub,
		"name":  u.Name,
		"email": u.Email,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(ttl).Unix(),
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jt.SignedString([]byte(cfg.JWT.Secret))
}

// GenerateSigningSession creates a short-lived JWT bound to one invitation
// token. It lets an external signer hold a session while reviewing the
// document without re-submitting the one-time secret on every request.
func GenerateSigningSession(cfg *config.Config, envelopeID, signerID, tokenID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   signerID,
		"env":   envelopeID,
		"tok":   tokenID,
		"scope": "signing",
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jt.SignedString([]byte(cfg.JWT.Secret))
}

// SigningSessionClaims is the verified content of a signing-session JWT.
type SigningSessionClaims struct {
	SignerID   string
	EnvelopeID string
	TokenID    string
}

// ParseSigningSession verifies a signing-session JWT and returns its claims.
func ParseSigningSession(cfg *config.Config, raw string) (*SigningSessionClaims, error) {
	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(cfg.JWT.Secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid signing session token")
	}
	if scope, _ := claims["scope"].(string); scope != "signing" {
		return nil, fmt.Errorf("token is not a signing session")
	}
	out := &SigningSessionClaims{}
	out.SignerID, _ = claims["sub"].(string)
	out.EnvelopeID, _ = claims["env"].(string)
	out.TokenID, _ = claims["tok"].(string)
	return out, nil
}
